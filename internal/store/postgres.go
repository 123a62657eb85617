package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// advisoryLockKey serialises concurrent saves across ayutrackd instances
// sharing one database. The value is arbitrary but must be stable.
const advisoryLockKey = int64(2_024_001_337)

// Postgres persists the ledger one row per entry in the ledger_entries table
// (see migrations/001_ledger_entries.up.sql).
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{pool: pool, logger: logger}
}

// Load implements ledger.Store.
func (p *Postgres) Load(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := p.pool.Query(ctx, "SELECT body FROM ledger_entries ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		var e ledger.Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("decode ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Save implements ledger.Store. Rows already stored must match the leading
// entries; only the remainder is inserted. A mismatch fails with ErrDiverged
// and nothing is written. The transaction holds an advisory lock so saves
// from several instances are applied one at a time.
func (p *Postgres) Save(ctx context.Context, entries []ledger.Entry) error {
	return p.inTx(ctx, func(tx pgx.Tx) (int, error) {
		stored, err := storedHashesPg(ctx, tx)
		if err != nil {
			return 0, err
		}
		keep := commonPrefix(stored, entries)
		if keep < len(stored) {
			p.logger.Warn("refusing save over diverged ledger",
				zap.Int("idx", keep),
				zap.Int("stored", len(stored)),
				zap.Int("entries", len(entries)),
			)
			return 0, fmt.Errorf("%w: stored entry %d does not match", ErrDiverged, keep)
		}
		return keep, insertEntriesPg(ctx, tx, entries[keep:])
	})
}

// Replace implements ledger.Replacer. The stored rows are swapped for
// entries in one transaction.
func (p *Postgres) Replace(ctx context.Context, entries []ledger.Entry) error {
	return p.inTx(ctx, func(tx pgx.Tx) (int, error) {
		if _, err := tx.Exec(ctx, "DELETE FROM ledger_entries"); err != nil {
			return 0, fmt.Errorf("clear ledger: %w", err)
		}
		return 0, insertEntriesPg(ctx, tx, entries)
	})
}

// inTx runs fn under the advisory lock and commits. fn returns how many
// leading entries were already stored.
func (p *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) (int, error)) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	kept, err := fn(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	p.logger.Debug("ledger saved", zap.Int("kept", kept))
	return nil
}

func insertEntriesPg(ctx context.Context, tx pgx.Tx, entries []ledger.Entry) error {
	for _, e := range entries {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode ledger entry %d: %w", e.Index, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_entries (idx, hash, prev_hash, batch_number, timestamp, body)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.Index, e.Hash, e.PreviousHash, e.Record.BatchNumber, e.Timestamp, body,
		); err != nil {
			return fmt.Errorf("insert ledger entry %d: %w", e.Index, err)
		}
	}
	return nil
}

func storedHashesPg(ctx context.Context, tx pgx.Tx) ([]string, error) {
	rows, err := tx.Query(ctx, "SELECT hash FROM ledger_entries ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("read stored hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan stored hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// commonPrefix returns how many leading stored hashes agree with entries.
func commonPrefix(stored []string, entries []ledger.Entry) int {
	n := 0
	for n < len(stored) && n < len(entries) && stored[n] == entries[n].Hash {
		n++
	}
	return n
}

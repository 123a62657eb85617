package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLite persists the ledger with the same row-per-entry layout as Postgres,
// for single-node deployments without a database server.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open database and creates the ledger table if needed.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS ledger_entries (
        idx INTEGER PRIMARY KEY,
        hash TEXT NOT NULL UNIQUE,
        prev_hash TEXT NOT NULL DEFAULT '',
        batch_number TEXT NOT NULL DEFAULT '',
        timestamp INTEGER NOT NULL,
        body JSON NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// Load implements ledger.Store.
func (s *SQLite) Load(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT body FROM ledger_entries ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []ledger.Entry{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		var e ledger.Entry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decode ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Save implements ledger.Store. Like Postgres it only appends, and fails
// with ErrDiverged when the stored rows do not match the leading entries.
func (s *SQLite) Save(ctx context.Context, entries []ledger.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stored, err := storedHashesSQL(ctx, tx)
		if err != nil {
			return err
		}
		keep := commonPrefix(stored, entries)
		if keep < len(stored) {
			return fmt.Errorf("%w: stored entry %d does not match", ErrDiverged, keep)
		}
		return insertEntriesSQL(ctx, tx, entries[keep:])
	})
}

// Replace implements ledger.Replacer.
func (s *SQLite) Replace(ctx context.Context, entries []ledger.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ledger_entries"); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
		return insertEntriesSQL(ctx, tx, entries)
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func insertEntriesSQL(ctx context.Context, tx *sql.Tx, entries []ledger.Entry) error {
	for _, e := range entries {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode ledger entry %d: %w", e.Index, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (idx, hash, prev_hash, batch_number, timestamp, body)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.Index, e.Hash, e.PreviousHash, e.Record.BatchNumber, e.Timestamp, string(body),
		); err != nil {
			return fmt.Errorf("insert ledger entry %d: %w", e.Index, err)
		}
	}
	return nil
}

func storedHashesSQL(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT hash FROM ledger_entries ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("read stored hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

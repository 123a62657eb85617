package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/geo"
	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
	"github.com/jmerrifield20/AyuTrack/internal/keycodec"
	"github.com/jmerrifield20/AyuTrack/internal/keygate"
	"github.com/jmerrifield20/AyuTrack/internal/qrpayload"
	"github.com/jmerrifield20/AyuTrack/internal/quorum"
	"go.uber.org/zap"
)

// Seeder populates an empty ledger, typically with demo fixtures.
type Seeder func(ctx context.Context, l *Ledger) error

// Ledger owns the ordered entry sequence. Appends are serialised; reads may
// run concurrently and only ever see committed entries.
type Ledger struct {
	appendMu sync.Mutex // held from tail read to commit

	mu      sync.RWMutex
	entries []*Entry

	store    Store
	quorum   *quorum.Quorum
	locator  geo.Locator
	seeder   Seeder
	payload  qrpayload.Options
	now      func() time.Time
	onCommit []func(Entry)
	onReject []func(error)
	logger   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithQuorum replaces the endorsement quorum.
func WithQuorum(q *quorum.Quorum) Option { return func(l *Ledger) { l.quorum = q } }

// WithLocator sets the geolocation collaborator used when a record has no location.
func WithLocator(loc geo.Locator) Option { return func(l *Ledger) { l.locator = loc } }

// WithSeeder sets the seeder run by Open when the store is empty or unreadable.
func WithSeeder(s Seeder) Option { return func(l *Ledger) { l.seeder = s } }

// WithPayloadOptions sets the consumer payload deployment options.
func WithPayloadOptions(o qrpayload.Options) Option { return func(l *Ledger) { l.payload = o } }

// WithClock overrides the ledger clock.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option { return func(l *Ledger) { l.logger = logger } }

// WithCommitHook registers fn to be called with every committed entry.
// Hooks run after the write lock is released.
func WithCommitHook(fn func(Entry)) Option {
	return func(l *Ledger) { l.onCommit = append(l.onCommit, fn) }
}

// WithRejectHook registers fn to be called with every rejected append.
func WithRejectHook(fn func(error)) Option {
	return func(l *Ledger) { l.onReject = append(l.onReject, fn) }
}

// New creates an empty Ledger backed by store. Call Open to load persisted entries.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		quorum:  quorum.New(),
		locator: geo.None{},
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Open loads the persisted sequence and verifies it. When the store is empty
// or cannot be read and a Seeder is configured, the ledger is seeded instead.
// A persisted chain that fails verification is rejected.
func (l *Ledger) Open(ctx context.Context) error {
	loaded, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Warn("ledger load failed, starting empty", zap.Error(err))
		loaded = nil
	}

	if len(loaded) > 0 {
		if err := verifyEntries(loaded); err != nil {
			return fmt.Errorf("verify persisted ledger: %w", err)
		}
		l.mu.Lock()
		l.entries = make([]*Entry, len(loaded))
		for i := range loaded {
			e := loaded[i].clone()
			l.entries[i] = &e
		}
		l.mu.Unlock()
		l.logger.Info("ledger loaded", zap.Int("entries", len(loaded)))
		return nil
	}

	if l.seeder != nil {
		if err := l.seeder(ctx, l); err != nil {
			return fmt.Errorf("seed ledger: %w", err)
		}
		l.logger.Info("ledger seeded", zap.Int("entries", l.Len()))
	}
	return nil
}

// AppendOption adjusts a single append.
type AppendOption func(*appendConfig)

type appendConfig struct {
	overrides *qrpayload.Overrides
}

// WithPayloadOverrides replaces derived consumer payload fields for this entry.
func WithPayloadOverrides(ov *qrpayload.Overrides) AppendOption {
	return func(c *appendConfig) { c.overrides = ov }
}

// Append authorizes, hashes, endorses and commits rec. candidateKey is the
// possession key minted by the previous append and is ignored for the first
// entry. On any failure the ledger is left unchanged.
func (l *Ledger) Append(ctx context.Context, rec batch.Record, candidateKey string, opts ...AppendOption) (*Entry, error) {
	e, err := l.append(ctx, rec, candidateKey, opts)
	if err != nil {
		for _, fn := range l.onReject {
			fn(err)
		}
		return nil, err
	}
	for _, fn := range l.onCommit {
		fn(e.clone())
	}
	return e, nil
}

func (l *Ledger) append(ctx context.Context, rec batch.Record, candidateKey string, opts []AppendOption) (*Entry, error) {
	var cfg appendConfig
	for _, o := range opts {
		o(&cfg)
	}
	if err := checkRecord(rec); err != nil {
		return nil, err
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	l.mu.RLock()
	n := len(l.entries)
	var prevHash string
	if n > 0 {
		prevHash = l.entries[n-1].Hash
	}
	l.mu.RUnlock()

	// Proposed → authorized.
	if err := keygate.Check(candidateKey, prevHash); err != nil {
		return nil, err
	}

	rec = l.complete(ctx, rec, n)

	// Authorized → hash computed.
	hash, err := hashengine.EntryHash(rec, prevHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	// Hash computed → endorsed.
	res, err := l.quorum.Endorse(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !res.Reached {
		return nil, fmt.Errorf("%w: %d of %d endorsements", ErrConsensusNotReached, len(res.Endorsements), len(quorum.Peers))
	}

	nextKey, err := keygate.MintKey(hash, rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("mint next key: %w", err)
	}
	envelope, err := keycodec.Encode(nextKey, hash)
	if err != nil {
		l.logger.Warn("key envelope encoding failed", zap.String("hash", hash), zap.Error(err))
		envelope = ""
	}

	trail := l.trailFor(rec)
	entry := &Entry{
		Index:         n,
		Hash:          hash,
		Record:        rec,
		Timestamp:     rec.Timestamp,
		PreviousHash:  prevHash,
		NextKey:       nextKey,
		KeyEnvelope:   envelope.String(),
		Endorsements:  res.Endorsements,
		LocationTrail: trail,
	}
	entry.ConsumerPayload = qrpayload.Build(qrpayload.Source{
		Record: rec,
		Hash:   hash,
		Trail:  trail,
	}, l.payload, cfg.overrides)

	// Endorsed → committed. Persist the candidate sequence first so a store
	// failure never becomes visible to readers.
	next := l.snapshot()
	next = append(next, entry.clone())
	if err := l.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	l.logger.Debug("ledger entry appended",
		zap.Int("idx", entry.Index),
		zap.String("batch_number", rec.BatchNumber),
		zap.String("hash", hash),
	)
	c := entry.clone()
	return &c, nil
}

// complete fills in the timestamp, batch number and location of a record.
func (l *Ledger) complete(ctx context.Context, rec batch.Record, seq int) batch.Record {
	if rec.Timestamp == 0 {
		rec.Timestamp = l.now().UnixMilli()
	}
	if strings.TrimSpace(rec.BatchNumber) == "" {
		rec.BatchNumber = batch.GenerateNumber(rec.ProductType, rec.Time(), seq+1)
	}
	if rec.Location == nil && l.locator != nil {
		loc, err := l.locator.Locate(ctx)
		if err != nil {
			l.logger.Warn("geolocation unavailable", zap.Error(err))
		}
		if err == nil && loc != nil {
			rec.Location = loc
		}
	}
	if len(rec.StageData) == 0 {
		rec.StageData = nil
	}
	return rec
}

// trailFor extends the trail of the latest entry in rec's batch family with
// a point for rec. Must be called with appendMu held.
func (l *Ledger) trailFor(rec batch.Record) []batch.TrailPoint {
	base := batch.BaseNumber(rec.BatchNumber)

	l.mu.RLock()
	var prior []batch.TrailPoint
	var latest int64 = -1
	for _, e := range l.entries {
		if batch.BaseNumber(e.Record.BatchNumber) == base && e.Timestamp >= latest {
			latest = e.Timestamp
			prior = e.LocationTrail
		}
	}
	l.mu.RUnlock()

	loc := geo.Placeholder()
	if rec.Location != nil {
		loc = *rec.Location
	}
	trail := make([]batch.TrailPoint, 0, len(prior)+1)
	trail = append(trail, prior...)
	return append(trail, batch.TrailPoint{Stage: rec.Stage, Location: loc, Timestamp: rec.Timestamp})
}

// Import replaces the ledger with an untrusted sequence after verifying
// linkage and recomputing every hash. Entries failing verification are
// rejected with ErrChainBroken and nothing changes.
func (l *Ledger) Import(ctx context.Context, entries []Entry) error {
	if err := verifyEntries(entries); err != nil {
		return err
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	next := make([]Entry, len(entries))
	for i := range entries {
		next[i] = entries[i].clone()
	}
	save := l.store.Save
	if r, ok := l.store.(Replacer); ok {
		save = r.Replace
	}
	if err := save(ctx, next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	l.mu.Lock()
	l.entries = make([]*Entry, len(next))
	for i := range next {
		e := next[i]
		l.entries[i] = &e
	}
	l.mu.Unlock()
	return nil
}

// snapshot copies the committed sequence.
func (l *Ledger) snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries), len(l.entries)+1)
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

func checkRecord(rec batch.Record) error {
	switch {
	case strings.TrimSpace(rec.ProductType) == "":
		return fmt.Errorf("%w: product type is required", ErrInvalidRecord)
	case rec.Quantity < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidRecord)
	case rec.Timestamp < 0:
		return fmt.Errorf("%w: timestamp must not be negative", ErrInvalidRecord)
	case !rec.Stage.Valid():
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidRecord, rec.Stage)
	}
	return nil
}

// IsClientError reports whether err was caused by the caller rather than the ledger.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrInvalidRecord)
}

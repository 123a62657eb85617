package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/quorum"
)

// Len returns the number of committed entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Get returns the entry at the given zero-based index.
func (l *Ledger) Get(index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrNotFound, index)
	}
	e := l.entries[index].clone()
	return &e, nil
}

// Entries returns a copy of the committed sequence.
func (l *Ledger) Entries() []Entry {
	return l.snapshot()
}

// Root returns the hash of the most recent entry, or "" for an empty ledger.
func (l *Ledger) Root() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].Hash
}

// Verify walks the chain and checks linkage, hashes and endorsements. Returns nil if the
// chain is intact. O(n) digest recomputations.
func (l *Ledger) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	seq := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		seq[i] = *e
	}
	return verifyEntries(seq)
}

// ValidateChain reports whether Verify succeeds.
func (l *Ledger) ValidateChain(ctx context.Context) bool {
	return l.Verify(ctx) == nil
}

// FindByBatchNumber looks an entry up by exact batch number, then by base
// batch number (first three hyphen tokens), then by substring in either
// direction. The first match of the first successful strategy is returned.
func (l *Ledger) FindByBatchNumber(id string) (*Entry, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	strategies := []func(string) bool{
		func(n string) bool { return n == id },
		func(n string) bool { return batch.BaseNumber(n) == batch.BaseNumber(id) },
		func(n string) bool { return strings.Contains(n, id) || strings.Contains(id, n) },
	}
	for _, match := range strategies {
		for _, e := range l.entries {
			if e.Record.BatchNumber != "" && match(e.Record.BatchNumber) {
				c := e.clone()
				return &c, true
			}
		}
	}
	return nil, false
}

// HistoryFor returns every entry sharing id's base batch number, ordered by
// ascending timestamp.
func (l *Ledger) HistoryFor(id string) []Entry {
	base := batch.BaseNumber(strings.TrimSpace(id))
	if base == "" {
		return nil
	}

	l.mu.RLock()
	var out []Entry
	for _, e := range l.entries {
		if batch.BaseNumber(e.Record.BatchNumber) == base {
			out = append(out, e.clone())
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// FindByHash returns the entry with the given hash.
func (l *Ledger) FindByHash(hash string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if strings.EqualFold(e.Hash, hash) {
			c := e.clone()
			return &c, true
		}
	}
	return nil, false
}

// Status summarises the simulated network and chain state.
type Status struct {
	Connected     bool   `json:"connected"`
	PeerCount     int    `json:"peerCount"`
	Entries       int    `json:"entries"`
	Root          string `json:"root,omitempty"`
	LastBlockTime *int64 `json:"lastBlockTime"`
	ChainValid    bool   `json:"chainValid"`
}

// Status reports the ledger's network status. ChainValid runs a full Verify.
func (l *Ledger) Status(ctx context.Context) Status {
	s := Status{
		Connected:  true,
		PeerCount:  len(quorum.Peers),
		ChainValid: l.ValidateChain(ctx),
	}
	l.mu.RLock()
	s.Entries = len(l.entries)
	if s.Entries > 0 {
		tail := l.entries[s.Entries-1]
		ts := tail.Timestamp
		s.LastBlockTime = &ts
		s.Root = tail.Hash
	}
	l.mu.RUnlock()
	return s
}

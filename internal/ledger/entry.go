package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
	"github.com/jmerrifield20/AyuTrack/internal/keygate"
	"github.com/jmerrifield20/AyuTrack/internal/qrpayload"
	"github.com/jmerrifield20/AyuTrack/internal/quorum"
)

var (
	// ErrInvalidKey is returned when a non-first append lacks a well-formed key.
	ErrInvalidKey = keygate.ErrInvalidKey

	// ErrConsensusNotReached is returned when the endorsement quorum fails.
	ErrConsensusNotReached = quorum.ErrConsensusNotReached

	// ErrPersistence wraps store failures. The in-memory ledger is unchanged
	// when it is returned.
	ErrPersistence = errors.New("ledger persistence failed")

	// ErrInvalidRecord is returned for records that cannot be hashed or fail
	// basic field checks.
	ErrInvalidRecord = errors.New("invalid batch record")

	// ErrNotFound is returned when no entry matches a lookup.
	ErrNotFound = errors.New("ledger entry not found")

	// ErrChainBroken is returned when linkage or hash recomputation fails.
	ErrChainBroken = errors.New("ledger chain broken")
)

// Store is the persistence collaborator of a Ledger. Load returns an empty
// slice when nothing has been stored yet; Save receives the full sequence.
// A store shared between writers must reject a Save that would drop entries
// it already holds.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Replacer is implemented by stores whose Save only appends. Import uses it
// to swap the stored sequence wholesale.
type Replacer interface {
	Replace(ctx context.Context, entries []Entry) error
}

// Entry is a single committed ledger record. Entries are immutable once committed.
type Entry struct {
	Index           int                  `json:"index"`
	Hash            string               `json:"hash"`
	Record          batch.Record         `json:"data"`
	Timestamp       int64                `json:"timestamp"`
	PreviousHash    string               `json:"previousHash,omitempty"`
	NextKey         string               `json:"nextKey,omitempty"`
	KeyEnvelope     string               `json:"keyEnvelope,omitempty"`
	Endorsements    []quorum.Endorsement `json:"endorsements"`
	ConsumerPayload qrpayload.Payload    `json:"consumerQRData"`
	LocationTrail   []batch.TrailPoint   `json:"locationTrail"`
}

// Public returns a copy of e without the possession key and its envelope,
// for display to parties other than the custodian who appended it.
func (e Entry) Public() Entry {
	c := e.clone()
	c.NextKey = ""
	c.KeyEnvelope = ""
	return c
}

// recomputeHash hashes the entry's record against its stored previous hash.
func (e *Entry) recomputeHash() (string, error) {
	return hashengine.EntryHash(e.Record, e.PreviousHash)
}

func (e Entry) clone() Entry {
	c := e
	c.Endorsements = append([]quorum.Endorsement(nil), e.Endorsements...)
	c.LocationTrail = append([]batch.TrailPoint(nil), e.LocationTrail...)
	c.ConsumerPayload.Certifications = append([]string(nil), e.ConsumerPayload.Certifications...)
	c.ConsumerPayload.LocationTrail = append([]batch.TrailPoint(nil), e.ConsumerPayload.LocationTrail...)
	if e.Record.Location != nil {
		loc := *e.Record.Location
		c.Record.Location = &loc
	}
	if e.Record.StageData != nil {
		c.Record.StageData = make(map[string]string, len(e.Record.StageData))
		for k, v := range e.Record.StageData {
			c.Record.StageData[k] = v
		}
	}
	return c
}

// verifyEntries walks a sequence and checks index, linkage, hash and
// endorsements of every entry.
func verifyEntries(entries []Entry) error {
	for i := range entries {
		curr := &entries[i]
		if curr.Index != i {
			return fmt.Errorf("%w: entry %d has index %d", ErrChainBroken, i, curr.Index)
		}
		if i == 0 {
			if curr.PreviousHash != "" {
				return fmt.Errorf("%w: first entry has a previous hash", ErrChainBroken)
			}
		} else if !strings.EqualFold(curr.PreviousHash, entries[i-1].Hash) {
			return fmt.Errorf("%w: hash chain broken at index %d", ErrChainBroken, i)
		}
		h, err := curr.recomputeHash()
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, i, err)
		}
		if !strings.EqualFold(h, curr.Hash) {
			return fmt.Errorf("%w: entry %d has invalid hash", ErrChainBroken, i)
		}
		if !quorum.Verify(curr.Hash, curr.Endorsements) {
			return fmt.Errorf("%w: entry %d lacks a valid endorsement quorum", ErrChainBroken, i)
		}
	}
	return nil
}

// Package quorum simulates sign-off on a candidate entry by the fixed set of
// supply-chain peers. There is no network: every peer signs locally.
package quorum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
	"golang.org/x/sync/errgroup"
)

// Threshold is the minimum number of endorsements needed to commit an entry.
const Threshold = 3

// Peers is the closed set of endorsing peers, in endorsement order.
var Peers = [4]string{"farmer-peer", "lab-peer", "processor-peer", "regulator-peer"}

// ErrConsensusNotReached is returned when fewer than Threshold peers endorse.
var ErrConsensusNotReached = errors.New("consensus not reached among peers")

// Endorsement is one peer's signature over an entry hash.
type Endorsement struct {
	PeerID    string `json:"peerId"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// Result is the outcome of an endorsement round.
type Result struct {
	Endorsements []Endorsement
	Reached      bool
}

// FailureFunc decides whether a peer refuses to endorse. A nil FailureFunc
// means every peer endorses.
type FailureFunc func(peerID string) bool

// Quorum runs endorsement rounds.
type Quorum struct {
	fail FailureFunc
	now  func() time.Time
}

// Option configures a Quorum.
type Option func(*Quorum)

// WithFailures injects peer failures.
func WithFailures(fn FailureFunc) Option {
	return func(q *Quorum) { q.fail = fn }
}

// WithClock overrides the endorsement clock.
func WithClock(now func() time.Time) Option {
	return func(q *Quorum) { q.now = now }
}

// New creates a Quorum.
func New(opts ...Option) *Quorum {
	q := &Quorum{now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Reached reports whether n endorsements satisfy the threshold.
func Reached(n int) bool {
	return n >= Threshold
}

// Sign computes a peer's signature over entryHash at timestamp.
func Sign(entryHash, peerID string, timestamp int64) string {
	return hashengine.DigestString(fmt.Sprintf("%s-%s-%d", entryHash, peerID, timestamp))
}

// Endorse asks every peer to sign entryHash. Peers sign concurrently; the
// returned endorsements keep the order of Peers and omit refusing peers.
func (q *Quorum) Endorse(ctx context.Context, entryHash string) (Result, error) {
	var slots [len(Peers)]*Endorsement

	g, gctx := errgroup.WithContext(ctx)
	for i, peer := range Peers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if q.fail != nil && q.fail(peer) {
				return nil
			}
			ts := q.now().UnixMilli()
			slots[i] = &Endorsement{
				PeerID:    peer,
				Signature: Sign(entryHash, peer, ts),
				Timestamp: ts,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("endorse: %w", err)
	}

	res := Result{Endorsements: make([]Endorsement, 0, len(Peers))}
	for _, e := range slots {
		if e != nil {
			res.Endorsements = append(res.Endorsements, *e)
		}
	}
	res.Reached = Reached(len(res.Endorsements))
	return res, nil
}

// Verify recomputes each endorsement signature against entryHash and checks
// the threshold.
func Verify(entryHash string, endorsements []Endorsement) bool {
	valid := 0
	for _, e := range endorsements {
		if isPeer(e.PeerID) && Sign(entryHash, e.PeerID, e.Timestamp) == e.Signature {
			valid++
		}
	}
	return Reached(valid)
}

func isPeer(id string) bool {
	for _, p := range Peers {
		if p == id {
			return true
		}
	}
	return false
}

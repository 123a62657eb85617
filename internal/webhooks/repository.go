package webhooks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Repository persists webhook subscriptions.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByOwner(ctx context.Context, owner string) ([]*Subscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryRepository keeps subscriptions in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[uuid.UUID]Subscription)}
}

// Create assigns an ID and creation time and stores sub.
func (r *MemoryRepository) Create(_ context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = copySub(sub)
	return nil
}

// GetByID retrieves a subscription by ID.
func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copySub(&s)
	return &c, nil
}

// ListByOwner returns an owner's subscriptions, newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, owner string) ([]*Subscription, error) {
	subs := r.filter(func(s *Subscription) bool { return s.Owner == owner })
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

// ListByEvent returns the active subscriptions listening for eventType, oldest first.
func (r *MemoryRepository) ListByEvent(_ context.Context, eventType string) ([]*Subscription, error) {
	subs := r.filter(func(s *Subscription) bool { return s.Wants(eventType) })
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

// Delete removes a subscription.
func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

func (r *MemoryRepository) filter(keep func(*Subscription) bool) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Subscription
	for _, s := range r.subs {
		if keep(&s) {
			c := copySub(&s)
			out = append(out, &c)
		}
	}
	return out
}

func copySub(s *Subscription) Subscription {
	c := *s
	c.Events = append([]string(nil), s.Events...)
	return c
}

package store

import (
	"context"
	"sync"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// Memory is an in-memory, thread-safe Store. It keeps the encoded document
// rather than the live slice so callers can never alias stored entries.
type Memory struct {
	mu  sync.RWMutex
	doc []byte
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements ledger.Store.
func (m *Memory) Load(_ context.Context) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Unmarshal(m.doc)
}

// Save implements ledger.Store.
func (m *Memory) Save(_ context.Context, entries []ledger.Entry) error {
	b, err := Marshal(entries)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.doc = b
	m.mu.Unlock()
	return nil
}

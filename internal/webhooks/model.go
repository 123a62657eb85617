package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Event types dispatched by the ledger.
const (
	EventBatchCommitted          = "batch.committed"
	EventLedgerIntegrityDegraded = "ledger.integrity_degraded"
)

// KnownEvents lists every event a subscription may name.
var KnownEvents = []string{EventBatchCommitted, EventLedgerIntegrityDegraded}

// Subscription is a custodian's subscription to ledger events.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"` // never returned after creation
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Wants reports whether s is active and subscribed to eventType.
func (s *Subscription) Wants(eventType string) bool {
	if !s.Active {
		return false
	}
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Event is the JSON body POSTed to subscribers.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// CreateSubscriptionRequest is the payload for creating a subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}

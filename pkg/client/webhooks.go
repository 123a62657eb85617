package client

import (
	"context"
	"net/http"
	"net/url"
)

// Webhook event types.
const (
	EventBatchCommitted          = "batch.committed"
	EventLedgerIntegrityDegraded = "ledger.integrity_degraded"
)

// Subscribe registers target for events and returns the subscription with its
// signing secret. The secret is not retrievable later.
func (c *Client) Subscribe(ctx context.Context, target string, events ...string) (*Webhook, string, error) {
	var res struct {
		Subscription Webhook `json:"subscription"`
		Secret       string  `json:"secret"`
	}
	body := map[string]any{"url": target, "events": events}
	if err := c.call(ctx, http.MethodPost, "/api/v1/webhooks", body, &res); err != nil {
		return nil, "", err
	}
	return &res.Subscription, res.Secret, nil
}

// Webhooks lists the caller's subscriptions.
func (c *Client) Webhooks(ctx context.Context) ([]Webhook, error) {
	var res struct {
		Subscriptions []Webhook `json:"subscriptions"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/webhooks", nil, &res); err != nil {
		return nil, err
	}
	return res.Subscriptions, nil
}

// Unsubscribe deletes one of the caller's subscriptions.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/webhooks/"+url.PathEscape(id), nil, nil)
}

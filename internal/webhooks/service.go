package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 signature of each delivery body.
const SignatureHeader = "X-AyuTrack-Signature"

var (
	// ErrForbidden is returned when a custodian touches another's subscription.
	ErrForbidden = errors.New("subscription belongs to another custodian")
	// ErrInvalidSubscription is returned for an unusable URL or event list.
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient overrides the client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithRetryDelays sets the wait before each retry. The number of attempts is
// len(delays)+1.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(s *Service) { s.retryDelays = delays }
}

// WithMetricsRecorder configures the metrics callback.
func WithMetricsRecorder(fn MetricsRecorder) Option {
	return func(s *Service) { s.onMetrics = fn }
}

// Service manages webhook subscriptions and event dispatching.
type Service struct {
	repo        Repository
	httpClient  *http.Client
	retryDelays []time.Duration
	onMetrics   MetricsRecorder
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewService creates a new webhook Service.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:        repo,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe creates a new subscription for owner with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, owner string, req *CreateSubscriptionRequest) (*Subscription, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute http or https", ErrInvalidSubscription)
	}
	if len(req.Events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", ErrInvalidSubscription)
	}
	for _, ev := range req.Events {
		if !slices.Contains(KnownEvents, ev) {
			return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidSubscription, ev)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		Owner:  owner,
		URL:    req.URL,
		Events: slices.Compact(slices.Sorted(slices.Values(req.Events))),
		Secret: secret,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes a subscription, checking ownership.
func (s *Service) Unsubscribe(ctx context.Context, owner string, subID uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Owner != owner {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, subID)
}

// ListByOwner returns all subscriptions for a custodian.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]*Subscription, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Dispatch fans out an event to all matching subscriptions. Deliveries run in
// the background and outlive ctx's cancellation.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	subs, err := s.repo.ListByEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	deliverCtx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		s.wg.Add(1)
		go func(sub *Subscription) {
			defer s.wg.Done()
			s.deliver(deliverCtx, sub, eventType, body)
		}(sub)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, eventType string, body []byte) {
	signature := Sign(body, sub.Secret)
	attempts := len(s.retryDelays) + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(s.retryDelays[attempt-2])
		}

		err := s.post(ctx, sub.URL, body, signature)
		if s.onMetrics != nil {
			s.onMetrics(err == nil)
		}
		if err == nil {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("subscription", sub.ID.String()),
			zap.String("event", eventType),
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (s *Service) post(ctx context.Context, target string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the "sha256=<hex>" HMAC signature of body under secret.
// Receivers recompute it to authenticate a delivery.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

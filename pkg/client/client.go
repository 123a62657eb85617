package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// TokenPath is the server's OAuth2 token endpoint, relative to the base URL.
	TokenPath = "/api/v1/oauth/token"

	maxResponseBytes = 8 << 20
)

var (
	// ErrNotFound is matched by errors for 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is matched by errors for 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrNotFound and ErrUnauthorized.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// Client is the AyuTrack SDK entry point. It is safe for concurrent use.
type Client struct {
	base       string
	httpClient *http.Client
	cache      *entryCache
	creds      *clientcredentials.Config
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets the underlying http.Client. Token acquisition from
// WithCredentials is layered on top of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory caching of batch lookups with the given TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("cache TTL must be positive, got %s", ttl)
		}
		c.cache = newEntryCache(ttl)
		return nil
	}
}

// WithCredentials authenticates as a custodian. Tokens are fetched from the
// server's token endpoint and refreshed before they expire. With no scopes
// the server grants its defaults.
func WithCredentials(custodianID, secret string, scopes ...string) Option {
	return func(c *Client) error {
		if custodianID == "" || secret == "" {
			return errors.New("custodian id and secret are required")
		}
		c.creds = &clientcredentials.Config{
			ClientID:     custodianID,
			ClientSecret: secret,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		return nil
	}
}

// WithBearerToken attaches a pre-obtained token to every request. It is never refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.creds = nil
		base := c.httpClient
		c.httpClient = &http.Client{
			Timeout: base.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
				Base:   base.Transport,
			},
		}
		return nil
	}
}

// New creates a Client for the server at baseURL.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithCredentials(id, secret),
//	    client.WithCacheTTL(30*time.Second),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.creds != nil {
		c.creds.TokenURL = c.base + TokenPath
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		hc := c.creds.Client(ctx)
		hc.Timeout = c.httpClient.Timeout
		c.httpClient = hc
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// AppendBatch submits rec to the ledger. privateKey is the possession key
// returned by the previous append and is ignored for the first entry.
func (c *Client) AppendBatch(ctx context.Context, rec Record, privateKey string) (*AppendResult, error) {
	body := struct {
		Record
		PrivateKey string `json:"private_key,omitempty"`
	}{rec, privateKey}

	var res AppendResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/batches", body, &res); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.clear()
	}
	return &res, nil
}

// FindBatch returns the latest entry matching a batch number.
func (c *Client) FindBatch(ctx context.Context, batchNumber string) (*Entry, error) {
	if c.cache != nil {
		if e, ok := c.cache.get(batchNumber); ok {
			return e, nil
		}
	}
	var e Entry
	if err := c.call(ctx, http.MethodGet, "/api/v1/batches/"+url.PathEscape(batchNumber), nil, &e); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(batchNumber, &e)
	}
	return &e, nil
}

// History returns every entry of a batch family, oldest first.
func (c *Client) History(ctx context.Context, batchNumber string) ([]Entry, error) {
	var res struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/batches/"+url.PathEscape(batchNumber)+"/history", nil, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// Payload returns the consumer QR payload of a batch.
func (c *Client) Payload(ctx context.Context, batchNumber string) (*Payload, error) {
	var p Payload
	if err := c.call(ctx, http.MethodGet, "/api/v1/batches/"+url.PathEscape(batchNumber)+"/qr", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// QRCode returns a PNG of the batch's consumer QR code. size 0 uses the
// server default.
func (c *Client) QRCode(ctx context.Context, batchNumber string, size int) ([]byte, error) {
	path := "/api/v1/batches/" + url.PathEscape(batchNumber) + "/qr.png"
	if size > 0 {
		path += "?size=" + strconv.Itoa(size)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/png")
	return c.do(req)
}

// VerifyPayload checks a scanned QR payload against the ledger. raw is the
// JSON text decoded from the QR code.
func (c *Client) VerifyPayload(ctx context.Context, raw []byte) (*VerifyResult, error) {
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	var res VerifyResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/verify", json.RawMessage(raw), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyChain asks the server to recheck every hash link.
func (c *Client) VerifyChain(ctx context.Context) (*ChainResult, error) {
	var res ChainResult
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status returns the server's network status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Entries returns a page of ledger entries and the total entry count.
func (c *Client) Entries(ctx context.Context, offset, limit int) ([]Entry, int, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	var res struct {
		Total   int     `json:"total"`
		Entries []Entry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/entries?"+q.Encode(), nil, &res); err != nil {
		return nil, 0, err
	}
	return res.Entries, res.Total, nil
}

// Entry returns the entry at index.
func (c *Client) Entry(ctx context.Context, index int) (*Entry, error) {
	var e Entry
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/entries/"+strconv.Itoa(index), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EncodeKey wraps a possession key in an envelope bound to referenceHash.
func (c *Client) EncodeKey(ctx context.Context, key, referenceHash string) (*KeyEnvelope, error) {
	var env KeyEnvelope
	body := map[string]string{"key": key, "referenceHash": referenceHash}
	if err := c.call(ctx, http.MethodPost, "/api/v1/keys/encode", body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodeKey recovers a possession key from an envelope.
func (c *Client) DecodeKey(ctx context.Context, envelope, referenceHash string) (string, error) {
	var res struct {
		Key string `json:"key"`
	}
	body := map[string]string{"envelope": envelope, "referenceHash": referenceHash}
	if err := c.call(ctx, http.MethodPost, "/api/v1/keys/decode", body, &res); err != nil {
		return "", err
	}
	return res.Key, nil
}

// call sends an optional JSON body and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts the "error" field of a JSON error body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// --- simple in-memory lookup cache ---

type cacheEntry struct {
	entry     *Entry
	expiresAt time.Time
}

type entryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newEntryCache(ttl time.Duration) *entryCache {
	return &entryCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (ec *entryCache) get(key string) (*Entry, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	e, ok := ec.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.entry, true
}

func (ec *entryCache) set(key string, e *Entry) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.entries[key] = &cacheEntry{entry: e, expiresAt: time.Now().Add(ec.ttl)}
}

func (ec *entryCache) clear() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	clear(ec.entries)
}

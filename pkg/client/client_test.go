package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/api"
	"github.com/jmerrifield20/AyuTrack/internal/feed"
	"github.com/jmerrifield20/AyuTrack/internal/identity"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/store"
	"github.com/jmerrifield20/AyuTrack/internal/webhooks"
	"github.com/jmerrifield20/AyuTrack/pkg/client"
)

const (
	custodianID     = "farm-coop-7"
	custodianSecret = "correct horse battery staple"
)

// newServer starts a real API router backed by an in-memory store.
// When auth is set, appends require a custodian token.
func newServer(t *testing.T, auth bool) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	deps := api.Deps{Ledger: ledger.New(store.NewMemory())}
	if auth {
		tokens, err := identity.NewTokenIssuer(bytes.Repeat([]byte("k"), 32), "ayutrack-test", time.Hour)
		require.NoError(t, err)
		custodians := identity.NewCustodians()
		require.NoError(t, custodians.Add(custodianID, custodianSecret))
		deps.Tokens, deps.Custodians = tokens, custodians
		deps.Webhooks = webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(api.NewRouter(ctx, deps, api.Config{}, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func record(number string) client.Record {
	return client.Record{
		ProductType: "Ashwagandha",
		Quantity:    250,
		BatchNumber: number,
		Timestamp:   1_704_067_200_000,
		Location:    &client.Location{Latitude: 10.85, Longitude: 76.27, Address: "Kerala, India"},
		Stage:       "HARVESTING",
	}
}

func TestNew_invalidURL(t *testing.T) {
	_, err := client.New("not a url")
	assert.Error(t, err)

	_, err = client.New("http://localhost", client.WithCacheTTL(0))
	assert.Error(t, err)

	_, err = client.New("http://localhost", client.WithCredentials("", "x"))
	assert.Error(t, err)
}

func TestAppendBatch_chain(t *testing.T) {
	srv := newServer(t, false)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	first, err := c.AppendBatch(ctx, record("ASH-2024-001"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, first.Entry.Index)
	assert.Len(t, first.NextKey, 64)
	assert.NotEmpty(t, first.KeyEnvelope)
	assert.NotEmpty(t, first.TransactionHash)
	assert.Equal(t, first.Entry.Hash, first.Entry.ConsumerPayload.BlockchainHash)

	second, err := c.AppendBatch(ctx, record("ASH-2024-001-PROCESSING"), first.NextKey)
	require.NoError(t, err)
	assert.Equal(t, first.Entry.Hash, second.Entry.PreviousHash)

	_, err = c.AppendBatch(ctx, record("ASH-2024-001-PACKAGING"), "not-a-key")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestLookups(t *testing.T) {
	srv := newServer(t, false)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	first, err := c.AppendBatch(ctx, record("ASH-2024-001"), "")
	require.NoError(t, err)
	_, err = c.AppendBatch(ctx, record("ASH-2024-001-PROCESSING"), first.NextKey)
	require.NoError(t, err)

	e, err := c.FindBatch(ctx, "ASH-2024-001")
	require.NoError(t, err)
	assert.Equal(t, "ASH-2024-001", e.Record.BatchNumber)

	hist, err := c.History(ctx, "ASH-2024-001")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 0, hist[0].Index)
	assert.Equal(t, 1, hist[1].Index)

	p, err := c.Payload(ctx, "ASH-2024-001-PROCESSING")
	require.NoError(t, err)
	assert.Equal(t, "ASH-2024-001-PROCESSING", p.BatchNumber)
	assert.Len(t, p.LocationTrail, 2)

	img, err := c.QRCode(ctx, "ASH-2024-001", 128)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(img))
	assert.NoError(t, err)

	entries, total, err := c.Entries(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Index)

	byIndex, err := c.Entry(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Entry.Hash, byIndex.Hash)

	_, err = c.FindBatch(ctx, "NOPE-2024-999")
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestVerify(t *testing.T) {
	srv := newServer(t, false)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	_, err := c.AppendBatch(ctx, record("ASH-2024-001"), "")
	require.NoError(t, err)

	p, err := c.Payload(ctx, "ASH-2024-001")
	require.NoError(t, err)
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	res, err := c.VerifyPayload(ctx, raw)
	require.NoError(t, err)
	assert.True(t, res.Verified, res.Reason)
	require.NotNil(t, res.Entry)
	assert.NotEmpty(t, res.TransactionHash)

	p.BlockchainHash = "0000000000000000000000000000000000000000000000000000000000000000"
	raw, err = json.Marshal(p)
	require.NoError(t, err)
	res, err = c.VerifyPayload(ctx, raw)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.NotEmpty(t, res.Reason)

	_, err = c.VerifyPayload(ctx, []byte("{not json"))
	assert.Error(t, err)

	chain, err := c.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, chain.Valid)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Entries)
	assert.True(t, st.ChainValid)
	assert.NotNil(t, st.LastBlockTime)
}

func TestKeys_roundTrip(t *testing.T) {
	srv := newServer(t, false)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	first, err := c.AppendBatch(ctx, record("ASH-2024-001"), "")
	require.NoError(t, err)

	env, err := c.EncodeKey(ctx, first.NextKey, first.Entry.Hash)
	require.NoError(t, err)
	assert.NotEmpty(t, env.Tag)

	key, err := c.DecodeKey(ctx, env.Envelope, first.Entry.Hash)
	require.NoError(t, err)
	assert.Equal(t, first.NextKey, key)

	key, err = c.DecodeKey(ctx, first.KeyEnvelope, first.Entry.Hash)
	require.NoError(t, err)
	assert.Equal(t, first.NextKey, key)
}

func TestCredentials(t *testing.T) {
	srv := newServer(t, true)
	ctx := context.Background()

	anon := client.MustNew(srv.URL)
	_, err := anon.AppendBatch(ctx, record("ASH-2024-001"), "")
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	c, err := client.New(srv.URL, client.WithCredentials(custodianID, custodianSecret))
	require.NoError(t, err)
	res, err := c.AppendBatch(ctx, record("ASH-2024-001"), "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.NextKey)

	bad, err := client.New(srv.URL, client.WithCredentials(custodianID, "wrong"))
	require.NoError(t, err)
	_, err = bad.AppendBatch(ctx, record("ASH-2024-001-PROCESSING"), res.NextKey)
	assert.Error(t, err)

	readOnly, err := client.New(srv.URL, client.WithCredentials(custodianID, custodianSecret, identity.ScopeRead))
	require.NoError(t, err)
	_, err = readOnly.AppendBatch(ctx, record("ASH-2024-001-PROCESSING"), res.NextKey)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestWebhooks(t *testing.T) {
	srv := newServer(t, true)
	ctx := context.Background()

	c, err := client.New(srv.URL, client.WithCredentials(custodianID, custodianSecret))
	require.NoError(t, err)

	_, _, err = c.Subscribe(ctx, "https://example.com/hook", "batch.deleted")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	sub, secret, err := c.Subscribe(ctx, "https://example.com/hook", client.EventBatchCommitted)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Equal(t, custodianID, sub.Owner)

	subs, err := c.Webhooks(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)

	require.NoError(t, c.Unsubscribe(ctx, sub.ID))
	assert.ErrorIs(t, c.Unsubscribe(ctx, sub.ID), client.ErrNotFound)
}

func TestWithBearerToken(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true})
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, client.WithBearerToken("static-token"))
	require.NoError(t, err)
	res, err := c.VerifyChain(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Bearer static-token", got.Load())
}

func TestCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			hits.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"index": 0, "hash": "abc", "data": map[string]any{"batchNumber": "ASH-2024-001"}})
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"nextKey": "k"})
		}
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, client.WithCacheTTL(time.Minute))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e, err := c.FindBatch(ctx, "ASH-2024-001")
		require.NoError(t, err)
		assert.Equal(t, "abc", e.Hash)
	}
	assert.EqualValues(t, 1, hits.Load())

	_, err = c.AppendBatch(ctx, record(""), "")
	require.NoError(t, err)
	_, err = c.FindBatch(ctx, "ASH-2024-001")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestAPIError_message(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"consensus not reached"}`))
	}))
	defer srv.Close()

	_, err := client.MustNew(srv.URL).Status(context.Background())
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "consensus not reached", apiErr.Message)
	assert.NotErrorIs(t, err, client.ErrNotFound)
}

func TestWatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := feed.NewHub(nil, zap.NewNop())
	defer hub.Close()
	l := ledger.New(store.NewMemory(), ledger.WithCommitHook(hub.Publish))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(api.NewRouter(ctx, api.Deps{Ledger: l, Feed: hub}, api.Config{}, zap.NewNop()))
	defer srv.Close()

	c := client.MustNew(srv.URL)
	got := make(chan client.Entry, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- c.Watch(ctx, func(e client.Entry) { got <- e })
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	res, err := c.AppendBatch(context.Background(), record("ASH-2024-001"), "")
	require.NoError(t, err)

	select {
	case e := <-got:
		assert.Equal(t, res.Entry.Hash, e.Hash)
	case <-time.After(2 * time.Second):
		t.Fatal("no entry received from feed")
	}

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

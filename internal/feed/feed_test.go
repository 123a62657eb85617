package feed_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/feed"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/store"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_streamsCommittedEntries(t *testing.T) {
	hub := feed.NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.Subscribers() == 1 })

	l := ledger.New(store.NewMemory(), ledger.WithCommitHook(hub.Publish))
	e, err := l.Append(context.Background(), batch.Record{
		ProductType: "Brahmi",
		Quantity:    12,
		BatchNumber: "BRA-2024-001",
		Timestamp:   1_704_067_200_000,
	}, "")
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg feed.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "entry", msg.Type)
	assert.Equal(t, e.Hash, msg.Entry.Hash)
	assert.Empty(t, msg.Entry.NextKey, "feed must not leak possession keys")
	assert.Empty(t, msg.Entry.KeyEnvelope)
}

func TestHub_disconnectRemovesSubscriber(t *testing.T) {
	hub := feed.NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.Subscribers() == 1 })

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return hub.Subscribers() == 0 })
}

func TestHub_rejectsDisallowedOrigin(t *testing.T) {
	hub := feed.NewHub(func(o string) bool { return o == "https://ok.example" }, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 403, resp.StatusCode)
	}
	assert.Equal(t, 0, hub.Subscribers())
}

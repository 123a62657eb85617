package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

// FeedPath is the server's live entry feed, relative to the base URL.
const FeedPath = "/api/v1/ledger/feed"

type feedMessage struct {
	Type  string `json:"type"`
	Entry Entry  `json:"entry"`
}

// Watch streams entries as they are committed, calling fn for each, until
// ctx is cancelled or the connection drops. It returns nil on cancellation.
func (c *Client) Watch(ctx context.Context, fn func(Entry)) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + FeedPath

	header := http.Header{}
	if t, ok := c.httpClient.Transport.(*oauth2.Transport); ok {
		tok, err := t.Source.Token()
		if err != nil {
			return fmt.Errorf("obtain token: %w", err)
		}
		header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}
		if msg.Type == "entry" {
			fn(msg.Entry)
		}
	}
}

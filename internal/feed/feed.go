// Package feed streams committed ledger entries to websocket subscribers.
package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Message is one feed event.
type Message struct {
	Type  string       `json:"type"`
	Entry ledger.Entry `json:"entry"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans committed entries out to connected subscribers. Subscribers that
// fall behind by more than the send buffer are disconnected.
type Hub struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a Hub. allowOrigin decides which browser origins may
// subscribe; nil allows any.
func NewHub(allowOrigin func(origin string) bool, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{subs: make(map[*subscriber]struct{}), logger: logger}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowOrigin == nil {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		},
	}
	return h
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish sends e, stripped of its possession key, to every subscriber.
// It never blocks. Use it as a ledger commit hook.
func (h *Hub) Publish(e ledger.Entry) {
	msg := Message{Type: "entry", Entry: e.Public()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- msg:
		default:
			h.logger.Warn("feed subscriber too slow, dropping", zap.String("remote", s.conn.RemoteAddr().String()))
			h.removeLocked(s)
		}
	}
}

// ServeHTTP upgrades the request and streams entries until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("feed upgrade failed", zap.Error(err))
		return
	}
	s := &subscriber{conn: conn, send: make(chan Message, sendBuffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("feed subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(s)
	h.readLoop(s)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.removeLocked(s)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

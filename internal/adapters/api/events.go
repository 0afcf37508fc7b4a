package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"procurecore/internal/core"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type subscriber struct {
	conn *ws.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// Hub fans committed service events out to websocket subscribers. It
// implements core.EventPublisher.
type Hub struct {
	logger   core.Logger
	upgrader ws.Upgrader

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub returns a hub with no subscribers. A nil logger discards output.
func NewHub(logger core.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger:   logger,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		subs:     make(map[*subscriber]struct{}),
	}
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish broadcasts e to every subscriber. Subscribers that cannot be
// written to are dropped.
func (h *Hub) Publish(_ context.Context, e core.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("event encode failed", "type", e.Type, "error", err)
		return
	}
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.write(ws.TextMessage, data); err != nil {
			h.logger.Warn("event delivery failed", "type", e.Type, "error", err)
			h.drop(s)
		}
	}
}

// ServeHTTP upgrades the request and holds the connection open until the
// client leaves. Clients only receive; inbound messages are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s := &subscriber{conn: conn}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	h.logger.Info("event subscriber connected", "subscribers", count)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait))
				s.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.drop(s)
	h.logger.Info("event subscriber disconnected")
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		_ = s.conn.Close()
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}

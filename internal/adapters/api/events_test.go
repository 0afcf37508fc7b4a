package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"

	"procurecore/internal/core"
)

func dialHub(t *testing.T, hub *Hub) *ws.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, hub.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub(nil)
	first := dialHub(t, hub)
	second := dialHub(t, hub)
	waitForSubscribers(t, hub, 2)

	hub.Publish(context.Background(), core.Event{Type: core.EventSALRecorded, EntityID: "cl-1", OccurredAt: testNow})

	for _, conn := range []*ws.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var got core.Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != core.EventSALRecorded || got.EntityID != "cl-1" {
			t.Fatalf("unexpected event %+v", got)
		}
	}
}

func TestHubDropsDisconnectedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)
	waitForSubscribers(t, hub, 1)
	_ = conn.Close()
	waitForSubscribers(t, hub, 0)
	hub.Publish(context.Background(), core.Event{Type: core.EventAwardCreated})
}

func TestServiceEventsReachSubscribers(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)
	waitForSubscribers(t, hub, 1)
	h := newTestHandler(t, core.WithEventPublisher(hub))
	awardedViaHTTP(t, h, "100")

	seen := map[string]bool{}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !seen[core.EventAwardCreated] {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		var e core.Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		seen[e.Type] = true
	}
	for _, want := range []string{core.EventOfferSubmitted, core.EventComparisonComputed} {
		if !seen[want] {
			t.Fatalf("missing %s in %v", want, seen)
		}
	}
	hub.Close()
	waitForSubscribers(t, hub, 0)
}

package ui

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/resqfreeze/internal/monitor"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e map[string]any
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	return e
}

func TestHub_SnapshotThenBroadcast(t *testing.T) {
	hub := NewHub(func() []monitor.Event {
		return []monitor.Event{{Type: monitor.EventVerdict, Payload: map[string]string{"category": "Segar"}}}
	}, nil)
	h := NewHandler(Deps{Session: &fakeSession{}, Monitor: &fakeDashboard{}, Hub: hub})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	if e := readEvent(t, conn); e["type"] != monitor.EventVerdict {
		t.Fatalf("first event = %v, want snapshot", e)
	}
	waitFor(t, func() bool { return hub.Len() == 1 })

	hub.Publish(monitor.Event{Type: monitor.EventClock, Payload: "2025-03-10T08:00:00Z"})
	if e := readEvent(t, conn); e["type"] != monitor.EventClock || e["payload"] != "2025-03-10T08:00:00Z" {
		t.Errorf("broadcast = %v", e)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	waitFor(t, func() bool { return hub.Len() == 2 })

	a.Close()
	waitFor(t, func() bool { return hub.Len() == 1 })

	hub.Publish(monitor.Event{Type: monitor.EventNotifications, Payload: 3.0})
	if e := readEvent(t, b); e["payload"] != 3.0 {
		t.Errorf("payload = %v", e["payload"])
	}

	hub.Close()
	if hub.Len() != 0 {
		t.Errorf("Len after Close = %d", hub.Len())
	}
}

func TestHub_SlowClientDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	stalled, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer stalled.Close()
	waitFor(t, func() bool { return hub.Len() == 1 })

	// Large payloads fill the socket buffers of a client that never reads.
	big := strings.Repeat("x", 64<<10)
	start := time.Now()
	for range 200 {
		hub.Publish(monitor.Event{Type: monitor.EventClock, Payload: big})
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("Publish blocked for %v on a stalled client", d)
	}
	if hub.Len() != 0 {
		t.Errorf("Len = %d, want stalled client dropped", hub.Len())
	}
}

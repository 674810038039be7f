package levelstream

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(HubOptions{})
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	t.Cleanup(func() {
		if err := h.Stop(); err != nil {
			t.Errorf("Stop error = %v", err)
		}
	})
	return h
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.URL(), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", h.URL(), err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForActiveConnection(t *testing.T, h *Hub) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.HasActiveConnection() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("hub never registered the connection")
}

func TestHubPublishDeliversEvent(t *testing.T) {
	h := startHub(t)
	conn := dialHub(t, h)
	waitForActiveConnection(t, h)

	h.Publish(Event{
		TargetKind:   "master",
		EndpointID:   "ep-1",
		EndpointName: "Speakers",
		Level:        0.55,
	})

	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatal(err)
	}
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error = %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", msgType)
	}
	e, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent error = %v", err)
	}
	if e.Type != "level" {
		t.Fatalf("event type = %q, want level", e.Type)
	}
	if e.EndpointName != "Speakers" || e.Level != 0.55 {
		t.Fatalf("event = %+v", e)
	}
	if e.Time.IsZero() {
		t.Fatal("event time must be stamped")
	}
}

func TestHubPublishWithoutClientIsDropped(t *testing.T) {
	h := startHub(t)
	if h.HasActiveConnection() {
		t.Fatal("no client expected")
	}
	// Must not block or panic.
	h.Publish(Event{TargetKind: "master", Level: 0.5})
}

func TestHubNewConnectionReplacesOld(t *testing.T) {
	h := startHub(t)
	old := dialHub(t, h)
	waitForActiveConnection(t, h)

	_ = dialHub(t, h)
	waitForActiveConnection(t, h)

	// The replaced connection is closed by the hub: reads fail promptly.
	if err := old.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := old.ReadMessage(); err == nil {
		t.Fatal("old connection should have been closed")
	}
}

func TestHubStopIsIdempotent(t *testing.T) {
	h := NewHub(HubOptions{})
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("first Stop error = %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop error = %v", err)
	}
}

func TestHubStartTwiceFails(t *testing.T) {
	h := startHub(t)
	if err := h.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}

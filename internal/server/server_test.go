package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fcurrie/clockless-led-golang/internal/types"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.serveWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub()
	ts := newTestServer(t, hub)
	conn := dial(t, ts)
	waitForClients(t, hub, 1)

	sent := types.FrameSnapshot{
		Seq: 7,
		Strips: []types.StripFrame{
			{Name: "left", Pin: 18, Pixels: []byte{1, 2, 3}, Brightness: 255, Frames: 7},
		},
		Timestamp: time.Now(),
	}
	hub.Broadcast(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var got types.FrameSnapshot
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshalling frame: %v", err)
	}
	if got.Seq != 7 {
		t.Errorf("Seq = %d, want 7", got.Seq)
	}
	if len(got.Strips) != 1 || got.Strips[0].Name != "left" {
		t.Fatalf("Strips = %+v", got.Strips)
	}
	if string(got.Strips[0].Pixels) != string([]byte{1, 2, 3}) {
		t.Errorf("Pixels = %v, want [1 2 3]", got.Strips[0].Pixels)
	}
}

func TestLateJoinerGetsLastFrame(t *testing.T) {
	hub := NewHub()
	ts := newTestServer(t, hub)

	hub.Broadcast(types.FrameSnapshot{Seq: 3})

	conn := dial(t, ts)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var got types.FrameSnapshot
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshalling frame: %v", err)
	}
	if got.Seq != 3 {
		t.Errorf("Seq = %d, want 3", got.Seq)
	}
}

func TestClientDisconnect(t *testing.T) {
	hub := NewHub()
	ts := newTestServer(t, hub)
	conn := dial(t, ts)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting with no clients must not block or panic.
	hub.Broadcast(types.FrameSnapshot{Seq: 1})
}

func TestHealthEndpoint(t *testing.T) {
	srv := New(types.ServerConfig{Host: "127.0.0.1", Port: 0}, NewHub())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "OK")
	}
}

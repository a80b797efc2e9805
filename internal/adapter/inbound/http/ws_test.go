package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/memory"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

// wsFrame mirrors the outbound frame shape with the payload left raw so
// each test decodes what it expects.
type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestHub(t *testing.T) (*Hub, *memory.Bus, *session.TimeoutController) {
	t.Helper()
	bus := memory.NewBus()
	hub := NewHub(bus, "/login", discardLogger())
	src := memory.NewSimulatedStatusSource(memory.DefaultSimulatedConfig())
	ctrl := session.NewTimeoutController(src, hub, session.WithLogger(discardLogger()))
	hub.AttachController(ctrl)
	return hub, bus, ctrl
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame %q: %v", data, err)
	}
	return frame
}

func TestHub_HandleWS_InitialStateFrame(t *testing.T) {
	hub, _, _ := newTestHub(t)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame.Type != "state" {
		t.Fatalf("initial frame type = %q, want state", frame.Type)
	}

	var st map[string]any
	if err := json.Unmarshal(frame.Payload, &st); err != nil {
		t.Fatalf("unmarshal state payload: %v", err)
	}
	if got, ok := st["max_extensions"].(float64); !ok || got != 3 {
		t.Errorf("max_extensions = %v, want 3", st["max_extensions"])
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}
}

func TestHub_HandleWS_NoController(t *testing.T) {
	hub := NewHub(nil, "", discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/ws", nil)
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHub_StateChangeBroadcast(t *testing.T) {
	hub, _, ctrl := newTestHub(t)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	// Drain the connect frame first so the next read sees the change.
	if frame := readFrame(t, conn); frame.Type != "state" {
		t.Fatalf("connect frame type = %q, want state", frame.Type)
	}

	if err := ctrl.ExtendSession(context.Background()); err != nil {
		t.Fatalf("extend: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != "state" {
		t.Fatalf("broadcast frame type = %q, want state", frame.Type)
	}
	var st session.State
	if err := json.Unmarshal(frame.Payload, &st); err != nil {
		t.Fatalf("unmarshal state payload: %v", err)
	}
	if st.ExtensionsUsed != 1 {
		t.Errorf("ExtensionsUsed = %d, want 1", st.ExtensionsUsed)
	}
}

func TestHub_Redirect(t *testing.T) {
	hub, _, _ := newTestHub(t)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	readFrame(t, conn) // connect frame

	if err := hub.Redirect(context.Background(), "session_expired"); err != nil {
		t.Fatalf("redirect: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != "redirect" {
		t.Fatalf("frame type = %q, want redirect", frame.Type)
	}
	var payload redirectPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("unmarshal redirect payload: %v", err)
	}
	if payload.URL != "/login" {
		t.Errorf("URL = %q, want /login", payload.URL)
	}
	if payload.Reason != "session_expired" {
		t.Errorf("Reason = %q, want session_expired", payload.Reason)
	}
}

func TestHub_ActivityFrameReachesBus(t *testing.T) {
	hub, bus, _ := newTestHub(t)
	defer hub.Close()

	got := make(chan activity.Event, 1)
	if _, err := bus.Subscribe(activity.KindFocus, func(ev activity.Event) {
		select {
		case got <- ev:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	readFrame(t, conn) // connect frame

	if err := conn.WriteJSON(map[string]string{"type": "activity"}); err != nil {
		t.Fatalf("write activity frame: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Source != "ws" {
			t.Errorf("Source = %q, want ws", ev.Source)
		}
		if ev.Kind != activity.KindFocus {
			t.Errorf("Kind = %v, want focus", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("activity frame never reached the bus")
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub, _, _ := newTestHub(t)
	defer hub.Close()

	// An unbuffered send channel with no write pump models a client
	// whose queue is permanently full.
	stalled := &wsClient{send: make(chan []byte)}
	hub.mu.Lock()
	hub.clients[stalled] = struct{}{}
	hub.mu.Unlock()

	hub.broadcast(wsMessage{Type: msgTypeState})

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount after broadcast = %d, want 0", n)
	}
}

func TestHub_Close(t *testing.T) {
	hub, _, _ := newTestHub(t)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	readFrame(t, conn)

	hub.Close()
	hub.Close() // idempotent

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount after Close = %d, want 0", n)
	}

	// New connections are refused once closed.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/ws", nil)
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after Close = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestCheckWSOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "example.com", true},
		{"same host", "http://example.com", "example.com", true},
		{"same host with port", "http://example.com:8750", "example.com:8750", true},
		{"cross origin", "http://evil.example", "example.com", false},
		{"localhost dev server", "http://localhost:5173", "127.0.0.1:8750", true},
		{"loopback v4", "http://127.0.0.1", "example.com", true},
		{"loopback v6", "http://[::1]:3000", "example.com", true},
		{"unparseable", "://", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := checkWSOrigin(req); got != tt.want {
				t.Errorf("checkWSOrigin(origin=%q, host=%q) = %t, want %t", tt.origin, tt.host, got, tt.want)
			}
		})
	}
}

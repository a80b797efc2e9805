package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/memory"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

// sendBufferSize is the per-client outbound queue. A client that falls
// this far behind is disconnected rather than allowed to stall the hub.
const sendBufferSize = 64

// Frame types on the presenter socket.
const (
	msgTypeState    = "state"
	msgTypeRedirect = "redirect"
	msgTypeActivity = "activity"
)

// wsMessage is one outbound frame on the presenter socket.
type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// redirectPayload tells presenters where to send the user once the
// session is over.
type redirectPayload struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// wsClient is one connected presenter. All writes go through the send
// channel so the write pump is the only goroutine touching the conn
// for writes.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	go c.writePump()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	close(c.send)
}

// Hub pushes session state to connected presenters and accepts their
// activity frames. It implements the session Redirector port: on expiry
// every client receives a redirect frame pointing at the login URL.
type Hub struct {
	bus      *memory.Bus
	loginURL string
	logger   *slog.Logger
	metrics  *Metrics

	mu         sync.RWMutex
	clients    map[*wsClient]struct{}
	controller *session.TimeoutController
	subID      int
	closed     bool
}

// NewHub creates a Hub. The bus may be nil, in which case presenter
// activity frames are dropped. AttachController must be called before
// clients connect.
func NewHub(bus *memory.Bus, loginURL string, logger *slog.Logger) *Hub {
	if loginURL == "" {
		loginURL = "/login"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bus:      bus,
		loginURL: loginURL,
		logger:   logger,
		clients:  make(map[*wsClient]struct{}),
	}
}

// AttachController subscribes the hub to state changes. Called once at
// boot, after the controller exists; the hub is the controller's
// redirector, so the two cannot take each other in their constructors.
func (h *Hub) AttachController(c *session.TimeoutController) {
	if c == nil {
		return
	}
	id := c.Subscribe(h.broadcastState)
	h.mu.Lock()
	h.controller = c
	h.subID = id
	h.mu.Unlock()
}

// HandleWS upgrades the request and registers the client. The initial
// frame is the current state so presenters render without waiting for
// the next change.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	controller := h.controller
	closed := h.closed
	h.mu.RUnlock()
	if controller == nil || closed {
		writeJSONError(w, http.StatusServiceUnavailable, "session controller not configured")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkWSOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newWSClient(conn)
	if !h.addClient(c) {
		conn.Close()
		return
	}
	h.logger.Debug("ws presenter connected", "remote", r.RemoteAddr)

	if data, err := json.Marshal(wsMessage{Type: msgTypeState, Payload: controller.State()}); err == nil {
		select {
		case c.send <- data:
		default:
			// Client already stalled; it will catch up on the next change.
		}
	}

	go h.readLoop(c, r.RemoteAddr)
}

// readLoop consumes client frames until the connection dies, then
// unregisters the client. Activity frames turn into focus events on the
// bus so a presenter interaction counts like any other.
func (h *Hub) readLoop(c *wsClient, remote string) {
	defer func() {
		h.removeClient(c)
		h.logger.Debug("ws presenter disconnected", "remote", remote)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == msgTypeActivity && h.bus != nil {
			h.bus.Publish(activity.Event{
				Kind:   activity.KindFocus,
				At:     time.Now().UTC(),
				Source: "ws",
			})
		}
	}
}

func (h *Hub) addClient(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(len(h.clients)))
	}
	return true
}

func (h *Hub) removeClient(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()
}

func (h *Hub) broadcastState(st session.State) {
	h.broadcast(wsMessage{Type: msgTypeState, Payload: st})
}

// Redirect broadcasts an expiry redirect frame to every presenter.
func (h *Hub) Redirect(_ context.Context, reason string) error {
	if h.metrics != nil {
		h.metrics.RedirectsTotal.Inc()
	}
	h.logger.Info("broadcasting expiry redirect",
		"reason", reason,
		"url", h.loginURL,
		"clients", h.ClientCount())
	h.broadcast(wsMessage{
		Type:    msgTypeRedirect,
		Payload: redirectPayload{URL: h.loginURL, Reason: reason},
	})
	return nil
}

func (h *Hub) broadcast(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws broadcast marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws client too slow, disconnecting")
			h.removeClient(c)
		}
	}
}

// ClientCount returns the number of connected presenters.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the controller and disconnects every client.
// Further connection attempts are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	controller, subID := h.controller, h.subID
	h.controller = nil
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	if h.metrics != nil {
		h.metrics.WSClients.Set(0)
	}
	h.mu.Unlock()

	if controller != nil {
		controller.Unsubscribe(subID)
	}
	for _, c := range clients {
		c.close()
	}
}

// checkWSOrigin admits non-browser clients (no Origin), same-host
// presenters, and localhost dev servers.
func checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == local || strings.HasPrefix(host, local+":") {
			return true
		}
	}
	return host == "::1"
}

var _ session.Redirector = (*Hub)(nil)

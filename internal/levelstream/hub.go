package levelstream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeDeadline is the maximum time allowed for a single WebSocket write to
// complete. Generous for localhost single-client writes; if the overlay
// freezes longer than this, the connection is considered dead.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for any read activity
// (including pong responses) before considering the connection dead.
// Allows ~3 missed pings (pingInterval=30s) before timeout.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming WebSocket messages. The overlay never
// sends anything but close frames and pongs, so this is purely defensive.
const maxReadMessageSize = 4 * 1024

// wsUpgrader is a package-level Upgrader to avoid repeated allocation on
// each connection upgrade. The Upgrader is stateless and safe for reuse.
var wsUpgrader = websocket.Upgrader{
	// CheckOrigin allows all origins because the server binds to 127.0.0.1
	// only; the overlay runs on the same machine.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the stream server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for an OS-assigned port.
	// Localhost-only binding restricts access to this machine.
	Addr string
}

// Hub manages a single WebSocket connection for pushing level events from
// the daemon to the overlay.
//
// Design: single-connection model (one overlay per user session). New
// connections replace existing ones so an overlay restart reconnects
// cleanly.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// mu protects connection state. writeMu serializes gorilla/websocket
// WriteMessage calls (not concurrency-safe).
//
// Write failure policy: any write failure (Publish, pingLoop) disconnects
// the client via clearIfCurrent+closeConn. The client must reconnect.
type Hub struct {
	opts HubOptions

	mu   sync.RWMutex
	conn *websocket.Conn

	// writeMu serializes WriteMessage calls. Independent of mu: never hold
	// mu when acquiring writeMu (lock ordering).
	writeMu sync.Mutex

	listener net.Listener
	server   *http.Server
	url      string // "ws://127.0.0.1:<port>/levels", set after Start

	// closeOnce ensures Stop is idempotent. Once stopped, a Hub cannot be
	// reused; create a new instance instead.
	closeOnce sync.Once
}

// NewHub creates a Hub with the given options. The hub is not started until
// Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{opts: opts}
}

// Start begins listening on the configured address and serves WebSocket
// connections. The context is used for the server's BaseContext; the server
// itself must be stopped explicitly via Stop.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("levelstream: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("levelstream: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/levels", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/levels", h.handleWS)

	h.server = &http.Server{
		Handler: mux,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("[levelstream] server error", "error", serveErr)
		}
	}()

	slog.Info("[levelstream] server started", "url", h.url)
	return nil
}

// Stop gracefully shuts down the HTTP server and closes any active
// connection. Safe to call multiple times.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Debug("[levelstream] connection close during stop", "error", err)
			}
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("levelstream: shutdown: %w", err)
			}
		}

		slog.Info("[levelstream] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL the overlay should connect to, e.g.
// "ws://127.0.0.1:54321/levels". Empty before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether an overlay client is currently
// connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Publish sends one level event to the connected overlay. With no client
// connected the event is dropped: level display is ephemeral and there is
// nothing useful to buffer for a client that isn't watching.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()

	if conn == nil {
		return
	}

	payload, err := encodeEvent(e)
	if err != nil {
		slog.Warn("[levelstream] failed to encode event", "error", err)
		return
	}

	h.writeMu.Lock()
	if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
		h.writeMu.Unlock()
		return
	}
	writeErr := conn.WriteMessage(websocket.TextMessage, payload)
	h.clearWriteDeadline(conn)
	h.writeMu.Unlock()

	if writeErr != nil {
		slog.Warn("[levelstream] write failed, closing connection", "error", writeErr)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error in Publish")
	}
}

// clearIfCurrent clears the hub's connection only if the provided conn is
// still current. Caller must NOT hold h.mu.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes a WebSocket connection. The close may fail if the
// connection was already closed by another goroutine (e.g. a reconnect
// replacing the old connection); expected and logged at Debug level.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[levelstream] connection close", "reason", reason, "error", closeErr)
	}
}

// setWriteDeadlineOrClose sets a write deadline on the connection. If
// setting the deadline fails, the connection is in an indeterminate state
// and must be closed to prevent indefinite blocking.
func (h *Hub) setWriteDeadlineOrClose(conn *websocket.Conn, d time.Duration) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
		slog.Warn("[levelstream] SetWriteDeadline failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return false
	}
	return true
}

// clearWriteDeadline resets the write deadline after a successful write.
// Failure to clear is non-fatal: the next write sets a fresh deadline.
func (h *Hub) clearWriteDeadline(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("[levelstream] clearWriteDeadline failed (non-fatal)", "error", err)
	}
}

// handleWS upgrades HTTP to WebSocket and runs the read pump for the
// connection. Only one connection is active at a time; new connections
// replace old ones so an overlay restart reconnects cleanly.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[levelstream] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)

	// Read deadline + pong handler for dead connection detection. The
	// deadline is extended on every pong received from the client.
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[levelstream] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	h.mu.Unlock()

	if oldConn != nil {
		// Close old connection outside the lock to prevent deadlock.
		h.closeConn(oldConn, "replaced by new connection")
	}

	slog.Info("[levelstream] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	// The read pump only drains control frames and detects disconnect; the
	// overlay never sends application messages.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[levelstream] handleWS recovered from panic",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}

		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read pump exit")
		slog.Info("[levelstream] client disconnected")
	}()

	for {
		if _, _, readErr := conn.ReadMessage(); readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[levelstream] read error", "error", readErr)
			}
			return
		}
	}
}

// pingLoop sends periodic WebSocket pings to detect dead connections. Runs
// as a goroutine per connection; exits when done is closed or ping fails.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		// On panic, clean up the connection so it doesn't remain open
		// without pings, which would prevent dead connection detection.
		if rec := recover(); rec != nil {
			slog.Error("[levelstream] pingLoop recovered from panic",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
				h.writeMu.Unlock()
				return
			}
			pingErr := conn.WriteMessage(websocket.PingMessage, nil)
			h.clearWriteDeadline(conn)
			h.writeMu.Unlock()

			if pingErr != nil {
				slog.Debug("[levelstream] ping failed, connection likely dead", "error", pingErr)
				h.clearIfCurrent(conn)
				h.closeConn(conn, "ping failure")
				return
			}
		}
	}
}

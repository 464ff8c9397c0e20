package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shiftygrid/internal/keyboard"
	"shiftygrid/internal/logging"
	"shiftygrid/internal/workerutil"
)

// logTag prefixes every hub log message. Mirrored records carrying it are
// not fed back to the client.
const logTag = "[DEBUG-WS]"

// writeDeadline is the maximum time allowed for a single WebSocket write.
const writeDeadline = 5 * time.Second

// readDeadline allows ~3 missed pings before the connection is considered dead.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming subscribe/unsubscribe payloads.
const maxReadMessageSize = 32 * 1024

var wsUpgrader = websocket.Upgrader{
	// The server binds to 127.0.0.1 only.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	Addr string
}

// Source publishes engine events. keyboard.Engine implements it.
type Source interface {
	OnShortcutTriggered(fn func(keyboard.ShortcutEvent))
	OnModeEntered(fn func(keyboard.ModeEvent))
	OnModeExited(fn func(keyboard.ModeEvent))
}

// Hub serves a single WebSocket client. New connections replace existing ones.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// Publish never blocks: frames are written by a one-worker outbox in
// publication order. Any write failure disconnects the client.
type Hub struct {
	opts HubOptions

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]bool // event type -> subscribed

	// writeMu serializes WriteMessage calls; gorilla/websocket does not
	// support concurrent writers.
	writeMu sync.Mutex

	outbox *workerutil.Pool

	listener net.Listener
	server   *http.Server
	url      string // "ws://127.0.0.1:<port>/ws", set after Start

	closeOnce sync.Once
}

const (
	subscribeAction   = "subscribe"
	unsubscribeAction = "unsubscribe"
)

// subscribeMsg is the JSON payload of client subscribe/unsubscribe requests.
type subscribeMsg struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called, but Publish is safe before.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{
		opts:       opts,
		subscribed: defaultSubscriptions(),
		outbox:     workerutil.NewPool("wsserver-outbox", 1),
	}
}

func defaultSubscriptions() map[string]bool {
	subscribed := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		subscribed[t] = true
	}
	return subscribed
}

// Start begins listening on the configured address. When ctx is cancelled,
// active handlers observe it; the server itself is stopped with Stop.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return errors.New("wsserver: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error(logTag+" server error", "error", serveErr)
		}
	}()

	slog.Info(logTag+" event feed started", "url", h.url)
	return nil
}

// Stop shuts down the HTTP server, closes the active connection and drains
// the outbox. Idempotent; a stopped Hub cannot be restarted.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()

		if conn != nil {
			h.closeConn(conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}
		h.outbox.Close()

		slog.Info(logTag + " event feed stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a client is connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Attach forwards src's shortcut and mode events to the client.
func (h *Hub) Attach(src Source) {
	src.OnShortcutTriggered(func(ev keyboard.ShortcutEvent) { h.Publish(ShortcutEvent(ev)) })
	src.OnModeEntered(func(ev keyboard.ModeEvent) { h.Publish(ModeEnteredEvent(ev)) })
	src.OnModeExited(func(ev keyboard.ModeEvent) { h.Publish(ModeExitedEvent(ev)) })
}

// PublishLog is a logging.EntryCallback. Records logged by the hub itself
// are dropped so a failing write cannot feed back into the stream.
func (h *Hub) PublishLog(entry logging.Entry) {
	if strings.HasPrefix(entry.Message, logTag) || strings.Contains(entry.Message, "wsserver") {
		return
	}
	h.Publish(LogEvent(entry))
}

// Emit publishes payload as free text under the given event type. It lets the
// hub act as a commands.EventEmitter.
func (h *Hub) Emit(name string, payload any) {
	ev := MessageEvent(fmt.Sprint(payload))
	ev.Type = name
	h.Publish(ev)
}

// Publish queues ev for the connected client. Without a client, or when the
// client unsubscribed from ev.Type, it is a no-op.
func (h *Hub) Publish(ev Event) {
	if !h.wants(ev.Type) {
		return
	}
	h.outbox.Submit(func() { h.write(ev) })
}

func (h *Hub) wants(eventType string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil && h.subscribed[eventType]
}

// write runs on the outbox worker.
func (h *Hub) write(ev Event) {
	h.mu.RLock()
	conn := h.conn
	subscribed := h.subscribed[ev.Type]
	h.mu.RUnlock()

	// The connection may have been replaced since Publish; a write to a stale
	// conn fails and clearIfCurrent leaves the newer one alone.
	if conn == nil || !subscribed {
		return
	}

	payload, err := EncodeEvent(ev)
	if err != nil {
		slog.Warn(logTag+" failed to encode event", "error", err, "type", ev.Type)
		return
	}
	if err := h.writeText(conn, payload); err != nil {
		slog.Warn(logTag+" write failed, closing connection", "type", ev.Type, "error", err)
	}
}

// writeText writes one text frame. On failure the connection is cleared and
// closed before the error is returned.
func (h *Hub) writeText(conn *websocket.Conn, payload []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return err
	}
	err := conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error")
		return err
	}
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug(logTag+" clearing write deadline failed (non-fatal)", "error", err)
	}
	return nil
}

// clearIfCurrent clears the connection state only if conn is still current.
// Caller must NOT hold h.mu.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
		h.subscribed = defaultSubscriptions()
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes conn. Double-close is harmless and logged at Debug.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug(logTag+" connection close", "reason", reason, "error", closeErr)
	}
}

// handleWS upgrades the request, makes the connection current and reads
// subscription messages until the client goes away.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug(logTag+" upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxReadMessageSize)
	extendReadDeadline := func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	}
	if err := extendReadDeadline(""); err != nil {
		h.closeConn(conn, "read deadline")
		return
	}
	conn.SetPongHandler(extendReadDeadline)

	h.mu.Lock()
	previous := h.conn
	h.conn = conn
	h.subscribed = defaultSubscriptions()
	h.mu.Unlock()
	if previous != nil {
		h.closeConn(previous, "replaced by new connection")
	}
	slog.Info(logTag+" client connected", "remoteAddr", conn.RemoteAddr())

	done := make(chan struct{})
	go workerutil.SafeCall("wsserver ping", func() { h.pingLoop(conn, done) })
	workerutil.SafeCall("wsserver read", func() { h.readLoop(conn) })

	close(done)
	h.clearIfCurrent(conn)
	h.closeConn(conn, "read loop exit")
	slog.Info(logTag + " client disconnected")
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug(logTag+" read error", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var sub subscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			h.sendError(conn, fmt.Sprintf("invalid JSON: %s", err))
			continue
		}
		h.handleSubscription(conn, sub)
	}
}

// pingLoop pings the client every pingInterval. A failed ping drops the
// connection, which also ends the read loop.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		h.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
		h.writeMu.Unlock()
		if err != nil {
			slog.Debug(logTag+" ping failed", "error", err)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "ping failure")
			return
		}
	}
}

// handleSubscription applies a subscribe or unsubscribe request.
func (h *Hub) handleSubscription(conn *websocket.Conn, msg subscribeMsg) {
	var unknown []string
	h.mu.Lock()
	if h.conn != conn {
		h.mu.Unlock()
		slog.Debug(logTag + " subscription from stale connection, skipping")
		return
	}
	for _, eventType := range msg.Types {
		if _, known := h.subscribed[eventType]; !known {
			unknown = append(unknown, eventType)
			continue
		}
		switch msg.Action {
		case subscribeAction:
			h.subscribed[eventType] = true
		case unsubscribeAction:
			h.subscribed[eventType] = false
		}
	}
	h.mu.Unlock()

	switch {
	case msg.Action != subscribeAction && msg.Action != unsubscribeAction:
		h.sendError(conn, fmt.Sprintf("unknown action %q", msg.Action))
	case len(unknown) > 0:
		h.sendError(conn, fmt.Sprintf("unknown event types: %s", strings.Join(unknown, ", ")))
	}
}

// sendError sends a JSON error frame to the client.
func (h *Hub) sendError(conn *websocket.Conn, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		slog.Debug(logTag+" failed to marshal error message", "error", err)
		return
	}
	if err := h.writeText(conn, payload); err != nil {
		slog.Debug(logTag+" failed to send error to client", "error", err)
	}
}

package wsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"shiftygrid/internal/keyboard"
	"shiftygrid/internal/keys"
	"shiftygrid/internal/logging"
	"shiftygrid/internal/testutil"
)

const testListenAddr = "127.0.0.1:0"

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(HubOptions{Addr: testListenAddr})
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = hub.Stop() })
	return hub
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(hub.URL(), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", hub.URL(), err)
	}
	t.Cleanup(func() { conn.Close() })
	if !testutil.WaitFor(t, 2*time.Second, hub.HasActiveConnection) {
		t.Fatal("timed out waiting for hub to register connection")
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", msgType)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return ev
}

func testShortcut(t *testing.T, id, actionID string, combination keyboard.KeyCombination) keyboard.Shortcut {
	t.Helper()
	s, err := keyboard.NewShortcut(id, combination, actionID, keyboard.ScopeGlobal, true)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type fakeSource struct {
	triggered []func(keyboard.ShortcutEvent)
	entered   []func(keyboard.ModeEvent)
	exited    []func(keyboard.ModeEvent)
}

func (s *fakeSource) OnShortcutTriggered(fn func(keyboard.ShortcutEvent)) {
	s.triggered = append(s.triggered, fn)
}
func (s *fakeSource) OnModeEntered(fn func(keyboard.ModeEvent)) { s.entered = append(s.entered, fn) }
func (s *fakeSource) OnModeExited(fn func(keyboard.ModeEvent))  { s.exited = append(s.exited, fn) }

func TestHubStreamsEngineEvents(t *testing.T) {
	hub := startHub(t)
	src := &fakeSource{}
	hub.Attach(src)
	conn := dialHub(t, hub)

	left := testShortcut(t, "move-mode-left-half", "move-mode-left-half", keyboard.Combination('1', keys.None))
	full := testShortcut(t, "move-mode-full", "move-mode-full", keyboard.Combination('F', keys.None)).WithExitMode(true)
	mode, err := keyboard.NewMode("move_mode", "Move Mode", 5*time.Second, true, left, full)
	if err != nil {
		t.Fatal(err)
	}

	for _, fn := range src.entered {
		fn(keyboard.ModeEvent{Mode: mode})
	}
	for _, fn := range src.triggered {
		fn(keyboard.ShortcutEvent{Shortcut: left, ModeID: "move_mode", At: time.Now()})
	}
	for _, fn := range src.exited {
		fn(keyboard.ModeEvent{Mode: mode, Reason: keyboard.ExitCompleted})
	}

	entered := readEvent(t, conn)
	if entered.Type != EventModeEntered || entered.Mode != "move_mode" || entered.ModeName != "Move Mode" {
		t.Fatalf("entered = %+v", entered)
	}
	if len(entered.Hints) != 2 || entered.Hints[0].Action != "move-mode-left-half" || !entered.Hints[1].Exits {
		t.Fatalf("hints = %+v", entered.Hints)
	}

	triggered := readEvent(t, conn)
	if triggered.Type != EventShortcut || triggered.Action != "move-mode-left-half" || triggered.Mode != "move_mode" {
		t.Fatalf("triggered = %+v", triggered)
	}
	if triggered.Keys != left.Combination().String() {
		t.Fatalf("keys = %q, want %q", triggered.Keys, left.Combination().String())
	}

	exited := readEvent(t, conn)
	if exited.Type != EventModeExited || exited.Reason != "completed" {
		t.Fatalf("exited = %+v", exited)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)

	if err := conn.WriteJSON(subscribeMsg{Action: unsubscribeAction, Types: []string{EventLog}}); err != nil {
		t.Fatal(err)
	}
	if !testutil.WaitFor(t, 2*time.Second, func() bool { return !hub.wants(EventLog) }) {
		t.Fatal("timed out waiting for unsubscribe")
	}

	hub.PublishLog(logging.Entry{Time: time.Now(), Level: slog.LevelWarn, Message: "[config] dropped"})
	hub.Emit(EventMessage, "after")

	ev := readEvent(t, conn)
	if ev.Type != EventMessage || ev.Message != "after" {
		t.Fatalf("event = %+v, want the message after the dropped log", ev)
	}

	if err := conn.WriteJSON(subscribeMsg{Action: subscribeAction, Types: []string{EventLog}}); err != nil {
		t.Fatal(err)
	}
	if !testutil.WaitFor(t, 2*time.Second, func() bool { return hub.wants(EventLog) }) {
		t.Fatal("timed out waiting for subscribe")
	}
	hub.PublishLog(logging.Entry{Time: time.Now(), Level: slog.LevelError, Message: "[hook] install failed"})
	ev = readEvent(t, conn)
	if ev.Type != EventLog || ev.Level != "ERROR" || ev.Message != "[hook] install failed" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHubRejectsBadClientMessages(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "invalid json", payload: "{", want: "invalid JSON"},
		{name: "unknown action", payload: `{"action":"mute","types":["log"]}`, want: "unknown action"},
		{name: "unknown type", payload: `{"action":"subscribe","types":["pane"]}`, want: "unknown event types: pane"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)); err != nil {
				t.Fatal(err)
			}
			if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
				t.Fatal(err)
			}
			var msg errorMsg
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("read error frame: %v", err)
			}
			if msg.Type != "error" || !strings.Contains(msg.Message, tt.want) {
				t.Fatalf("error frame = %+v, want %q", msg, tt.want)
			}
		})
	}
}

func TestHubPublishLogSkipsOwnRecords(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)

	hub.PublishLog(logging.Entry{Level: slog.LevelWarn, Message: logTag + " write failed, closing connection"})
	hub.PublishLog(logging.Entry{Level: slog.LevelError, Message: "[DEBUG-PANIC] wsserver pingLoop recovered"})
	hub.Emit(EventMessage, "marker")

	if ev := readEvent(t, conn); ev.Message != "marker" {
		t.Fatalf("event = %+v, want marker only", ev)
	}
}

func TestHubNewConnectionReplacesOld(t *testing.T) {
	hub := startHub(t)
	first := dialHub(t, hub)

	hub.mu.RLock()
	firstServerConn := hub.conn
	hub.mu.RUnlock()

	second := dialHub(t, hub)
	if !testutil.WaitFor(t, 2*time.Second, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.conn != nil && hub.conn != firstServerConn
	}) {
		t.Fatal("timed out waiting for replacement connection")
	}

	if err := first.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("old connection still readable after replacement")
	}

	hub.Emit(EventMessage, "to second")
	if ev := readEvent(t, second); ev.Message != "to second" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHubPublishWithoutClientIsNoop(t *testing.T) {
	hub := NewHub(HubOptions{})
	hub.Publish(MessageEvent("nobody listens"))
	if hub.URL() != "" {
		t.Fatalf("URL() before Start = %q", hub.URL())
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop() before Start = %v", err)
	}
}

func TestHubLifecycle(t *testing.T) {
	hub := startHub(t)
	if !strings.HasPrefix(hub.URL(), "ws://127.0.0.1:") {
		t.Fatalf("URL() = %q", hub.URL())
	}
	if err := hub.Start(context.Background()); err == nil {
		t.Fatal("second Start() expected error")
	}
	conn := dialHub(t, hub)

	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if hub.HasActiveConnection() {
		t.Fatal("connection still active after Stop")
	}
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("client still readable after Stop")
	}
	hub.Emit(EventMessage, "after stop")
}

func TestEncodeEvent(t *testing.T) {
	if _, err := EncodeEvent(Event{}); err == nil {
		t.Fatal("EncodeEvent() without type expected error")
	}
	raw, err := EncodeEvent(ModeExitedEvent(keyboard.ModeEvent{Reason: keyboard.ExitTimeout}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"type":"mode_exited"`) || !strings.Contains(string(raw), `"reason":"timeout"`) {
		t.Fatalf("payload = %s", raw)
	}
	if strings.Contains(string(raw), "hints") {
		t.Fatalf("empty hints should be omitted: %s", raw)
	}
}

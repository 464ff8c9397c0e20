package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"shiftygrid/internal/config"
	"shiftygrid/internal/hook"
	"shiftygrid/internal/keys"
	"shiftygrid/internal/singleinstance"
	"shiftygrid/internal/testutil"
	"shiftygrid/internal/window"
	"shiftygrid/internal/wsserver"
)

type fakeBackend struct {
	mu      sync.Mutex
	deliver hook.DeliverFunc
}

func (b *fakeBackend) Install(deliver hook.DeliverFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = deliver
	return nil
}

func (b *fakeBackend) Uninstall() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = nil
	return nil
}

func (b *fakeBackend) press(t *testing.T, key int, mods ...int) {
	t.Helper()
	b.mu.Lock()
	deliver := b.deliver
	b.mu.Unlock()
	if deliver == nil {
		t.Fatal("hook is not installed")
	}
	for _, m := range mods {
		deliver(m, true)
	}
	deliver(key, true)
	deliver(key, false)
	for _, m := range slices.Backward(mods) {
		deliver(m, false)
	}
}

type fakePositioner struct {
	mu    sync.Mutex
	moves []window.Position
	gaps  []int
}

func (p *fakePositioner) Move(pos window.Position, gap int) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves = append(p.moves, pos)
	p.gaps = append(p.gaps, gap)
	return nil
}

func (p *fakePositioner) last() (window.Position, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.moves) == 0 {
		return window.Position{}, 0, false
	}
	return p.moves[len(p.moves)-1], p.gaps[len(p.gaps)-1], true
}

func (p *fakePositioner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.moves)
}

// testEnv isolates the pipe, the lock and the platform seams of one test.
type testEnv struct {
	configPath string
	backend    *fakeBackend
	positioner *fakePositioner
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)
	t.Setenv("SHIFTYGRID_PIPE", "shiftygrid-test")

	env := &testEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		backend:    &fakeBackend{},
		positioner: &fakePositioner{},
	}
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	if _, err := config.Save(env.configPath, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	origHook, origPositioner := newHookFn, newPositionerFn
	newHookFn = func() *hook.Hook { return hook.NewWithBackend(env.backend) }
	newPositionerFn = func() window.Positioner { return env.positioner }
	t.Cleanup(func() {
		newHookFn = origHook
		newPositionerFn = origPositioner
	})
	return env
}

// run executes a subcommand against the test config. Flags must precede
// positional arguments, so --config goes right after the command name.
func (env *testEnv) run(command string, args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	full := append([]string{command, "--config", env.configPath}, args...)
	code = run(full, &out, &errOut)
	return code, out.String(), errOut.String()
}

func startApp(t *testing.T, env *testEnv) *App {
	t.Helper()
	app := NewApp()
	err := app.startup(context.Background(), startOptions{
		configPath: env.configPath,
		logDir:     t.TempDir(),
		logLevel:   "debug",
	})
	if err != nil {
		t.Fatalf("startup() error = %v", err)
	}
	t.Cleanup(app.shutdown)
	return app
}

func TestRunTopLevel(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{name: "no args prints usage", args: nil, wantCode: 0, wantStdout: "Usage: shiftygrid"},
		{name: "help", args: []string{"help"}, wantCode: 0, wantStdout: "Commands:"},
		{name: "about", args: []string{"about"}, wantCode: 0, wantStdout: "Version:"},
		{name: "unknown command", args: []string{"bogus"}, wantCode: 2, wantStderr: `unknown command "bogus"`},
		{name: "bad start flag", args: []string{"start", "--nope"}, wantCode: 2, wantStderr: "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tt.args, &stdout, &stderr); got != tt.wantCode {
				t.Fatalf("run(%v) = %d, want %d (stderr %q)", tt.args, got, tt.wantCode, stderr.String())
			}
			if !strings.Contains(stdout.String(), tt.wantStdout) {
				t.Errorf("stdout = %q, want substring %q", stdout.String(), tt.wantStdout)
			}
			if !strings.Contains(stderr.String(), tt.wantStderr) {
				t.Errorf("stderr = %q, want substring %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestClientCommandArgumentErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name       string
		args       []string
		wantStderr string
	}{
		{name: "move without position", args: []string{"move"}, wantStderr: "left-half"},
		{name: "move with unknown preset", args: []string{"move", "nowhere"}, wantStderr: "Error:"},
		{name: "message without text", args: []string{"message"}, wantStderr: "message requires text"},
		{name: "trigger without action", args: []string{"trigger"}, wantStderr: "one action id"},
		{name: "status with extra argument", args: []string{"status", "now"}, wantStderr: "takes no arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := env.run(tt.args[0], tt.args[1:]...)
			if code != 2 {
				t.Fatalf("run(%v) = %d, want 2", tt.args, code)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want substring %q", stderr, tt.wantStderr)
			}
		})
	}
}

func TestClientReportsServerNotRunning(t *testing.T) {
	env := newTestEnv(t, nil)
	code, _, stderr := env.run("status")
	if code != 1 {
		t.Fatalf("status exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "server is not running") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestAppServesClientCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	app := startApp(t, env)

	code, stdout, stderr := env.run("status")
	if code != 0 {
		t.Fatalf("status exit code = %d, stderr %q", code, stderr)
	}
	for _, want := range []string{"Success: Server is running", "status: active", "hook: installed"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status output missing %q:\n%s", want, stdout)
		}
	}

	if code, _, stderr := env.run("move", "center"); code != 0 {
		t.Fatalf("move exit code = %d, stderr %q", code, stderr)
	}
	pos, gap, ok := env.positioner.last()
	if !ok || pos != window.Center || gap != 2 {
		t.Fatalf("last move = %v gap %d (ok %v), want %v gap 2", pos, gap, ok, window.Center)
	}

	if code, _, stderr := env.run("trigger", "move-mode-full"); code != 0 {
		t.Fatalf("trigger exit code = %d, stderr %q", code, stderr)
	}
	if !testutil.WaitFor(t, 2*time.Second, func() bool {
		pos, _, _ := env.positioner.last()
		return pos == window.Full
	}) {
		t.Fatal("triggered action did not move the window")
	}

	code, stdout, _ = env.run("exit")
	if code != 0 || !strings.Contains(stdout, "Server is shutting down") {
		t.Fatalf("exit = %d %q", code, stdout)
	}
	select {
	case <-app.router.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("router did not signal exit")
	}
}

func TestAppMoveModeShortcut(t *testing.T) {
	env := newTestEnv(t, nil)
	app := startApp(t, env)

	env.backend.press(t, 'D', keys.VKLControl, keys.VKLShift)
	if mode, ok := app.engine.CurrentMode(); !ok || mode.ID() != "move_mode" {
		t.Fatalf("CurrentMode() = %v, %v; want move_mode", mode.ID(), ok)
	}
	env.backend.press(t, '1')

	if !testutil.WaitFor(t, 2*time.Second, func() bool { return env.positioner.count() == 1 }) {
		t.Fatal("move mode shortcut did not move the window")
	}
	if pos, _, _ := env.positioner.last(); pos != window.LeftHalf {
		t.Fatalf("moved to %v, want %v", pos, window.LeftHalf)
	}
	if _, ok := app.engine.CurrentMode(); ok {
		t.Fatal("exit-mode shortcut left the mode active")
	}
}

func TestAppStreamsEventFeed(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.EventFeed = config.EventFeedConfig{Enabled: true, Port: 0}
	})
	app := startApp(t, env)
	if app.feed == nil || app.feed.URL() == "" {
		t.Fatal("event feed was not started")
	}

	conn, _, err := websocket.DefaultDialer.Dial(app.feed.URL(), nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()
	if !testutil.WaitFor(t, 2*time.Second, app.feed.HasActiveConnection) {
		t.Fatal("feed did not register the client")
	}

	if code, _, stderr := env.run("message", "hello", "grid"); code != 0 {
		t.Fatalf("message exit code = %d, stderr %q", code, stderr)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read feed: %v", err)
		}
		var ev wsserver.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if ev.Type != wsserver.EventMessage {
			continue
		}
		if ev.Message != "hello grid" {
			t.Fatalf("message event = %q, want %q", ev.Message, "hello grid")
		}
		return
	}
}

func TestAppReloadsBindingsOnConfigChange(t *testing.T) {
	env := newTestEnv(t, nil)
	app := startApp(t, env)
	before := app.engine.ShortcutCount()

	cfg := config.DefaultConfig()
	cfg.Shortcuts = []config.ShortcutConfig{{Keys: "Ctrl+Alt+F", Action: "move-mode-full"}}
	app.onConfigChanged(cfg)

	if got := app.engine.ShortcutCount(); got != before+1 {
		t.Fatalf("ShortcutCount() = %d after reload, want %d", got, before+1)
	}
	env.backend.press(t, 'F', keys.VKLControl, keys.VKLMenu)
	if !testutil.WaitFor(t, 2*time.Second, func() bool { return env.positioner.count() == 1 }) {
		t.Fatal("reloaded shortcut did not fire")
	}
}

func TestRunStartLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	opts := startOptions{configPath: env.configPath, logDir: t.TempDir(), logLevel: "info"}
	done := make(chan int, 1)
	go func() {
		done <- runStart(ctx, opts, &stdout, &stderr)
	}()

	if !testutil.WaitFor(t, 5*time.Second, func() bool {
		code, _, _ := env.run("status")
		return code == 0
	}) {
		cancel()
		t.Fatal("server did not come up")
	}

	var second, secondErr bytes.Buffer
	if code := runStart(ctx, startOptions{configPath: env.configPath}, &second, &secondErr); code != 1 {
		t.Fatalf("second runStart() = %d, want 1", code)
	}
	if !strings.Contains(secondErr.String(), "already running") {
		t.Fatalf("second instance stderr = %q", secondErr.String())
	}

	if code, _, stderr := env.run("exit"); code != 0 {
		t.Fatalf("exit = %d %q", code, stderr)
	}
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("runStart() = %d, want 0", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runStart did not return after exit")
	}

	lock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if err != nil {
		t.Fatalf("lock not released after shutdown: %v", err)
	}
	_ = lock.Release()
}

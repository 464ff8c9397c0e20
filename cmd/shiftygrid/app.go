package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"shiftygrid/internal/actions"
	"shiftygrid/internal/commands"
	"shiftygrid/internal/config"
	"shiftygrid/internal/ipc"
	"shiftygrid/internal/keyboard"
	"shiftygrid/internal/logging"
	"shiftygrid/internal/window"
	"shiftygrid/internal/workerutil"
	"shiftygrid/internal/wsserver"
)

var (
	newHookFn       = newPlatformHook
	newPositionerFn = window.NewPositioner
	watchConfigFn   = config.Watch
)

const shutdownWaitTimeout = 10 * time.Second

// startOptions carries the start command flags. Empty values fall back to
// the config file.
type startOptions struct {
	configPath string
	logDir     string
	logLevel   string
	console    io.Writer
}

// App owns the background instance: engine, pipe server, event feed and
// config watcher.
type App struct {
	configPath string

	configMu sync.Mutex
	cfg      config.Config

	logSession *logging.Session
	engine     *keyboard.Engine
	router     *commands.Router
	dispatcher *actions.Dispatcher
	pipeServer *ipc.Server
	feed       *wsserver.Hub

	bgCancel     context.CancelFunc
	bgWG         sync.WaitGroup
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

// NewApp returns an idle App.
func NewApp() *App {
	return &App{}
}

// startup brings every component up. On error the components already
// started are shut down again.
func (a *App) startup(ctx context.Context, opts startOptions) (err error) {
	defer func() {
		if err != nil {
			a.shutdown()
		}
	}()

	a.configPath = opts.configPath
	if a.configPath == "" {
		a.configPath = config.DefaultPath()
	}
	cfg, cfgErr := config.EnsureFile(a.configPath)
	a.setConfigSnapshot(cfg)

	if cfg.EventFeed.Enabled {
		a.feed = wsserver.NewHub(wsserver.HubOptions{Addr: net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.EventFeed.Port))})
	}
	logDir := firstNonEmpty(opts.logDir, cfg.LogDir)
	if logDir == "" {
		logDir = executableDir()
	}
	logLevel := firstNonEmpty(opts.logLevel, cfg.LogLevel)
	session, err := logging.Setup(logging.Options{
		Dir:     logDir,
		Level:   logLevel,
		Console: opts.console,
		OnEntry: a.publishLog,
	})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	a.logSession = session

	slog.Info("[app] ShiftyGrid starting", "version", version, "os", runtime.GOOS, "arch", runtime.GOARCH,
		"config", a.configPath, "log", session.Path)
	if cfgErr != nil {
		slog.Warn("[app] config loaded with errors, continuing with the valid bindings", "path", a.configPath, "error", cfgErr)
	}

	a.engine = keyboard.NewEngine(keyboard.EngineOptions{
		DoubleTapWindow: cfg.DoubleTapWindow(),
		CancelKey:       cfg.CancelKeyCode(),
		Workers:         cfg.Workers,
		Hook:            newHookFn(),
	})
	if err := a.applyBindings(cfg); err != nil {
		return err
	}

	routerOpts := commands.RouterOptions{
		Engine:     a.engine,
		Positioner: newPositionerFn(),
		Gap:        cfg.Window.Gap,
	}
	if a.feed != nil {
		routerOpts.Emitter = a.feed
	}
	a.router = commands.NewRouter(routerOpts)

	a.dispatcher = actions.NewDispatcher(a.router)
	a.dispatcher.Attach(a.engine)

	if a.feed != nil {
		a.feed.Attach(a.engine)
		if err := a.feed.Start(ctx); err != nil {
			slog.Warn("[app] event feed unavailable", "error", err)
		}
	}

	a.pipeServer = ipc.NewServer(ipc.DefaultPipeName(cfg.PipeName), a.router)
	if err := a.pipeServer.Start(); err != nil {
		return fmt.Errorf("command pipe: %w", err)
	}

	if err := a.engine.Start(); err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancel = cancel
	a.startConfigWatcher(bgCtx)

	slog.Info("[app] ShiftyGrid started", "pipe", a.pipeServer.PipeName(), "shortcuts", a.engine.ShortcutCount())
	return nil
}

// wait blocks until an exit command arrives or ctx is done.
func (a *App) wait(ctx context.Context) {
	select {
	case <-a.router.Done():
		slog.Info("[app] exit command received")
	case <-ctx.Done():
		slog.Info("[app] shutdown signal received")
	}
}

// shutdown stops every component in reverse start order. Idempotent.
func (a *App) shutdown() {
	a.shutdownOnce.Do(func() {
		a.shuttingDown.Store(true)
		slog.Info("[app] shutting down")
		if a.router != nil {
			a.router.Shutdown()
		}
		if a.bgCancel != nil {
			a.bgCancel()
		}
		if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
			slog.Warn("[app] timed out waiting for background workers during shutdown")
		}
		if a.engine != nil {
			if err := a.engine.Close(); err != nil {
				slog.Warn("[app] keyboard engine stop failed", "error", err)
			}
		}
		if a.pipeServer != nil {
			if err := a.pipeServer.Stop(); err != nil {
				slog.Warn("[app] pipe server stop failed", "error", err)
			}
		}
		if a.feed != nil {
			if err := a.feed.Stop(); err != nil {
				slog.Warn("[app] event feed stop failed", "error", err)
			}
		}
		slog.Info("[app] ShiftyGrid stopped")
		if a.logSession != nil {
			if err := a.logSession.Close(); err != nil {
				slog.Warn("[app] log file close failed", "error", err)
			}
		}
	})
}

func (a *App) setConfigSnapshot(cfg config.Config) {
	a.configMu.Lock()
	a.cfg = cfg
	a.configMu.Unlock()
}

func (a *App) getConfigSnapshot() config.Config {
	a.configMu.Lock()
	defer a.configMu.Unlock()
	return a.cfg
}

// applyBindings loads cfg's shortcuts and modes into the engine. Bindings
// that fail to parse are skipped; bindings without an executor are kept but
// reported.
func (a *App) applyBindings(cfg config.Config) error {
	shortcuts, modes, defErr := cfg.Definitions()
	if defErr != nil {
		slog.Warn("[app] some bindings were skipped", "error", defErr)
	}
	if err := a.engine.Reload(shortcuts, modes); err != nil {
		return fmt.Errorf("load bindings: %w", err)
	}
	for _, s := range a.engine.Shortcuts() {
		if !actions.Supports(s.ActionID()) {
			slog.Warn("[app] binding has no executor", "shortcut", s.ID(), "action", s.ActionID(), "blocks", s.BlockKey())
		}
	}
	return nil
}

func (a *App) startConfigWatcher(ctx context.Context) {
	workerutil.RunWithPanicRecovery(ctx, "config-watcher", &a.bgWG, func(ctx context.Context) {
		if err := watchConfigFn(ctx, a.configPath, a.onConfigChanged); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("[app] config watcher stopped", "error", err)
		}
	}, workerutil.RecoveryOptions{
		IsShutdown: a.shuttingDown.Load,
	})
}

// onConfigChanged reloads bindings. Logging, pipe and event feed settings
// apply on the next start.
func (a *App) onConfigChanged(cfg config.Config) {
	if a.shuttingDown.Load() {
		return
	}
	previous := a.getConfigSnapshot()
	a.setConfigSnapshot(cfg)
	if err := a.applyBindings(cfg); err != nil {
		slog.Warn("[app] config reload rejected", "error", err)
		return
	}
	if previous.PipeName != cfg.PipeName || previous.LogLevel != cfg.LogLevel || previous.EventFeed != cfg.EventFeed {
		slog.Info("[app] some settings change only after a restart", "path", a.configPath)
	}
}

func (a *App) publishLog(entry logging.Entry) {
	if a.feed != nil {
		a.feed.PublishLog(entry)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// executableDir returns the directory of the running binary, or "" when it
// cannot be resolved, which leaves file logging off.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// The waiting goroutine may outlive timeout when waitFn blocks; this is
	// only used on the shutdown path.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

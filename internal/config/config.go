package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"shiftygrid/internal/keyboard"
	"shiftygrid/internal/keys"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond

	minDoubleTapWindowMs = 50
	maxDoubleTapWindowMs = 2000
	maxWorkers           = 32
	maxValidPort         = 65535
	maxWindowGap         = 100
)

// DefaultPipeName is the pipe (or socket) name shared by the CLI and the
// running instance.
const DefaultPipeName = "ShiftyGrid_Commands"

var userHomeDirFn = os.UserHomeDir

var validLogLevels = []string{"none", "debug", "info", "warn", "error"}

// Config is shiftygrid runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogDir is the directory for log files. Empty means the executable's
	// directory.
	LogDir            string          `yaml:"log_dir,omitempty" json:"log_dir,omitempty"`
	DoubleTapWindowMs int             `yaml:"double_tap_window_ms" json:"double_tap_window_ms"`
	CancelKey         string          `yaml:"cancel_key" json:"cancel_key"`
	Workers           int             `yaml:"workers" json:"workers"`
	PipeName          string          `yaml:"pipe_name" json:"pipe_name"`
	Window            WindowConfig    `yaml:"window" json:"window"`
	EventFeed         EventFeedConfig `yaml:"event_feed" json:"event_feed"`
	// Shortcuts are global bindings. A nil list selects the built-in
	// bindings; an explicit empty list disables them.
	Shortcuts []ShortcutConfig `yaml:"shortcuts" json:"shortcuts"`
	Modes     []ModeConfig     `yaml:"modes" json:"modes"`
}

// WindowConfig controls grid placement.
type WindowConfig struct {
	// Gap is the spacing in pixels around a placed window.
	Gap int `yaml:"gap" json:"gap"`
}

// EventFeedConfig controls the local websocket event feed.
type EventFeedConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Port 0 lets the OS assign an available port.
	Port int `yaml:"port" json:"port"`
}

// ShortcutConfig binds a key combination to an action id.
type ShortcutConfig struct {
	// ID defaults to Action.
	ID     string `yaml:"id,omitempty" json:"id,omitempty"`
	Keys   string `yaml:"keys" json:"keys"`
	Action string `yaml:"action" json:"action"`
	// Scope is "global" (default) or "per_application".
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`
	// Block defaults to true.
	Block    *bool `yaml:"block,omitempty" json:"block,omitempty"`
	ExitMode bool  `yaml:"exit_mode,omitempty" json:"exit_mode,omitempty"`
}

// ModeConfig describes a mode and the shortcuts live inside it.
type ModeConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Activation is an optional key combination that enters the mode.
	Activation string `yaml:"activation,omitempty" json:"activation,omitempty"`
	// TimeoutMs of 0 keeps the mode active until it is left explicitly.
	TimeoutMs int `yaml:"timeout_ms" json:"timeout_ms"`
	// AllowEscape defaults to true.
	AllowEscape *bool            `yaml:"allow_escape,omitempty" json:"allow_escape,omitempty"`
	Shortcuts   []ShortcutConfig `yaml:"shortcuts" json:"shortcuts"`
}

// DefaultConfig returns the built-in configuration: move mode on Ctrl+Shift+D.
// Only actions with an executor are bound; a blocking binding without one
// would swallow its keys.
func DefaultConfig() Config {
	return Config{
		LogLevel:          "info",
		DoubleTapWindowMs: int(keyboard.DefaultDoubleTapWindow / time.Millisecond),
		CancelKey:         "Escape",
		Workers:           4,
		PipeName:          DefaultPipeName,
		Window:            WindowConfig{Gap: 2},
		Modes: []ModeConfig{
			{
				ID:         "move_mode",
				Name:       "Move Mode",
				Activation: "Ctrl+Shift+D",
				TimeoutMs:  5000,
				Shortcuts: []ShortcutConfig{
					{Keys: "1", Action: "move-mode-left-half", ExitMode: true},
					{Keys: "2", Action: "move-mode-right-half", ExitMode: true},
					{Keys: "S", Action: "move-mode-center", ExitMode: true},
					{Keys: "Space", Action: "move-mode-center-wide", ExitMode: true},
					{Keys: "F", Action: "move-mode-full", ExitMode: true},
				},
			},
		},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "shiftygrid", "config.yaml")
}

// Load reads config file. If file does not exist, defaults are returned.
// Bindings that do not parse are reported as an error together with the
// partially normalized config.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	// Lists are replaced rather than merged, so start from empty ones and
	// restore the defaults below only when a key is absent.
	cfg.Shortcuts = nil
	cfg.Modes = nil
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically.
func Save(path string, cfg Config) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, errors.New("config path required")
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(path, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// DoubleTapWindow returns the double-tap window as a duration.
func (c Config) DoubleTapWindow() time.Duration {
	return time.Duration(c.DoubleTapWindowMs) * time.Millisecond
}

// CancelKeyCode returns the virtual-key code of CancelKey, or Escape when it
// does not parse.
func (c Config) CancelKeyCode() int {
	code, err := keys.ParseKey(c.CancelKey)
	if err != nil {
		return keys.VKEscape
	}
	return code
}

// Definitions converts the configured bindings into engine definitions.
// Mode activation combinations become global activation shortcuts.
func (c Config) Definitions() ([]keyboard.Shortcut, []keyboard.Mode, error) {
	var errs []error
	shortcuts := make([]keyboard.Shortcut, 0, len(c.Shortcuts)+len(c.Modes))
	for i, sc := range c.Shortcuts {
		s, err := sc.build()
		if err != nil {
			errs = append(errs, fmt.Errorf("shortcuts[%d]: %w", i, err))
			continue
		}
		shortcuts = append(shortcuts, s)
	}

	modes := make([]keyboard.Mode, 0, len(c.Modes))
	for i, mc := range c.Modes {
		var owned []keyboard.Shortcut
		for j, sc := range mc.Shortcuts {
			s, err := sc.build()
			if err != nil {
				errs = append(errs, fmt.Errorf("modes[%d].shortcuts[%d]: %w", i, j, err))
				continue
			}
			owned = append(owned, s)
		}
		allowEscape := mc.AllowEscape == nil || *mc.AllowEscape
		timeout := time.Duration(mc.TimeoutMs) * time.Millisecond
		mode, err := keyboard.NewMode(mc.ID, mc.Name, timeout, allowEscape, owned...)
		if err != nil {
			errs = append(errs, fmt.Errorf("modes[%d]: %w", i, err))
			continue
		}
		modes = append(modes, mode)

		if strings.TrimSpace(mc.Activation) == "" {
			continue
		}
		combination, err := keyboard.ParseCombination(mc.Activation)
		if err != nil {
			errs = append(errs, fmt.Errorf("modes[%d].activation: %w", i, err))
			continue
		}
		shortcuts = append(shortcuts, mode.ActivationShortcut(combination))
	}
	return shortcuts, modes, errors.Join(errs...)
}

func (sc ShortcutConfig) build() (keyboard.Shortcut, error) {
	combination, err := keyboard.ParseCombination(sc.Keys)
	if err != nil {
		return keyboard.Shortcut{}, err
	}
	scope, err := parseScope(sc.Scope)
	if err != nil {
		return keyboard.Shortcut{}, err
	}
	id := sc.ID
	if id == "" {
		id = sc.Action
	}
	block := sc.Block == nil || *sc.Block
	s, err := keyboard.NewShortcut(id, combination, sc.Action, scope, block)
	if err != nil {
		return keyboard.Shortcut{}, err
	}
	return s.WithExitMode(sc.ExitMode), nil
}

func parseScope(raw string) (keyboard.Scope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "global":
		return keyboard.ScopeGlobal, nil
	case "per_application", "per-application":
		return keyboard.ScopePerApplication, nil
	default:
		return keyboard.ScopeGlobal, fmt.Errorf("unknown scope %q", raw)
	}
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Out-of-range scalars fall back to defaults with a warning; broken bindings
// are returned as a joined error.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	} else if !slices.Contains(validLogLevels, cfg.LogLevel) {
		slog.Warn("[WARN-CONFIG] unknown log_level, falling back to default",
			"configured", cfg.LogLevel, "default", defaults.LogLevel)
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.DoubleTapWindowMs == 0 {
		cfg.DoubleTapWindowMs = defaults.DoubleTapWindowMs
	} else if cfg.DoubleTapWindowMs < minDoubleTapWindowMs || cfg.DoubleTapWindowMs > maxDoubleTapWindowMs {
		slog.Warn("[WARN-CONFIG] double_tap_window_ms out of range, falling back to default",
			"configured", cfg.DoubleTapWindowMs, "min", minDoubleTapWindowMs, "max", maxDoubleTapWindowMs)
		cfg.DoubleTapWindowMs = defaults.DoubleTapWindowMs
	}
	if strings.TrimSpace(cfg.CancelKey) == "" {
		cfg.CancelKey = defaults.CancelKey
	}
	if cfg.Workers <= 0 || cfg.Workers > maxWorkers {
		if cfg.Workers != 0 {
			slog.Warn("[WARN-CONFIG] workers out of range, falling back to default",
				"configured", cfg.Workers, "max", maxWorkers)
		}
		cfg.Workers = defaults.Workers
	}
	if strings.TrimSpace(cfg.PipeName) == "" {
		cfg.PipeName = defaults.PipeName
	}
	if cfg.Window.Gap < 0 || cfg.Window.Gap > maxWindowGap {
		slog.Warn("[WARN-CONFIG] window.gap out of range, falling back to default",
			"configured", cfg.Window.Gap, "max", maxWindowGap)
		cfg.Window.Gap = defaults.Window.Gap
	}
	if cfg.EventFeed.Port < 0 || cfg.EventFeed.Port > maxValidPort {
		slog.Warn("[WARN-CONFIG] event_feed.port out of valid range (0-65535), falling back to 0 (auto-assign)",
			"configured", cfg.EventFeed.Port)
		cfg.EventFeed.Port = 0
	}
	if cfg.Shortcuts == nil {
		cfg.Shortcuts = defaults.Shortcuts
	}
	if cfg.Modes == nil {
		cfg.Modes = defaults.Modes
	}
	return validateBindings(cfg)
}

// validateBindings checks the cancel key, id uniqueness and that every key
// combination parses. References to unknown modes are only logged.
func validateBindings(cfg *Config) error {
	var errs []error
	if _, err := keys.ParseKey(cfg.CancelKey); err != nil {
		errs = append(errs, fmt.Errorf("cancel_key: %w", err))
	}

	modeIDs := make(map[string]struct{}, len(cfg.Modes))
	for i, mc := range cfg.Modes {
		id := strings.TrimSpace(mc.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("modes[%d].id must not be empty", i))
			continue
		}
		if _, dup := modeIDs[id]; dup {
			errs = append(errs, fmt.Errorf("modes[%d].id %q is duplicated", i, id))
		}
		modeIDs[id] = struct{}{}
		if mc.TimeoutMs < 0 {
			errs = append(errs, fmt.Errorf("modes[%d].timeout_ms must not be negative", i))
		}
	}

	if _, _, err := cfg.Definitions(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]struct{})
	checkShortcut := func(where string, sc ShortcutConfig) {
		id := sc.ID
		if id == "" {
			id = sc.Action
		}
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("%s: shortcut id %q is duplicated", where, id))
		}
		seen[id] = struct{}{}
		if modeID, ok := strings.CutPrefix(sc.Action, keyboard.ModeActivationPrefix); ok {
			if _, known := modeIDs[modeID]; !known {
				slog.Warn("[WARN-CONFIG] shortcut enters an unknown mode", "shortcut", id, "mode", modeID)
			}
		}
	}
	for i, sc := range cfg.Shortcuts {
		checkShortcut(fmt.Sprintf("shortcuts[%d]", i), sc)
	}
	for i, mc := range cfg.Modes {
		for j, sc := range mc.Shortcuts {
			checkShortcut(fmt.Sprintf("modes[%d].shortcuts[%d]", i, j), sc)
		}
	}
	return errors.Join(errs...)
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}

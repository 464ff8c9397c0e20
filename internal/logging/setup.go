// Package logging installs the process-wide slog logger: a daily text log
// file, optional console output, and a tee of warnings to a callback.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	logFilePrefix = "shiftygrid_"
	logFileSuffix = ".log"
	maxLogFiles   = 14
)

var (
	executableFn = os.Executable
	nowFn        = time.Now
)

// ParseLevel maps none, debug, info, warn and error to a slog level.
// enabled is false for "none".
func ParseLevel(raw string) (level slog.Level, enabled bool, err error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none":
		return slog.LevelError, false, nil
	case "debug":
		return slog.LevelDebug, true, nil
	case "", "info":
		return slog.LevelInfo, true, nil
	case "warn", "warning":
		return slog.LevelWarn, true, nil
	case "error":
		return slog.LevelError, true, nil
	default:
		return slog.LevelInfo, false, fmt.Errorf("unknown log level %q (want none, debug, info, warn or error)", raw)
	}
}

// Options configures Setup.
type Options struct {
	// Dir receives the daily log file. Empty disables file logging; a
	// directory that does not exist falls back to the executable's directory.
	Dir   string
	Level string
	// Console also receives every record when non-nil.
	Console io.Writer
	// OnEntry mirrors records at or above EntryLevel. A nil EntryLevel
	// selects warn.
	OnEntry    EntryCallback
	EntryLevel slog.Leveler
}

// Session is an installed logger. Close it on shutdown.
type Session struct {
	Logger *slog.Logger
	// Path is the log file, or "" when file logging is off.
	Path string
	file *os.File
}

// Close releases the log file. The default logger keeps working but stops
// writing to the file.
func (s *Session) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	slog.SetDefault(slog.New(slog.DiscardHandler))
	err := s.file.Close()
	s.file = nil
	return err
}

// Setup builds the logger described by opts and makes it the slog default.
func Setup(opts Options) (*Session, error) {
	level, enabled, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if !enabled {
		logger := slog.New(slog.DiscardHandler)
		slog.SetDefault(logger)
		return &Session{Logger: logger}, nil
	}

	session := &Session{}
	var writers []io.Writer
	var fallbackFrom string
	if strings.TrimSpace(opts.Dir) != "" {
		dir, fellBack, dirErr := resolveDir(opts.Dir)
		if dirErr != nil {
			return nil, dirErr
		}
		if fellBack {
			fallbackFrom = opts.Dir
		}
		path := filepath.Join(dir, logFileName(nowFn()))
		f, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if openErr != nil {
			return nil, fmt.Errorf("open log file: %w", openErr)
		}
		session.file = f
		session.Path = path
		writers = append(writers, f)
	}
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}

	var handler slog.Handler = slog.DiscardHandler
	if len(writers) > 0 {
		handler = slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	}
	if opts.OnEntry != nil {
		entryLevel := slog.LevelWarn
		if opts.EntryLevel != nil {
			entryLevel = opts.EntryLevel.Level()
		}
		handler = NewTeeHandler(handler, entryLevel, opts.OnEntry)
	}
	session.Logger = slog.New(handler)
	slog.SetDefault(session.Logger)

	if fallbackFrom != "" {
		slog.Warn("[logging] log directory does not exist, using executable directory",
			"requested", fallbackFrom, "path", session.Path)
	}
	if session.Path != "" {
		cleanupOldLogs(filepath.Dir(session.Path), filepath.Base(session.Path), maxLogFiles)
		slog.Debug("[logging] initialized", "path", session.Path, "level", level)
	}
	return session, nil
}

func logFileName(t time.Time) string {
	return logFilePrefix + t.Format("20060102") + logFileSuffix
}

// resolveDir returns an absolute log directory. A missing directory falls
// back to the executable's directory.
func resolveDir(raw string) (dir string, fellBack bool, err error) {
	dir, err = filepath.Abs(raw)
	if err != nil {
		return "", false, fmt.Errorf("resolve log dir: %w", err)
	}
	info, statErr := os.Stat(dir)
	if statErr == nil && info.IsDir() {
		return dir, false, nil
	}
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return "", false, fmt.Errorf("stat log dir: %w", statErr)
	}
	exe, exeErr := executableFn()
	if exeErr != nil {
		return "", false, fmt.Errorf("log dir %q does not exist and executable path is unknown: %w", dir, exeErr)
	}
	return filepath.Dir(exe), true, nil
}

// cleanupOldLogs removes the oldest daily log files beyond keep. The current
// file is never removed.
func cleanupOldLogs(dir, current string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("[logging] failed to read log directory for cleanup", "dir", dir, "error", err)
		return
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, logFilePrefix) && strings.HasSuffix(name, logFileSuffix) {
			names = append(names, name)
		}
	}
	// Names embed yyyymmdd, so lexical order is age order.
	slices.Sort(names)

	excess := len(names) - keep
	for _, name := range names {
		if excess <= 0 {
			break
		}
		if name == current {
			continue
		}
		target := filepath.Join(dir, name)
		if err := os.Remove(target); err != nil {
			slog.Warn("[logging] failed to delete old log file", "path", target, "error", err)
			continue
		}
		slog.Debug("[logging] deleted old log file", "path", target)
		excess--
	}
}

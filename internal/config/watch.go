package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultWatchDebounce coalesces the burst of events editors and atomic
// saves produce for a single change.
const defaultWatchDebounce = 200 * time.Millisecond

// Watch calls onChange with the reloaded config each time the file at path
// changes. Loads that fail are logged and skipped, so a half-edited file
// never replaces a working configuration. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	return watch(ctx, path, defaultWatchDebounce, onChange)
}

func watch(ctx context.Context, path string, debounce time.Duration, onChange func(Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch config: resolve path: %w", err)
	}
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("watch config: mkdir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic saves replace the file, which would drop a
	// watch placed on the file itself.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config: add %s: %w", dir, err)
	}
	slog.Debug("[DEBUG-CONFIG] watching config", "path", absPath)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)
			pending = timer.C
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", watchErr)
		case <-pending:
			pending = nil
			cfg, loadErr := Load(absPath)
			if loadErr != nil {
				slog.Warn("[WARN-CONFIG] ignoring config change that failed to load", "path", absPath, "error", loadErr)
				continue
			}
			slog.Info("[config] config file changed", "path", absPath)
			onChange(cfg)
		}
	}
}

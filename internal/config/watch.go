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

// reloadDelay is the quiet period after the last file event before a reload.
// One editor save typically produces several events (truncate, write, chmod,
// or create+rename for atomic saves); they collapse into a single reload.
const reloadDelay = 100 * time.Millisecond

// Watch calls onChange with the newly loaded Config each time the file at
// path settles after a change. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that
// replace the file by rename keep being seen. A reload that fails to parse
// or validate is logged and skipped; onChange only ever sees a valid Config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(target), err)
	}
	slog.Info("config: watching for changes", "path", target, "debounce", reloadDelay)

	// settle fires once the burst of events for one save is over; nil while
	// nothing is pending.
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settle = time.After(reloadDelay)

		case <-settle:
			settle = nil
			cfg, err := Load(target)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", target, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", target, "active_profile", cfg.ActiveProfile)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

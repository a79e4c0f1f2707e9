package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 150 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with each new
// valid configuration that differs from the previous one. It blocks until
// ctx is cancelled.
//
// Semantics:
//   - The parent directory is watched, so rename-on-save editors work.
//   - A file that fails to parse or validate is logged and ignored; the
//     last good configuration stays in effect.
//   - Changes take effect at the caller's next session boundary; Watch
//     only delivers them.
func Watch(ctx context.Context, path string, current *Config, onChange func(*Config)) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	slog.Info("config: watching for changes", "path", target)

	last := current
	var reload <-chan time.Time

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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload = time.After(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watcher error", "error", err)

		case <-reload:
			reload = nil

			cfg, err := Load(target)
			if err != nil {
				slog.Warn("config: reload rejected, keeping previous configuration", "path", target, "error", err)
				continue
			}
			if last != nil && reflect.DeepEqual(cfg, last) {
				slog.Debug("config: file touched without changes", "path", target)
				continue
			}

			slog.Info("config: reloaded", "path", target)
			last = cfg
			onChange(cfg)
		}
	}
}

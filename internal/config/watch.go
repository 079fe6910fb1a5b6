package config

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long Watch waits after the last write event before
// reloading. Editors save with a truncate-then-write or rename sequence, and
// reading mid-save would yield an empty or partial file.
const settleDelay = 100 * time.Millisecond

// Watch monitors the config file at path and calls onChange with the newly
// loaded Config once a save has settled. It runs until ctx is cancelled.
// Only the tuning subset (timing and correlation sections) should be applied
// by callers at runtime; pool sizing changes require a restart.
//
// If a reload fails the error is logged and the previous config stays
// active — Watch does not call onChange.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Info("watching config for tuning changes", slog.String("path", path))

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, which surfaces as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settle = time.After(settleDelay)

		case <-settle:
			settle = nil

			// Re-add in case an atomic save replaced the inode.
			_ = watcher.Add(path)

			if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
				// Mid-save; the completing write re-arms the timer.
				continue
			}

			cfg, _, err := Load(path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", path), slog.Any("error", err))
				continue
			}

			logger.Info("config reloaded", slog.String("path", path))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", slog.Any("error", err))
		}
	}
}

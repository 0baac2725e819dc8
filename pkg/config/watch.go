package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDebounce is how long Watch waits after the last change event.
const ReloadDebounce = 200 * time.Millisecond

// Watch reloads the config at path whenever it changes and hands valid
// configs to fn. Invalid configs are logged and skipped. It blocks until ctx
// is cancelled.
//
// The parent directory is watched rather than the file so that editors which
// replace the file on save are still seen.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "config")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := Load(abs)
		if err != nil {
			logger.Error("config reload failed", "path", abs, "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logger.Error("reloaded config is invalid, keeping previous", "path", abs, "error", err)
			return
		}
		logger.Info("config reloaded", "path", abs)
		fn(cfg)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	logger.Info("watching config", "path", abs)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("config file event", "op", ev.Op.String())
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(ReloadDebounce, reload)
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}

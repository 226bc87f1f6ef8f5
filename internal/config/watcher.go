package config

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Watcher polls a config file and reloads cfg when its modification time
// moves forward.
type Watcher struct {
	cfg      *Config
	path     string
	interval time.Duration
	logger   *slog.Logger
	onReload func(*ReloadResult)
	lastMod  time.Time
}

// NewWatcher returns a watcher for path. onReload runs after every
// successful reload, on the watcher's goroutine.
func NewWatcher(cfg *Config, path string, interval time.Duration, logger *slog.Logger, onReload func(*ReloadResult)) *Watcher {
	return &Watcher{
		cfg:      cfg,
		path:     path,
		interval: interval,
		logger:   logger.With("component", "config-watcher"),
		onReload: onReload,
	}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	}
	w.logger.Info("config watcher started", "path", w.path, "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("cannot stat config file", "path", w.path, "error", err)
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	result, err := w.cfg.Reload(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	result.LogResult(w.logger)
	if w.onReload != nil {
		w.onReload(result)
	}
}

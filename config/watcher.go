package config

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// FileWatcher polls a file's modification time. Polling survives the
// symlink swaps Kubernetes uses for mounted ConfigMaps.
type FileWatcher struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
}

func NewFileWatcher(path string, interval time.Duration, logger *slog.Logger) *FileWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{path: path, interval: interval, logger: logger}
}

// Watch calls onChange after each modification until ctx is done.
func (w *FileWatcher) Watch(ctx context.Context, onChange func()) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(w.path); err == nil {
		lastMod = info.ModTime()
	}

	w.logger.InfoContext(ctx, "Config watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue // may be mid-swap
			}
			if info.ModTime().After(lastMod) {
				w.logger.InfoContext(ctx, "Config file changed, reloading", "path", w.path)
				lastMod = info.ModTime()
				onChange()
			}
		}
	}
}

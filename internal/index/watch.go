package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/sortir-go/internal/logging"
)

// DefaultWatchDebounce is the quiet period after the last filesystem event
// before a reload is attempted.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch reloads h whenever the index directory dir is replaced, which is
// what [Flat.Persist] does. It watches the parent directory because the
// index directory itself is renamed away. Watch blocks until ctx is done.
func Watch(ctx context.Context, dir string, h *Holder, debounce time.Duration) error {
	log := logging.FromContext(ctx)
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("index: watch: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("index: watch: %w", err)
	}
	defer w.Close()

	if err := w.Add(parent); err != nil {
		return fmt.Errorf("index: watch %s: %w", parent, err)
	}
	log.Info("index: watching for rebuilds", slog.String("dir", dir))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != dir || !ev.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("index: watcher error", slog.Any("error", err))

		case <-timer.C:
			_ = h.Reload(ctx, dir)
		}
	}
}

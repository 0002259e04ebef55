package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the reloader waits after the last change.
const DefaultDebounce = 500 * time.Millisecond

// Reloader watches rule files and calls reload after they change.
// Parent directories are watched so editors that replace the file on save
// are still seen.
type Reloader struct {
	watcher  *fsnotify.Watcher
	reload   func() error
	files    map[string]bool
	debounce time.Duration
	logger   *slog.Logger
}

// NewReloader creates a watcher for paths. Empty paths are skipped.
func NewReloader(reload func() error, paths ...string) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("resolve %q: %w", p, err)
		}
		files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
		}
		dirs[dir] = true
	}

	return &Reloader{
		watcher:  watcher,
		reload:   reload,
		files:    files,
		debounce: DefaultDebounce,
		logger:   slog.Default().With("component", "reloader"),
	}, nil
}

// SetDebounce overrides DefaultDebounce. Call before Run.
func (r *Reloader) SetDebounce(d time.Duration) { r.debounce = d }

// Run watches for changes until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.files[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(r.debounce, func() {
				if err := r.reload(); err != nil {
					r.logger.Error("hot-reload failed", "file", event.Name, "error", err)
				}
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}

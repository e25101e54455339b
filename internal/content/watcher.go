package content

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches the burst of events an editor save produces
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store whenever its content file changes on disk
type Watcher struct {
	store    *Store
	logger   *zap.Logger
	debounce time.Duration
	onReload func(error)
}

// NewWatcher creates a watcher for the store's file
func NewWatcher(store *Store, logger *zap.Logger) *Watcher {
	return &Watcher{
		store:    store,
		logger:   logger.Named("content"),
		debounce: DefaultDebounce,
	}
}

// SetDebounce overrides the quiet period before a reload
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// OnReload registers a callback invoked after every reload attempt
func (w *Watcher) OnReload(fn func(error)) {
	w.onReload = fn
}

// Run blocks until ctx is cancelled. The parent directory is watched so
// that atomic renames by editors are seen too.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create content watcher: %w", err)
	}
	defer fw.Close()

	path, err := filepath.Abs(w.store.Path())
	if err != nil {
		return fmt.Errorf("failed to resolve content path: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	w.logger.Info("watching content file", zap.String("path", path))

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	var dirtySince time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("content file changed", zap.String("op", event.Op.String()))
			dirtySince = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("content watcher error", zap.Error(err))

		case <-ticker.C:
			if dirtySince.IsZero() || time.Since(dirtySince) < w.debounce {
				continue
			}
			dirtySince = time.Time{}
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	err := w.store.Reload()
	if err != nil {
		w.logger.Error("content reload failed, keeping previous tree", zap.Error(err))
	} else {
		w.logger.Info("content reloaded", zap.Int("stages", w.store.Tree().TotalStages()))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

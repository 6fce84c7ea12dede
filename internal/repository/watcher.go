package repository

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"support-agent/internal/logger"
)

// Watcher invalidates cached businesses when their store files change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(businessID string)
	log      *zap.Logger
}

// NewWatcher watches dir and calls onChange with the business id of every
// created, written, removed or renamed <id>.json file.
func NewWatcher(dir string, onChange func(businessID string), log *zap.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("repository: watcher callback must not be nil")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("repository: create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("repository: watch %s: %w", dir, err)
	}
	return &Watcher{watcher: w, onChange: onChange, log: logger.OrNop(log)}, nil
}

// Run blocks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&relevant == 0 {
				continue
			}
			id, ok := BusinessIDFromPath(event.Name)
			if !ok {
				continue
			}
			w.log.Info("knowledge file changed", zap.String("business_id", id), zap.String("op", event.Op.String()))
			w.onChange(id)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("knowledge watcher error", zap.Error(err))
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

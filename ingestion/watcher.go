package ingestion

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileEvent is a creation observed in the watched directory
type FileEvent struct {
	Path  string
	IsDir bool
}

// Watcher reports file creations in a single directory. Subdirectories are
// not followed and only Create operations are forwarded.
type Watcher struct {
	dir    string
	fsw    *fsnotify.Watcher
	events chan FileEvent
	logger *zap.Logger
}

// NewWatcher starts watching dir. Events are buffered up to bufferSize.
func NewWatcher(dir string, bufferSize int, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:    dir,
		fsw:    fsw,
		events: make(chan FileEvent, bufferSize),
		logger: logger,
	}, nil
}

// Dir returns the watched directory
func (w *Watcher) Dir() string {
	return w.dir
}

// Events is closed when Run returns
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Run forwards create events until ctx is cancelled or the underlying
// watcher shuts down.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fsw.Close()

	w.logger.Info("Watching directory", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}

			ev := FileEvent{Path: event.Name}
			if info, err := os.Lstat(event.Name); err == nil {
				ev.IsDir = info.IsDir()
			}

			select {
			case w.events <- ev:
			case <-ctx.Done():
				return nil
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			// an overflow loses events but the watch itself is still valid
			w.logger.Warn("Directory watcher error",
				zap.String("dir", w.dir),
				zap.Error(err))
		}
	}
}

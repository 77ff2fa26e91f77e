// Package watch calls back when the inventory CSV changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher watches one file. The file's directory is watched rather than the
// file itself so editors that save by rename are still picked up.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context)
}

func New(path string, debounce time.Duration, onChange func(ctx context.Context)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: filepath.Clean(path), debounce: debounce, onChange: onChange}
}

// Run blocks until ctx is cancelled. onChange runs on Run's goroutine once
// per burst of events, after debounce has passed with no further events.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.LogInfo("Watching %s for changes", w.path)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.LogDebug("File event %s on %s", event.Op, event.Name)
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.LogWarn("File watcher error on %s: %v", w.path, err)

		case <-timer.C:
			w.onChange(ctx)
		}
	}
}

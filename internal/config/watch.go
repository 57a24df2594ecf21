// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Oktay2617/daddylive/internal/log"
)

// DefaultDebounce collapses bursts of editor writes into one notification.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports changes to a set of files. The parent directories are
// watched so that rename-based saves are seen as well.
type Watcher struct {
	files    map[string]struct{}
	debounce time.Duration
	onChange func()
}

// NewWatcher creates a watcher for paths. Empty paths are ignored.
func NewWatcher(paths []string, debounce time.Duration, onChange func()) *Watcher {
	files := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		files[filepath.Clean(p)] = struct{}{}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{files: files, debounce: debounce, onChange: onChange}
}

// Run blocks until ctx is cancelled. It returns nil when there is nothing to watch.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithComponent("config")
	if len(w.files) == 0 {
		logger.Info().Str("event", "config.watcher_disabled").Msg("no files to watch")
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for d := range dirs {
		if err := fsw.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	logger.Info().Str("event", "config.watcher_started").Int("files", len(w.files)).Msg("watching files for changes")

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("event", "config.watcher_stopped").Msg("file watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if _, tracked := w.files[filepath.Clean(event.Name)]; !tracked {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug().
				Str("event", "config.file_changed").
				Str("op", event.Op.String()).
				Str(log.FieldPath, event.Name).
				Msg("watched file changed")

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() == nil {
					w.onChange()
				}
			})
			mu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Str("event", "config.watcher_error").Msg("file watcher error")
		}
	}
}

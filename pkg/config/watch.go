package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultWatchDelay is how long the watcher waits for further changes before
// firing.
const DefaultWatchDelay = 500 * time.Millisecond

// DefaultWatchExtensions are the file types whose changes trigger a
// re-evaluation.
var DefaultWatchExtensions = []string{".star", ".age", ".cue", ".yaml", ".yml"}

// Watcher re-runs a callback when scripts or ciphertext files change.
type Watcher struct {
	logger     zerolog.Logger
	delay      time.Duration
	extensions map[string]bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer

	// runMu keeps onChange calls from overlapping when one outlives the delay.
	runMu sync.Mutex
}

// NewWatcher creates a watcher. A zero delay selects DefaultWatchDelay and
// no extensions selects DefaultWatchExtensions.
func NewWatcher(logger zerolog.Logger, delay time.Duration, extensions ...string) *Watcher {
	if delay == 0 {
		delay = DefaultWatchDelay
	}
	if len(extensions) == 0 {
		extensions = DefaultWatchExtensions
	}
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[ext] = true
	}
	return &Watcher{
		logger:     logger,
		delay:      delay,
		extensions: exts,
	}
}

// Watch starts watching paths and returns immediately. Directories are
// watched recursively; for a file its directory is watched so that editors
// which replace files on save are still seen. onChange runs once per burst
// of changes with the last changed file, until ctx is cancelled or Stop is
// called. Calls to onChange never overlap.
func (w *Watcher) Watch(ctx context.Context, paths []string, onChange func(ctx context.Context, changed string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	added := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := w.watchDirectory(watcher, path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
				continue
			}
		} else if err := watcher.Add(filepath.Dir(path)); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
			continue
		}
		added++
	}

	if added == 0 {
		_ = watcher.Close()
		return fmt.Errorf("none of the %d paths could be watched", len(paths))
	}

	go w.processEvents(ctx, watcher, onChange)

	w.logger.Info().
		Int("paths", added).
		Msg("Started watching")

	return nil
}

func (w *Watcher) watchDirectory(watcher *fsnotify.Watcher, dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return watcher.Add(path)
		}

		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, onChange func(context.Context, string)) {
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.extensions[filepath.Ext(event.Name)] {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("File changed")

			name := event.Name
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.delay, func() {
				w.runMu.Lock()
				defer w.runMu.Unlock()
				if ctx.Err() != nil {
					return
				}
				onChange(ctx, name)
			})
			w.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

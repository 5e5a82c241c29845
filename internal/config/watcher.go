package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"switchboard/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of file events (editors often write
// a file several times on save).
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher invokes a callback when config.yaml or any backend definition
// under the config directory changes.
type Watcher struct {
	configPath string
	debounce   time.Duration
	onChange   func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for configPath. onChange runs on its own
// goroutine after events have been quiet for the debounce interval.
func NewWatcher(configPath string, debounce time.Duration, onChange func()) *Watcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	return &Watcher{
		configPath: configPath,
		debounce:   debounce,
		onChange:   onChange,
	}
}

// Start begins watching until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(w.configPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.configPath, err)
	}

	serversDir := filepath.Join(w.configPath, ServersDirName)
	if info, err := os.Stat(serversDir); err == nil && info.IsDir() {
		if err := watcher.Add(serversDir); err != nil {
			logging.Warn("ConfigWatcher", "Failed to watch %s: %v", serversDir, err)
		}
	}

	go w.run(ctx, watcher)

	logging.Info("ConfigWatcher", "Watching %s for configuration changes", w.configPath)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			logging.Debug("ConfigWatcher", "Config event %s on %s", event.Op, event.Name)

			// A freshly created mcpservers/ directory needs its own watch.
			if event.Has(fsnotify.Create) && filepath.Base(event.Name) == ServersDirName {
				if err := watcher.Add(event.Name); err != nil {
					logging.Warn("ConfigWatcher", "Failed to watch %s: %v", event.Name, err)
				}
			}
			w.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "File watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	return base == configFileName || base == ServersDirName || isYAMLFile(base)
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"archon/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the .archon config files for changes and invokes a
// callback once writes have settled, so edits made while a session is
// running (new credentials, tuned timeouts) take effect without restart.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	configDir   string
	onChange    func(path string)
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// watchedFiles are the basenames inside .archon that trigger a reload.
var watchedFiles = map[string]bool{
	"config.json": true,
	"archon.yaml": true,
}

// NewWatcher creates a Watcher for the workspace's .archon directory.
// onChange runs on the watcher goroutine after a change settles.
func NewWatcher(workspaceDir string, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fw,
		configDir:   filepath.Join(workspaceDir, ".archon"),
		onChange:    onChange,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.configDir, 0755); err != nil {
		logging.Get(logging.CategoryConfig).Warn("watcher: failed to create config dir %s: %v (continuing anyway)", w.configDir, err)
	}

	if err := w.watcher.Add(w.configDir); err != nil {
		logging.Get(logging.CategoryConfig).Warn("watcher: initial watch failed: %v", err)
	} else {
		logging.Config("watcher: watching %s", w.configDir)
	}

	go w.run(ctx)

	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryConfig).Error("watcher: close failed: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryConfig).Error("watcher: %v", err)

		case <-debounceTicker.C:
			w.flushSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !watchedFiles[filepath.Base(event.Name)] {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return // Ignore chmod, remove
	}

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// flushSettled fires the callback for events past the debounce window.
func (w *Watcher) flushSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		logging.Config("watcher: %s changed, reloading", filepath.Base(path))
		w.onChange(path)
	}
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

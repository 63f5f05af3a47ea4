package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the config file and re-applies reloadable settings (the
// logging level) without a restart. Events are debounced because editors
// fire several writes per save.
type Watcher struct {
	path       string
	debounce   time.Duration
	onReload   func(*Config)
	watcher    *fsnotify.Watcher
	running    bool
	stopCh     chan struct{}
	mu         sync.RWMutex
	pendingMu  sync.Mutex
	pendingAt  time.Time
	hasPending bool
}

// NewWatcher creates a watcher for the config file at path. onReload runs
// with the freshly loaded config after each debounced change.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory: editors replace files on save, which drops the
	// watch when the file itself is registered.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	go w.processEvents()
	go w.processDebounced()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.pendingMu.Lock()
			w.pendingAt = time.Now()
			w.hasPending = true
			w.pendingMu.Unlock()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) processDebounced() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.pendingMu.Lock()
			due := w.hasPending && time.Since(w.pendingAt) >= w.debounce
			if due {
				w.hasPending = false
			}
			w.pendingMu.Unlock()
			if !due {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			if err := cfg.Validate(); err != nil {
				continue
			}
			if w.onReload != nil {
				w.onReload(cfg)
			}
		}
	}
}

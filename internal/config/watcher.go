package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadHandler is called with the freshly loaded configuration after the
// watched file changes and parses cleanly.
type ReloadHandler func(cfg *Config)

// Watcher reloads configuration when the config file changes on disk.
// A malformed rewrite keeps the last good configuration.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	handlers []ReloadHandler
	logger   *zap.Logger
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnReload registers a handler invoked after each successful reload.
func (w *Watcher) OnReload(handler ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching the config file's directory. Watching the
// directory rather than the file survives editors that rename on save.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	go w.watchLoop()

	w.logger.Info("Configuration watcher started",
		zap.String("path", w.path),
	)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil
	}
	w.started = false
	close(w.stopCh)
	return w.watcher.Close()
}

// Reload forces a synchronous reload of the config file.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	handlers := make([]ReloadHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, handler := range handlers {
		handler(cfg)
	}

	w.logger.Info("Configuration reloaded", zap.String("path", w.path))
	return nil
}

func (w *Watcher) watchLoop() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Config watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
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
			w.logger.Error("Config file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// Small delay to handle rapid successive writes
	time.Sleep(50 * time.Millisecond)

	if err := w.Reload(); err != nil {
		w.logger.Error("Failed to reload configuration, keeping previous",
			zap.String("path", w.path),
			zap.Error(err),
		)
	}
}

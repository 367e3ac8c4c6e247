package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads the config file when it changes on disk so the record
// list can be edited without restarting the service.
type Watcher struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	cfg       *Config
	listeners []func(*Config)
}

// NewWatcher loads path and prepares a watcher for it. Start must be called
// to begin receiving change events.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors that save via rename drop a file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:    filepath.Clean(path),
		logger:  logger,
		watcher: fw,
		cfg:     cfg,
	}, nil
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Records returns a copy of the currently configured record names.
func (w *Watcher) Records() []string {
	return slices.Clone(w.Config().Records)
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Start processes file events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.RLock()
	fw := w.watcher
	w.mu.RUnlock()
	if fw == nil {
		return fmt.Errorf("config watcher already closed")
	}

	w.logger.Info("Starting config file watcher", "path", w.path)

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Config watcher stopped")
			return w.Close()

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(reloadDebounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("Config watcher error", "error", err)

		case <-debounce.C:
			cfg, err := w.reload()
			if err != nil {
				// Keep serving the previous config.
				w.logger.Error("Failed to reload config", "error", err)
				continue
			}
			w.logger.Info("Config reloaded", "records", len(cfg.Records))
			w.notify(cfg)
		}
	}
}

func (w *Watcher) reload() (*Config, error) {
	cfg, err := Load(w.path)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
	return cfg, nil
}

func (w *Watcher) notify(cfg *Config) {
	w.mu.RLock()
	listeners := slices.Clone(w.listeners)
	w.mu.RUnlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// Close releases the underlying file watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return nil
	}
	return fw.Close()
}

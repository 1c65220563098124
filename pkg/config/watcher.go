package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active configuration and swaps it atomically on reload.
// Readers see either the old or the new configuration, never a mix.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a Store holding cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Get returns the active configuration.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Set replaces the active configuration.
func (s *Store) Set(cfg *Config) {
	s.current.Store(cfg)
}

// Watcher reloads the configuration file when it changes on disk. Editors
// and orchestrators often replace files via rename, so the watcher observes
// the parent directory and filters for the target name. Reload events are
// debounced to absorb write bursts.
type Watcher struct {
	path     string
	store    *Store
	interval time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWatcher creates a Watcher that reloads path into store.
func NewWatcher(path string, store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		store:    store,
		interval: 100 * time.Millisecond,
		logger:   slog.Default().With("component", "config.watcher"),
		watcher:  fsw,
	}, nil
}

// Start begins watching. A failed reload (unreadable or invalid file) keeps
// the previous configuration active.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("configuration watcher started", "path", w.path)

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var pending <-chan time.Time
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.interval)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)

		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfigWithEnvOverrides(w.path)
	if err != nil {
		w.logger.Error("configuration reload failed, keeping previous configuration",
			"path", w.path,
			"error", err,
		)
		return
	}
	w.store.Set(cfg)
	w.logger.Info("configuration reloaded", "path", w.path)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		<-w.done
		w.running = false
	}
	return err
}

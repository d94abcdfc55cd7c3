package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ahrav/go-critique/internal/pipeline"
)

const (
	// defaultDebounce batches rapid editor saves into one reload.
	defaultDebounce = 500 * time.Millisecond

	// debounceTick bounds how often settled changes are checked for.
	debounceTick = 100 * time.Millisecond
)

// Watcher observes a plugin directory and reloads it when plugin
// files change, swapping the freshly merged registry into the runner
// atomically. Reviews in flight keep the stages they started with;
// new reviews see the new set.
//
// The watcher does not perform the initial load: call Loader.LoadDir
// and seed the runner first, then Start the watcher for live updates.
type Watcher struct {
	loader *Loader
	runner *pipeline.Runner

	// base holds the programmatic registrations that survive every
	// reload; plugin components are appended after them.
	base *pipeline.Registry
	dir  string

	watcher  *fsnotify.Watcher
	onReload func(*Plugins)
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	dirty   bool
	dirtyAt time.Time

	reloads  atomic.Int64
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatcherOption configures optional Watcher behavior.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for reload activity.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce overrides how long changes must settle before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadCallback registers a function invoked after each
// successful reload with the new plugin set.
func WithReloadCallback(fn func(*Plugins)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher over dir. base carries the
// programmatic hook registrations preserved across reloads; it may be
// nil.
func NewWatcher(loader *Loader, runner *pipeline.Runner, base *pipeline.Registry, dir string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		runner:   runner,
		base:     base,
		dir:      dir,
		watcher:  fsw,
		debounce: defaultDebounce,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "plugin_watcher", "dir", dir)
	return w, nil
}

// Start begins watching. Non-blocking; the event loop runs until Stop
// or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.started.Store(false)
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching plugin directory")
	go w.run(ctx)
	return nil
}

// Stop halts the event loop and releases the filesystem watch. Safe
// to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.started.Load() {
			<-w.doneCh
		}
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("close watcher", "error", err)
		}
	})
}

// Reloads returns how many registry swaps the watcher has performed.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

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
			w.logger.Warn("watch error", "error", err)
		case <-ticker.C:
			if w.settled() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".go") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.dirty = true
	w.dirtyAt = time.Now()
	w.mu.Unlock()
}

// settled reports whether changes exist and have stopped arriving for
// the debounce window, consuming the dirty flag when true.
func (w *Watcher) settled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirty || time.Since(w.dirtyAt) < w.debounce {
		return false
	}
	w.dirty = false
	return true
}

func (w *Watcher) reload() {
	plugins, err := w.loader.LoadDir(w.dir)
	if err != nil {
		// The previous registry stays active on a failed reload.
		w.logger.Warn("plugin reload failed", "error", err)
		return
	}

	w.runner.Swap(w.base.Merge(plugins.Registry))
	n := w.reloads.Add(1)
	w.logger.Info("plugins reloaded",
		"modules", plugins.Modules,
		"rejected", len(plugins.Degradations),
		"reloads", n)

	if w.onReload != nil {
		w.onReload(plugins)
	}
}

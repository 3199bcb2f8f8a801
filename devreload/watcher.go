// Package devreload rebuilds modules when the files they were built from
// change on disk. It is a development aid: every reload failure is logged
// and the watcher keeps running.
package devreload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/modloader"
)

// DefaultDebounce is used when no debounce is configured.
const DefaultDebounce = 250 * time.Millisecond

// ErrNoWatchTargets is returned when the watcher has nothing to watch.
var ErrNoWatchTargets = errors.New("no watch targets configured")

// Reloader rebuilds a module by name. *modloader.Registry satisfies it.
type Reloader interface {
	Reload(ctx context.Context, name string) (any, error)
}

// Watcher maps watched files to the modules that must be reloaded when
// they change. Bursts of writes to the same file within the debounce window
// trigger one reload.
type Watcher struct {
	reloader Reloader
	logger   modloader.Logger
	debounce time.Duration
	onReload func(module string, err error)

	// targets is keyed by the cleaned absolute file path.
	targets map[string][]string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger modloader.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long a file must stay quiet before its modules are
// reloaded. Non-positive values select DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook registers fn to be called after every reload attempt.
func WithReloadHook(fn func(module string, err error)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// New creates a watcher for watch, a map from module name to the files
// whose changes should rebuild it.
func New(reloader Reloader, watch map[string][]string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		reloader: reloader,
		logger:   modloader.NopLogger(),
		debounce: DefaultDebounce,
		targets:  make(map[string][]string),
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}

	for module, paths := range watch {
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, fmt.Errorf("resolve watch path %q for module %s: %w", p, module, err)
			}
			abs = filepath.Clean(abs)
			if !slices.Contains(w.targets[abs], module) {
				w.targets[abs] = append(w.targets[abs], module)
			}
		}
	}
	if len(w.targets) == 0 {
		return nil, ErrNoWatchTargets
	}
	for path := range w.targets {
		slices.Sort(w.targets[path])
	}
	return w, nil
}

// Paths returns the watched files, sorted.
func (w *Watcher) Paths() []string {
	paths := make([]string, 0, len(w.targets))
	for p := range w.targets {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Start begins watching. The directories holding the watched files are
// added to the underlying watcher so that editors replacing a file on save
// are still seen. Start returns immediately; events are handled until ctx
// is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	dirs := make(map[string]bool)
	for path := range w.targets {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Debug("Watching directory", "path", dir)
	}

	w.watcher = fw
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, fw, w.stopCh, w.doneCh)

	w.logger.Info("Hot reload enabled", "files", len(w.targets), "debounce", w.debounce)
	return nil
}

// Stop stops a running watcher and waits for its event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh, fw := w.stopCh, w.doneCh, w.watcher
	w.watcher = nil
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close file watcher: %w", err)
	}
	w.logger.Info("Hot reload stopped")
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(event.Name)
	if _, ok := w.targets[path]; !ok {
		return
	}
	w.logger.Debug("Watched file changed", "path", path, "op", event.Op.String())
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// flush reloads the modules of every file that has been quiet for at least
// the debounce window as of now.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var modules []string
	for path, changed := range w.pending {
		if now.Sub(changed) < w.debounce {
			continue
		}
		delete(w.pending, path)
		for _, m := range w.targets[path] {
			if !slices.Contains(modules, m) {
				modules = append(modules, m)
			}
		}
	}
	w.mu.Unlock()

	slices.Sort(modules)
	for _, module := range modules {
		w.reload(ctx, module)
	}
}

func (w *Watcher) reload(ctx context.Context, module string) {
	start := time.Now()
	_, err := w.reloader.Reload(ctx, module)
	if err != nil {
		w.logger.Error("Hot reload failed", "module", module, "error", err)
	} else {
		w.logger.Info("Hot reloaded module", "module", module, "duration", time.Since(start))
	}
	if w.onReload != nil {
		w.onReload(module, err)
	}
}

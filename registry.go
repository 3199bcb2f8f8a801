package modloader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// moduleEntry is the registry's record of one module definition and the
// lifecycle state of its instance. Entries are never removed; redefining a
// name updates the factory and dependencies in place.
type moduleEntry struct {
	name         string
	factory      Factory
	dependencies []string

	instance    any
	loaded      bool
	// builtWith holds the dependencies the live instance was constructed
	// from. A redefinition does not change it.
	builtWith   []string
	initialized bool
	loading     int
	// generation increments on every Unload so that constructions or
	// initializations started before the unload cannot resurrect state.
	generation uint64

	// building and initializing are non-nil while a factory or Init that
	// exceeded its timeout is still running. They close when it returns,
	// and no new call for the module starts before then.
	building     <-chan struct{}
	initializing <-chan struct{}

	initMu sync.Mutex
}

func (e *moduleEntry) state() ModuleState {
	switch {
	case e.initialized:
		return StateInitialized
	case e.loaded:
		return StateLoaded
	case e.loading > 0 || e.building != nil:
		return StateLoading
	case e.generation > 0:
		return StateUnloaded
	default:
		return StateRegistered
	}
}

// Registry holds module definitions and their memoized instances.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	modules  map[string]*moduleEntry
	order    []string
	inflight singleflight.Group

	logger      Logger
	loadTimeout time.Duration
	initTimeout time.Duration
	duplicates  DuplicatePolicy
	eventSource string

	observerMu sync.RWMutex
	observers  map[string]*observerRegistration
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		modules:     make(map[string]*moduleEntry),
		logger:      nopLogger{},
		eventSource: "modloader",
		observers:   make(map[string]*observerRegistration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Logger returns the registry's logger.
func (r *Registry) Logger() Logger {
	return r.logger
}

// Define registers a module and returns its name. It fails with a
// CircularDependencyError if the definition would introduce a cycle, in
// which case the registry is left unchanged. Dependencies that are not yet
// defined are accepted; they are resolved at load time.
//
// Redefining a name follows the registry's DuplicatePolicy. A redefinition
// does not discard an instance that was already constructed, and Initialize
// keeps using the dependencies that instance was built with; call Unload to
// rebuild the module from the new definition.
func (r *Registry) Define(name string, factory Factory, dependencies ...string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrInvalidModuleName
	}
	if factory == nil {
		return "", fmt.Errorf("%w: %s", ErrNilFactory, name)
	}
	deps := make([]string, 0, len(dependencies))
	for _, dep := range dependencies {
		if strings.TrimSpace(dep) == "" {
			return "", fmt.Errorf("%w: dependency of %s", ErrInvalidModuleName, name)
		}
		deps = append(deps, dep)
	}
	if slices.Contains(deps, name) {
		return "", r.rejectDefinition(name, deps, &CircularDependencyError{Path: []string{name, name}})
	}

	r.mu.Lock()
	entry, exists := r.modules[name]
	if exists && r.duplicates == DuplicateReject {
		r.mu.Unlock()
		return "", r.rejectDefinition(name, deps, fmt.Errorf("%w: %s", ErrModuleAlreadyDefined, name))
	}

	graph := r.graphLocked()
	graph[name] = deps
	if cycle := findCycle(graph, name); cycle != nil {
		r.mu.Unlock()
		return "", r.rejectDefinition(name, deps, &CircularDependencyError{Path: cycle})
	}

	if exists {
		entry.factory = factory
		entry.dependencies = deps
	} else {
		r.modules[name] = &moduleEntry{name: name, factory: factory, dependencies: deps}
		r.order = append(r.order, name)
	}
	r.mu.Unlock()

	if exists && r.duplicates == DuplicateWarn {
		r.logger.Warn("Module redefined, previous definition replaced", "module", name)
	}
	r.logger.Debug("Module defined", "module", name, "dependencies", deps)
	r.emit(context.Background(), EventTypeModuleDefined, ModuleEventData{Module: name, Dependencies: deps})
	return name, nil
}

func (r *Registry) rejectDefinition(name string, deps []string, err error) error {
	r.logger.Error("Module definition rejected", "module", name, "dependencies", deps, "error", err)
	r.emit(context.Background(), EventTypeModuleFailed, ModuleEventData{
		Module:       name,
		Dependencies: deps,
		Phase:        PhaseDefine,
		Error:        err.Error(),
	})
	return err
}

// Register defines every registration in order and stops at the first error.
func (r *Registry) Register(regs ...Registration) error {
	for _, reg := range regs {
		if _, err := r.Define(reg.Name, reg.Factory, reg.Dependencies...); err != nil {
			return fmt.Errorf("register module %q: %w", reg.Name, err)
		}
	}
	return nil
}

// Has reports whether name has been defined.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.modules[name]
	return ok
}

// Names returns the defined module names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

func (r *Registry) graphLocked() map[string][]string {
	graph := make(map[string][]string, len(r.modules)+1)
	for name, entry := range r.modules {
		graph[name] = entry.dependencies
	}
	return graph
}

// Order returns every defined module in initialization order: dependencies
// before dependents, ties broken by registration order.
func (r *Registry) Order() ([]string, error) {
	r.mu.Lock()
	graph := r.graphLocked()
	roots := slices.Clone(r.order)
	r.mu.Unlock()

	order, err := topologicalOrder(graph, roots)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Module initialization order", "order", order)
	return order, nil
}

// Load returns the instance for name, constructing it and its dependencies
// on first use. Concurrent callers share one construction. A caller whose
// ctx is cancelled stops waiting, but the shared construction continues and
// its result is memoized for later callers.
func (r *Registry) Load(ctx context.Context, name string) (any, error) {
	return r.load(ctx, name, nil)
}

// load resolves name on behalf of the modules in chain (outermost first).
func (r *Registry) load(ctx context.Context, name string, chain []string) (any, error) {
	if idx := slices.Index(chain, name); idx >= 0 {
		return nil, &CircularDependencyError{Path: append(slices.Clone(chain[idx:]), name)}
	}

	r.mu.Lock()
	entry, ok := r.modules[name]
	if !ok {
		r.mu.Unlock()
		notFound := &ModuleNotFoundError{Name: name}
		if len(chain) > 0 {
			notFound.RequiredBy = chain[len(chain)-1]
		}
		return nil, notFound
	}
	if entry.loaded {
		instance := entry.instance
		r.mu.Unlock()
		return instance, nil
	}
	r.mu.Unlock()

	path := append(slices.Clone(chain), name)
	results := r.inflight.DoChan(name, func() (any, error) {
		return r.construct(context.WithoutCancel(ctx), entry, path)
	})

	select {
	case res := <-results:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) construct(ctx context.Context, entry *moduleEntry, path []string) (any, error) {
	r.mu.Lock()
	if entry.loaded {
		instance := entry.instance
		r.mu.Unlock()
		return instance, nil
	}
	name := entry.name
	if entry.building != nil {
		r.mu.Unlock()
		return nil, &ModuleConstructionError{Module: name, Err: ErrStillRunning}
	}
	factory := entry.factory
	deps := slices.Clone(entry.dependencies)
	generation := entry.generation
	entry.loading++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		entry.loading--
		r.mu.Unlock()
	}()

	r.logger.Debug("Loading module", "module", name, "dependencies", deps)
	r.emit(ctx, EventTypeModuleLoading, ModuleEventData{Module: name, Dependencies: deps})
	start := time.Now()

	resolved := make([]any, len(deps))
	for i, dep := range deps {
		instance, err := r.load(ctx, dep, path)
		if err != nil {
			depErr := newDependencyLoadError(name, dep, err)
			r.logger.Debug("Dependency failed to load", "module", name, "dependency", dep, "error", err)
			r.emitFailure(ctx, name, deps, PhaseConstruct, depErr)
			return nil, depErr
		}
		resolved[i] = instance
	}

	instance, settled, err := invoke(ctx, r.loadTimeout, func(ctx context.Context) (any, error) {
		return factory(ctx, resolved)
	})
	if settled != nil {
		r.mu.Lock()
		entry.building = settled
		r.mu.Unlock()
		go r.release(entry, settled, func(e *moduleEntry) *<-chan struct{} { return &e.building })
	}
	if err != nil {
		constructErr := &ModuleConstructionError{Module: name, Err: err}
		r.logger.Error("Module construction failed", "module", name, "error", err)
		r.emitFailure(ctx, name, deps, PhaseConstruct, constructErr)
		return nil, constructErr
	}

	r.mu.Lock()
	switch {
	case entry.loaded:
		instance = entry.instance
	case entry.generation == generation:
		entry.instance = instance
		entry.loaded = true
		entry.builtWith = deps
	}
	r.mu.Unlock()

	elapsed := time.Since(start)
	r.logger.Info("Loaded module", "module", name, "type", fmt.Sprintf("%T", instance), "duration", elapsed)
	r.emit(ctx, EventTypeModuleLoaded, ModuleEventData{
		Module:       name,
		Dependencies: deps,
		DurationMS:   float64(elapsed) / float64(time.Millisecond),
	})
	return instance, nil
}

// LoadMany loads names concurrently and returns their instances in the same
// order. The first failure cancels the remaining waits and is returned.
func (r *Registry) LoadMany(ctx context.Context, names ...string) ([]any, error) {
	instances := make([]any, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			instance, err := r.Load(gctx, name)
			if err != nil {
				return err
			}
			instances[i] = instance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return instances, nil
}

// LoadAll constructs every defined module and then initializes each of them,
// both in Order. The first failure aborts the run; modules initialized before
// it stay initialized.
func (r *Registry) LoadAll(ctx context.Context) error {
	order, err := r.Order()
	if err != nil {
		return err
	}

	r.logger.Info("Loading modules", "count", len(order), "order", order)
	for _, name := range order {
		if _, err := r.Load(ctx, name); err != nil {
			return err
		}
	}
	for _, name := range order {
		if _, err := r.Initialize(ctx, name); err != nil {
			return err
		}
	}
	r.logger.Info("All modules initialized", "count", len(order))
	return nil
}

// Initialize loads name if needed, initializes its dependencies, and then
// runs the instance's Init. It is a no-op for a module that is already
// initialized.
func (r *Registry) Initialize(ctx context.Context, name string) (any, error) {
	return r.initialize(ctx, name, nil)
}

func (r *Registry) initialize(ctx context.Context, name string, chain []string) (any, error) {
	if idx := slices.Index(chain, name); idx >= 0 {
		return nil, &CircularDependencyError{Path: append(slices.Clone(chain[idx:]), name)}
	}
	if _, err := r.load(ctx, name, chain); err != nil {
		return nil, err
	}

	r.mu.Lock()
	entry := r.modules[name]
	if entry.initialized {
		instance := entry.instance
		r.mu.Unlock()
		return instance, nil
	}
	deps := slices.Clone(entry.builtWith)
	r.mu.Unlock()

	path := append(slices.Clone(chain), name)
	for _, dep := range deps {
		if _, err := r.initialize(ctx, dep, path); err != nil {
			return nil, err
		}
	}

	entry.initMu.Lock()
	defer entry.initMu.Unlock()

	r.mu.Lock()
	if entry.initialized {
		instance := entry.instance
		r.mu.Unlock()
		return instance, nil
	}
	if !entry.loaded {
		r.mu.Unlock()
		return nil, &ModuleInitializationError{Module: name, Err: ErrModuleUnloaded}
	}
	if entry.initializing != nil {
		r.mu.Unlock()
		return nil, &ModuleInitializationError{Module: name, Err: ErrStillRunning}
	}
	instance := entry.instance
	generation := entry.generation
	r.mu.Unlock()

	start := time.Now()
	_, settled, err := invoke(ctx, r.initTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, runInit(ctx, instance)
	})
	if settled != nil {
		r.mu.Lock()
		entry.initializing = settled
		r.mu.Unlock()
		go r.release(entry, settled, func(e *moduleEntry) *<-chan struct{} { return &e.initializing })
	}
	if err != nil {
		initErr := &ModuleInitializationError{Module: name, Err: err}
		r.logger.Error("Module initialization failed", "module", name, "error", err)
		r.emitFailure(ctx, name, deps, PhaseInitialize, initErr)
		return nil, initErr
	}

	r.mu.Lock()
	if entry.generation == generation {
		entry.initialized = true
	}
	r.mu.Unlock()

	elapsed := time.Since(start)
	r.logger.Info("Initialized module", "module", name, "duration", elapsed)
	r.emit(ctx, EventTypeModuleInitialized, ModuleEventData{
		Module:       name,
		Dependencies: deps,
		DurationMS:   float64(elapsed) / float64(time.Millisecond),
	})
	return instance, nil
}

// Unload discards the memoized instance of name after calling its Cleanup,
// so that the next Load or Initialize rebuilds it from its factory. Modules
// that depend on name keep the instance they were constructed with.
// Unloading a module that is not loaded is a no-op.
func (r *Registry) Unload(name string) error {
	r.mu.Lock()
	entry, ok := r.modules[name]
	r.mu.Unlock()
	if !ok {
		return &ModuleNotFoundError{Name: name}
	}

	entry.initMu.Lock()
	defer entry.initMu.Unlock()

	r.mu.Lock()
	if !entry.loaded {
		entry.initialized = false
		r.mu.Unlock()
		return nil
	}
	instance := entry.instance
	deps := entry.builtWith
	entry.instance = nil
	entry.builtWith = nil
	entry.loaded = false
	entry.initialized = false
	entry.generation++
	r.mu.Unlock()

	ctx := context.Background()
	if err := runCleanup(instance); err != nil {
		cleanupErr := fmt.Errorf("%w (%s): %w", ErrModuleCleanup, name, err)
		r.logger.Error("Module cleanup failed", "module", name, "error", err)
		r.emitFailure(ctx, name, deps, PhaseCleanup, cleanupErr)
		return cleanupErr
	}

	r.logger.Info("Unloaded module", "module", name)
	r.emit(ctx, EventTypeModuleUnloaded, ModuleEventData{Module: name, Dependencies: deps})
	return nil
}

// release clears the marker selected by field once the timed-out call behind
// settled returns.
func (r *Registry) release(entry *moduleEntry, settled <-chan struct{}, field func(*moduleEntry) *<-chan struct{}) {
	<-settled
	r.mu.Lock()
	if marker := field(entry); *marker == settled {
		*marker = nil
	}
	r.mu.Unlock()
	r.logger.Debug("Timed-out call returned", "module", entry.name)
}

// Reload unloads name and initializes a fresh instance. A cleanup failure
// does not stop the rebuild; it is returned alongside the new instance.
func (r *Registry) Reload(ctx context.Context, name string) (any, error) {
	unloadErr := r.Unload(name)
	var notFound *ModuleNotFoundError
	if errors.As(unloadErr, &notFound) {
		return nil, unloadErr
	}
	instance, err := r.Initialize(ctx, name)
	if err != nil {
		return nil, err
	}
	return instance, unloadErr
}

// Info returns a snapshot of every defined module in registration order.
func (r *Registry) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := Info{
		Registered: len(r.order),
		Modules:    make([]ModuleInfo, 0, len(r.order)),
	}
	for _, name := range r.order {
		entry := r.modules[name]
		if entry.loaded {
			info.Loaded++
		} else if entry.loading > 0 || entry.building != nil {
			info.Loading++
		}
		if entry.initialized {
			info.Initialized++
		}
		info.Modules = append(info.Modules, ModuleInfo{
			Name:         name,
			Dependencies: slices.Clone(entry.dependencies),
			State:        entry.state(),
			Loaded:       entry.loaded,
			Initialized:  entry.initialized,
		})
	}
	return info
}

func (r *Registry) emitFailure(ctx context.Context, name string, deps []string, phase string, err error) {
	r.emit(ctx, EventTypeModuleFailed, ModuleEventData{
		Module:       name,
		Dependencies: deps,
		Phase:        phase,
		Error:        err.Error(),
	})
}

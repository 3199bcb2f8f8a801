// Package modloader provides a module registry and loader with dependency
// resolution, memoized construction and ordered initialization.
//
// A module is a named unit of functionality produced by a factory. Modules
// declare the names of the modules they depend on; the registry resolves a
// safe construction order, builds every module at most once, and runs each
// module's Init in dependency order.
//
// Basic usage:
//
//	reg := modloader.NewRegistry(modloader.WithLogger(logger))
//	reg.Define("state", stateFactory)
//	reg.Define("upload", uploadFactory, "state", "logger")
//	if err := reg.LoadAll(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The registry is an explicit value: construct it once at startup and pass it
// to the code that registers or loads modules.
package modloader

import "context"

// Factory produces a module instance from its resolved dependencies.
// deps holds the dependency instances in the order they were declared.
// The provided context carries the load timeout, if one is configured.
type Factory func(ctx context.Context, deps []any) (any, error)

// Registration is the self-registration record a module source file exports.
// Hosts pass these to Registry.Register instead of looking factories up by name.
type Registration struct {
	Name         string
	Factory      Factory
	Dependencies []string
}

// Initializable is implemented by module instances that need to run setup
// after they and their dependencies have been constructed.
//
// Init is called in dependency order: every dependency of a module is
// initialized before the module itself. Init never runs twice at the same
// time on one instance, and it is not called again once it has succeeded.
// An Init that failed or timed out is retried by the next Initialize.
type Initializable interface {
	Init(ctx context.Context) error
}

// Cleanable is implemented by module instances holding resources that must be
// released when the module is unloaded.
type Cleanable interface {
	Cleanup()
}

// initializer and simpleInitializer cover instances whose Init takes no context.
type initializer interface {
	Init() error
}

type simpleInitializer interface {
	Init()
}

type cleanerWithError interface {
	Cleanup() error
}

// ModuleState is the lifecycle state of a registered module.
type ModuleState string

const (
	StateRegistered  ModuleState = "registered"
	StateLoading     ModuleState = "loading"
	StateLoaded      ModuleState = "loaded"
	StateInitialized ModuleState = "initialized"
	StateUnloaded    ModuleState = "unloaded"
)

// ModuleInfo describes one registered module at the moment Info was called.
type ModuleInfo struct {
	Name         string      `json:"name"`
	Dependencies []string    `json:"dependencies"`
	State        ModuleState `json:"state"`
	Loaded       bool        `json:"loaded"`
	Initialized  bool        `json:"initialized"`
}

// Info is a point-in-time snapshot of the registry.
type Info struct {
	Registered  int          `json:"registered"`
	Loaded      int          `json:"loaded"`
	Loading     int          `json:"loading"`
	Initialized int          `json:"initialized"`
	Modules     []ModuleInfo `json:"modules"`
}

// Module returns the entry for name, if present.
func (i Info) Module(name string) (ModuleInfo, bool) {
	for _, m := range i.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return ModuleInfo{}, false
}

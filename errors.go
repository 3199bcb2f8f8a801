package modloader

import (
	"errors"
	"fmt"
	"strings"
)

// Registry errors
var (
	// Definition errors
	ErrInvalidModuleName    = errors.New("module name must not be empty")
	ErrNilFactory           = errors.New("module factory is nil")
	ErrModuleAlreadyDefined = errors.New("module already defined")
	ErrSelfDependency       = errors.New("module depends on itself")
	ErrCircularDependency   = errors.New("circular dependency detected")

	// Load and initialization errors
	ErrModuleNotFound         = errors.New("module not found")
	ErrModuleConstruction     = errors.New("module construction failed")
	ErrModuleInitialization   = errors.New("module initialization failed")
	ErrModuleCleanup          = errors.New("module cleanup failed")
	ErrModuleUnloaded         = errors.New("module was unloaded during initialization")
	ErrDependencyLoad         = errors.New("dependency load failed")
	ErrDependencyCount        = errors.New("unexpected number of dependencies")
	ErrDependencyTypeMismatch = errors.New("dependency has unexpected type")
	ErrInstanceTypeMismatch   = errors.New("module instance has unexpected type")
	ErrModulePanicked         = errors.New("module panicked")
	ErrStillRunning           = errors.New("a timed-out call for this module is still running")

	// Option errors
	ErrUnknownDuplicatePolicy = errors.New("unknown duplicate policy")
)

// CircularDependencyError is returned by Define when the new definition would
// close a cycle. Path holds the full cycle with the first module repeated at
// the end, e.g. [A B C A].
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Path) == 2 && e.Path[0] == e.Path[1] {
		return fmt.Sprintf("%s: %s (cycle: %s)", ErrCircularDependency, ErrSelfDependency, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("%s (cycle: %s)", ErrCircularDependency, strings.Join(e.Path, " -> "))
}

// Is matches ErrCircularDependency, and ErrSelfDependency for one-hop cycles.
func (e *CircularDependencyError) Is(target error) bool {
	if target == ErrCircularDependency {
		return true
	}
	return target == ErrSelfDependency && len(e.Path) == 2 && e.Path[0] == e.Path[1]
}

// ModuleNotFoundError names a module that was requested or required but never defined.
type ModuleNotFoundError struct {
	Name       string
	RequiredBy string
}

func (e *ModuleNotFoundError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("%s: %s (required by %s)", ErrModuleNotFound, e.Name, e.RequiredBy)
	}
	return fmt.Sprintf("%s: %s", ErrModuleNotFound, e.Name)
}

func (e *ModuleNotFoundError) Is(target error) bool { return target == ErrModuleNotFound }

// ModuleConstructionError wraps a failure returned by a module factory.
type ModuleConstructionError struct {
	Module string
	Err    error
}

func (e *ModuleConstructionError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrModuleConstruction, e.Module, e.Err)
}

func (e *ModuleConstructionError) Unwrap() error { return e.Err }

func (e *ModuleConstructionError) Is(target error) bool { return target == ErrModuleConstruction }

// ModuleInitializationError wraps a failure returned by a module's Init.
type ModuleInitializationError struct {
	Module string
	Err    error
}

func (e *ModuleInitializationError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrModuleInitialization, e.Module, e.Err)
}

func (e *ModuleInitializationError) Unwrap() error { return e.Err }

func (e *ModuleInitializationError) Is(target error) bool { return target == ErrModuleInitialization }

// DependencyLoadError reports a failure somewhere below a module in its
// dependency chain. Chain starts at the module being loaded and ends at the
// dependency whose load failed.
type DependencyLoadError struct {
	Chain []string
	Err   error
}

// newDependencyLoadError folds nested dependency failures into a single chain
// so the top-level caller sees A -> B -> C rather than three wrapped layers.
func newDependencyLoadError(module, dependency string, cause error) *DependencyLoadError {
	if inner, ok := cause.(*DependencyLoadError); ok && len(inner.Chain) > 0 && inner.Chain[0] == dependency {
		chain := make([]string, 0, len(inner.Chain)+1)
		chain = append(chain, module)
		chain = append(chain, inner.Chain...)
		return &DependencyLoadError{Chain: chain, Err: inner.Err}
	}
	return &DependencyLoadError{Chain: []string{module, dependency}, Err: cause}
}

func (e *DependencyLoadError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrDependencyLoad, strings.Join(e.Chain, " -> "), e.Err)
}

func (e *DependencyLoadError) Unwrap() error { return e.Err }

func (e *DependencyLoadError) Is(target error) bool { return target == ErrDependencyLoad }

// Module returns the module whose load was requested.
func (e *DependencyLoadError) Module() string {
	if len(e.Chain) == 0 {
		return ""
	}
	return e.Chain[0]
}

// IsErrCircularDependency reports whether err is, or wraps, a circular dependency error.
func IsErrCircularDependency(err error) bool {
	return errors.Is(err, ErrCircularDependency)
}

// IsErrModuleNotFound reports whether err is, or wraps, a missing module error.
func IsErrModuleNotFound(err error) bool {
	return errors.Is(err, ErrModuleNotFound)
}

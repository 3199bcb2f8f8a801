package modloader

import (
	"fmt"
	"strings"
	"time"
)

// DuplicatePolicy controls what Define does when a name is already registered.
type DuplicatePolicy int

const (
	// DuplicateOverwrite silently replaces the earlier definition (last write wins).
	DuplicateOverwrite DuplicatePolicy = iota
	// DuplicateWarn replaces the earlier definition and logs a warning.
	DuplicateWarn
	// DuplicateReject refuses the new definition with ErrModuleAlreadyDefined.
	DuplicateReject
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateOverwrite:
		return "overwrite"
	case DuplicateWarn:
		return "warn"
	case DuplicateReject:
		return "reject"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

// ParseDuplicatePolicy converts a configuration string into a DuplicatePolicy.
// The empty string selects DuplicateOverwrite.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return DuplicateOverwrite, nil
	case "warn":
		return DuplicateWarn, nil
	case "reject", "error":
		return DuplicateReject, nil
	default:
		return DuplicateOverwrite, fmt.Errorf("%w: %q", ErrUnknownDuplicatePolicy, s)
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registry diagnostics.
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLoadTimeout bounds each factory invocation. Zero, the default, means
// a factory may run indefinitely.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.loadTimeout = d
	}
}

// WithInitTimeout bounds each Init invocation. Zero means no limit.
func WithInitTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.initTimeout = d
	}
}

// WithDuplicatePolicy sets how Define treats an already registered name.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Registry) {
		r.duplicates = p
	}
}

// WithObserver registers observers for lifecycle events at construction time.
func WithObserver(observers ...Observer) Option {
	return func(r *Registry) {
		for _, o := range observers {
			r.observers[o.ObserverID()] = &observerRegistration{
				observer:     o,
				eventTypes:   map[string]bool{},
				registeredAt: time.Now(),
			}
		}
	}
}

// WithEventSource overrides the CloudEvents source attribute used for
// lifecycle events. Defaults to "modloader".
func WithEventSource(source string) Option {
	return func(r *Registry) {
		if source != "" {
			r.eventSource = source
		}
	}
}

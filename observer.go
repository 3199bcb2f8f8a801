package modloader

import (
	"context"
	"slices"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of registry lifecycle events.
// Events use the CloudEvents specification so they can be forwarded to
// external systems unchanged.
type Observer interface {
	// OnEvent is called synchronously from the registry operation that
	// produced the event. Observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the registry, in reverse domain notation.
const (
	EventTypeModuleDefined     = "com.modloader.module.defined"
	EventTypeModuleLoading     = "com.modloader.module.loading"
	EventTypeModuleLoaded      = "com.modloader.module.loaded"
	EventTypeModuleInitialized = "com.modloader.module.initialized"
	EventTypeModuleUnloaded    = "com.modloader.module.unloaded"
	EventTypeModuleFailed      = "com.modloader.module.failed"
)

// Failure phases reported in the "phase" field of EventTypeModuleFailed.
const (
	PhaseDefine     = "define"
	PhaseConstruct  = "construct"
	PhaseInitialize = "initialize"
	PhaseCleanup    = "cleanup"
)

// ModuleEventData is the JSON payload of every registry lifecycle event.
type ModuleEventData struct {
	Module       string   `json:"module"`
	Dependencies []string `json:"dependencies,omitempty"`
	Phase        string   `json:"phase,omitempty"`
	DurationMS   float64  `json:"durationMs,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that calls handler for every event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// RegisterObserver adds an observer. If eventTypes is empty the observer
// receives every event.
func (r *Registry) RegisterObserver(observer Observer, eventTypes ...string) error {
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	r.observerMu.Lock()
	r.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	r.observerMu.Unlock()

	r.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Unknown observers are ignored.
func (r *Registry) UnregisterObserver(observer Observer) error {
	r.observerMu.Lock()
	defer r.observerMu.Unlock()
	delete(r.observers, observer.ObserverID())
	return nil
}

// GetObservers lists registered observers, sorted by ID.
func (r *Registry) GetObservers() []ObserverInfo {
	r.observerMu.RLock()
	defer r.observerMu.RUnlock()

	infos := make([]ObserverInfo, 0, len(r.observers))
	for id, reg := range r.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		slices.Sort(types)
		infos = append(infos, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: reg.registeredAt})
	}
	slices.SortFunc(infos, func(a, b ObserverInfo) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return infos
}

// NotifyObservers delivers event to every interested observer. Observer
// errors and panics are logged and never reach the registry caller.
func (r *Registry) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if err := ValidateCloudEvent(event); err != nil {
		r.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	r.observerMu.RLock()
	targets := make([]*observerRegistration, 0, len(r.observers))
	for _, reg := range r.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		targets = append(targets, reg)
	}
	r.observerMu.RUnlock()

	for _, reg := range targets {
		r.deliver(ctx, reg.observer, event)
	}
	return nil
}

func (r *Registry) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", p)
		}
	}()
	if err := observer.OnEvent(ctx, event); err != nil {
		r.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// emit builds and delivers a lifecycle event. It is a no-op without observers.
func (r *Registry) emit(ctx context.Context, eventType string, data ModuleEventData) {
	r.observerMu.RLock()
	empty := len(r.observers) == 0
	r.observerMu.RUnlock()
	if empty {
		return
	}

	event := NewCloudEvent(eventType, r.eventSource, data, nil)
	if err := r.NotifyObservers(ctx, event); err != nil {
		r.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}

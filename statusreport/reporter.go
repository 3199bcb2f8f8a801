// Package statusreport periodically logs a summary of a module registry.
package statusreport

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modloader"
)

// DefaultSchedule is used when no schedule is configured.
const DefaultSchedule = "@every 1m"

// InfoSource provides registry snapshots. *modloader.Registry satisfies it.
type InfoSource interface {
	Info() modloader.Info
}

// Reporter logs registry counts on a cron schedule.
type Reporter struct {
	source   InfoSource
	logger   modloader.Logger
	schedule cron.Schedule
	expr     string

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
	runs    int
	last    modloader.Info
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the reporter's logger.
func WithLogger(logger modloader.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a reporter for source. expr is a standard five-field cron
// expression or a descriptor such as "@every 30s"; empty selects
// DefaultSchedule.
func New(source InfoSource, expr string, opts ...Option) (*Reporter, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse status report schedule %q: %w", expr, err)
	}
	r := &Reporter{
		source:   source,
		logger:   modloader.NopLogger(),
		schedule: schedule,
		expr:     expr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Schedule returns the schedule expression in use.
func (r *Reporter) Schedule() string { return r.expr }

// Report logs one summary and returns the snapshot it was built from.
func (r *Reporter) Report() modloader.Info {
	info := r.source.Info()

	var pending []string
	for _, m := range info.Modules {
		if !m.Initialized {
			pending = append(pending, m.Name)
		}
	}
	r.logger.Info("Module status",
		"registered", info.Registered,
		"loaded", info.Loaded,
		"loading", info.Loading,
		"initialized", info.Initialized,
	)
	if len(pending) > 0 {
		r.logger.Debug("Modules not initialized", "modules", pending)
	}

	r.mu.Lock()
	r.runs++
	r.last = info
	r.mu.Unlock()
	return info
}

// Runs returns how many reports have been produced.
func (r *Reporter) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// Last returns the most recent snapshot.
func (r *Reporter) Last() modloader.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Start schedules the report. Calling Start on a running reporter is a no-op.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.cron = cron.New()
	r.cron.Schedule(r.schedule, cron.FuncJob(func() { r.Report() }))
	r.cron.Start()
	r.started = true
	r.logger.Info("Status reports scheduled", "schedule", r.expr)
}

// Stop unschedules the report and waits for a running report to finish or
// for ctx to be done.
func (r *Reporter) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop status reports: %w", ctx.Err())
	}
}

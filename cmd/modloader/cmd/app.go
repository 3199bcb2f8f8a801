package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GoCodeAlone/modloader"
	"github.com/GoCodeAlone/modloader/config"
	"github.com/GoCodeAlone/modloader/deck"
	"github.com/GoCodeAlone/modloader/devreload"
	"github.com/GoCodeAlone/modloader/introspect"
	"github.com/GoCodeAlone/modloader/logging"
	"github.com/GoCodeAlone/modloader/managers"
	"github.com/GoCodeAlone/modloader/metrics"
	"github.com/GoCodeAlone/modloader/statusreport"
)

const shutdownTimeout = 10 * time.Second

// app holds everything one invocation wires together.
type app struct {
	cfg      *config.Config
	logger   modloader.Logger
	registry *modloader.Registry
	metrics  *prometheus.Registry
	pool     *deck.Pool
	writer   *deck.MemoryWriter

	debug    *introspect.Server
	watcher  *devreload.Watcher
	reporter *statusreport.Reporter
}

// newApp loads configuration from path and defines every manager module.
// Nothing is constructed yet.
func newApp(path string, logOutput io.Writer) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Backend: cfg.Log.Backend,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  logOutput,
	})
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())

	opts, err := cfg.RegistryOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		modloader.WithLogger(logger),
		modloader.WithObserver(metrics.NewCollector(promRegistry)),
	)
	registry := modloader.NewRegistry(opts...)
	metrics.RegisterRegistryGauges(promRegistry, registry)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  promRegistry,
		pool: deck.NewPool(
			deck.WithWorkerCount(cfg.Workers.Count),
			deck.WithQueueSize(cfg.Workers.QueueSize),
			deck.WithPoolLogger(logger),
		),
		writer: &deck.MemoryWriter{},
	}
	err = managers.RegisterAll(registry, managers.Collaborators{
		Files:      deck.OSFileReader{},
		Parser:     deck.CSVParser{},
		Writer:     a.writer,
		Dispatcher: a.pool,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// start loads every module and starts the configured background services.
func (a *app) start(ctx context.Context) error {
	a.pool.Start()
	if err := a.registry.LoadAll(ctx); err != nil {
		return err
	}

	if a.cfg.Debug.Enabled {
		a.debug = introspect.NewServer(a.registry,
			introspect.WithLogger(a.logger),
			introspect.WithGatherer(a.metrics),
			introspect.WithReload(a.cfg.Debug.AllowReload),
		)
		if _, err := a.debug.Start(a.cfg.Debug.Address); err != nil {
			return err
		}
	}

	if a.cfg.HotReload.Enabled {
		watcher, err := devreload.New(a.registry, a.cfg.HotReload.Watch,
			devreload.WithLogger(a.logger),
			devreload.WithDebounce(time.Duration(a.cfg.HotReload.Debounce)),
		)
		if err != nil {
			return fmt.Errorf("hot reload: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("hot reload: %w", err)
		}
		a.watcher = watcher
	}

	if a.cfg.StatusReport.Enabled {
		reporter, err := statusreport.New(a.registry, a.cfg.StatusReport.Schedule, statusreport.WithLogger(a.logger))
		if err != nil {
			return err
		}
		reporter.Start()
		a.reporter = reporter
	}
	return nil
}

// stop shuts down background services and unloads modules in reverse order.
func (a *app) stop(ctx context.Context) error {
	var errs []error
	if a.reporter != nil {
		errs = append(errs, a.reporter.Stop(ctx))
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.debug != nil {
		errs = append(errs, a.debug.Shutdown(ctx))
	}
	errs = append(errs, a.pool.Stop(ctx))

	if order, err := a.registry.Order(); err == nil {
		for i := len(order) - 1; i >= 0; i-- {
			errs = append(errs, a.registry.Unload(order[i]))
		}
	}
	if syncer, ok := a.logger.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	return errors.Join(errs...)
}

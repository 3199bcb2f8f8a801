// Package metrics exports registry lifecycle events as Prometheus metrics.
package metrics

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GoCodeAlone/modloader"
)

const namespace = "modloader"

// Collector is a registry observer that counts lifecycle events.
type Collector struct {
	Loaded       *prometheus.CounterVec
	Initialized  *prometheus.CounterVec
	Unloaded     *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec
	InitDuration *prometheus.HistogramVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Loaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_loaded_total",
			Help:      "Total number of module constructions",
		}, []string{"module"}),
		Initialized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_initialized_total",
			Help:      "Total number of completed module initializations",
		}, []string{"module"}),
		Unloaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_unloaded_total",
			Help:      "Total number of module unloads",
		}, []string{"module"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_failures_total",
			Help:      "Total number of failed definitions, constructions, initializations and cleanups",
		}, []string{"module", "phase"}),
		LoadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modules_load_duration_seconds",
			Help:      "Time spent constructing a module, dependencies included",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"module"}),
		InitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modules_init_duration_seconds",
			Help:      "Time spent in a module's init routine",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"module"}),
	}
}

func (c *Collector) ObserverID() string { return "metrics" }

// OnEvent updates the metric matching the event type.
func (c *Collector) OnEvent(ctx context.Context, event cloudevents.Event) error {
	data, err := modloader.EventData(event)
	if err != nil {
		return err
	}
	seconds := data.DurationMS / 1000

	switch event.Type() {
	case modloader.EventTypeModuleLoaded:
		c.Loaded.WithLabelValues(data.Module).Inc()
		c.LoadDuration.WithLabelValues(data.Module).Observe(seconds)
	case modloader.EventTypeModuleInitialized:
		c.Initialized.WithLabelValues(data.Module).Inc()
		c.InitDuration.WithLabelValues(data.Module).Observe(seconds)
	case modloader.EventTypeModuleUnloaded:
		c.Unloaded.WithLabelValues(data.Module).Inc()
	case modloader.EventTypeModuleFailed:
		c.Failures.WithLabelValues(data.Module, data.Phase).Inc()
	}
	return nil
}

// RegisterRegistryGauges exposes the current registry counts as gauges.
// Values are read from r.Info on every scrape.
func RegisterRegistryGauges(reg prometheus.Registerer, r *modloader.Registry) {
	factory := promauto.With(reg)
	gauge := func(name, help string, value func(modloader.Info) int) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(r.Info())) })
	}
	gauge("modules_registered", "Number of registered modules", func(i modloader.Info) int { return i.Registered })
	gauge("modules_loaded", "Number of modules with a live instance", func(i modloader.Info) int { return i.Loaded })
	gauge("modules_loading", "Number of constructions in flight", func(i modloader.Info) int { return i.Loading })
	gauge("modules_initialized", "Number of initialized modules", func(i modloader.Info) int { return i.Initialized })
}

var _ modloader.Observer = (*Collector)(nil)

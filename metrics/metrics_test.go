package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modloader"
)

type initModule struct{ err error }

func (m *initModule) Init() error { return m.err }

func constant(v any) modloader.Factory {
	return func(ctx context.Context, deps []any) (any, error) { return v, nil }
}

func TestCollectorCountsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	r := modloader.NewRegistry(modloader.WithObserver(c))

	_, err := r.Define("state", constant(&initModule{}))
	require.NoError(t, err)
	_, err = r.Define("upload", constant(&initModule{err: errors.New("no reader")}), "state")
	require.NoError(t, err)
	_, err = r.Define("loop", constant(1), "loop")
	require.Error(t, err)

	require.Error(t, r.LoadAll(context.Background()))
	require.NoError(t, r.Unload("state"))

	assert.InDelta(t, 1, testutil.ToFloat64(c.Loaded.WithLabelValues("state")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Loaded.WithLabelValues("upload")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Initialized.WithLabelValues("state")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(c.Initialized.WithLabelValues("upload")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Unloaded.WithLabelValues("state")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Failures.WithLabelValues("upload", modloader.PhaseInitialize)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Failures.WithLabelValues("loop", modloader.PhaseDefine)), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(c.LoadDuration))
}

func TestRegistryGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := modloader.NewRegistry()
	RegisterRegistryGauges(reg, r)

	_, err := r.Define("state", constant(1))
	require.NoError(t, err)
	_, err = r.Define("logger", constant(2))
	require.NoError(t, err)
	_, err = r.Load(context.Background(), "state")
	require.NoError(t, err)

	expected := `
# HELP modloader_modules_loaded Number of modules with a live instance
# TYPE modloader_modules_loaded gauge
modloader_modules_loaded 1
# HELP modloader_modules_registered Number of registered modules
# TYPE modloader_modules_registered gauge
modloader_modules_registered 2
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"modloader_modules_loaded", "modloader_modules_registered")
	assert.NoError(t, err)
}

func TestCollectorRejectsUndecodableEvents(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	event := modloader.NewCloudEvent(modloader.EventTypeModuleLoaded, "test", nil, nil)
	require.NoError(t, event.SetData("application/json", []byte("not json")))
	assert.Error(t, c.OnEvent(context.Background(), event))
}

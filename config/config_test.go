package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modloader"
)

func TestLoadFormats(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg, err := Load("testdata/modloader.yaml")
		require.NoError(t, err)

		assert.Equal(t, Duration(5*time.Second), cfg.Registry.LoadTimeout)
		assert.Equal(t, Duration(2*time.Second), cfg.Registry.InitTimeout)
		assert.Equal(t, "warn", cfg.Registry.DuplicatePolicy)
		assert.Equal(t, "zap", cfg.Log.Backend)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format, "unset keys keep their defaults")
		assert.True(t, cfg.Debug.Enabled)
		assert.Equal(t, "127.0.0.1:9000", cfg.Debug.Address)
		assert.Equal(t, Duration(100*time.Millisecond), cfg.HotReload.Debounce)
		assert.Equal(t, []string{"testdata/materials.csv"}, cfg.HotReload.Watch["upload"])
		assert.Equal(t, "*/5 * * * *", cfg.StatusReport.Schedule)
		assert.Equal(t, 2, cfg.Workers.Count)
		assert.Equal(t, 16, cfg.Workers.QueueSize)
	})

	t.Run("toml", func(t *testing.T) {
		cfg, err := Load("testdata/modloader.toml")
		require.NoError(t, err)
		assert.Equal(t, Duration(time.Second), cfg.Registry.LoadTimeout)
		assert.Equal(t, "reject", cfg.Registry.DuplicatePolicy)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, 0, cfg.Workers.Count)
	})

	t.Run("json", func(t *testing.T) {
		cfg, err := Load("testdata/modloader.json")
		require.NoError(t, err)
		assert.Equal(t, Duration(750*time.Millisecond), cfg.Registry.InitTimeout)
		assert.Equal(t, []string{"deck.tmpl"}, cfg.HotReload.Watch["slides"])
		assert.True(t, cfg.StatusReport.Enabled)
	})

	t.Run("no file uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default().Log, cfg.Log)
	})
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/modloader.ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)

	_, err = Load("testdata/invalid.yaml")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, modloader.ErrUnknownDuplicatePolicy)
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)

	_, err = Load("testdata/badduration.yaml")
	assert.ErrorContains(t, err, "invalid duration")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODLOADER_REGISTRY_LOAD_TIMEOUT", "3s")
	t.Setenv("MODLOADER_LOG_LEVEL", "error")
	t.Setenv("MODLOADER_DEBUG_ENABLED", "true")
	t.Setenv("MODLOADER_WORKERS_COUNT", "8")

	cfg, err := Load("testdata/modloader.toml")
	require.NoError(t, err)
	assert.Equal(t, Duration(3*time.Second), cfg.Registry.LoadTimeout, "env wins over the file")
	assert.Equal(t, "error", cfg.Log.Level)
	assert.True(t, cfg.Debug.Enabled)
	assert.Equal(t, 8, cfg.Workers.Count)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Debug.Enabled = true
	cfg.Debug.Address = ""
	assert.ErrorIs(t, cfg.Validate(), ErrMissingDebugAddress)

	cfg = Default()
	cfg.Registry.InitTimeout = Duration(-time.Second)
	assert.ErrorIs(t, cfg.Validate(), ErrNegativeTimeout)

	cfg = Default()
	cfg.StatusReport.Enabled = true
	cfg.StatusReport.Schedule = "whenever"
	assert.ErrorContains(t, cfg.Validate(), "whenever")
}

func TestRegistryOptions(t *testing.T) {
	cfg := Default()
	cfg.Registry.DuplicatePolicy = "reject"
	opts, err := cfg.RegistryOptions()
	require.NoError(t, err)

	r := modloader.NewRegistry(opts...)
	_, err = r.Define("state", func(ctx context.Context, deps []any) (any, error) { return 1, nil })
	require.NoError(t, err)
	_, err = r.Define("state", func(ctx context.Context, deps []any) (any, error) { return 2, nil })
	assert.ErrorIs(t, err, modloader.ErrModuleAlreadyDefined)
}

// Package config defines the modloader runtime configuration and loads it
// from YAML, TOML or JSON files with environment overrides.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modloader"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "MODLOADER"

var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnsupportedFormat   = errors.New("unsupported config file format")
	ErrNegativeTimeout     = errors.New("timeout must not be negative")
	ErrInvalidWorkerCount  = errors.New("worker count must not be negative")
	ErrMissingDebugAddress = errors.New("debug server enabled without an address")
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("250ms", "5s") in every supported format.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	Registry     RegistryConfig     `yaml:"registry" toml:"registry" json:"registry" env:"REGISTRY"`
	Log          LogConfig          `yaml:"log" toml:"log" json:"log" env:"LOG"`
	Debug        DebugConfig        `yaml:"debug" toml:"debug" json:"debug" env:"DEBUG"`
	HotReload    HotReloadConfig    `yaml:"hot_reload" toml:"hot_reload" json:"hot_reload" env:"HOT_RELOAD"`
	StatusReport StatusReportConfig `yaml:"status_report" toml:"status_report" json:"status_report" env:"STATUS_REPORT"`
	Workers      WorkersConfig      `yaml:"workers" toml:"workers" json:"workers" env:"WORKERS"`
}

// RegistryConfig controls the module registry.
type RegistryConfig struct {
	LoadTimeout     Duration `yaml:"load_timeout" toml:"load_timeout" json:"load_timeout" env:"LOAD_TIMEOUT"`
	InitTimeout     Duration `yaml:"init_timeout" toml:"init_timeout" json:"init_timeout" env:"INIT_TIMEOUT"`
	DuplicatePolicy string   `yaml:"duplicate_policy" toml:"duplicate_policy" json:"duplicate_policy" env:"DUPLICATE_POLICY"`
}

// LogConfig selects the logging backend.
type LogConfig struct {
	Backend string `yaml:"backend" toml:"backend" json:"backend" env:"BACKEND"`
	Level   string `yaml:"level" toml:"level" json:"level" env:"LEVEL"`
	Format  string `yaml:"format" toml:"format" json:"format" env:"FORMAT"`
}

// DebugConfig controls the introspection HTTP server.
type DebugConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"ENABLED"`
	Address     string `yaml:"address" toml:"address" json:"address" env:"ADDRESS"`
	AllowReload bool   `yaml:"allow_reload" toml:"allow_reload" json:"allow_reload" env:"ALLOW_RELOAD"`
}

// HotReloadConfig maps module names to the files whose changes should
// reload them.
type HotReloadConfig struct {
	Enabled  bool                `yaml:"enabled" toml:"enabled" json:"enabled" env:"ENABLED"`
	Debounce Duration            `yaml:"debounce" toml:"debounce" json:"debounce" env:"DEBOUNCE"`
	Watch    map[string][]string `yaml:"watch" toml:"watch" json:"watch"`
}

// StatusReportConfig schedules the periodic registry status log line.
type StatusReportConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"ENABLED"`
	Schedule string `yaml:"schedule" toml:"schedule" json:"schedule" env:"SCHEDULE"`
}

// WorkersConfig sizes the background task pool. Zero disables the pool and
// tasks run synchronously.
type WorkersConfig struct {
	Count     int `yaml:"count" toml:"count" json:"count" env:"COUNT"`
	QueueSize int `yaml:"queue_size" toml:"queue_size" json:"queue_size" env:"QUEUE_SIZE"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{DuplicatePolicy: modloader.DuplicateOverwrite.String()},
		Log:      LogConfig{Backend: "slog", Level: "info", Format: "text"},
		Debug:    DebugConfig{Address: "127.0.0.1:8089"},
		HotReload: HotReloadConfig{
			Debounce: Duration(250 * time.Millisecond),
			Watch:    map[string][]string{},
		},
		StatusReport: StatusReportConfig{Schedule: "@every 1m"},
		Workers:      WorkersConfig{Count: 4, QueueSize: 16},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Registry.LoadTimeout < 0 || c.Registry.InitTimeout < 0 {
		errs = append(errs, ErrNegativeTimeout)
	}
	if _, err := modloader.ParseDuplicatePolicy(c.Registry.DuplicatePolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Debug.Enabled && c.Debug.Address == "" {
		errs = append(errs, ErrMissingDebugAddress)
	}
	if c.Workers.Count < 0 || c.Workers.QueueSize < 0 {
		errs = append(errs, ErrInvalidWorkerCount)
	}
	if c.StatusReport.Enabled {
		if _, err := cron.ParseStandard(c.StatusReport.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("status report schedule %q: %w", c.StatusReport.Schedule, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RegistryOptions translates the registry section into registry options.
func (c *Config) RegistryOptions() ([]modloader.Option, error) {
	policy, err := modloader.ParseDuplicatePolicy(c.Registry.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	return []modloader.Option{
		modloader.WithLoadTimeout(time.Duration(c.Registry.LoadTimeout)),
		modloader.WithInitTimeout(time.Duration(c.Registry.InitTimeout)),
		modloader.WithDuplicatePolicy(policy),
	}, nil
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/modloader/feeders"
)

// Loader applies a sequence of feeders to a Config. Later feeders override
// earlier ones.
type Loader struct {
	sources []feeders.Feeder
}

// NewLoader creates a new configuration loader
func NewLoader(sources ...feeders.Feeder) *Loader {
	return &Loader{sources: sources}
}

// AddSource appends a feeder.
func (l *Loader) AddSource(source feeders.Feeder) {
	l.sources = append(l.sources, source)
}

// Load starts from Default, runs every feeder and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	for i, source := range l.sources {
		if err := source.Feed(cfg); err != nil {
			return nil, fmt.Errorf("config source %d (%T): %w", i, source, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FeederFor picks a file feeder from the path's extension.
func FeederFor(path string) (feeders.Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return feeders.NewYamlFeeder(path), nil
	case ".toml":
		return feeders.NewTomlFeeder(path), nil
	case ".json":
		return feeders.NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads path (if not empty) and then MODLOADER_* environment overrides.
func Load(path string) (*Config, error) {
	loader := NewLoader()
	if path != "" {
		source, err := FeederFor(path)
		if err != nil {
			return nil, err
		}
		loader.AddSource(source)
	}
	loader.AddSource(feeders.NewEnvFeeder(EnvPrefix))
	return loader.Load()
}

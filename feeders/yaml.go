package feeders

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the whole file into target.
func (y YamlFeeder) Feed(target any) error {
	data, err := readFile(y.Path, "yaml")
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse yaml file %s: %w", y.Path, err)
	}
	return nil
}

// FeedKey decodes only the value stored under a top-level key. A missing key
// leaves target untouched.
func (y YamlFeeder) FeedKey(key string, target any) error {
	var all map[string]yaml.Node
	if err := y.Feed(&all); err != nil {
		return err
	}
	node, ok := all[key]
	if !ok {
		return nil
	}
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("failed to decode yaml key %q: %w", key, err)
	}
	return nil
}

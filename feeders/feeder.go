// Package feeders provides configuration feeders that populate structs from
// YAML, TOML and JSON files and from environment variables.
package feeders

import (
	"fmt"
	"os"
)

// Feeder populates target, which must be a pointer to a struct.
type Feeder interface {
	Feed(target any) error
}

// readFile loads a config file, tagging errors with the format name.
func readFile(path, format string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file %s: %w", format, path, err)
	}
	return data, nil
}

package feeders

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONFeeder is a feeder that reads JSON files
type JSONFeeder struct {
	Path string
	// Strict rejects fields that target does not declare.
	Strict bool
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

func (j JSONFeeder) Feed(target any) error {
	data, err := readFile(j.Path, "json")
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if j.Strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to parse json file %s: %w", j.Path, err)
	}
	return nil
}

package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the file into target. Keys present in the file but unknown to
// target are reported as an error so typos do not pass silently.
func (t TomlFeeder) Feed(target any) error {
	data, err := readFile(t.Path, "toml")
	if err != nil {
		return err
	}
	md, err := toml.Decode(string(data), target)
	if err != nil {
		return fmt.Errorf("failed to parse toml file %s: %w", t.Path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w in %s: %v", ErrUnknownKeys, t.Path, undecoded)
	}
	return nil
}

package feeders

import (
	"errors"
	"fmt"
)

var (
	ErrEnvInvalidStructure = errors.New("env: expected pointer to struct")
	ErrFieldCannotBeSet    = errors.New("field cannot be set")
	ErrCannotConvert       = errors.New("cannot convert value to field type")
	ErrUnsupportedField    = errors.New("unsupported field type")
	ErrUnknownKeys         = errors.New("unknown configuration keys")
)

func wrapConvertError(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCannotConvert, name, err)
}

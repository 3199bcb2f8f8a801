package feeders

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// EnvFeeder is a feeder that reads environment variables named by `env`
// struct tags. Nested structs carrying an `env` tag extend the prefix, so
// with prefix MODLOADER a field tagged `env:"LEVEL"` inside a struct tagged
// `env:"LOG"` reads MODLOADER_LOG_LEVEL.
type EnvFeeder struct {
	Prefix string
	// Lookup replaces os.LookupEnv, mostly for tests.
	Lookup func(key string) (string, bool)
}

// NewEnvFeeder creates a new EnvFeeder with the given variable prefix
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix}
}

// Feed reads environment variables and populates the provided structure
func (f EnvFeeder) Feed(structure any) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrEnvInvalidStructure, structure)
	}
	lookup := f.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return f.fillStruct(rv.Elem(), strings.ToUpper(f.Prefix), lookup)
}

func (f EnvFeeder) fillStruct(rv reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		fieldType := rt.Field(i)
		if !fieldType.IsExported() {
			continue
		}
		tag, hasTag := fieldType.Tag.Lookup("env")
		if tag == "-" {
			continue
		}
		field := rv.Field(i)
		name := joinEnvName(prefix, strings.ToUpper(tag))

		if field.Kind() == reflect.Struct && !isTextField(field) {
			if !hasTag {
				name = prefix
			}
			if err := f.fillStruct(field, name, lookup); err != nil {
				return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
			}
			continue
		}
		if !hasTag {
			continue
		}
		value, ok := lookup(name)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, name, value); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func joinEnvName(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

func isTextField(field reflect.Value) bool {
	if !field.CanAddr() {
		return false
	}
	_, ok := field.Addr().Interface().(encoding.TextUnmarshaler)
	return ok
}

// setFieldValue converts and sets a field value
func setFieldValue(field reflect.Value, name, raw string) error {
	if !field.CanSet() {
		return fmt.Errorf("%w: %s", ErrFieldCannotBeSet, name)
	}
	if isTextField(field) {
		if err := field.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
			return wrapConvertError(name, err)
		}
		return nil
	}

	switch field.Kind() {
	case reflect.Slice:
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			elem, err := cast.FromType(strings.TrimSpace(part), field.Type().Elem())
			if err != nil {
				return wrapConvertError(name, err)
			}
			slice = reflect.Append(slice, reflect.ValueOf(elem).Convert(field.Type().Elem()))
		}
		field.Set(slice)
	case reflect.Map, reflect.Pointer, reflect.Interface, reflect.Chan, reflect.Func:
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedField, name, field.Type())
	default:
		converted, err := cast.FromType(raw, field.Type())
		if err != nil {
			return wrapConvertError(name, err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	}
	return nil
}

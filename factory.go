package modloader

import (
	"context"
	"fmt"
	"reflect"
)

// Provide adapts a typed factory with no dependencies.
func Provide[T any](fn func(ctx context.Context) (T, error)) Factory {
	return func(ctx context.Context, deps []any) (any, error) {
		if err := expectDependencies(deps, 0); err != nil {
			return nil, err
		}
		return fn(ctx)
	}
}

// Provide1 adapts a typed factory with one dependency. The dependency
// instance must be assignable to D1 or construction fails with
// ErrDependencyTypeMismatch.
func Provide1[D1, T any](fn func(ctx context.Context, d1 D1) (T, error)) Factory {
	return func(ctx context.Context, deps []any) (any, error) {
		if err := expectDependencies(deps, 1); err != nil {
			return nil, err
		}
		d1, err := dependencyAs[D1](deps, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, d1)
	}
}

// Provide2 adapts a typed factory with two dependencies.
func Provide2[D1, D2, T any](fn func(ctx context.Context, d1 D1, d2 D2) (T, error)) Factory {
	return func(ctx context.Context, deps []any) (any, error) {
		if err := expectDependencies(deps, 2); err != nil {
			return nil, err
		}
		d1, err := dependencyAs[D1](deps, 0)
		if err != nil {
			return nil, err
		}
		d2, err := dependencyAs[D2](deps, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, d1, d2)
	}
}

// Provide3 adapts a typed factory with three dependencies.
func Provide3[D1, D2, D3, T any](fn func(ctx context.Context, d1 D1, d2 D2, d3 D3) (T, error)) Factory {
	return func(ctx context.Context, deps []any) (any, error) {
		if err := expectDependencies(deps, 3); err != nil {
			return nil, err
		}
		d1, err := dependencyAs[D1](deps, 0)
		if err != nil {
			return nil, err
		}
		d2, err := dependencyAs[D2](deps, 1)
		if err != nil {
			return nil, err
		}
		d3, err := dependencyAs[D3](deps, 2)
		if err != nil {
			return nil, err
		}
		return fn(ctx, d1, d2, d3)
	}
}

// Provide4 adapts a typed factory with four dependencies.
func Provide4[D1, D2, D3, D4, T any](fn func(ctx context.Context, d1 D1, d2 D2, d3 D3, d4 D4) (T, error)) Factory {
	return func(ctx context.Context, deps []any) (any, error) {
		if err := expectDependencies(deps, 4); err != nil {
			return nil, err
		}
		d1, err := dependencyAs[D1](deps, 0)
		if err != nil {
			return nil, err
		}
		d2, err := dependencyAs[D2](deps, 1)
		if err != nil {
			return nil, err
		}
		d3, err := dependencyAs[D3](deps, 2)
		if err != nil {
			return nil, err
		}
		d4, err := dependencyAs[D4](deps, 3)
		if err != nil {
			return nil, err
		}
		return fn(ctx, d1, d2, d3, d4)
	}
}

// Get loads name and asserts the instance to T.
func Get[T any](ctx context.Context, r *Registry, name string) (T, error) {
	var zero T
	instance, err := r.Load(ctx, name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %s", ErrInstanceTypeMismatch, name, instance, reflect.TypeFor[T]())
	}
	return typed, nil
}

func expectDependencies(deps []any, n int) error {
	if len(deps) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrDependencyCount, len(deps), n)
	}
	return nil
}

func dependencyAs[D any](deps []any, i int) (D, error) {
	typed, ok := deps[i].(D)
	if !ok {
		var zero D
		return zero, fmt.Errorf("%w: dependency %d is %T, want %s", ErrDependencyTypeMismatch, i, deps[i], reflect.TypeFor[D]())
	}
	return typed, nil
}

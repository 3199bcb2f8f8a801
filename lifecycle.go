package modloader

import (
	"context"
	"fmt"
	"time"
)

// invoke runs fn, converting panics into errors. With a positive timeout fn
// runs on its own goroutine and invoke returns context.DeadlineExceeded once
// the deadline passes, even if fn ignores its context. Results produced
// after the deadline are discarded. In that case settled is closed when fn
// finally returns; it is nil whenever fn has already returned.
func invoke[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (val T, settled <-chan struct{}, err error) {
	if timeout <= 0 {
		val, err = protect(ctx, fn)
		return val, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		val, err := protect(ctx, fn)
		done <- result{val: val, err: err}
	}()

	select {
	case res := <-done:
		return res.val, nil, res.err
	case <-ctx.Done():
		var zero T
		return zero, returned, ctx.Err()
	}
}

func protect[T any](ctx context.Context, fn func(context.Context) (T, error)) (val T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanicked, p)
		}
	}()
	return fn(ctx)
}

// runInit calls whichever Init shape the instance exposes. Instances with
// no Init are treated as already initialized.
func runInit(ctx context.Context, instance any) error {
	switch m := instance.(type) {
	case Initializable:
		return m.Init(ctx)
	case initializer:
		return m.Init()
	case simpleInitializer:
		m.Init()
	}
	return nil
}

// runCleanup calls whichever Cleanup shape the instance exposes.
func runCleanup(instance any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanicked, p)
		}
	}()
	switch m := instance.(type) {
	case Cleanable:
		m.Cleanup()
	case cleanerWithError:
		return m.Cleanup()
	}
	return nil
}

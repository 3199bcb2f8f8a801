package modloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trace records lifecycle steps across modules in the order they happen.
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

type tracedModule struct {
	name      string
	trace     *trace
	initErr   error
	initCalls atomic.Int32
	cleanups  atomic.Int32
}

func (m *tracedModule) Init(ctx context.Context) error {
	m.initCalls.Add(1)
	if m.trace != nil {
		m.trace.add("init:" + m.name)
	}
	return m.initErr
}

func (m *tracedModule) Cleanup() {
	m.cleanups.Add(1)
}

// tracedFactory returns a factory that records its construction and counts calls.
func tracedFactory(name string, tr *trace, calls *atomic.Int32) Factory {
	return func(ctx context.Context, deps []any) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		if tr != nil {
			tr.add("construct:" + name)
		}
		return &tracedModule{name: name, trace: tr}, nil
	}
}

func staticFactory(v any) Factory {
	return func(ctx context.Context, deps []any) (any, error) { return v, nil }
}

func failingFactory(err error) Factory {
	return func(ctx context.Context, deps []any) (any, error) { return nil, err }
}

func TestDefine(t *testing.T) {
	t.Run("returns the registered name", func(t *testing.T) {
		r := NewRegistry()
		name, err := r.Define("state", staticFactory(1))
		require.NoError(t, err)
		assert.Equal(t, "state", name)
		assert.True(t, r.Has("state"))
		assert.Equal(t, []string{"state"}, r.Names())
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("  ", staticFactory(1))
		assert.ErrorIs(t, err, ErrInvalidModuleName)
	})

	t.Run("rejects a nil factory", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("state", nil)
		assert.ErrorIs(t, err, ErrNilFactory)
		assert.False(t, r.Has("state"))
	})

	t.Run("rejects an empty dependency name", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("upload", staticFactory(1), "state", "")
		assert.ErrorIs(t, err, ErrInvalidModuleName)
	})

	t.Run("accepts dependencies that are not defined yet", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("upload", staticFactory(1), "state")
		require.NoError(t, err)
		_, err = r.Define("state", staticFactory(2))
		require.NoError(t, err)

		instance, err := r.Load(context.Background(), "upload")
		require.NoError(t, err)
		assert.Equal(t, 1, instance)
	})
}

func TestCircularDependencyDetection(t *testing.T) {
	t.Run("two modules", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("A", staticFactory("a"), "B")
		require.NoError(t, err)

		_, err = r.Define("B", staticFactory("b"), "A")
		require.Error(t, err)
		assert.True(t, IsErrCircularDependency(err))

		var cycleErr *CircularDependencyError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"B", "A", "B"}, cycleErr.Path)
		assert.Contains(t, err.Error(), "A")
		assert.Contains(t, err.Error(), "B")
		assert.Contains(t, err.Error(), "B -> A -> B")

		assert.False(t, r.Has("B"), "rejected definition must not be registered")
	})

	t.Run("three hop cycle", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("A", staticFactory("a"), "B")
		require.NoError(t, err)
		_, err = r.Define("B", staticFactory("b"), "C")
		require.NoError(t, err)

		_, err = r.Define("C", staticFactory("c"), "A")
		var cycleErr *CircularDependencyError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"C", "A", "B", "C"}, cycleErr.Path)
		assert.Contains(t, err.Error(), "C -> A -> B -> C")
	})

	t.Run("self dependency", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("A", staticFactory("a"), "A")
		assert.ErrorIs(t, err, ErrSelfDependency)
		assert.ErrorIs(t, err, ErrCircularDependency)
		assert.False(t, r.Has("A"))
	})

	t.Run("redefinition that closes a cycle keeps the previous definition", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("A", staticFactory("a"), "B")
		require.NoError(t, err)
		_, err = r.Define("B", staticFactory("b"))
		require.NoError(t, err)

		_, err = r.Define("B", staticFactory("b2"), "A")
		require.ErrorIs(t, err, ErrCircularDependency)

		instance, err := r.Load(context.Background(), "B")
		require.NoError(t, err)
		assert.Equal(t, "b", instance)
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("base", staticFactory(0))
		require.NoError(t, err)
		_, err = r.Define("left", staticFactory(1), "base")
		require.NoError(t, err)
		_, err = r.Define("right", staticFactory(2), "base")
		require.NoError(t, err)
		_, err = r.Define("top", staticFactory(3), "left", "right")
		require.NoError(t, err)
	})
}

func TestLoadMemoization(t *testing.T) {
	t.Run("sequential loads construct once", func(t *testing.T) {
		r := NewRegistry()
		var calls atomic.Int32
		_, err := r.Define("M", tracedFactory("M", nil, &calls))
		require.NoError(t, err)

		first, err := r.Load(context.Background(), "M")
		require.NoError(t, err)
		second, err := r.Load(context.Background(), "M")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("concurrent loads share one construction", func(t *testing.T) {
		r := NewRegistry()
		var calls atomic.Int32
		release := make(chan struct{})
		_, err := r.Define("M", func(ctx context.Context, deps []any) (any, error) {
			calls.Add(1)
			<-release
			return &tracedModule{name: "M"}, nil
		})
		require.NoError(t, err)

		const callers = 8
		results := make([]any, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				instance, err := r.Load(context.Background(), "M")
				assert.NoError(t, err)
				results[i] = instance
			}()
		}

		require.Eventually(t, func() bool { return r.Info().Loading == 1 }, time.Second, time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, instance := range results {
			assert.Same(t, results[0], instance)
		}
	})

	t.Run("dependencies are shared between dependents", func(t *testing.T) {
		r := NewRegistry()
		var calls atomic.Int32
		_, err := r.Define("state", tracedFactory("state", nil, &calls))
		require.NoError(t, err)
		_, err = r.Define("upload", func(ctx context.Context, deps []any) (any, error) { return deps[0], nil }, "state")
		require.NoError(t, err)
		_, err = r.Define("slides", func(ctx context.Context, deps []any) (any, error) { return deps[0], nil }, "state")
		require.NoError(t, err)

		instances, err := r.LoadMany(context.Background(), "upload", "slides")
		require.NoError(t, err)
		assert.Same(t, instances[0], instances[1])
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled caller does not abort the shared construction", func(t *testing.T) {
		r := NewRegistry()
		var calls atomic.Int32
		release := make(chan struct{})
		_, err := r.Define("M", func(ctx context.Context, deps []any) (any, error) {
			calls.Add(1)
			<-release
			return "ready", nil
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := r.Load(ctx, "M")
			done <- err
		}()
		require.Eventually(t, func() bool { return r.Info().Loading == 1 }, time.Second, time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)

		close(release)
		require.Eventually(t, func() bool { return r.Info().Loaded == 1 }, time.Second, time.Millisecond)
		instance, err := r.Load(context.Background(), "M")
		require.NoError(t, err)
		assert.Equal(t, "ready", instance)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestLoadPassesDependenciesInDeclaredOrder(t *testing.T) {
	r := NewRegistry()
	_, err := r.Define("first", staticFactory("1"))
	require.NoError(t, err)
	_, err = r.Define("second", staticFactory("2"))
	require.NoError(t, err)

	var got []any
	_, err = r.Define("consumer", func(ctx context.Context, deps []any) (any, error) {
		got = deps
		return "consumer", nil
	}, "second", "first")
	require.NoError(t, err)

	_, err = r.Load(context.Background(), "consumer")
	require.NoError(t, err)
	assert.Equal(t, []any{"2", "1"}, got)
}

func TestLoadErrors(t *testing.T) {
	t.Run("unknown module", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Load(context.Background(), "nope")
		var notFound *ModuleNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "nope", notFound.Name)
		assert.True(t, IsErrModuleNotFound(err))
	})

	t.Run("missing dependency names the missing module", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("X", staticFactory("x"), "Y")
		require.NoError(t, err)

		_, err = r.Load(context.Background(), "X")
		var notFound *ModuleNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "Y", notFound.Name)
		assert.Equal(t, "X", notFound.RequiredBy)

		var depErr *DependencyLoadError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, []string{"X", "Y"}, depErr.Chain)
		assert.Equal(t, "X", depErr.Module())
		assert.Contains(t, err.Error(), "dependency load failed (X -> Y)")
	})

	t.Run("construction failure is wrapped with the module name", func(t *testing.T) {
		r := NewRegistry()
		boom := errors.New("boom")
		_, err := r.Define("M", failingFactory(boom))
		require.NoError(t, err)

		_, err = r.Load(context.Background(), "M")
		var constructErr *ModuleConstructionError
		require.ErrorAs(t, err, &constructErr)
		assert.Equal(t, "M", constructErr.Module)
		assert.ErrorIs(t, err, boom)
		assert.EqualError(t, err, "module construction failed (M): boom")
	})

	t.Run("nested failures report the whole chain", func(t *testing.T) {
		r := NewRegistry()
		boom := errors.New("boom")
		_, err := r.Define("A", staticFactory("a"), "B")
		require.NoError(t, err)
		_, err = r.Define("B", staticFactory("b"), "C")
		require.NoError(t, err)
		_, err = r.Define("C", failingFactory(boom))
		require.NoError(t, err)

		_, err = r.Load(context.Background(), "A")
		require.Error(t, err)
		assert.EqualError(t, err, "dependency load failed (A -> B -> C): module construction failed (C): boom")
		assert.ErrorIs(t, err, ErrDependencyLoad)
		assert.ErrorIs(t, err, ErrModuleConstruction)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("failed construction is not memoized", func(t *testing.T) {
		r := NewRegistry()
		var attempts atomic.Int32
		_, err := r.Define("flaky", func(ctx context.Context, deps []any) (any, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("first attempt fails")
			}
			return "ok", nil
		})
		require.NoError(t, err)

		_, err = r.Load(context.Background(), "flaky")
		require.Error(t, err)
		instance, err := r.Load(context.Background(), "flaky")
		require.NoError(t, err)
		assert.Equal(t, "ok", instance)
	})

	t.Run("panicking factory", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("M", func(ctx context.Context, deps []any) (any, error) {
			panic("factory exploded")
		})
		require.NoError(t, err)

		_, err = r.Load(context.Background(), "M")
		assert.ErrorIs(t, err, ErrModulePanicked)
		assert.ErrorIs(t, err, ErrModuleConstruction)
	})
}

func TestLoadMany(t *testing.T) {
	t.Run("returns instances in request order", func(t *testing.T) {
		r := NewRegistry()
		for _, name := range []string{"a", "b", "c"} {
			_, err := r.Define(name, staticFactory(name))
			require.NoError(t, err)
		}

		instances, err := r.LoadMany(context.Background(), "c", "a", "b")
		require.NoError(t, err)
		assert.Equal(t, []any{"c", "a", "b"}, instances)
	})

	t.Run("fails when any module fails", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("good", staticFactory("good"))
		require.NoError(t, err)
		_, err = r.Define("bad", failingFactory(errors.New("bad")))
		require.NoError(t, err)

		instances, err := r.LoadMany(context.Background(), "good", "bad")
		assert.Nil(t, instances)
		assert.ErrorIs(t, err, ErrModuleConstruction)
	})

	t.Run("empty request", func(t *testing.T) {
		r := NewRegistry()
		instances, err := r.LoadMany(context.Background())
		require.NoError(t, err)
		assert.Empty(t, instances)
	})
}

func TestLoadAll(t *testing.T) {
	t.Run("constructs and initializes in topological order", func(t *testing.T) {
		r := NewRegistry()
		tr := &trace{}
		_, err := r.Define("A", tracedFactory("A", tr, nil), "B")
		require.NoError(t, err)
		_, err = r.Define("B", tracedFactory("B", tr, nil), "C")
		require.NoError(t, err)
		_, err = r.Define("C", tracedFactory("C", tr, nil))
		require.NoError(t, err)

		require.NoError(t, r.LoadAll(context.Background()))
		assert.Equal(t, []string{
			"construct:C", "construct:B", "construct:A",
			"init:C", "init:B", "init:A",
		}, tr.list())

		info := r.Info()
		assert.Equal(t, 3, info.Loaded)
		assert.Equal(t, 3, info.Initialized)
	})

	t.Run("independent modules keep registration order", func(t *testing.T) {
		r := NewRegistry()
		for _, name := range []string{"zeta", "alpha", "mid"} {
			_, err := r.Define(name, staticFactory(name))
			require.NoError(t, err)
		}
		order, err := r.Order()
		require.NoError(t, err)
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, order)
	})

	t.Run("missing dependency fails before anything is constructed", func(t *testing.T) {
		r := NewRegistry()
		var calls atomic.Int32
		_, err := r.Define("state", tracedFactory("state", nil, &calls))
		require.NoError(t, err)
		_, err = r.Define("upload", staticFactory("upload"), "state", "files")
		require.NoError(t, err)

		err = r.LoadAll(context.Background())
		var notFound *ModuleNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "files", notFound.Name)
		assert.Equal(t, "upload", notFound.RequiredBy)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("init failure aborts without rolling back", func(t *testing.T) {
		r := NewRegistry()
		initFailure := errors.New("worker unavailable")
		base := &tracedModule{name: "base"}
		broken := &tracedModule{name: "broken", initErr: initFailure}
		after := &tracedModule{name: "after"}
		_, err := r.Define("base", staticFactory(base))
		require.NoError(t, err)
		_, err = r.Define("broken", staticFactory(broken), "base")
		require.NoError(t, err)
		_, err = r.Define("after", staticFactory(after), "broken")
		require.NoError(t, err)

		err = r.LoadAll(context.Background())
		var initErr *ModuleInitializationError
		require.ErrorAs(t, err, &initErr)
		assert.Equal(t, "broken", initErr.Module)
		assert.ErrorIs(t, err, initFailure)

		info := r.Info()
		baseInfo, _ := info.Module("base")
		brokenInfo, _ := info.Module("broken")
		afterInfo, _ := info.Module("after")
		assert.True(t, baseInfo.Initialized)
		assert.True(t, brokenInfo.Loaded)
		assert.False(t, brokenInfo.Initialized)
		assert.False(t, afterInfo.Initialized)
		assert.Equal(t, int32(0), after.initCalls.Load())
		assert.Equal(t, int32(0), base.cleanups.Load())
	})
}

func TestInitialize(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		r := NewRegistry()
		module := &tracedModule{name: "M"}
		_, err := r.Define("M", staticFactory(module))
		require.NoError(t, err)

		first, err := r.Initialize(context.Background(), "M")
		require.NoError(t, err)
		second, err := r.Initialize(context.Background(), "M")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), module.initCalls.Load())
	})

	t.Run("concurrent calls run Init once", func(t *testing.T) {
		r := NewRegistry()
		module := &tracedModule{name: "M"}
		_, err := r.Define("M", staticFactory(module))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Initialize(context.Background(), "M")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), module.initCalls.Load())
	})

	t.Run("initializes dependencies first", func(t *testing.T) {
		r := NewRegistry()
		tr := &trace{}
		_, err := r.Define("upload", tracedFactory("upload", tr, nil), "state", "logger")
		require.NoError(t, err)
		_, err = r.Define("state", tracedFactory("state", tr, nil))
		require.NoError(t, err)
		_, err = r.Define("logger", tracedFactory("logger", tr, nil))
		require.NoError(t, err)

		_, err = r.Initialize(context.Background(), "upload")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"construct:state", "construct:logger", "construct:upload",
			"init:state", "init:logger", "init:upload",
		}, tr.list())
	})

	t.Run("accepts every Init shape", func(t *testing.T) {
		r := NewRegistry()
		plain := &plainInitModule{}
		withErr := &errInitModule{err: errors.New("nope")}
		_, err := r.Define("plain", staticFactory(plain))
		require.NoError(t, err)
		_, err = r.Define("withErr", staticFactory(withErr))
		require.NoError(t, err)
		_, err = r.Define("none", staticFactory(map[string]any{}))
		require.NoError(t, err)

		_, err = r.Initialize(context.Background(), "plain")
		require.NoError(t, err)
		assert.Equal(t, 1, plain.calls)

		_, err = r.Initialize(context.Background(), "withErr")
		assert.ErrorIs(t, err, ErrModuleInitialization)

		_, err = r.Initialize(context.Background(), "none")
		require.NoError(t, err)
	})

	t.Run("unknown module", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Initialize(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrModuleNotFound)
	})
}

type plainInitModule struct{ calls int }

func (m *plainInitModule) Init() { m.calls++ }

type errInitModule struct{ err error }

func (m *errInitModule) Init() error { return m.err }

type errCleanupModule struct{ err error }

func (m *errCleanupModule) Cleanup() error { return m.err }

func TestUnload(t *testing.T) {
	t.Run("resets lifecycle and rebuilds on next load", func(t *testing.T) {
		r := NewRegistry()
		var calls atomic.Int32
		var last *tracedModule
		_, err := r.Define("M", func(ctx context.Context, deps []any) (any, error) {
			calls.Add(1)
			last = &tracedModule{name: "M"}
			return last, nil
		})
		require.NoError(t, err)

		_, err = r.Initialize(context.Background(), "M")
		require.NoError(t, err)
		first := last

		require.NoError(t, r.Unload("M"))
		assert.Equal(t, int32(1), first.cleanups.Load())

		info, ok := r.Info().Module("M")
		require.True(t, ok)
		assert.False(t, info.Loaded)
		assert.False(t, info.Initialized)
		assert.Equal(t, StateUnloaded, info.State)

		second, err := r.Load(context.Background(), "M")
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
		assert.NotSame(t, first, second)
	})

	t.Run("unknown module", func(t *testing.T) {
		r := NewRegistry()
		err := r.Unload("ghost")
		assert.ErrorIs(t, err, ErrModuleNotFound)
	})

	t.Run("module that was never loaded", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("M", staticFactory("m"))
		require.NoError(t, err)
		require.NoError(t, r.Unload("M"))

		info, _ := r.Info().Module("M")
		assert.Equal(t, StateRegistered, info.State)
	})

	t.Run("cleanup error is reported after state is reset", func(t *testing.T) {
		r := NewRegistry()
		cleanupFailure := errors.New("handle still open")
		_, err := r.Define("M", staticFactory(&errCleanupModule{err: cleanupFailure}))
		require.NoError(t, err)
		_, err = r.Load(context.Background(), "M")
		require.NoError(t, err)

		err = r.Unload("M")
		assert.ErrorIs(t, err, ErrModuleCleanup)
		assert.ErrorIs(t, err, cleanupFailure)
		assert.Equal(t, 0, r.Info().Loaded)
	})

	t.Run("redefinition takes effect after unload", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("M", staticFactory("v1"))
		require.NoError(t, err)
		instance, err := r.Load(context.Background(), "M")
		require.NoError(t, err)
		assert.Equal(t, "v1", instance)

		_, err = r.Define("M", staticFactory("v2"))
		require.NoError(t, err)
		instance, err = r.Load(context.Background(), "M")
		require.NoError(t, err)
		assert.Equal(t, "v1", instance, "redefinition must not invalidate a loaded instance")

		require.NoError(t, r.Unload("M"))
		instance, err = r.Load(context.Background(), "M")
		require.NoError(t, err)
		assert.Equal(t, "v2", instance)
	})
}

func TestReload(t *testing.T) {
	t.Run("rebuilds and initializes a fresh instance", func(t *testing.T) {
		r := NewRegistry()
		var calls atomic.Int32
		_, err := r.Define("M", tracedFactory("M", nil, &calls))
		require.NoError(t, err)
		first, err := r.Initialize(context.Background(), "M")
		require.NoError(t, err)

		second, err := r.Reload(context.Background(), "M")
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, int32(1), first.(*tracedModule).cleanups.Load())
		assert.Equal(t, int32(1), second.(*tracedModule).initCalls.Load())

		info, _ := r.Info().Module("M")
		assert.Equal(t, StateInitialized, info.State)
	})

	t.Run("unknown module", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Reload(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrModuleNotFound)
	})

	t.Run("cleanup error is returned with the new instance", func(t *testing.T) {
		r := NewRegistry()
		cleanupFailure := errors.New("handle still open")
		_, err := r.Define("M", func(ctx context.Context, deps []any) (any, error) {
			return &errCleanupModule{err: cleanupFailure}, nil
		})
		require.NoError(t, err)
		_, err = r.Load(context.Background(), "M")
		require.NoError(t, err)

		instance, err := r.Reload(context.Background(), "M")
		assert.ErrorIs(t, err, cleanupFailure)
		assert.NotNil(t, instance)
		assert.Equal(t, 1, r.Info().Initialized)
	})

	t.Run("factory failure leaves the module unloaded", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("M", staticFactory("v1"))
		require.NoError(t, err)
		_, err = r.Load(context.Background(), "M")
		require.NoError(t, err)
		_, err = r.Define("M", failingFactory(errors.New("boom")))
		require.NoError(t, err)

		_, err = r.Reload(context.Background(), "M")
		var constructErr *ModuleConstructionError
		assert.ErrorAs(t, err, &constructErr)
		info, _ := r.Info().Module("M")
		assert.False(t, info.Loaded)
	})
}

func TestDuplicatePolicy(t *testing.T) {
	t.Run("overwrite is silent", func(t *testing.T) {
		logger := &testLogger{}
		r := NewRegistry(WithLogger(logger))
		_, err := r.Define("M", staticFactory(1))
		require.NoError(t, err)
		_, err = r.Define("M", staticFactory(2))
		require.NoError(t, err)
		assert.Equal(t, 0, logger.count("warn"))
		assert.Equal(t, []string{"M"}, r.Names())
	})

	t.Run("warn logs the redefinition", func(t *testing.T) {
		logger := &testLogger{}
		r := NewRegistry(WithLogger(logger), WithDuplicatePolicy(DuplicateWarn))
		_, err := r.Define("M", staticFactory(1))
		require.NoError(t, err)
		_, err = r.Define("M", staticFactory(2))
		require.NoError(t, err)
		assert.Equal(t, 1, logger.count("warn"))

		instance, err := r.Load(context.Background(), "M")
		require.NoError(t, err)
		assert.Equal(t, 2, instance)
	})

	t.Run("loaded instance keeps the dependencies it was built with", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("B", staticFactory("b"))
		require.NoError(t, err)
		_, err = r.Define("A", staticFactory("a"), "B")
		require.NoError(t, err)
		_, err = r.Load(context.Background(), "A")
		require.NoError(t, err)

		_, err = r.Define("A", staticFactory("a2"), "missing")
		require.NoError(t, err)

		instance, err := r.Initialize(context.Background(), "A")
		require.NoError(t, err)
		assert.Equal(t, "a", instance)
		info := r.Info()
		a, _ := info.Module("A")
		assert.True(t, a.Initialized)
		b, _ := info.Module("B")
		assert.True(t, b.Initialized)

		require.NoError(t, r.Unload("A"))
		_, err = r.Initialize(context.Background(), "A")
		assert.ErrorIs(t, err, ErrModuleNotFound)
		assert.ErrorContains(t, err, "missing")
	})

	t.Run("reject refuses the second definition", func(t *testing.T) {
		r := NewRegistry(WithDuplicatePolicy(DuplicateReject))
		_, err := r.Define("M", staticFactory(1))
		require.NoError(t, err)
		_, err = r.Define("M", staticFactory(2))
		assert.ErrorIs(t, err, ErrModuleAlreadyDefined)

		instance, err := r.Load(context.Background(), "M")
		require.NoError(t, err)
		assert.Equal(t, 1, instance)
	})

	t.Run("parse", func(t *testing.T) {
		for in, want := range map[string]DuplicatePolicy{
			"":          DuplicateOverwrite,
			"overwrite": DuplicateOverwrite,
			"WARN":      DuplicateWarn,
			"reject":    DuplicateReject,
			"error":     DuplicateReject,
		} {
			got, err := ParseDuplicatePolicy(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got, in)
		}
		_, err := ParseDuplicatePolicy("sometimes")
		assert.ErrorIs(t, err, ErrUnknownDuplicatePolicy)
		assert.Equal(t, "warn", DuplicateWarn.String())
	})
}

func TestTimeouts(t *testing.T) {
	t.Run("load timeout", func(t *testing.T) {
		r := NewRegistry(WithLoadTimeout(20 * time.Millisecond))
		hang := make(chan struct{})
		t.Cleanup(func() { close(hang) })
		_, err := r.Define("slow", func(ctx context.Context, deps []any) (any, error) {
			<-hang
			return "late", nil
		})
		require.NoError(t, err)

		_, err = r.Load(context.Background(), "slow")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, ErrModuleConstruction)
		assert.Equal(t, 0, r.Info().Loaded)
	})

	t.Run("init timeout", func(t *testing.T) {
		r := NewRegistry(WithInitTimeout(20 * time.Millisecond))
		_, err := r.Define("slow", staticFactory(&ctxInitModule{}))
		require.NoError(t, err)

		_, err = r.Initialize(context.Background(), "slow")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, ErrModuleInitialization)
	})

	t.Run("timed-out factory blocks a second construction until it returns", func(t *testing.T) {
		r := NewRegistry(WithLoadTimeout(20 * time.Millisecond))
		release := make(chan struct{})
		var calls, running, maxRunning atomic.Int32
		_, err := r.Define("slow", func(ctx context.Context, deps []any) (any, error) {
			calls.Add(1)
			n := running.Add(1)
			defer running.Add(-1)
			if n > maxRunning.Load() {
				maxRunning.Store(n)
			}
			<-release
			return "built", nil
		})
		require.NoError(t, err)

		_, err = r.Load(context.Background(), "slow")
		require.ErrorIs(t, err, context.DeadlineExceeded)

		_, err = r.Load(context.Background(), "slow")
		assert.ErrorIs(t, err, ErrStillRunning)
		assert.ErrorIs(t, err, ErrModuleConstruction)
		assert.Equal(t, int32(1), calls.Load())
		info, _ := r.Info().Module("slow")
		assert.Equal(t, StateLoading, info.State)

		close(release)
		require.Eventually(t, func() bool {
			_, err := r.Load(context.Background(), "slow")
			return err == nil
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, int32(1), maxRunning.Load())
	})

	t.Run("timed-out init is not run twice at once", func(t *testing.T) {
		r := NewRegistry(WithInitTimeout(20 * time.Millisecond))
		module := &blockingInitModule{release: make(chan struct{})}
		_, err := r.Define("slow", staticFactory(module))
		require.NoError(t, err)

		_, err = r.Initialize(context.Background(), "slow")
		require.ErrorIs(t, err, context.DeadlineExceeded)

		_, err = r.Initialize(context.Background(), "slow")
		assert.ErrorIs(t, err, ErrStillRunning)
		assert.ErrorIs(t, err, ErrModuleInitialization)
		assert.Equal(t, int32(1), module.calls.Load())
		info, _ := r.Info().Module("slow")
		assert.False(t, info.Initialized)

		close(module.release)
		require.Eventually(t, func() bool {
			_, err := r.Initialize(context.Background(), "slow")
			return err == nil
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(2), module.calls.Load())
		assert.Equal(t, int32(1), module.maxRunning.Load())
	})

	t.Run("no timeout by default", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Define("slowish", func(ctx context.Context, deps []any) (any, error) {
			_, hasDeadline := ctx.Deadline()
			assert.False(t, hasDeadline)
			time.Sleep(10 * time.Millisecond)
			return "done", nil
		})
		require.NoError(t, err)
		instance, err := r.Load(context.Background(), "slowish")
		require.NoError(t, err)
		assert.Equal(t, "done", instance)
	})
}

// blockingInitModule ignores its context and blocks in Init until released.
type blockingInitModule struct {
	release    chan struct{}
	calls      atomic.Int32
	running    atomic.Int32
	maxRunning atomic.Int32
}

func (m *blockingInitModule) Init() error {
	m.calls.Add(1)
	n := m.running.Add(1)
	defer m.running.Add(-1)
	if n > m.maxRunning.Load() {
		m.maxRunning.Store(n)
	}
	<-m.release
	return nil
}

// ctxInitModule blocks in Init until its context is done.
type ctxInitModule struct{}

func (m *ctxInitModule) Init(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestInfo(t *testing.T) {
	r := NewRegistry()
	_, err := r.Define("state", staticFactory(&tracedModule{name: "state"}))
	require.NoError(t, err)
	_, err = r.Define("upload", staticFactory(&tracedModule{name: "upload"}), "state")
	require.NoError(t, err)

	info := r.Info()
	assert.Equal(t, 2, info.Registered)
	assert.Equal(t, 0, info.Loaded)
	assert.Equal(t, 0, info.Loading)
	require.Len(t, info.Modules, 2)
	assert.Equal(t, ModuleInfo{Name: "state", Dependencies: []string{}, State: StateRegistered}, info.Modules[0])
	assert.Equal(t, []string{"state"}, info.Modules[1].Dependencies)

	_, err = r.Load(context.Background(), "state")
	require.NoError(t, err)
	info = r.Info()
	assert.Equal(t, 1, info.Loaded)
	stateInfo, _ := info.Module("state")
	assert.Equal(t, StateLoaded, stateInfo.State)

	info.Modules[1].Dependencies[0] = "mutated"
	fresh, _ := r.Info().Module("upload")
	assert.Equal(t, []string{"state"}, fresh.Dependencies, "snapshot must not alias registry state")

	_, ok := info.Module("missing")
	assert.False(t, ok)
}

type storeModule struct{ data map[string]any }

type logModule struct{ log func(string) }

type uploadModule struct{ initCalls *int }

func (m *uploadModule) Init() { *m.initCalls++ }

func TestEndToEndLoadAll(t *testing.T) {
	r := NewRegistry()
	initCalls := 0

	_, err := r.Define("StateStore", staticFactory(&storeModule{data: map[string]any{}}))
	require.NoError(t, err)
	_, err = r.Define("Logger", staticFactory(&logModule{log: func(string) {}}))
	require.NoError(t, err)
	_, err = r.Define("UploadManager", func(ctx context.Context, deps []any) (any, error) {
		return &uploadModule{initCalls: &initCalls}, nil
	}, "StateStore", "Logger")
	require.NoError(t, err)

	require.NoError(t, r.LoadAll(context.Background()))

	info := r.Info()
	assert.Equal(t, 3, info.Loaded)
	upload, ok := info.Module("UploadManager")
	require.True(t, ok)
	assert.True(t, upload.Initialized)
	assert.Equal(t, 1, initCalls)
}

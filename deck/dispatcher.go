package deck

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/modloader"
)

// Task is one unit of work handed to a HandlerFunc.
type Task struct {
	ID      string
	Type    string
	Payload any

	progress ProgressFunc
}

// Report forwards progress to the caller, if it asked for it.
func (t *Task) Report(done, total int64) {
	if t.progress != nil {
		t.progress(done, total)
	}
}

// HandlerFunc executes a task.
type HandlerFunc func(ctx context.Context, task *Task) (any, error)

// DispatchOption configures a single Dispatch call.
type DispatchOption func(*Task)

// WithProgress receives the task's progress reports.
func WithProgress(fn ProgressFunc) DispatchOption {
	return func(t *Task) { t.progress = fn }
}

type job struct {
	ctx    context.Context
	task   *Task
	result chan taskResult
}

type taskResult struct {
	value any
	err   error
}

// Pool is a Dispatcher backed by a fixed set of worker goroutines. When the
// pool has no workers, has not been started, or is stopping, tasks run
// synchronously on the caller's goroutine.
type Pool struct {
	workerCount int
	queueSize   int
	logger      modloader.Logger

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	mu       sync.RWMutex
	queue    chan job
	stopping chan struct{}
	stopOnce *sync.Once
	group    *errgroup.Group
	started  bool
}

// PoolOption defines a function that can configure a pool
type PoolOption func(*Pool)

// WithWorkerCount sets the number of workers. Zero disables background execution.
func WithWorkerCount(count int) PoolOption {
	return func(p *Pool) {
		if count >= 0 {
			p.workerCount = count
		}
	}
}

// WithQueueSize sets the job queue size
func WithQueueSize(size int) PoolOption {
	return func(p *Pool) {
		if size >= 0 {
			p.queueSize = size
		}
	}
}

// WithPoolLogger sets the logger
func WithPoolLogger(logger modloader.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a new, unstarted pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		workerCount: 4,
		queueSize:   16,
		logger:      modloader.NopLogger(),
		handlers:    make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle registers the handler for a task type, replacing any earlier one.
func (p *Pool) Handle(taskType string, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, taskType)
	}
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[taskType] = handler
	return nil
}

// Start launches the workers. Starting a started pool is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.workerCount == 0 {
		return
	}

	p.logger.Info("Starting task pool", "workers", p.workerCount, "queueSize", p.queueSize)
	p.queue = make(chan job, p.queueSize)
	p.stopping = make(chan struct{})
	p.stopOnce = new(sync.Once)
	p.group = new(errgroup.Group)
	for i := 0; i < p.workerCount; i++ {
		id := i
		queue := p.queue
		p.group.Go(func() error {
			p.worker(id, queue)
			return nil
		})
	}
	p.started = true
}

// Stop closes the queue and waits for queued tasks to finish, or for ctx.
// Tasks dispatched while stopping run synchronously.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.RLock()
	if !p.started {
		p.mu.RUnlock()
		return nil
	}
	stopping, once := p.stopping, p.stopOnce
	p.mu.RUnlock()

	p.logger.Info("Stopping task pool")
	once.Do(func() { close(stopping) })

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	close(p.queue)
	group := p.group
	p.started = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("Task pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Task pool shutdown timed out")
		return fmt.Errorf("task pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) worker(id int, queue <-chan job) {
	p.logger.Debug("Starting worker", "id", id)
	for j := range queue {
		value, err := p.execute(j.ctx, j.task)
		j.result <- taskResult{value: value, err: err}
	}
	p.logger.Debug("Worker stopping", "id", id)
}

// Dispatch runs the handler registered for taskType and returns its result.
// The caller's ctx bounds both queueing and waiting.
func (p *Pool) Dispatch(ctx context.Context, taskType string, payload any, opts ...DispatchOption) (any, error) {
	p.handlersMu.RLock()
	_, ok := p.handlers[taskType]
	p.handlersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}

	task := &Task{ID: uuid.NewString(), Type: taskType, Payload: payload}
	for _, opt := range opts {
		opt(task)
	}

	j := job{ctx: ctx, task: task, result: make(chan taskResult, 1)}
	queued, err := p.enqueue(ctx, j)
	if err != nil {
		return nil, err
	}
	if !queued {
		p.logger.Debug("Running task synchronously", "task", task.ID, "type", taskType)
		return p.execute(ctx, task)
	}

	select {
	case res := <-j.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue reports false when the task should run synchronously instead.
func (p *Pool) enqueue(ctx context.Context, j job) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		return false, nil
	}
	select {
	case p.queue <- j:
		return true, nil
	case <-p.stopping:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *Pool) execute(ctx context.Context, task *Task) (value any, err error) {
	p.handlersMu.RLock()
	handler := p.handlers[task.Type]
	p.handlersMu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", "task", task.ID, "type", task.Type, "panic", r)
			value, err = nil, fmt.Errorf("%w (%s %s): %v", ErrTaskPanicked, task.Type, task.ID, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return handler(ctx, task)
}

// Synchronous is a Dispatcher that always runs on the caller's goroutine.
func Synchronous() *Pool {
	return NewPool(WithWorkerCount(0))
}

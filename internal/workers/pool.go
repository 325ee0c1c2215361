// Package workers provides the bounded goroutine pool the orchestrator
// fans simulation tasks across.
package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed.
type Task interface {
	Execute() error
}

// TaskFunc is a function that can be used as a Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name            string
	NumWorkers      int
	QueueSize       int
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig returns sensible defaults for CPU-bound simulation
// work: one worker per logical core.
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{
		Name:            name,
		NumWorkers:      runtime.NumCPU(),
		QueueSize:       1024,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Pool manages a fixed set of worker goroutines draining a bounded queue.
type Pool struct {
	logger *zap.Logger
	config PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
}

// NewPool creates a pool; Start must be called before Submit.
func NewPool(logger *zap.Logger, config PoolConfig) *Pool {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	if config.QueueSize < config.NumWorkers {
		config.QueueSize = config.NumWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	p.logger.Debug("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("queueSize", p.config.QueueSize),
	)

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("workerID", id))

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.execute(logger, task)
		}
	}
}

// execute runs one task, converting panics into failures so a bad task
// never takes the process down.
func (p *Pool) execute(logger *zap.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.tasksFailed.Add(1)
			logger.Error("worker recovered from panic", zap.Any("panic", r))
		}
	}()

	if err := task.Execute(); err != nil {
		p.tasksFailed.Add(1)
		logger.Debug("task failed", zap.Error(err))
		return
	}
	p.tasksCompleted.Add(1)
}

// Submit queues a task for execution.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		p.tasksSubmitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitFunc queues a function as a task.
func (p *Pool) SubmitFunc(fn func() error) error {
	return p.Submit(TaskFunc(fn))
}

// Stop drains outstanding workers, waiting up to the shutdown timeout.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug("worker pool stopped", zap.String("name", p.config.Name))
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out",
			zap.String("name", p.config.Name),
			zap.Duration("timeout", p.config.ShutdownTimeout),
		)
		return ErrShutdownTimeout
	}
}

// Stats returns cumulative task counters.
func (p *Pool) Stats() (submitted, completed, failed int64) {
	return p.tasksSubmitted.Load(), p.tasksCompleted.Load(), p.tasksFailed.Load()
}

// PoolError represents a pool error.
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }

// Errors
var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

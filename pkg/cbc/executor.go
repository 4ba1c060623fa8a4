package cbc

import (
	"context"
	"fmt"
	"sync"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
)

// Executor runs blocking work for ExecuteAsync. The caller owns its lifecycle.
type Executor interface {
	Execute(task func()) error
}

// GoExecutor runs every task on its own goroutine.
type GoExecutor struct{}

// Execute implements Executor.
func (GoExecutor) Execute(task func()) error {
	go task()

	return nil
}

// WorkerPool is a fixed-size pool of goroutines draining a task queue.
type WorkerPool struct {
	tasks   chan func()
	workers sync.WaitGroup
	// pending counts accepted tasks that have not finished, including
	// senders still blocked on a full queue.
	pending sync.WaitGroup
	mutex   sync.Mutex
	closed  bool
}

// NewWorkerPool starts a pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = constants.DefaultConcurrencyLimit
	}

	pool := &WorkerPool{
		tasks: make(chan func(), constants.BufferSize),
	}

	for range workers {
		pool.workers.Add(1)

		go func() {
			defer pool.workers.Done()

			for task := range pool.tasks {
				pool.run(task)
			}
		}()
	}

	return pool
}

func (p *WorkerPool) run(task func()) {
	defer p.pending.Done()

	task()
}

// Execute queues a task. It blocks while the queue is full. Tasks may call
// Execute on their own pool; after Close has begun such calls fail with
// ErrExecutorClosed.
func (p *WorkerPool) Execute(task func()) error {
	p.mutex.Lock()

	if p.closed {
		p.mutex.Unlock()

		return ErrExecutorClosed
	}

	p.pending.Add(1)
	p.mutex.Unlock()

	p.tasks <- task

	return nil
}

// Close stops accepting tasks and waits for accepted ones to finish.
func (p *WorkerPool) Close() {
	p.mutex.Lock()

	if p.closed {
		p.mutex.Unlock()

		return
	}

	p.closed = true
	p.mutex.Unlock()

	p.pending.Wait()
	close(p.tasks)
	p.workers.Wait()
}

// Future is the pending result of work handed to an Executor.
type Future[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Submit hands fn to exec and returns its future. A nil exec uses GoExecutor.
func Submit[T any](exec Executor, fn func() (T, error)) *Future[T] {
	if exec == nil {
		exec = GoExecutor{}
	}

	future := &Future[T]{done: make(chan struct{})}

	err := exec.Execute(func() {
		defer close(future.done)
		defer func() {
			if r := recover(); r != nil {
				future.err = fmt.Errorf("async task panicked: %v", r)
			}
		}()

		future.result, future.err = fn()
	})
	if err != nil {
		future.err = err
		close(future.done)
	}

	return future
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}

// Ready reports whether the result is available without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Package performance provides concurrency utilities for batch
// evaluation workloads.
package performance

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool manages a pool of workers for concurrent task execution.
type WorkerPool struct {
	workers    int
	taskQueue  chan func()
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
}

// NewWorkerPool creates a new worker pool with the specified number of
// workers. If workers is 0, it defaults to runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the worker pool.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return // Already running
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			task()
			p.tasksDone.Add(1)
		}
	}
}

// Submit submits a task to the worker pool.
// Returns false if the pool is not running or the queue is full.
func (p *WorkerPool) Submit(task func()) bool {
	if !p.running.Load() {
		return false
	}

	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	default:
		return false // Queue full
	}
}

// Stop stops the worker pool and waits for all workers to finish.
func (p *WorkerPool) Stop() {
	if !p.running.Swap(false) {
		return // Not running
	}

	p.cancel()
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		Queued:     len(p.taskQueue),
	}
}

// PoolStats holds worker pool statistics.
type PoolStats struct {
	Workers    int
	TasksTotal uint64
	TasksDone  uint64
	Queued     int
}

// ParallelMap applies fn to every input on a WorkerPool and returns the
// outputs in input order. Results are positionally stable, so callers
// that pick a winner by index get the same answer as a sequential pass.
func ParallelMap[In, Out any](ctx context.Context, workers int, inputs []In, fn func(context.Context, In) Out) []Out {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	out := make([]Out, len(inputs))
	if len(inputs) == 0 {
		return out
	}

	pool := NewWorkerPool(workers)
	pool.Start()
	defer pool.Stop()

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			for i := range indices {
				out[i] = fn(ctx, inputs[i])
			}
		})
	}

	for i := range inputs {
		select {
		case <-ctx.Done():
			close(indices)
			wg.Wait()
			return out
		case indices <- i:
		}
	}
	close(indices)
	wg.Wait()
	return out
}

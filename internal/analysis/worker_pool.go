package analysis

import (
	"context"
	"fmt"
	"sync"
)

type Task func(ctx context.Context) error

type TaskResult struct {
	Err error
}

// WorkerPool runs submitted tasks on a fixed number of goroutines. Tasks queue
// until a worker is free. A panicking task is reported as an error.
type WorkerPool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
}

func NewWorkerPool(workers, buffer int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &WorkerPool{
		workers: workers,
		tasks:   make(chan Task, buffer),
	}
}

func (p *WorkerPool) Submit(t Task) {
	if p == nil || t == nil {
		return
	}
	p.tasks <- t
}

func (p *WorkerPool) Close() {
	if p == nil {
		return
	}
	close(p.tasks)
}

// Run starts the workers. The returned channel is closed once the task queue
// is closed and drained, or ctx is done.
func (p *WorkerPool) Run(ctx context.Context) <-chan TaskResult {
	if p == nil {
		out := make(chan TaskResult)
		close(out)
		return out
	}

	out := make(chan TaskResult, cap(p.tasks)+p.workers)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					err := runTask(ctx, t)
					select {
					case <-ctx.Done():
						return
					case out <- TaskResult{Err: err}:
					}
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		close(out)
	}()

	return out
}

func runTask(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return t(ctx)
}

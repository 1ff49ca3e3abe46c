package profiler

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Pool executes profiling tasks with bounded parallelism. A semaphore caps
// outstanding tasks; results are delivered in completion order, not
// submission order.
type Pool struct {
	maxConcurrent int
	logger        *zap.Logger
}

// NewPool creates a worker pool. A non-positive maxConcurrent defaults to
// twice the available cores.
func NewPool(maxConcurrent int, logger *zap.Logger) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = runtime.NumCPU() * 2
	}
	return &Pool{
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("profiler-pool"),
	}
}

// Task is one unit of work.
type Task[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// TaskResult pairs a task's outcome with its ID.
type TaskResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Run executes all tasks with bounded parallelism and returns results in
// completion order. All tasks run even if some fail; a cancelled context
// short-circuits tasks still waiting for a slot.
func Run[T any](ctx context.Context, pool *Pool, tasks []Task[T], onProgress func(completed, total int)) []TaskResult[T] {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]TaskResult[T], 0, len(tasks))
	resultsChan := make(chan TaskResult[T], len(tasks))
	sem := make(chan struct{}, pool.maxConcurrent)

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				var zero T
				resultsChan <- TaskResult[T]{ID: task.ID, Result: zero, Err: ctx.Err()}
				return
			}

			result, err := task.Execute(ctx)
			resultsChan <- TaskResult[T]{ID: task.ID, Result: result, Err: err}
		}(task)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	completed := 0
	for result := range resultsChan {
		results = append(results, result)
		completed++
		if onProgress != nil {
			onProgress(completed, len(tasks))
		}
	}

	return results
}

package pool

import (
	"context"
	"fmt"
	"sync"
)

// WorkerFunc processes one item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// Run processes items with numWorkers goroutines (at least one) and returns
// the errors the workers reported. A panicking worker is reported as an error.
// Items not yet handed out when ctx is cancelled are skipped.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	var wg sync.WaitGroup
	taskChan := make(chan T, numWorkers)
	errChan := make(chan error, len(items))

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := safeCall(ctx, item, workerFunc); err != nil {
					errChan <- err
				}
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case taskChan <- item:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskChan)

	wg.Wait()
	close(errChan)

	var allErrors []error
	for err := range errChan {
		allErrors = append(allErrors, err)
	}
	return allErrors
}

func safeCall[T any](ctx context.Context, item T, fn WorkerFunc[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return fn(ctx, item)
}

// Package fileproc runs per-module work (parsing, counting sweeps, pruning,
// bundle writes) on a bounded worker pool.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Len returns the number of collected errors.
func (e *ProcessingErrors) Len() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors)
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap returns nil (ProcessingErrors doesn't wrap a single error).
func (e *ProcessingErrors) Unwrap() error {
	return nil
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
const DefaultWorkerMultiplier = 2

// ProgressFunc is called after each item is processed.
type ProgressFunc func()

// Workers returns n, or the default worker count when n <= 0.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU() * DefaultWorkerMultiplier
	}
	return n
}

// Map runs fn over items on a bounded pool. Results of successful items are
// returned in input order; failures are collected under the name returned by
// label. Items not yet started when ctx is cancelled fail with ctx.Err().
func Map[I, T any](
	ctx context.Context,
	items []I,
	workers int,
	label func(I) string,
	fn func(context.Context, I) (T, error),
	onProgress ProgressFunc,
) ([]T, *ProcessingErrors) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]T, len(items))
	ok := make([]bool, len(items))
	errs := &ProcessingErrors{}

	p := pool.New().WithMaxGoroutines(Workers(workers)).WithContext(ctx)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			defer func() {
				if onProgress != nil {
					onProgress()
				}
			}()

			select {
			case <-ctx.Done():
				errs.Add(label(item), ctx.Err())
				return nil
			default:
			}

			result, err := fn(ctx, item)
			if err != nil {
				errs.Add(label(item), err)
				return nil // individual failures never stop the pool
			}
			// each goroutine owns its index
			results[i] = result
			ok[i] = true
			return nil
		})
	}
	_ = p.Wait()

	out := results[:0]
	for i := range results {
		if ok[i] {
			out = append(out, results[i])
		}
	}

	if !errs.HasErrors() {
		return out, nil
	}
	return out, errs
}

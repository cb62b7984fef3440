// Package workers runs independent jobs on a bounded set of goroutines.
package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Pool bounds how many goroutines process a batch
type Pool struct {
	numWorkers int
}

// Failure is a job that panicked. Its slot in the results holds the zero value.
type Failure struct {
	Index     int
	Recovered interface{}
	Stack     string
}

func (f Failure) Error() string {
	return fmt.Sprintf("job %d panicked: %v", f.Index, f.Recovered)
}

// NewPool creates a pool with the specified number of workers
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Pool{numWorkers: numWorkers}
}

// Size returns the worker count
func (p *Pool) Size() int {
	return p.numWorkers
}

// Map applies fn to every item in parallel and returns results in input order.
// A panicking job is recovered and reported as a Failure; the rest of the batch continues.
// Jobs are not dispatched once ctx is done, and ctx.Err() is returned after in-flight jobs finish.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(T) R) ([]R, []Failure, error) {
	n := len(items)
	if n == 0 {
		return []R{}, nil, ctx.Err()
	}

	jobs := make(chan jobItem[T], n)
	results := make(chan resultItem[R], n)

	// Start workers
	var wg sync.WaitGroup
	numActualWorkers := p.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than jobs
	}

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(jobs, results, fn)
		}()
	}

	// Send jobs to workers
	for idx, item := range items {
		if ctx.Err() != nil {
			break
		}
		jobs <- jobItem[T]{index: idx, item: item}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]R, n)
	var failures []Failure
	for res := range results {
		if res.failure != nil {
			failures = append(failures, *res.failure)
			continue
		}
		out[res.index] = res.value
	}

	if err := ctx.Err(); err != nil {
		return nil, failures, err
	}
	return out, failures, nil
}

type jobItem[T any] struct {
	index int
	item  T
}

type resultItem[R any] struct {
	index   int
	value   R
	failure *Failure
}

func worker[T, R any](jobs <-chan jobItem[T], results chan<- resultItem[R], fn func(T) R) {
	for job := range jobs {
		results <- run(job, fn)
	}
}

func run[T, R any](job jobItem[T], fn func(T) R) (res resultItem[R]) {
	res.index = job.index
	defer func() {
		if r := recover(); r != nil {
			res.failure = &Failure{Index: job.index, Recovered: r, Stack: string(debug.Stack())}
		}
	}()
	res.value = fn(job.item)
	return res
}

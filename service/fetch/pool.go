// Package fetch runs batches of independent upstream calls under a single
// process-wide concurrency cap.
package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brojonat/solexplorer/service/metrics"
	"golang.org/x/sync/semaphore"
)

// Kind tags the result of one task.
type Kind int

const (
	OK Kind = iota
	NotFound
	Failed
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Outcome is the tagged result of one task. Value is only meaningful when
// Kind is OK; Err is set for NotFound and Failed.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// Task is one independent unit of upstream work.
type Task[T any] func(ctx context.Context) (T, error)

// Pool bounds the number of tasks in flight across every request in the
// process. It is safe for concurrent use.
type Pool struct {
	sem        *semaphore.Weighted
	size       int64
	isNotFound func(error) bool
	metrics    *metrics.Metrics
}

// NewPool creates a pool allowing size concurrent tasks. isNotFound decides
// which task errors are an expected absence rather than a failure; nil treats
// every error as a failure. If metrics is nil, no metrics will be recorded.
func NewPool(size int, isNotFound func(error) bool, m *metrics.Metrics) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:        semaphore.NewWeighted(int64(size)),
		size:       int64(size),
		isNotFound: isNotFound,
		metrics:    m,
	}
}

// Size returns the pool's concurrency cap.
func (p *Pool) Size() int {
	return int(p.size)
}

// Run executes tasks concurrently, at most Size at a time across the whole
// pool, and returns one outcome per task in submission order. A failing task
// never affects its siblings. Tasks that cannot acquire a slot before ctx is
// done are reported as Failed with the context error.
func Run[T any](ctx context.Context, p *Pool, tasks []Task[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			outcomes[i] = runOne(ctx, p, task)
		}(i, task)
	}
	wg.Wait()

	return outcomes
}

// Do runs a single task under the pool's cap and returns its value and error
// directly.
func Do[T any](ctx context.Context, p *Pool, task Task[T]) (T, error) {
	out := runOne(ctx, p, task)
	return out.Value, out.Err
}

// Bound wraps task so that every call runs under the pool's cap.
func Bound[T any](p *Pool, task Task[T]) Task[T] {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, p, task)
	}
}

func runOne[T any](ctx context.Context, p *Pool, task Task[T]) Outcome[T] {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.record(Failed)
		return Outcome[T]{Kind: Failed, Err: err}
	}
	if p.metrics != nil {
		p.metrics.RecordPoolAcquire(time.Since(start).Seconds())
	}
	defer func() {
		p.sem.Release(1)
		if p.metrics != nil {
			p.metrics.RecordPoolRelease()
		}
	}()

	value, err := task(ctx)
	var out Outcome[T]
	switch {
	case err == nil:
		out = Outcome[T]{Kind: OK, Value: value}
	case p.isNotFound != nil && p.isNotFound(err):
		out = Outcome[T]{Kind: NotFound, Err: err}
	default:
		out = Outcome[T]{Kind: Failed, Err: err}
	}
	p.record(out.Kind)
	return out
}

func (p *Pool) record(kind Kind) {
	if p.metrics != nil {
		p.metrics.RecordFetchOutcome(kind.String())
	}
}

// Values returns the values of the OK outcomes, preserving order, and the
// number of NotFound and Failed outcomes that were dropped.
func Values[T any](outcomes []Outcome[T]) (values []T, notFound, failed int) {
	values = make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		switch o.Kind {
		case OK:
			values = append(values, o.Value)
		case NotFound:
			notFound++
		default:
			failed++
		}
	}
	return values, notFound, failed
}

// FirstError returns the first Failed outcome's error, if any.
func FirstError[T any](outcomes []Outcome[T]) error {
	for _, o := range outcomes {
		if o.Kind == Failed {
			return o.Err
		}
	}
	return nil
}

// ErrCancelled reports whether an outcome failed because its context ended.
func ErrCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

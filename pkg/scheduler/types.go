package scheduler

import (
	"context"
)

type Work[T any] func(ctx context.Context) (T, error)

type Result[T any] struct {
	Data T
	Err  error
}

// Future is the pending result of one scheduled job.
type Future[T any] struct {
	name   string
	input  chan T
	cancel context.CancelFunc
}

func NewFuture[T any](name string, input chan T, cancel context.CancelFunc) *Future[T] {
	return &Future[T]{
		name:   name,
		input:  input,
		cancel: cancel,
	}
}

func (f *Future[T]) Name() string {
	return f.name
}

func (f *Future[T]) C() chan T {
	return f.input
}

// Stop cancels the job's context. The job still delivers a result.
func (f *Future[T]) Stop() {
	f.cancel()
}

// Wait blocks until the job delivers its result or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r := <-f.input:
		return r, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

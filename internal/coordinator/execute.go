package coordinator

import (
	"context"
	"fmt"
)

// Op is one remote operation of a batch.
type Op[T any] func(ctx context.Context) (T, error)

// Execute issues every op concurrently and feeds its result into a new Run.
// Issued operations are never cancelled: they run on a context detached
// from ctx's cancellation, so a failure resolution or a caller giving up
// leaves in-flight work to finish and be counted.
func Execute[T any](ctx context.Context, ops []Op[T], onResolve func(Outcome[T])) *Run[T] {
	run := NewRun(len(ops), onResolve)
	detached := context.WithoutCancel(ctx)
	for i, op := range ops {
		go func(i int, op Op[T]) {
			v, err := call(detached, i, op)
			if err != nil {
				run.Fail(i, err)
				return
			}
			run.Complete(i, v)
		}(i, op)
	}
	return run
}

// Wait runs ops like Execute and blocks until the run resolves. The
// returned Run can still be used to wait for stragglers via Drained.
func Wait[T any](ctx context.Context, ops []Op[T]) (Outcome[T], *Run[T]) {
	ch := make(chan Outcome[T], 1)
	run := Execute(ctx, ops, func(o Outcome[T]) { ch <- o })
	return <-ch, run
}

func call[T any](ctx context.Context, i int, op Op[T]) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operation %d panicked: %v", i, p)
		}
	}()
	if op == nil {
		return v, fmt.Errorf("operation %d is nil", i)
	}
	return op(ctx)
}

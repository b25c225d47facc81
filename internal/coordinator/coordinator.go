// Package coordinator tracks a batch of independent asynchronous operations
// and reports one aggregate outcome for the batch.
//
// A run resolves exactly once: with success when every operation completed,
// or with failure as soon as the first operation fails. Operations that
// report after a failure resolution are recorded and otherwise ignored.
package coordinator

import (
	"sync"
)

// Outcome is the single terminal resolution of a run. Payload holds one
// value per operation, ordered by operation index, and is only set on
// success.
type Outcome[T any] struct {
	Success bool
	Err     error
	Payload []T
}

// State is the reported state of one operation.
type State int

const (
	Pending State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Report is a point-in-time view of one operation of a run.
type Report[T any] struct {
	Index int
	State State
	Value T
	Err   error
}

// Run counts completions for a fixed number of operations.
type Run[T any] struct {
	mu          sync.Mutex
	total       int
	outstanding int
	states      []State
	values      []T
	errs        []error
	resolved    bool
	failed      bool
	err         error
	late        int
	onResolve   func(Outcome[T])
	drained     chan struct{}
}

// NewRun starts a run expecting total operations. onResolve is invoked
// exactly once, never while the run's lock is held. A run with no
// operations resolves successfully before NewRun returns.
func NewRun[T any](total int, onResolve func(Outcome[T])) *Run[T] {
	if total < 0 {
		total = 0
	}
	r := &Run[T]{
		total:       total,
		outstanding: total,
		states:      make([]State, total),
		values:      make([]T, total),
		errs:        make([]error, total),
		onResolve:   onResolve,
		drained:     make(chan struct{}),
	}
	if total == 0 {
		r.resolved = true
		close(r.drained)
		r.fire(Outcome[T]{Success: true, Payload: []T{}})
	}
	return r
}

// Complete records a successful result for operation i. It reports false
// when i is out of range or operation i already reported.
func (r *Run[T]) Complete(i int, v T) bool {
	r.mu.Lock()
	if !r.acceptLocked(i) {
		r.mu.Unlock()
		return false
	}
	r.states[i] = Succeeded
	r.values[i] = v

	var out *Outcome[T]
	switch {
	case r.resolved:
		r.late++
	case r.outstanding == 0:
		r.resolved = true
		payload := make([]T, len(r.values))
		copy(payload, r.values)
		out = &Outcome[T]{Success: true, Payload: payload}
	}
	r.drainLocked()
	r.mu.Unlock()

	if out != nil {
		r.fire(*out)
	}
	return true
}

// Fail records a failure for operation i. The first failure resolves the
// run; later ones are only recorded.
func (r *Run[T]) Fail(i int, err error) bool {
	r.mu.Lock()
	if !r.acceptLocked(i) {
		r.mu.Unlock()
		return false
	}
	r.states[i] = Failed
	r.errs[i] = err

	var out *Outcome[T]
	if r.resolved {
		r.late++
	} else {
		r.resolved = true
		r.failed = true
		r.err = err
		out = &Outcome[T]{Success: false, Err: err}
	}
	r.drainLocked()
	r.mu.Unlock()

	if out != nil {
		r.fire(*out)
	}
	return true
}

func (r *Run[T]) acceptLocked(i int) bool {
	if i < 0 || i >= r.total || r.states[i] != Pending {
		return false
	}
	r.outstanding--
	return true
}

func (r *Run[T]) drainLocked() {
	if r.outstanding == 0 {
		close(r.drained)
	}
}

func (r *Run[T]) fire(out Outcome[T]) {
	if r.onResolve != nil {
		r.onResolve(out)
	}
}

// Drained is closed once every operation has reported, including those
// that reported after a failure resolution.
func (r *Run[T]) Drained() <-chan struct{} {
	return r.drained
}

// Resolved reports whether the terminal outcome has been delivered.
func (r *Run[T]) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Outstanding returns the number of operations that have not reported.
func (r *Run[T]) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outstanding
}

// Late returns how many operations reported after the run had resolved.
func (r *Run[T]) Late() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.late
}

// Err returns the error that resolved the run, if it failed.
func (r *Run[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Results returns a snapshot of every operation's state.
func (r *Run[T]) Results() []Report[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report[T], r.total)
	for i := range out {
		out[i] = Report[T]{Index: i, State: r.states[i], Value: r.values[i], Err: r.errs[i]}
	}
	return out
}

package txn

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
)

// UnitFunc is one piece of asynchronous work. It receives a context derived
// from the owning transaction, so cancelling the transaction's flow cancels
// the unit.
type UnitFunc func(context.Context) (any, error)

// Callback observes a settled unit. It is invoked at most once, never before
// the unit has settled, always from the serialized drain sequence, and for
// every outcome: success, failure or cancellation. An error returned here
// propagates from End without stopping the callbacks of sibling units.
type Callback func(*Unit) error

// Status describes how far a unit has progressed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Unit is one registered piece of asynchronous work owned by a Transaction.
// It is created by Add, starts running immediately, and settles exactly once.
type Unit struct {
	seq    int
	fn     UnitFunc
	cb     Callback
	ctx    context.Context
	cancel context.CancelCauseFunc

	settleOnce sync.Once
	done       chan struct{}

	mu      sync.Mutex
	value   any
	err     error
	status  Status
	cbFired bool
}

func newUnit(seq int, fn UnitFunc, cb Callback) *Unit {
	return &Unit{
		seq:    seq,
		fn:     fn,
		cb:     cb,
		done:   make(chan struct{}),
		status: StatusPending,
	}
}

// bind derives the unit's own cancellable context from the transaction's.
// It runs before the unit becomes visible to a drain, so the drain can
// always cancel it.
func (u *Unit) bind(parent context.Context) {
	u.ctx, u.cancel = context.WithCancelCause(parent)
}

// launch starts the unit in its own goroutine. A panic inside the unit
// settles it as failed with a *PanicError instead of tearing the process
// down; the outcome still reaches the callback.
func (u *Unit) launch() {
	ready := make(chan struct{})

	go func() {
		close(ready)
		defer func() {
			if r := recover(); r != nil {
				u.settle(nil, &PanicError{Value: r, Stack: debug.Stack()})
			}
		}()
		u.settle(u.fn(u.ctx))
	}()

	<-ready
}

func (u *Unit) settle(value any, err error) {
	u.settleWith(value, err, classify(err))
}

// settleCancelled force-settles a unit that has not reported back by the time
// its draining flow was cancelled. The unit's goroutine may still be running;
// its eventual return is discarded by the once guard.
func (u *Unit) settleCancelled(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	u.settleWith(nil, cause, StatusCancelled)
}

func (u *Unit) settleWith(value any, err error, status Status) {
	u.settleOnce.Do(func() {
		u.mu.Lock()
		u.value, u.err, u.status = value, err, status
		u.mu.Unlock()
		close(u.done)
	})
}

func classify(err error) Status {
	switch {
	case err == nil:
		return StatusSucceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// invokeCallback runs the callback once with the settled unit. Panics in the
// callback are converted to *PanicError so the remaining callbacks of the
// same drain pass still run.
func (u *Unit) invokeCallback() (err error) {
	if u.cb == nil || u.cbFired {
		return nil
	}
	u.cbFired = true
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return u.cb(u)
}

// Seq is the unit's position in add order, starting at 1.
func (u *Unit) Seq() int { return u.seq }

// Status reports the unit's current status.
func (u *Unit) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Result returns the settled value and error. Before the unit settles both
// are zero; use Done or Await to wait for settlement.
func (u *Unit) Result() (any, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.value, u.err
}

// Err returns the settled error, if any.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Done is closed when the unit settles.
func (u *Unit) Done() <-chan struct{} { return u.done }

// Settled reports whether the unit has settled.
func (u *Unit) Settled() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// Await blocks until the unit settles or ctx is done.
func (u *Unit) Await(ctx context.Context) (any, error) {
	select {
	case <-u.done:
		return u.Result()
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

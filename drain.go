package txn

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// End drains the transaction: it repeatedly snapshots the enqueued units,
// waits for every unit in the snapshot to settle, then invokes their
// callbacks in add order, until a snapshot comes up empty. Units added while
// draining, whether by a callback or by code still running inside an awaited
// unit, are captured by the next pass. Once drained the transaction is
// closed and removed from the process-wide registry.
//
// Visible completion order is a topological extension of add order: within a
// pass callbacks fire in add order, and units added later never observe
// their callback before earlier units still outstanding from a prior pass.
//
// A unit's failure never prevents its siblings from settling or their
// callbacks from firing. End returns, combined: every error returned by a
// callback, the first failure among units that had no callback (wrapped as
// *UnitError so errors.Is sees both ErrUnitFailure and the original error),
// and the cancellation cause if ctx was cancelled mid-drain. Cancelling ctx
// cancels every not-yet-settled unit and still hands each callback the
// cancelled outcome.
//
// Calling End on a closed transaction returns ErrTransactionClosed. Calling
// it while another End is draining joins the in-flight drain and returns its
// result; WaitAll relies on this to race owner flows safely.
func (t *Transaction) End(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case StateClosed:
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTransactionClosed, t.id)
	case StateDraining:
		t.mu.Unlock()
		<-t.done
		return t.endErr
	}
	t.state = StateDraining
	t.mu.Unlock()

	t.logger.Debug("draining transaction", t.fields()...)

	var (
		errs    error
		unitErr error
		pass    int
	)
	for {
		t.mu.Lock()
		if len(t.units) == 0 {
			// The empty check and the transition to closed must be atomic,
			// or a concurrent Add could enqueue a unit that no pass drains.
			t.state = StateClosed
			t.mu.Unlock()
			break
		}
		batch := t.units
		t.units = nil
		t.mu.Unlock()

		pass++
		t.logger.Debug("drain pass",
			append(t.fields(), zap.Int("pass", pass), zap.Int("units", len(batch)))...)

		t.awaitBatch(ctx, batch)

		for _, u := range batch {
			if u.cb != nil {
				if err := u.invokeCallback(); err != nil {
					errs = multierr.Append(errs, err)
				}
				continue
			}
			if unitErr != nil {
				continue
			}
			if err := u.Err(); err != nil && u.Status() == StatusFailed {
				unitErr = &UnitError{TransactionID: t.id, Seq: u.seq, Err: err}
			}
		}
	}

	if ctx.Err() != nil {
		errs = multierr.Append(errs, context.Cause(ctx))
	}
	errs = multierr.Append(errs, unitErr)

	t.finish(errs)
	return errs
}

// awaitBatch blocks until every unit in the batch has settled. The units were
// started at Add time and run concurrently; waiting in add order only shapes
// the observation sequence. If ctx is cancelled, the remaining units are
// cancelled and force-settled so their callbacks still receive a cancelled
// outcome.
func (t *Transaction) awaitBatch(ctx context.Context, batch []*Unit) {
	for i, u := range batch {
		select {
		case <-u.done:
		case <-ctx.Done():
			cause := context.Cause(ctx)
			for _, rest := range batch[i:] {
				rest.cancel(cause)
				rest.settleCancelled(cause)
			}
			return
		}
	}
}

// finish publishes the drain result and makes the closed state visible.
// state is already closed under the units lock by the drain loop.
func (t *Transaction) finish(err error) {
	t.endErr = err
	transactions.Delete(t.id)
	if t.parent != nil {
		t.parent.childClosed()
	}
	close(t.done)
	t.logger.Debug("transaction closed", append(t.fields(), zap.Error(err))...)
}

// WaitAll forces every transaction currently open in the process to drain to
// completion, however deeply nested. Within one flow, children are drained
// before their parents; order across unrelated flows is unspecified. With
// nothing open it returns immediately, and calling it again is a no-op.
// Intended for orderly shutdown and test teardown.
func WaitAll(ctx context.Context) error {
	var errs error
	for {
		open := transactions.Snapshot()
		if len(open) == 0 {
			return errs
		}
		for _, t := range open {
			if !t.leaf() {
				continue
			}
			if n := t.Pending(); n > 0 && t.State() == StateOpen {
				t.logger.Warn("transaction left open with pending units",
					append(t.fields(), zap.Int("pending", n))...)
			}
			if err := t.End(ctx); err != nil && !errors.Is(err, ErrTransactionClosed) {
				errs = multierr.Append(errs, err)
			}
		}
	}
}

package txn

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveTransaction is returned by Get when the calling context has
	// no transaction begun. Callers that may run both inside and outside a
	// transaction must handle this explicitly; the package never creates a
	// throwaway transaction on their behalf, because nothing could ever
	// observe its completion.
	ErrNoActiveTransaction = errors.New("no transaction begun for this context")

	// ErrTransactionClosed is returned by Add and End when the transaction
	// has already been closed.
	ErrTransactionClosed = errors.New("transaction is closed")

	// ErrUnitFailure marks a drained unit that failed and had no callback to
	// observe the failure. End wraps the unit's own error alongside this
	// sentinel, so both errors.Is(err, ErrUnitFailure) and errors.Is against
	// the original error hold.
	ErrUnitFailure = errors.New("unit failed without a callback to observe it")
)

// UnitError reports the first callback-less unit failure surfaced by a drain.
type UnitError struct {
	TransactionID string
	Seq           int
	Err           error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %d of transaction %s: %v", e.Seq, e.TransactionID, e.Err)
}

func (e *UnitError) Unwrap() []error {
	return []error{ErrUnitFailure, e.Err}
}

// PanicError carries a panic recovered from a unit or a callback, together
// with the stack of the panicking goroutine.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
}

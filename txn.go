package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pendingwork/txn/internal/helper"
	"github.com/pendingwork/txn/internal/registry"
)

// State is the lifecycle state of a Transaction.
type State string

const (
	StateOpen     State = "open"
	StateDraining State = "draining"
	StateClosed   State = "closed"
)

type currentKey struct{}

const registryShards = 8

// transactions tracks every open transaction in the process so WaitAll can
// find them. Entries are added by Begin and removed when a drain completes.
var transactions = registry.NewSharded[*Transaction](registryShards)

// Transaction is an ordered scope collecting deferred asynchronous units
// until explicitly closed. Synchronous call sites fetch it with Get and
// register work with Add; the asynchronous caller that opened it closes it
// with End, which drains every registered unit.
type Transaction struct {
	id     string
	name   string
	parent *Transaction
	logger *zap.Logger

	// ctx carries this transaction as current. Units start from it, so code
	// running inside a unit still sees this transaction via Get.
	ctx  context.Context
	done chan struct{}

	mu           sync.Mutex
	state        State
	units        []*Unit
	seq          int
	openChildren int
	endErr       error
}

// Begin opens a new transaction and installs it as current in the returned
// context. If the incoming context already carries a transaction, the new one
// is linked as its child; otherwise it becomes a root. The previous current
// transaction is restored simply by using the original context once End has
// been called. Begin never fails.
func Begin(ctx context.Context, opts ...Option) (context.Context, *Transaction) {
	parent, _ := fromContext(ctx)
	t := &Transaction{
		id:     uuid.NewString(),
		parent: parent,
		state:  StateOpen,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		if parent != nil {
			t.logger = parent.logger
		} else {
			t.logger = zap.NewNop()
		}
	}
	if parent != nil {
		parent.childOpened()
	}
	t.ctx = context.WithValue(ctx, currentKey{}, t)
	transactions.Put(t.id, t)
	t.logger.Debug("beginning transaction", t.fields()...)
	return t.ctx, t
}

// Get returns the transaction currently open for ctx, or
// ErrNoActiveTransaction if none has been begun in this flow. This is the
// call sites outside asynchronous functions are expected to use.
func Get(ctx context.Context) (*Transaction, error) {
	t, ok := fromContext(ctx)
	if !ok {
		return nil, ErrNoActiveTransaction
	}
	return t, nil
}

func fromContext(ctx context.Context) (*Transaction, bool) {
	return helper.TypedValueOk[*Transaction](func() (any, bool) {
		v := ctx.Value(currentKey{})
		return v, v != nil
	})
}

// Add appends a unit to the transaction and starts it immediately. Adding is
// legal while the transaction is open or draining: a unit may register
// further units as a side effect of running, and those are captured by the
// next drain pass rather than lost. Adding to a closed transaction returns
// ErrTransactionClosed.
func (t *Transaction) Add(fn UnitFunc, cb Callback) (*Unit, error) {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTransactionClosed, t.id)
	}
	t.seq++
	u := newUnit(t.seq, fn, cb)
	u.bind(t.ctx)
	t.units = append(t.units, u)
	t.mu.Unlock()

	u.launch()
	t.logger.Debug("unit added", append(t.fields(), zap.Int("seq", u.seq))...)
	return u, nil
}

// ID is the transaction's unique identifier.
func (t *Transaction) ID() string { return t.id }

// Name is the optional name given via WithName, or "" when unset.
func (t *Transaction) Name() string { return t.name }

// Parent is the transaction that was current when this one was begun, or nil
// for a root.
func (t *Transaction) Parent() *Transaction { return t.parent }

// State reports the transaction's lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Context carries this transaction as current. Callbacks that need to
// register further units during a drain can Add through it.
func (t *Transaction) Context() context.Context { return t.ctx }

// Pending is the number of units enqueued but not yet taken by a drain pass.
func (t *Transaction) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.units)
}

func (t *Transaction) childOpened() {
	t.mu.Lock()
	t.openChildren++
	t.mu.Unlock()
}

func (t *Transaction) childClosed() {
	t.mu.Lock()
	t.openChildren--
	t.mu.Unlock()
}

// leaf reports whether the transaction has no open children, meaning it is
// safe to drain without violating the children-before-parents contract.
func (t *Transaction) leaf() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openChildren == 0
}

func (t *Transaction) fields() []zap.Field {
	fields := []zap.Field{zap.String("id", t.id)}
	if t.name != "" {
		fields = append(fields, zap.String("name", t.name))
	}
	return fields
}

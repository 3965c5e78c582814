package txn_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendingwork/txn"
)

func TestGet_NoActiveTransaction(t *testing.T) {
	_, err := txn.Get(context.Background())
	require.ErrorIs(t, err, txn.ErrNoActiveTransaction)
}

func TestBegin_BecomesCurrent(t *testing.T) {
	ctx, tx := txn.Begin(context.Background(), txn.WithLogger(testLogger()))

	got, err := txn.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, tx, got)
	assert.Equal(t, txn.StateOpen, tx.State())
	assert.Nil(t, tx.Parent())

	require.NoError(t, tx.End(ctx))
	assert.Equal(t, txn.StateClosed, tx.State())
}

func TestBegin_NestedInnermostWins(t *testing.T) {
	ctx1, outer := txn.Begin(context.Background())
	ctx2, inner := txn.Begin(ctx1)

	assert.Same(t, outer, inner.Parent())

	got, err := txn.Get(ctx2)
	require.NoError(t, err)
	assert.Same(t, inner, got)

	require.NoError(t, inner.End(ctx2))

	// Using the outer context after the inner End restores the outer
	// transaction as current.
	got, err = txn.Get(ctx1)
	require.NoError(t, err)
	assert.Same(t, outer, got)
	assert.Equal(t, txn.StateOpen, outer.State())

	require.NoError(t, outer.End(ctx1))
}

func TestBegin_WithName(t *testing.T) {
	ctx, tx := txn.Begin(context.Background(), txn.WithName("checkout"))
	assert.Equal(t, "checkout", tx.Name())
	assert.NotEmpty(t, tx.ID())
	require.NoError(t, tx.End(ctx))
}

func TestAdd_AfterCloseFails(t *testing.T) {
	ctx, tx := txn.Begin(context.Background())
	require.NoError(t, tx.End(ctx))

	_, err := tx.Add(func(context.Context) (any, error) { return nil, nil }, nil)
	require.ErrorIs(t, err, txn.ErrTransactionClosed)
}

func TestEnd_TwiceFails(t *testing.T) {
	ctx, tx := txn.Begin(context.Background())
	require.NoError(t, tx.End(ctx))
	require.ErrorIs(t, tx.End(ctx), txn.ErrTransactionClosed)
}

func TestEnd_PackageLevelNoActive(t *testing.T) {
	err := txn.End(context.Background())
	require.ErrorIs(t, err, txn.ErrNoActiveTransaction)
}

func TestAdd_PackageLevel(t *testing.T) {
	ctx, tx := txn.Begin(context.Background())

	ran := false
	_, err := txn.Add(ctx, func(context.Context) (any, error) {
		ran = true
		return nil, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, tx.End(ctx))
	assert.True(t, ran)
}

func TestIsolation_IndependentFlows(t *testing.T) {
	// Two flows each begin their own root; neither sees the other's
	// transaction as current.
	type seen struct {
		tx  *txn.Transaction
		err error
	}
	results := make([]seen, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, tx := txn.Begin(context.Background())
			got, err := txn.Get(ctx)
			results[i] = seen{tx: got, err: err}
			if err == nil && got == tx {
				_ = tx.End(ctx)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, results[0].err)
	require.NoError(t, results[1].err)
	assert.NotSame(t, results[0].tx, results[1].tx)
	assert.NotEqual(t, results[0].tx.ID(), results[1].tx.ID())
}

func TestUnit_FailureIdentityPreserved(t *testing.T) {
	ctx, tx := txn.Begin(context.Background())

	boom := errors.New("boom")
	_, err := tx.Add(func(context.Context) (any, error) { return nil, boom }, nil)
	require.NoError(t, err)

	endErr := tx.End(ctx)
	require.Error(t, endErr)
	assert.ErrorIs(t, endErr, txn.ErrUnitFailure)
	assert.ErrorIs(t, endErr, boom)

	var ue *txn.UnitError
	require.ErrorAs(t, endErr, &ue)
	assert.Equal(t, tx.ID(), ue.TransactionID)
	assert.Equal(t, 1, ue.Seq)
}

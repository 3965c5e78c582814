package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendingwork/txn"
)

func TestScoped_DrainsOnReturn(t *testing.T) {
	ran := false
	err := txn.Scoped(context.Background(), func(ctx context.Context) error {
		_, addErr := txn.Add(ctx, func(context.Context) (any, error) {
			ran = true
			return nil, nil
		}, nil)
		return addErr
	})
	require.NoError(t, err)
	assert.True(t, ran, "work registered inside the scope must be drained before Scoped returns")
}

func TestScoped_CombinesBodyAndDrainErrors(t *testing.T) {
	bodyErr := errors.New("body failed")
	unitErr := errors.New("unit failed")

	err := txn.Scoped(context.Background(), func(ctx context.Context) error {
		_, addErr := txn.Add(ctx, func(context.Context) (any, error) {
			return nil, unitErr
		}, nil)
		require.NoError(t, addErr)
		return bodyErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, bodyErr)
	assert.ErrorIs(t, err, unitErr)
	assert.ErrorIs(t, err, txn.ErrUnitFailure)
}

func TestScoped_DrainsOnPanic(t *testing.T) {
	ran := false
	var tx *txn.Transaction

	func() {
		defer func() {
			r := recover()
			require.Equal(t, "scope blew up", r)
		}()
		_ = txn.Scoped(context.Background(), func(ctx context.Context) error {
			var err error
			tx, err = txn.Get(ctx)
			require.NoError(t, err)
			_, err = tx.Add(func(context.Context) (any, error) {
				ran = true
				return nil, nil
			}, nil)
			require.NoError(t, err)
			panic("scope blew up")
		})
	}()

	assert.True(t, ran, "drain must run on the panic exit path")
	assert.Equal(t, txn.StateClosed, tx.State())
}

func TestAddFunc_TypedCallback(t *testing.T) {
	var got string
	var gotErr error

	err := txn.Scoped(context.Background(), func(ctx context.Context) error {
		_, addErr := txn.AddFunc(ctx, func(context.Context) (string, error) {
			return "typed", nil
		}, func(v string, err error) error {
			got, gotErr = v, err
			return nil
		})
		return addErr
	})
	require.NoError(t, err)
	require.NoError(t, gotErr)
	assert.Equal(t, "typed", got)
}

func TestAddFunc_NoActiveTransaction(t *testing.T) {
	_, err := txn.AddFunc(context.Background(), func(context.Context) (int, error) {
		return 0, nil
	}, nil)
	require.ErrorIs(t, err, txn.ErrNoActiveTransaction)
}

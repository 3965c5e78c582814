package txn

import (
	"context"

	"go.uber.org/multierr"
)

// Scoped brackets fn between Begin and End. The drain runs on every exit
// path, including panic unwinding, so work registered inside fn is never
// left behind. Errors from fn and from the drain are combined.
func Scoped(ctx context.Context, fn func(context.Context) error, opts ...Option) (err error) {
	ctx, t := Begin(ctx, opts...)
	defer func() {
		err = multierr.Append(err, t.End(ctx))
	}()
	return fn(ctx)
}

// Add registers fn against the current transaction of ctx. It fails with
// ErrNoActiveTransaction when ctx carries none.
func Add(ctx context.Context, fn UnitFunc, cb Callback) (*Unit, error) {
	t, err := Get(ctx)
	if err != nil {
		return nil, err
	}
	return t.Add(fn, cb)
}

// End drains the current transaction of ctx. It fails with
// ErrNoActiveTransaction when ctx carries none.
func End(ctx context.Context) error {
	t, err := Get(ctx)
	if err != nil {
		return err
	}
	return t.End(ctx)
}

// AddFunc is the typed form of Add. The callback, when non-nil, receives the
// settled value and error directly instead of the unit handle.
func AddFunc[R any](ctx context.Context, fn func(context.Context) (R, error), cb func(R, error) error) (*Unit, error) {
	var wrapped Callback
	if cb != nil {
		wrapped = func(u *Unit) error {
			v, err := u.Result()
			r, _ := v.(R)
			return cb(r, err)
		}
	}
	return Add(ctx, func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		return v, err
	}, wrapped)
}

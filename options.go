package txn

import "go.uber.org/zap"

// Option configures a transaction at Begin time.
type Option func(*Transaction)

// WithLogger sets the zap logger used for the transaction's lifecycle
// events. Children inherit their parent's logger unless overridden; roots
// default to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transaction) { t.logger = logger }
}

// WithName gives the transaction a human-readable name for logs and
// debugging. Names need not be unique; identity stays with ID.
func WithName(name string) Option {
	return func(t *Transaction) { t.name = name }
}

// Package txn bridges synchronous call sites to asynchronous completion.
//
// Some code cannot suspend: a property setter, a callback invoked by foreign
// code, any interface method with a fixed synchronous signature. When such
// code needs to trigger asynchronous side effects, it has nowhere to await
// them, and fire-and-forget goroutines decouple the work from anything that
// could observe its outcome.
//
// # The Transaction Pattern
//
// A Transaction is the explicit hand-off point between the two worlds. An
// asynchronous caller opens one with [Begin]; synchronous code anywhere in
// that caller's dynamic extent fetches it with [Get] and registers work with
// [Transaction.Add], returning immediately; the asynchronous caller later
// closes it with [Transaction.End], which drains every registered unit and
// reports their outcomes.
//
//	func (p *Person) SetName(name string) { // cannot suspend
//	    p.name = name
//	    if t, err := txn.Get(p.ctx); err == nil {
//	        t.Add(func(ctx context.Context) (any, error) {
//	            return nil, p.notifyObservers(ctx, name)
//	        }, nil)
//	    }
//	}
//
//	func update(ctx context.Context, p *Person) error { // can suspend
//	    ctx, t := txn.Begin(ctx)
//	    p.SetName("new name")
//	    return t.End(ctx) // notifyObservers has completed here
//	}
//
// # Guarantees
//
// Units start as soon as they are added and run concurrently; only the drain
// is serialized. Callbacks fire exactly once per unit, in add order within a
// drain pass, whatever order the underlying work happens to finish in. Work
// registered during a drain, whether by a callback or by code still running
// inside an awaited unit, is captured by a further pass rather than lost. A unit's
// failure never prevents its siblings from settling or their callbacks from
// firing. Cancelling the draining flow cancels the outstanding units and
// still delivers the cancelled outcome to every callback.
//
// The current transaction travels in the context, so independent flows never
// see each other's units. Transactions nest: Begin under an open transaction
// creates a child, and using the original context after End restores the
// outer transaction as current. [WaitAll] drains everything still open in
// the process, children before parents, for shutdown and test teardown.
//
// [Scoped] packages the begin/run/end bracket with the drain guaranteed on
// every exit path, and [AddFunc] offers a typed registration surface over
// the untyped core.
package txn

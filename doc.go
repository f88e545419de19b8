// package lazyslot provides a way to share an expensive resource that is created on
// demand and kept alive only while it is being used.
//
// Consider a client for some remote service that is costly to construct and holds open
// connections. Building it for every request is wasteful, but keeping it around forever
// ties up resources while nothing needs it. A Slot holds such a value along with a count
// of its current users:
//
//	var conns = lazyslot.New[*Client]()
//
//	func Query(ctx context.Context, q string) (Result, error) {
//		tok, err := conns.Acquire(dialClient)
//		if err != nil {
//			return Result{}, err
//		}
//		defer tok.Release()
//		return tok.Value().Query(ctx, q)
//	}
//
// The first Acquire on an empty Slot calls the factory. Concurrent Acquires that race on
// an empty Slot call it only once and all observe the same value. Every Acquire bumps a
// Gate that only reaches zero once every Token has been Released, and the time of that
// release is recorded.
//
// Deciding when to actually drop the value is left to the caller. Clear refuses to remove
// a value that is in use, so it is always safe to call:
//
//	if conns.Unused() && conns.SinceRelease() > time.Minute {
//		conns.Clear()
//	}
//
// The sweeper subpackage runs that policy in a loop.
package lazyslot

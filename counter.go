package lazyslot

import (
	"context"
	"sync"
	"sync/atomic"
)

// closedChan is handed out by Done while a Gate is zero.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Gate is a usage counter for which the event of it reaching zero can be
// waited on. The zero value is ready to use and starts at zero.
type Gate struct {
	mu    sync.Mutex
	count atomic.Int32  // only stored with mu held
	zero  chan struct{} // nil iff count is zero
}

// Increment bumps the counter and blocks Wait calls until a matching number
// of Decrements happen.
func (g *Gate) Increment() {
	g.mu.Lock()
	n := g.count.Load()
	if n == 0 {
		g.zero = make(chan struct{})
	}
	g.count.Store(n + 1)
	g.mu.Unlock()
}

// Decrement lowers the counter and unblocks Wait calls if it reaches zero.
// Decrementing a zero counter does nothing and reports false.
func (g *Gate) Decrement() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.count.Load()
	if n == 0 {
		return false
	}
	g.count.Store(n - 1)
	if n == 1 {
		g.openLocked()
	}
	return true
}

// Reset forces the counter to zero, unblocking any Wait calls. It returns the
// count that was discarded.
func (g *Gate) Reset() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.count.Load()
	g.count.Store(0)
	g.openLocked()
	return int(n)
}

func (g *Gate) openLocked() {
	if g.zero != nil {
		close(g.zero)
		g.zero = nil
	}
}

// Bump increments the counter for the duration of fn. The decrement happens
// on every exit path, including a panic unwinding through fn.
func (g *Gate) Bump(fn func() error) error {
	g.Increment()
	defer g.Decrement()
	return fn()
}

// Zero returns if the counter is at zero.
func (g *Gate) Zero() bool {
	return g.count.Load() == 0
}

// Count returns the current value of the counter.
func (g *Gate) Count() int {
	return int(g.count.Load())
}

// Done returns a channel that is closed once the counter is zero. The channel
// returned while the counter is zero is already closed.
func (g *Gate) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.zero == nil {
		return closedChan
	}
	return g.zero
}

// Wait blocks until the counter is zero or the context is done. Any number
// of callers may Wait at once and they are all released together.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.Done():
		return nil
	default:
	}

	select {
	case <-g.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

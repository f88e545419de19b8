package lazyslot

import "sync/atomic"

// Token is a reference to the value held by a Slot. While any Token is not
// Released, the Slot refuses to Clear.
type Token[T any] struct {
	slot     *Slot[T]
	value    T
	gen      uint64
	released atomic.Bool
}

// Value returns the value the Token was acquired with. It stays valid after a
// later Set on the Slot replaces the stored value.
func (t *Token[T]) Value() T { return t.value }

// Release gives up the reference. Only the first call has any effect, and
// none at all if the Slot was force released since the Token was acquired.
func (t *Token[T]) Release() {
	if t.released.Swap(true) {
		return
	}
	t.slot.release(t.gen)
}

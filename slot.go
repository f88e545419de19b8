package lazyslot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.chromium.org/luci/common/clock"
)

// ErrNoFactory is returned by Acquire when the Slot is empty and no Factory
// was supplied to fill it.
var ErrNoFactory = errors.New("lazyslot: slot is empty and no factory was given")

// Factory creates the value for an empty Slot.
type Factory[T any] func() (T, error)

// Slot holds a lazily created value along with a count of its current users.
// The value can be cleared once unused and later set again. Slots must be
// created with New or NewWithValue.
type Slot[T any] struct {
	// init serializes factory calls so that concurrent Acquires on an empty
	// Slot create the value at most once. mu is never held across a
	// factory call.
	init sync.Mutex

	// mu guards the fields below along with every gate mutation made by
	// the Slot, so that the count, the value and lastRelease change together.
	mu          sync.Mutex
	value       T
	present     bool
	set         chan struct{} // closed iff present
	gate        Gate
	gen         uint64 // bumped by ForceRelease to orphan older Tokens
	lastRelease time.Time

	clock clock.Clock
	log   zerolog.Logger
}

// New returns an empty Slot.
func New[T any](opts ...Option) *Slot[T] {
	o := newOptions(opts)
	return &Slot[T]{
		set:         make(chan struct{}),
		lastRelease: o.clock.Now(),
		clock:       o.clock,
		log:         o.log,
	}
}

// NewWithValue returns a Slot already holding v.
func NewWithValue[T any](v T, opts ...Option) *Slot[T] {
	s := New[T](opts...)
	s.Set(v)
	return s
}

// Acquire returns a Token referencing the stored value, calling factory to
// create it if the Slot is empty. The Token must be Released when the caller
// is done with the value. If factory fails, its error is returned unchanged
// and the Slot is left empty with no reference taken.
func (s *Slot[T]) Acquire(factory Factory[T]) (*Token[T], error) {
	if tok, ok := s.tryAcquire(); ok {
		return tok, nil
	}

	s.init.Lock()
	defer s.init.Unlock()

	// someone may have filled the slot while we waited on init.
	if tok, ok := s.tryAcquire(); ok {
		return tok, nil
	}
	if factory == nil {
		return nil, ErrNoFactory
	}

	v, err := factory()
	if err != nil {
		return nil, err
	}

	// storing and taking the reference in one critical section keeps Clear
	// from removing the value before the caller sees it.
	s.mu.Lock()
	s.setLocked(v)
	tok := s.acquireLocked()
	s.mu.Unlock()

	return tok, nil
}

func (s *Slot[T]) tryAcquire() (*Token[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present {
		return nil, false
	}
	return s.acquireLocked(), true
}

func (s *Slot[T]) acquireLocked() *Token[T] {
	s.gate.Increment()
	return &Token[T]{slot: s, value: s.value, gen: s.gen}
}

func (s *Slot[T]) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the reference was already dropped by a ForceRelease. decrementing now
	// would take the count of a holder acquired after it.
	if gen != s.gen {
		s.log.Warn().Str("c", "lazyslot").Uint64("gen", gen).Msg("release of force released token ignored")
		return
	}
	if !s.gate.Decrement() {
		s.log.Warn().Str("c", "lazyslot").Msg("release of idle slot ignored")
		return
	}
	if s.gate.Zero() {
		s.lastRelease = s.clock.Now()
	}
}

// Use calls fn with the stored value, creating it with factory if needed. The
// reference is released when fn returns, fails or panics. Errors from factory
// and fn are returned unchanged.
func (s *Slot[T]) Use(ctx context.Context, factory Factory[T], fn func(context.Context, T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tok, err := s.Acquire(factory)
	if err != nil {
		return err
	}
	defer tok.Release()

	return fn(ctx, tok.Value())
}

// Set stores v regardless of whether the Slot is in use. Outstanding Tokens
// keep the value they were acquired with.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	s.setLocked(v)
	s.mu.Unlock()
}

func (s *Slot[T]) setLocked(v T) {
	s.value = v
	if !s.present {
		s.present = true
		close(s.set)
	}
}

// Peek returns the stored value without taking a reference to it.
func (s *Slot[T]) Peek() (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value, s.present
}

// Clear removes the stored value if the Slot is unused. It returns false
// without changing anything if the Slot is in use, and true otherwise, even
// if there was nothing to remove.
func (s *Slot[T]) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gate.Zero() {
		return false
	}
	s.removeLocked()
	return true
}

// Evict is like Clear but only reports true if a value was actually removed.
func (s *Slot[T]) Evict() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gate.Zero() {
		return false
	}
	return s.removeLocked()
}

func (s *Slot[T]) removeLocked() bool {
	if !s.present {
		return false
	}
	var zero T
	s.value = zero
	s.present = false
	s.set = make(chan struct{})
	return true
}

// ForceRelease drops every outstanding reference at once, as if they had all
// been Released, and returns how many there were. Releasing a Token acquired
// before the ForceRelease has no effect, even once new Tokens are out.
func (s *Slot[T]) ForceRelease() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	n := s.gate.Reset()
	if n > 0 {
		s.lastRelease = s.clock.Now()
		s.log.Debug().Str("c", "lazyslot").Int("refs", n).Msg("forced release")
	}
	return n
}

// SinceRelease returns how long ago the last reference was released. It does
// not take into account whether the Slot is in use right now.
func (s *Slot[T]) SinceRelease() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clock.Now().Sub(s.lastRelease)
}

// Unused returns if no references to the value are outstanding.
func (s *Slot[T]) Unused() bool { return s.gate.Zero() }

// InUse returns the number of outstanding references.
func (s *Slot[T]) InUse() int { return s.gate.Count() }

// WaitSet blocks until the Slot holds a value or the context is done.
func (s *Slot[T]) WaitSet(ctx context.Context) error {
	s.mu.Lock()
	set := s.set
	s.mu.Unlock()

	select {
	case <-set:
		return nil
	default:
	}

	select {
	case <-set:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUnused blocks until no references are outstanding or the context is
// done.
func (s *Slot[T]) WaitUnused(ctx context.Context) error {
	return s.gate.Wait(ctx)
}

package sweeper

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/assert"
	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"

	"github.com/zeebo/lazyslot"
)

const grace = time.Minute

// run reports every sleep a background sweeper begins, every clear and its
// result.
type run struct {
	sleeps chan time.Duration
	clears chan struct{}
	result chan error
}

func start(ctx context.Context, target Target, clk testclock.TestClock, log zerolog.Logger) run {
	r := run{
		sleeps: make(chan time.Duration, 16),
		clears: make(chan struct{}, 16),
		result: make(chan error, 1),
	}
	clk.SetTimerCallback(func(d time.Duration, _ clock.Timer) { r.sleeps <- d })

	go func() {
		r.result <- Run(ctx, target, Options{
			Grace:   grace,
			Clock:   clk,
			Logger:  log,
			OnClear: func() { r.clears <- struct{}{} },
		})
	}()
	return r
}

func TestRunClearsAfterGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	clk := testclock.New(testclock.TestRecentTimeUTC)
	s := lazyslot.NewWithValue("X", lazyslot.WithClock(clk))

	r := start(ctx, s, clk, log)

	assert.Equal(t, <-r.sleeps, grace)
	_, ok := s.Peek()
	assert.That(t, ok)

	clk.Add(grace)
	<-r.clears
	_, ok = s.Peek()
	assert.That(t, !ok)
	assert.That(t, strings.Contains(buf.String(), "cleared idle value"))

	// a value set without being used is already past its grace period.
	s.Set("Y")
	<-r.clears
	_, ok = s.Peek()
	assert.That(t, !ok)

	// a value created by a use gets a fresh grace period.
	assert.NoError(t, s.Use(ctx, func() (string, error) { return "Z", nil }, func(context.Context, string) error {
		return nil
	}))
	assert.Equal(t, <-r.sleeps, grace)
	clk.Add(grace)
	<-r.clears
	_, ok = s.Peek()
	assert.That(t, !ok)

	cancel()
	assert.Equal(t, <-r.result, context.Canceled)
}

func TestRunWaitsForRelease(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := testclock.New(testclock.TestRecentTimeUTC)
	s := lazyslot.NewWithValue("X", lazyslot.WithClock(clk))
	tok, err := s.Acquire(nil)
	assert.NoError(t, err)

	// time passing while the value is held does not count.
	clk.Add(10 * grace)
	r := start(ctx, s, clk, zerolog.Nop())

	tok.Release()
	assert.Equal(t, <-r.sleeps, grace)

	// a use part way through the grace period pushes the clear back.
	clk.Add(grace / 2)
	assert.NoError(t, s.Use(ctx, nil, func(context.Context, string) error {
		clk.Add(grace / 4)
		return nil
	}))
	clk.Add(grace / 4)
	assert.Equal(t, <-r.sleeps, grace*3/4)

	_, ok := s.Peek()
	assert.That(t, ok)

	clk.Add(grace * 3 / 4)
	<-r.clears
	_, ok = s.Peek()
	assert.That(t, !ok)

	cancel()
	assert.Equal(t, <-r.result, context.Canceled)
}

func TestRunEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clk := testclock.New(testclock.TestRecentTimeUTC)
	s := lazyslot.New[string](lazyslot.WithClock(clk))

	r := start(ctx, s, clk, zerolog.Nop())
	cancel()
	assert.Equal(t, <-r.result, context.Canceled)
	assert.Equal(t, len(r.clears), 0)
}

func TestRunInvalidGrace(t *testing.T) {
	s := lazyslot.New[string]()
	assert.Equal(t, Run(context.Background(), s, Options{}), ErrInvalidGrace)
	assert.Equal(t, Run(context.Background(), s, Options{Grace: -time.Second}), ErrInvalidGrace)
}

// fakeTarget is always set and long idle, but behaves as if someone else
// cleared it before its first Evict.
type fakeTarget struct {
	evicts  int
	cleared bool
}

func (f *fakeTarget) WaitSet(ctx context.Context) error {
	if f.cleared {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeTarget) WaitUnused(ctx context.Context) error { return nil }
func (f *fakeTarget) SinceRelease() time.Duration { return time.Hour }

func (f *fakeTarget) Evict() bool {
	f.evicts++
	if f.evicts == 1 {
		return false
	}
	f.cleared = true
	return true
}

func TestRunSkipsEmptyEvict(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := new(fakeTarget)
	onClear := 0
	err := Run(ctx, f, Options{
		Grace: grace,
		OnClear: func() {
			onClear++
			cancel()
		},
	})

	assert.Equal(t, err, context.Canceled)
	assert.Equal(t, f.evicts, 2)
	assert.Equal(t, onClear, 1)
}

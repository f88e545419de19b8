// Package sweeper clears a lazily created value once it has gone unused for a
// grace period.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.chromium.org/luci/common/clock"
)

// ErrInvalidGrace is returned by Run when the grace period is not positive.
var ErrInvalidGrace = errors.New("sweeper: grace period must be positive")

// Target is the value holder being swept. *lazyslot.Slot satisfies it.
type Target interface {
	WaitSet(ctx context.Context) error
	WaitUnused(ctx context.Context) error
	SinceRelease() time.Duration

	// Evict removes the value if it is unused and reports whether a value
	// was actually removed.
	Evict() bool
}

// Options configures Run.
type Options struct {
	// Grace is how long the target must stay unused before it is cleared.
	Grace time.Duration

	// Clock is used to wait out the grace period. It defaults to the system
	// clock and should match the clock the target stamps releases with.
	Clock clock.Clock

	// Logger receives a debug event for every clear. The zero value logs
	// nothing.
	Logger zerolog.Logger

	// OnClear, if set, is called every time the sweeper removes a value.
	OnClear func()
}

// Run clears target every time it has been set and then left unused for the
// grace period. It returns when the context is done.
func Run(ctx context.Context, target Target, opts Options) error {
	if opts.Grace <= 0 {
		return ErrInvalidGrace
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.GetSystemClock()
	}

	for {
		if err := target.WaitSet(ctx); err != nil {
			return err
		}
		if err := target.WaitUnused(ctx); err != nil {
			return err
		}

		// the target may have been used while we slept, so the remaining
		// time is recomputed on every pass.
		if remaining := opts.Grace - target.SinceRelease(); remaining > 0 {
			if tr := clk.Sleep(ctx, remaining); tr.Err != nil {
				return tr.Err
			}
			continue
		}

		// nothing was removed if a new reference showed up after WaitUnused
		// or someone else cleared the value first.
		if !target.Evict() {
			continue
		}
		opts.Logger.Debug().Str("c", "sweeper").Dur("grace", opts.Grace).Msg("cleared idle value")
		if opts.OnClear != nil {
			opts.OnClear()
		}
	}
}

package lazyslot

import (
	"github.com/rs/zerolog"
	"go.chromium.org/luci/common/clock"
)

// Option configures a Slot.
type Option func(*options)

type options struct {
	clock clock.Clock
	log   zerolog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		clock: clock.GetSystemClock(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the clock used to stamp releases. The system clock is used
// by default.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger used to report over-releases and forced
// releases. Nothing is logged by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

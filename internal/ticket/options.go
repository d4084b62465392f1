package ticket

import (
	"errors"
	"time"
)

// DefaultRefreshCooldown is the minimum age of a pending DoiRequest before
// its owner may refresh it.
const DefaultRefreshCooldown = 24 * time.Hour

// Option is a functional option for configuring a [Service].
type Option func(*Options)

// Options holds the configuration for a [Service].
type Options struct {
	refreshCooldown time.Duration
	clock           func() time.Time
}

func newOptions() *Options {
	return &Options{
		refreshCooldown: DefaultRefreshCooldown,
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

func (o *Options) validate() error {
	if o.refreshCooldown < 0 {
		return errors.New("refresh cooldown must not be negative")
	}
	if o.clock == nil {
		return errors.New("clock is required")
	}
	return nil
}

// WithRefreshCooldown sets how old a pending DoiRequest must be before it can
// be refreshed. Default: 24 hours.
func WithRefreshCooldown(d time.Duration) Option {
	return func(o *Options) {
		o.refreshCooldown = d
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.clock = clock
	}
}

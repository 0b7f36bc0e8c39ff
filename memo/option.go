package memo

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

type config struct {
	clock     clock.Clock
	dedupOnly bool
	sweepIn   time.Duration
	ttl       time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock: clock.New(),
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClock sets the clock used to timestamp and expire entries.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("nil clock")
		}
		cfg.clock = c
		return nil
	}
}

// WithTTL sets how long a resolved entry is served before it is recomputed.
// A value of 0 means entries do not expire.
//
// Default is 0.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl < 0 {
			return errors.New("ttl cannot be negative")
		}
		cfg.ttl = ttl
		return nil
	}
}

// WithDedupOnly makes the cache drop each entry as soon as it resolves.
// Concurrent callers still share one computation.
func WithDedupOnly() Option {
	return func(cfg *config) error {
		cfg.dedupOnly = true
		return nil
	}
}

// WithSweepInterval starts a background sweep that removes expired entries
// at the given interval. Has no effect unless a TTL is set. The sweep is
// stopped by Close.
func WithSweepInterval(interval time.Duration) Option {
	return func(cfg *config) error {
		if interval < 0 {
			return errors.New("sweep interval cannot be negative")
		}
		cfg.sweepIn = interval
		return nil
	}
}

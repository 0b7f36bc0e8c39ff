package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

const defaultRange = 365 * 24 * time.Hour

type config struct {
	clock        clock.Clock
	defaultRange time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:        clock.New(),
		defaultRange: defaultRange,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClock sets the clock used to pick the default end date.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("nil clock")
		}
		cfg.clock = c
		return nil
	}
}

// WithDefaultRange sets how far before the end date the range starts when a
// request gives no start date.
//
// Default is 365 days.
func WithDefaultRange(d time.Duration) Option {
	return func(cfg *config) error {
		if d < 0 {
			return errors.New("default range cannot be negative")
		}
		cfg.defaultRange = d
		return nil
	}
}

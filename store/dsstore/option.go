package dsstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = time.Minute
)

type config struct {
	cacheSize int
	cacheTTL  time.Duration
	clock     clock.Clock
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
		clock:     clock.New(),
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithCacheSize sets the maximum number of records held in the read cache.
// A value of 0 disables the read cache.
//
// Default is 1024.
func WithCacheSize(size int) Option {
	return func(cfg *config) error {
		if size < 0 {
			return errors.New("cache size cannot be negative")
		}
		cfg.cacheSize = size
		return nil
	}
}

// WithCacheTTL sets how long a record stays in the read cache.
//
// Default is 1 minute.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl <= 0 {
			return errors.New("cache ttl must be positive")
		}
		cfg.cacheTTL = ttl
		return nil
	}
}

// WithClock sets the clock used to timestamp locks and updates.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("nil clock")
		}
		cfg.clock = c
		return nil
	}
}

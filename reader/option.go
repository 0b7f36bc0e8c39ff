package reader

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ipni/go-freshcache/freshness"
	"github.com/ipni/go-freshcache/model"
	"github.com/ipni/go-freshcache/store"
	"github.com/ipni/go-freshcache/trim"
)

const (
	defaultDemoTTL      = 15 * time.Minute
	defaultDemoTimezone = "US/Eastern"
)

// TrimFunc restricts a package to a date range. It must not modify its input.
type TrimFunc func(p *model.Package, start, end time.Time) *model.Package

type config struct {
	cacheTTL     time.Duration
	clock        clock.Clock
	dataMaxAge   time.Duration
	demoRotator  KeyRotator
	demoSource   DemoSource
	demoTTL      time.Duration
	demoTimezone string
	lockWindow   time.Duration
	locker       store.Locker
	sweepIn      time.Duration
	trim         TrimFunc
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:        clock.New(),
		dataMaxAge:   freshness.DataMaxAge,
		demoTTL:      defaultDemoTTL,
		demoTimezone: defaultDemoTimezone,
		lockWindow:   freshness.LockWindow,
		trim:         trim.Package,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClock sets the clock used for freshness checks and cache expiry.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("nil clock")
		}
		cfg.clock = c
		return nil
	}
}

// WithCacheTTL sets how long GetEntity results are cached. A value of 0
// caches results until ClearCache is called.
//
// Default is 0.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl < 0 {
			return errors.New("cache ttl cannot be negative")
		}
		cfg.cacheTTL = ttl
		return nil
	}
}

// WithSweepInterval removes expired cache entries in the background at the
// given interval.
func WithSweepInterval(interval time.Duration) Option {
	return func(cfg *config) error {
		cfg.sweepIn = interval
		return nil
	}
}

// WithDataMaxAge sets the age after which stored data is stale and a refresh
// is requested.
//
// Default is 6 hours.
func WithDataMaxAge(maxAge time.Duration) Option {
	return func(cfg *config) error {
		if maxAge <= 0 {
			return errors.New("data max age must be positive")
		}
		cfg.dataMaxAge = maxAge
		return nil
	}
}

// WithLockWindow sets how long after a refresh request another request for
// the same entity is suppressed.
//
// Default is 1 minute.
func WithLockWindow(window time.Duration) Option {
	return func(cfg *config) error {
		if window < 0 {
			return errors.New("lock window cannot be negative")
		}
		cfg.lockWindow = window
		return nil
	}
}

// WithStrictLock makes the reader also take the refresh lock in the store,
// using compare-and-swap, before requesting a refresh. Without this, two
// readers that both see an expired lock may both request a refresh.
func WithStrictLock(locker store.Locker) Option {
	return func(cfg *config) error {
		cfg.locker = locker
		return nil
	}
}

// WithTrimmer sets the function that restricts packages to the requested
// date range.
//
// Default is trim.Package.
func WithTrimmer(fn TrimFunc) Option {
	return func(cfg *config) error {
		if fn == nil {
			return errors.New("nil trim function")
		}
		cfg.trim = fn
		return nil
	}
}

// WithDemo enables GetEntityDemo, which computes packages directly from
// source. If rotator is not nil, it is run to completion before each
// computation.
func WithDemo(source DemoSource, rotator KeyRotator) Option {
	return func(cfg *config) error {
		if source == nil {
			return errors.New("nil demo source")
		}
		cfg.demoSource = source
		cfg.demoRotator = rotator
		return nil
	}
}

// WithDemoTTL sets how long GetEntityDemo results are cached.
//
// Default is 15 minutes.
func WithDemoTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl < 0 {
			return errors.New("demo ttl cannot be negative")
		}
		cfg.demoTTL = ttl
		return nil
	}
}

// WithDemoTimezone sets the timezone name given to the demo source.
//
// Default is "US/Eastern".
func WithDemoTimezone(tz string) Option {
	return func(cfg *config) error {
		cfg.demoTimezone = tz
		return nil
	}
}

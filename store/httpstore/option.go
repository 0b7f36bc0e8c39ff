package httpstore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

type config struct {
	client       *http.Client
	timeout      time.Duration
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		timeout:      defaultTimeout,
		retryWaitMin: time.Second,
		retryWaitMax: 10 * time.Second,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClient allows creation of the http client using an underlying network
// round tripper / client.
func WithClient(c *http.Client) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.client = c
		}
		return nil
	}
}

// WithTimeout sets the timeout for each request. Ignored when WithClient is
// used.
//
// Default is 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) error {
		cfg.timeout = timeout
		return nil
	}
}

// WithRetries retries failed reads up to retryMax times, waiting between
// waitMin and waitMax between attempts.
func WithRetries(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(cfg *config) error {
		if retryMax < 0 {
			return errors.New("retry count cannot be negative")
		}
		if waitMax < waitMin {
			return errors.New("maximum retry wait is less than minimum")
		}
		cfg.retryMax = retryMax
		cfg.retryWaitMin = waitMin
		cfg.retryWaitMax = waitMax
		return nil
	}
}

package httpsender

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	freshcache "github.com/ipni/go-freshcache"
)

const (
	defaultTimeout      = time.Minute
	defaultRetryWaitMin = time.Second
	defaultRetryWaitMax = 10 * time.Second
)

type config struct {
	timeout      time.Duration
	client       *http.Client
	userAgent    string
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
		userAgent:    "go-freshcache/" + freshcache.Release,
		retryWaitMin: defaultRetryWaitMin,
		retryWaitMax: defaultRetryWaitMax,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithTimeout configures the timeout to wait for a response. Ignored when
// WithClient is used.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) error {
		cfg.timeout = timeout
		return nil
	}
}

// WithClient uses an existing http.Client with the Sender.
func WithClient(c *http.Client) Option {
	return func(cfg *config) error {
		cfg.client = c
		return nil
	}
}

// WithUserAgent sets the value used for the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(cfg *config) error {
		cfg.userAgent = userAgent
		return nil
	}
}

// WithRetries retries failed requests up to retryMax times, waiting between
// waitMin and waitMax between attempts. Connection errors and 5xx responses
// are retried.
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

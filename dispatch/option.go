package dispatch

import (
	"fmt"
	"time"
)

const defaultSendTimeout = 30 * time.Second

type config struct {
	async       bool
	sendTimeout time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		sendTimeout: defaultSendTimeout,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithAsync makes RequestRefresh queue messages and return without waiting
// for them to be sent. Queued messages are sent in order by one background
// goroutine. The queue is unbounded.
func WithAsync() Option {
	return func(cfg *config) error {
		cfg.async = true
		return nil
	}
}

// WithSendTimeout sets the time allowed to send one message to all senders
// when sending from the async queue. A value of 0 means no timeout.
//
// Default is 30 seconds.
func WithSendTimeout(timeout time.Duration) Option {
	return func(cfg *config) error {
		cfg.sendTimeout = timeout
		return nil
	}
}

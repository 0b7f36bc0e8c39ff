package memo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("memo")

// Producer computes the value for a key on a cache miss.
type Producer[V any] func(context.Context) (V, error)

// Cache memoizes the results of producers by key. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	clock     clock.Clock
	dedupOnly bool
	ttl       time.Duration

	mu      sync.Mutex
	entries map[K]*entry[V]
	stats   Stats

	closeOnce sync.Once
	closing   chan struct{}
	sweepDone chan struct{}
}

// entry is installed before its producer starts. Until done is closed, only
// the goroutine running the producer writes value and err. An evicted entry
// stays in the map while its producer runs, so that later lookups still join
// it, and is deleted instead of cached when the producer finishes.
type entry[V any] struct {
	done     chan struct{}
	value    V
	err      error
	resolved time.Time
	evicted  bool
}

// Stats are counters of cache activity.
type Stats struct {
	// Hits counts lookups served from a resolved entry.
	Hits uint64
	// Misses counts lookups that started a producer.
	Misses uint64
	// Coalesced counts lookups that joined an in-flight producer.
	Coalesced uint64
	// Failures counts producers that returned an error or panicked.
	Failures uint64
}

// New creates a new Cache.
func New[K comparable, V any](options ...Option) (*Cache[K, V], error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	c := &Cache[K, V]{
		clock:     opts.clock,
		dedupOnly: opts.dedupOnly,
		ttl:       opts.ttl,
		entries:   make(map[K]*entry[V]),
		closing:   make(chan struct{}),
	}

	if opts.sweepIn != 0 && opts.ttl != 0 && !opts.dedupOnly {
		c.sweepDone = make(chan struct{})
		go c.sweep(opts.sweepIn)
	}

	return c, nil
}

// Get returns the cached value for key. If there is no live entry for key,
// producer is called to compute it. If a computation for key is already in
// flight, Get waits for it instead of calling producer.
func (c *Cache[K, V]) Get(ctx context.Context, key K, producer Producer[V]) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		select {
		case <-e.done:
			if c.expired(e, c.clock.Now()) {
				delete(c.entries, key)
				ok = false
			} else {
				c.stats.Hits++
			}
		default:
			c.stats.Coalesced++
		}
	}
	if !ok {
		e = &entry[V]{done: make(chan struct{})}
		c.entries[key] = e
		c.stats.Misses++
		go c.produce(context.WithoutCancel(ctx), key, e, producer)
	}
	c.mu.Unlock()

	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[K, V]) produce(ctx context.Context, key K, e *entry[V], producer Producer[V]) {
	var (
		value V
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic while producing value for key %v: %v", key, r)
			}
		}()
		value, err = producer(ctx)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.stats.Failures++
		log.Debugw("Producer failed, not caching result", "key", key, "err", err)
		e.err = err
	} else {
		e.value = value
	}
	e.resolved = c.clock.Now()

	// Do not remove a newer entry installed after this one was removed.
	if (err != nil || c.dedupOnly || e.evicted) && c.entries[key] == e {
		delete(c.entries, key)
	}
	close(e.done)
}

// expired must be called with the lock held and only on resolved entries.
func (c *Cache[K, V]) expired(e *entry[V], now time.Time) bool {
	return c.ttl != 0 && now.Sub(e.resolved) > c.ttl
}

// Remove drops the entry for key. A computation in flight for the key still
// completes for its waiters, and for lookups made before it completes, but
// its result is not cached.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.evict(key, e)
	}
}

// Clear drops all entries. In-flight computations are handled as by Remove.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		c.evict(key, e)
	}
}

// evict must be called with the lock held.
func (c *Cache[K, V]) evict(key K, e *entry[V]) {
	select {
	case <-e.done:
		delete(c.entries, key)
	default:
		e.evicted = true
	}
}

// Len returns the number of entries, including in-flight and expired entries
// that have not yet been removed.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops the background sweep, if any. The cache remains usable.
func (c *Cache[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		if c.sweepDone != nil {
			<-c.sweepDone
		}
	})
}

func (c *Cache[K, V]) sweep(interval time.Duration) {
	defer close(c.sweepDone)

	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.closing:
			return
		}
	}
}

func (c *Cache[K, V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	var n int
	for key, e := range c.entries {
		select {
		case <-e.done:
		default:
			continue
		}
		if c.expired(e, now) {
			delete(c.entries, key)
			n++
		}
	}
	if n != 0 {
		log.Debugw("Removed expired entries", "count", n)
	}
}

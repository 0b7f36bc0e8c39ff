package memo_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ipni/go-freshcache/memo"
	"github.com/stretchr/testify/require"
)

type testKey struct {
	id     string
	bypass bool
}

// countingProducer returns a producer that counts its calls and, if release
// is not nil, blocks until release is closed.
func countingProducer(calls *atomic.Int32, value string, release <-chan struct{}) memo.Producer[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		if release != nil {
			<-release
		}
		return value, nil
	}
}

func TestGetCachesValue(t *testing.T) {
	c, err := memo.New[testKey, string]()
	require.NoError(t, err)

	var calls atomic.Int32
	ctx := context.Background()
	key := testKey{id: "a"}

	v, err := c.Get(ctx, key, countingProducer(&calls, "one", nil))
	require.NoError(t, err)
	require.Equal(t, "one", v)

	v, err = c.Get(ctx, key, countingProducer(&calls, "two", nil))
	require.NoError(t, err)
	require.Equal(t, "one", v)
	require.Equal(t, int32(1), calls.Load())

	// Different key field is a different entry.
	v, err = c.Get(ctx, testKey{id: "a", bypass: true}, countingProducer(&calls, "three", nil))
	require.NoError(t, err)
	require.Equal(t, "three", v)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, 2, c.Len())

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(2), stats.Misses)
}

func TestConcurrentGetSingleFlight(t *testing.T) {
	c, err := memo.New[testKey, string]()
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	key := testKey{id: "a"}

	const waiters = 10
	results := make([]string, waiters)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := c.Get(context.Background(), key, countingProducer(&calls, "shared", release))
		require.NoError(t, err)
		results[0] = v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	for i := 1; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), key, countingProducer(&calls, "other", nil))
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	require.Eventually(t, func() bool {
		return c.Stats().Coalesced == waiters-1
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.Equal(t, "shared", v)
	}
}

func TestErrorNotCached(t *testing.T) {
	c, err := memo.New[string, int]()
	require.NoError(t, err)

	errFail := errors.New("store down")
	var calls int
	failing := func(ctx context.Context) (int, error) {
		calls++
		return 0, errFail
	}

	_, err = c.Get(context.Background(), "k", failing)
	require.ErrorIs(t, err, errFail)
	require.Zero(t, c.Len())

	v, err := c.Get(context.Background(), "k", func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 2, calls)
	require.Equal(t, uint64(1), c.Stats().Failures)
}

func TestPanicNotCached(t *testing.T) {
	c, err := memo.New[string, int]()
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "k", func(ctx context.Context) (int, error) {
		panic("boom")
	})
	require.ErrorContains(t, err, "boom")
	require.Zero(t, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	mock := clock.NewMock()
	c, err := memo.New[string, string](memo.WithClock(mock), memo.WithTTL(15*time.Minute))
	require.NoError(t, err)

	var calls atomic.Int32
	ctx := context.Background()

	_, err = c.Get(ctx, "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)

	mock.Add(14*time.Minute + 59*time.Second)
	_, err = c.Get(ctx, "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	mock.Add(2 * time.Second)
	_, err = c.Get(ctx, "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestNoTTLNeverExpires(t *testing.T) {
	mock := clock.NewMock()
	c, err := memo.New[string, string](memo.WithClock(mock))
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = c.Get(context.Background(), "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)

	mock.Add(1000 * time.Hour)
	_, err = c.Get(context.Background(), "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestDedupOnly(t *testing.T) {
	c, err := memo.New[string, string](memo.WithDedupOnly())
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = c.Get(context.Background(), "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)
	require.Zero(t, c.Len())

	_, err = c.Get(context.Background(), "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestAbandonedCallerDoesNotCancelProducer(t *testing.T) {
	c, err := memo.New[string, string]()
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	var producerErr atomic.Value

	producer := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		if ctx.Err() != nil {
			producerErr.Store(ctx.Err())
		}
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", producer)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	v, err := c.Get(context.Background(), "k", producer)
	require.NoError(t, err)
	require.Equal(t, "done", v)
	require.Equal(t, int32(1), calls.Load())
	require.Nil(t, producerErr.Load())
}

func TestRemoveAndClear(t *testing.T) {
	c, err := memo.New[string, string]()
	require.NoError(t, err)

	var calls atomic.Int32
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, err = c.Get(ctx, k, countingProducer(&calls, k, nil))
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	c.Remove("a")
	require.Equal(t, 2, c.Len())
	_, err = c.Get(ctx, "a", countingProducer(&calls, "a", nil))
	require.NoError(t, err)
	require.Equal(t, int32(4), calls.Load())

	c.Clear()
	require.Zero(t, c.Len())
}

func TestRemoveDuringProduce(t *testing.T) {
	for _, evict := range []string{"remove", "clear"} {
		t.Run(evict, func(t *testing.T) {
			c, err := memo.New[string, string]()
			require.NoError(t, err)

			var calls, running, maxRunning atomic.Int32
			release := make(chan struct{})
			producer := func(ctx context.Context) (string, error) {
				calls.Add(1)
				n := running.Add(1)
				defer running.Add(-1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				<-release
				return "v", nil
			}

			ctx := context.Background()
			results := make(chan string, 2)
			go func() {
				v, err := c.Get(ctx, "k", producer)
				require.NoError(t, err)
				results <- v
			}()
			require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

			if evict == "remove" {
				c.Remove("k")
			} else {
				c.Clear()
			}

			// Joins the evicted computation instead of starting another.
			go func() {
				v, err := c.Get(ctx, "k", producer)
				require.NoError(t, err)
				results <- v
			}()
			require.Eventually(t, func() bool { return c.Stats().Coalesced == 1 }, time.Second, time.Millisecond)

			close(release)
			require.Equal(t, "v", <-results)
			require.Equal(t, "v", <-results)
			require.Equal(t, int32(1), calls.Load())
			require.Equal(t, int32(1), maxRunning.Load())

			// Evicted result was not cached.
			require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, time.Millisecond)
			_, err = c.Get(ctx, "k", countingProducer(&calls, "w", nil))
			require.NoError(t, err)
			require.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestSweep(t *testing.T) {
	mock := clock.NewMock()
	c, err := memo.New[string, string](
		memo.WithClock(mock),
		memo.WithTTL(5*time.Minute),
		memo.WithSweepInterval(time.Minute),
	)
	require.NoError(t, err)
	defer c.Close()

	var calls atomic.Int32
	_, err = c.Get(context.Background(), "k", countingProducer(&calls, "v", nil))
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	require.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBadOptions(t *testing.T) {
	_, err := memo.New[string, string](memo.WithTTL(-time.Second))
	require.Error(t, err)
	_, err = memo.New[string, string](memo.WithClock(nil))
	require.Error(t, err)
	_, err = memo.New[string, string](memo.WithSweepInterval(-time.Second))
	require.Error(t, err)
}

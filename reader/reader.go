// Package reader serves entity packages with stale-while-revalidate
// semantics. Stored data is returned immediately, even when stale, and a
// refresh is requested in the background, at most once per lock window.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ipni/go-freshcache/freshness"
	"github.com/ipni/go-freshcache/memo"
	"github.com/ipni/go-freshcache/model"
	"github.com/ipni/go-freshcache/store"
)

var log = logging.Logger("reader")

// ErrNoDemo is returned by GetEntityDemo when no demo source is configured.
var ErrNoDemo = errors.New("demo source not configured")

// Refresher requests a recomputation of an entity's data. It is satisfied by
// *dispatch.Dispatcher.
type Refresher interface {
	RequestRefresh(ctx context.Context, entityID, credential string) bool
}

// DemoSource computes a package directly, without stored data or a
// credential.
type DemoSource interface {
	Compute(ctx context.Context, entityID string, start, end time.Time, timezone string) (*model.Package, error)
}

// KeyRotator prepares source credentials before a demo computation.
type KeyRotator interface {
	RotateKeys(ctx context.Context) error
}

// Key identifies a memoized result.
type Key struct {
	EntityID string
	Start    string
	End      string
	Bypass   bool
}

func newKey(entityID string, start, end time.Time, bypass bool) Key {
	return Key{
		EntityID: entityID,
		Start:    start.Format(model.DateLayout),
		End:      end.Format(model.DateLayout),
		Bypass:   bypass,
	}
}

// Result is the outcome of a read. Found is false when the entity exists but
// has no valid data yet.
type Result struct {
	Found   bool
	Package *model.Package
}

// Reader coordinates reads from a Store with refresh requests to a
// Refresher.
type Reader struct {
	store     store.Store
	refresher Refresher
	clock     clock.Clock

	dataMaxAge time.Duration
	lockWindow time.Duration
	locker     store.Locker
	trim       TrimFunc

	demoSource   DemoSource
	demoRotator  KeyRotator
	demoTimezone string

	cache     *memo.Cache[Key, Result]
	demoCache *memo.Cache[Key, Result]
}

// New creates a Reader that reads records from st and requests refreshes
// from rf.
func New(st store.Store, rf Refresher, options ...Option) (*Reader, error) {
	if st == nil {
		return nil, errors.New("nil store")
	}
	if rf == nil {
		return nil, errors.New("nil refresher")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	cacheOpts := []memo.Option{memo.WithClock(opts.clock), memo.WithTTL(opts.cacheTTL)}
	demoOpts := []memo.Option{memo.WithClock(opts.clock), memo.WithTTL(opts.demoTTL)}
	if opts.sweepIn != 0 {
		cacheOpts = append(cacheOpts, memo.WithSweepInterval(opts.sweepIn))
		demoOpts = append(demoOpts, memo.WithSweepInterval(opts.sweepIn))
	}

	cache, err := memo.New[Key, Result](cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create cache: %w", err)
	}
	demoCache, err := memo.New[Key, Result](demoOpts...)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("cannot create demo cache: %w", err)
	}

	return &Reader{
		store:        st,
		refresher:    rf,
		clock:        opts.clock,
		dataMaxAge:   opts.dataMaxAge,
		lockWindow:   opts.lockWindow,
		locker:       opts.locker,
		trim:         opts.trim,
		demoSource:   opts.demoSource,
		demoRotator:  opts.demoRotator,
		demoTimezone: opts.demoTimezone,
		cache:        cache,
		demoCache:    demoCache,
	}, nil
}

// ReadEntity loads the entity's record and returns its package if the
// package is valid, even if it is stale. Returns nil with no error when the
// record holds no valid package. If the data is stale or invalid, and no
// refresh was requested within the lock window, a refresh is requested.
//
// Returns a *LookupError if the entity is not in the store or has no
// credential.
func (r *Reader) ReadEntity(ctx context.Context, entityID string, bypassCache bool) (*model.Package, error) {
	rec, err := r.store.GetRecord(ctx, entityID, bypassCache)
	if err != nil {
		return nil, fmt.Errorf("cannot read record for %s: %w", entityID, err)
	}
	if rec == nil || rec.Credential == "" {
		return nil, &LookupError{EntityID: entityID}
	}

	now := r.clock.Now()
	valid := freshness.PackageValid(rec.RawData)
	if !valid || !freshness.Fresh(rec.LastUpdated, r.dataMaxAge, now) {
		r.maybeRefresh(ctx, rec, now)
	}

	if !valid {
		return nil, nil
	}
	return rec.RawData, nil
}

func (r *Reader) maybeRefresh(ctx context.Context, rec *model.Record, now time.Time) {
	if freshness.Locked(rec.Lock, r.lockWindow, now) {
		log.Debugw("Refresh already requested", "entity", rec.EntityID, "lock", rec.Lock)
		return
	}
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(ctx, rec.EntityID, r.lockWindow)
		if err != nil {
			log.Warnw("Cannot acquire refresh lock", "entity", rec.EntityID, "err", err)
			return
		}
		if !ok {
			log.Debugw("Refresh lock held by another reader", "entity", rec.EntityID)
			return
		}
	}
	if !r.refresher.RequestRefresh(ctx, rec.EntityID, rec.Credential) {
		log.Warnw("Refresh request not sent", "entity", rec.EntityID)
		return
	}
	log.Infow("Requested refresh", "entity", rec.EntityID, "lastUpdated", rec.LastUpdated)
}

// GetEntity returns the entity's package restricted to the dates from start
// to end, inclusive. Successful results are memoized by entity, date range,
// and bypassCache. Concurrent calls with the same arguments share one read.
func (r *Reader) GetEntity(ctx context.Context, entityID string, start, end time.Time, bypassCache bool) (Result, error) {
	key := newKey(entityID, start, end, bypassCache)
	return r.cache.Get(ctx, key, func(ctx context.Context) (Result, error) {
		pkg, err := r.ReadEntity(ctx, entityID, bypassCache)
		if err != nil {
			return Result{}, err
		}
		if pkg == nil {
			return Result{}, nil
		}
		return Result{
			Found:   true,
			Package: r.trim(pkg, start, end),
		}, nil
	})
}

// GetEntityDemo computes the entity's package directly from the demo source,
// after rotating source keys. Results are memoized for the demo TTL.
func (r *Reader) GetEntityDemo(ctx context.Context, entityID string, start, end time.Time, bypassCache bool) (Result, error) {
	if r.demoSource == nil {
		return Result{}, ErrNoDemo
	}
	key := newKey(entityID, start, end, bypassCache)
	return r.demoCache.Get(ctx, key, func(ctx context.Context) (Result, error) {
		if r.demoRotator != nil {
			if err := r.demoRotator.RotateKeys(ctx); err != nil {
				return Result{}, fmt.Errorf("cannot rotate keys: %w", err)
			}
		}
		pkg, err := r.demoSource.Compute(ctx, entityID, start, end, r.demoTimezone)
		if err != nil {
			return Result{}, fmt.Errorf("cannot compute demo for %s: %w", entityID, err)
		}
		return Result{
			Found:   true,
			Package: pkg,
		}, nil
	})
}

// RequestUpdate asks for the entity's data to be recomputed. If credential
// is empty, it is looked up by the refresher. Returns true if the request
// was sent or queued.
func (r *Reader) RequestUpdate(ctx context.Context, entityID, credential string) bool {
	return r.refresher.RequestRefresh(ctx, entityID, credential)
}

// ClearCache drops all memoized results.
func (r *Reader) ClearCache() {
	r.cache.Clear()
	r.demoCache.Clear()
}

// Close stops background cache maintenance.
func (r *Reader) Close() {
	r.cache.Close()
	r.demoCache.Close()
}

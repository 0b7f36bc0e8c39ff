// Package dsstore keeps entity records in a go-datastore Datastore, with a
// read cache in front of it.
package dsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ipni/go-freshcache/freshness"
	"github.com/ipni/go-freshcache/model"
	"github.com/ipni/go-freshcache/store"
	"golang.org/x/sync/singleflight"
)

var log = logging.Logger("dsstore")

const keyPrefix = "/entity/"

// ErrNoEntityID is returned by Put for a record with an empty EntityID.
var ErrNoEntityID = errors.New("record has no entity id")

// Store is a record store backed by a Datastore.
type Store struct {
	ds    datastore.Datastore
	cache *expirable.LRU[string, *model.Record]
	clock clock.Clock
	group singleflight.Group

	// writeMutex serializes read-modify-write updates of a record.
	writeMutex sync.Mutex
	// writes is incremented, with writeMutex held, by every write or delete.
	writes atomic.Uint64
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Locker = (*Store)(nil)
)

// New creates a Store that keeps records in ds. The Datastore must be safe
// for concurrent use, for example by wrapping it with sync.MutexWrap.
func New(ds datastore.Datastore, options ...Option) (*Store, error) {
	if ds == nil {
		return nil, errors.New("nil datastore")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	s := &Store{
		ds:    ds,
		clock: opts.clock,
	}
	if opts.cacheSize != 0 {
		s.cache = expirable.NewLRU[string, *model.Record](opts.cacheSize, nil, opts.cacheTTL)
	}
	return s, nil
}

func dsKey(entityID string) datastore.Key {
	return datastore.NewKey(keyPrefix + entityID)
}

// GetRecord returns the record for the entity, or nil if there is none.
// Concurrent reads of the same record are coalesced into one datastore read.
// With bypassCache set the read cache is not consulted, but is refreshed
// with what is read.
func (s *Store) GetRecord(ctx context.Context, entityID string, bypassCache bool) (*model.Record, error) {
	if !bypassCache && s.cache != nil {
		if rec, ok := s.cache.Get(entityID); ok {
			return rec, nil
		}
	}

	// The shared read may outlive the caller that started it.
	readCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(entityID, func() (interface{}, error) {
		writes := s.writes.Load()
		rec, err := s.read(readCtx, entityID)
		if err != nil {
			return nil, err
		}
		if rec != nil && s.cache != nil {
			s.cacheRead(entityID, rec, writes)
		}
		return rec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Record), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cacheRead caches a record read from the datastore, unless a write happened
// since the read started. A later write has already cached a newer record.
func (s *Store) cacheRead(entityID string, rec *model.Record, writes uint64) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if s.writes.Load() != writes {
		return
	}
	s.cache.Add(entityID, rec)
}

// GetMetadata returns the metadata for the entity, or nil if there is no
// record for it.
func (s *Store) GetMetadata(ctx context.Context, entityID string) (*model.Metadata, error) {
	rec, err := s.GetRecord(ctx, entityID, false)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Metadata(), nil
}

// Put stores a record, replacing any existing record for the same entity.
func (s *Store) Put(ctx context.Context, rec *model.Record) error {
	if rec.EntityID == "" {
		return ErrNoEntityID
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	return s.write(ctx, rec)
}

// Delete removes the record for the entity.
func (s *Store) Delete(ctx context.Context, entityID string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	s.writes.Add(1)
	if s.cache != nil {
		s.cache.Remove(entityID)
	}
	err := s.ds.Delete(ctx, dsKey(entityID))
	if err != nil && !errors.Is(err, datastore.ErrNotFound) {
		return err
	}
	return nil
}

// UpdateData stores a newly computed package for the entity and marks it as
// updated now. This is the write done by the worker after a refresh.
func (s *Store) UpdateData(ctx context.Context, entityID string, pkg *model.Package) error {
	return s.update(ctx, entityID, func(rec *model.Record) bool {
		rec.RawData = pkg
		rec.LastUpdated = s.clock.Now()
		return true
	})
}

// SetLock sets the entity's refresh lock timestamp unconditionally.
func (s *Store) SetLock(ctx context.Context, entityID string, lock time.Time) error {
	return s.update(ctx, entityID, func(rec *model.Record) bool {
		rec.Lock = lock
		return true
	})
}

// AcquireLock sets the entity's refresh lock to now unless it was set less
// than window ago. Returns false without error if there is no record.
func (s *Store) AcquireLock(ctx context.Context, entityID string, window time.Duration) (bool, error) {
	var acquired bool
	err := s.update(ctx, entityID, func(rec *model.Record) bool {
		now := s.clock.Now()
		if freshness.Locked(rec.Lock, window, now) {
			return false
		}
		rec.Lock = now
		acquired = true
		return true
	})
	if errors.Is(err, datastore.ErrNotFound) {
		return false, nil
	}
	return acquired, err
}

// update applies modify to a copy of the stored record, and writes the copy if
// modify returns true. Returns datastore.ErrNotFound if there is no record.
func (s *Store) update(ctx context.Context, entityID string, modify func(*model.Record) bool) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	rec, err := s.read(ctx, entityID)
	if err != nil {
		return err
	}
	if rec == nil {
		return datastore.ErrNotFound
	}
	if !modify(rec) {
		return nil
	}
	return s.write(ctx, rec)
}

func (s *Store) read(ctx context.Context, entityID string) (*model.Record, error) {
	data, err := s.ds.Get(ctx, dsKey(entityID))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read record %s: %w", entityID, err)
	}
	rec := new(model.Record)
	if err = json.Unmarshal(data, rec); err != nil {
		log.Errorw("Cannot decode stored record", "err", err, "entity", entityID)
		return nil, fmt.Errorf("cannot decode record %s: %w", entityID, err)
	}
	return rec, nil
}

// write must be called with writeMutex held.
func (s *Store) write(ctx context.Context, rec *model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.writes.Add(1)
	if err = s.ds.Put(ctx, dsKey(rec.EntityID), data); err != nil {
		return fmt.Errorf("cannot write record %s: %w", rec.EntityID, err)
	}
	if s.cache != nil {
		cached := *rec
		s.cache.Add(rec.EntityID, &cached)
	}
	return nil
}

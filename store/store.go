// Package store defines how the read path reaches entity records.
//
// Records are written by the worker that recomputes data packages. The read
// path only reads them, except for the refresh lock timestamp when strict
// debouncing is enabled.
package store

import (
	"context"
	"time"

	"github.com/ipni/go-freshcache/model"
)

// Store is the interface implemented by all record stores.
type Store interface {
	// GetRecord returns the record for the entity, or nil if there is no
	// record. When bypassCache is true any read cache in front of the
	// store is skipped. The returned record must not be modified.
	GetRecord(ctx context.Context, entityID string, bypassCache bool) (*model.Record, error)
	// GetMetadata returns the metadata for the entity, or nil if the entity
	// is unknown.
	GetMetadata(ctx context.Context, entityID string) (*model.Metadata, error)
}

// Locker is implemented by stores that can set the refresh lock atomically.
type Locker interface {
	// AcquireLock sets the entity's lock timestamp to the current time,
	// unless the existing lock is less than window old. Returns true if the
	// lock was set.
	AcquireLock(ctx context.Context, entityID string, window time.Duration) (bool, error)
}

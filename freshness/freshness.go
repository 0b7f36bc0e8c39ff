// Package freshness decides whether a cached data package can be served as
// is, and whether a refresh was requested too recently to request another.
package freshness

import (
	"time"

	"github.com/ipni/go-freshcache/model"
)

const (
	// DataMaxAge is how old a package may be before a refresh is requested.
	DataMaxAge = 6 * time.Hour
	// LockWindow is how long after one refresh request another one is
	// suppressed.
	LockWindow = time.Minute
)

var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// PackageValid returns false if the package is missing or internally
// inconsistent. Any package that has commits must also have languages.
func PackageValid(p *model.Package) bool {
	if p == nil || p.Contribs == nil {
		return false
	}
	total := p.Contribs.TotalStats
	if total.CommitsCount > 0 && len(total.Languages) == 0 {
		return false
	}
	return true
}

// Fresh returns true if ts is no older than maxAge at time now. A zero ts is
// read as the epoch.
func Fresh(ts time.Time, maxAge time.Duration, now time.Time) bool {
	if ts.IsZero() {
		ts = epoch
	}
	return now.Sub(ts) <= maxAge
}

// Locked reports whether the soft refresh lock, set at time lock, is still
// held. This is advisory only: concurrent readers may both see an expired
// lock and both request a refresh.
func Locked(lock time.Time, window time.Duration, now time.Time) bool {
	return Fresh(lock, window, now)
}

package test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ipni/go-freshcache/model"
)

var globalSeed atomic.Int64

var languages = []string{"Go", "Rust", "Python", "TypeScript", "C", "Java"}

// RandomPackage returns a valid package with statistics for the given number
// of consecutive days, starting 2024-01-01.
func RandomPackage(days int) *model.Package {
	rng := rand.New(rand.NewSource(globalSeed.Add(1)))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	contribs := &model.Contribs{}
	for i := 0; i < days; i++ {
		lang := languages[rng.Intn(len(languages))]
		day := model.Day{
			Date: start.AddDate(0, 0, i).Format(model.DateLayout),
			Stats: model.Stats{
				CommitsCount: rng.Intn(20) + 1,
				IssuesCount:  rng.Intn(3),
				PRsCount:     rng.Intn(3),
				Languages: map[string]model.Language{
					lang: {Additions: rng.Intn(500), Deletions: rng.Intn(200)},
				},
			},
		}
		contribs.Days = append(contribs.Days, day)
		contribs.TotalStats.Add(day.Stats)
	}
	return &model.Package{Contribs: contribs}
}

// InvalidPackage returns a package that has commits but no languages.
func InvalidPackage() *model.Package {
	return &model.Package{
		Contribs: &model.Contribs{
			TotalStats: model.Stats{CommitsCount: 12},
		},
	}
}

// RandomEntityID returns a new unique entity ID.
func RandomEntityID() string {
	return fmt.Sprintf("entity-%d", globalSeed.Add(1))
}

// MemStore is an in-memory record store that counts reads.
type MemStore struct {
	mu       sync.Mutex
	records  map[string]*model.Record
	reads    int
	bypassed int
	Err      error
}

func NewMemStore(recs ...*model.Record) *MemStore {
	s := &MemStore{records: make(map[string]*model.Record)}
	for _, rec := range recs {
		s.Put(rec)
	}
	return s
}

func (s *MemStore) Put(rec *model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.EntityID] = rec
}

func (s *MemStore) GetRecord(ctx context.Context, entityID string, bypassCache bool) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if bypassCache {
		s.bypassed++
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.records[entityID], nil
}

func (s *MemStore) GetMetadata(ctx context.Context, entityID string) (*model.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rec, ok := s.records[entityID]
	if !ok {
		return nil, nil
	}
	return rec.Metadata(), nil
}

// Reads returns the number of record reads, and how many of those bypassed
// the cache.
func (s *MemStore) Reads() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.bypassed
}

// Refresh is one refresh request seen by a Refresher.
type Refresh struct {
	EntityID   string
	Credential string
}

// Refresher records refresh requests.
type Refresher struct {
	mu       sync.Mutex
	requests []Refresh
	Reject   bool
}

func (r *Refresher) RequestRefresh(ctx context.Context, entityID, credential string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, Refresh{EntityID: entityID, Credential: credential})
	return !r.Reject
}

// SetReject sets whether later requests report failure.
func (r *Refresher) SetReject(reject bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reject = reject
}

func (r *Refresher) Requests() []Refresh {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Refresh(nil), r.requests...)
}

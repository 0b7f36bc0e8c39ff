package httpstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipni/go-freshcache/apierror"
	"github.com/ipni/go-freshcache/internal/test"
	"github.com/ipni/go-freshcache/model"
	"github.com/ipni/go-freshcache/store/httpstore"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, rec *model.Record) (*httptest.Server, *atomic.Int32) {
	var noCache atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if r.Header.Get("Cache-Control") == "no-cache" {
			noCache.Add(1)
		}
		if r.PathValue("id") != rec.EntityID {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(rec))
	})
	mux.HandleFunc("GET /entities/{id}/metadata", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != rec.EntityID {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(rec.Metadata()))
	})
	mux.HandleFunc("GET /entities/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(apierror.EncodeError(apierror.New(nil, http.StatusInternalServerError)))
	})
	return httptest.NewServer(mux), &noCache
}

func TestGetRecord(t *testing.T) {
	want := &model.Record{
		EntityID:    "alice",
		Credential:  "tok",
		RawData:     test.RandomPackage(2),
		LastUpdated: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	ts, noCache := newServer(t, want)
	defer ts.Close()

	s, err := httpstore.New(ts.URL)
	require.NoError(t, err)
	s.AddHeader("Authorization", "Bearer secret")

	ctx := context.Background()
	rec, err := s.GetRecord(ctx, "alice", false)
	require.NoError(t, err)
	require.Equal(t, "tok", rec.Credential)
	require.True(t, want.LastUpdated.Equal(rec.LastUpdated))
	require.Equal(t, want.RawData, rec.RawData)
	require.Zero(t, noCache.Load())

	_, err = s.GetRecord(ctx, "alice", true)
	require.NoError(t, err)
	require.Equal(t, int32(1), noCache.Load())

	rec, err = s.GetRecord(ctx, "bob", false)
	require.NoError(t, err)
	require.Nil(t, rec)

	md, err := s.GetMetadata(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, &model.Metadata{EntityID: "alice", Credential: "tok"}, md)

	md, err = s.GetMetadata(ctx, "bob")
	require.NoError(t, err)
	require.Nil(t, md)

	_, err = s.GetRecord(ctx, "broken", false)
	require.Error(t, err)
	require.Equal(t, http.StatusInternalServerError, apierror.Status(err, 0))
}

func TestRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(&model.Record{EntityID: "alice", Credential: "tok"})
	}))
	defer ts.Close()

	s, err := httpstore.New(ts.URL, httpstore.WithRetries(2, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	rec, err := s.GetRecord(context.Background(), "alice", false)
	require.NoError(t, err)
	require.Equal(t, "alice", rec.EntityID)
	require.Equal(t, int32(2), calls.Load())
}

func TestNewErrors(t *testing.T) {
	_, err := httpstore.New("ftp://example.com")
	require.ErrorContains(t, err, "http or https")

	_, err = httpstore.New("http://example.com", httpstore.WithRetries(1, time.Second, time.Millisecond))
	require.Error(t, err)
}

func TestDemo(t *testing.T) {
	pkg := test.RandomPackage(3)
	var rotations atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /demo/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "alice", r.PathValue("id"))
		require.Equal(t, "2024-01-01", r.URL.Query().Get("start"))
		require.Equal(t, "2024-01-03", r.URL.Query().Get("end"))
		require.Equal(t, "US/Eastern", r.URL.Query().Get("tz"))
		require.NoError(t, json.NewEncoder(w).Encode(pkg))
	})
	mux.HandleFunc("POST /keys/rotate", func(w http.ResponseWriter, r *http.Request) {
		if rotations.Add(1) > 1 {
			http.Error(w, "no keys left", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s, err := httpstore.New(ts.URL)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.RotateKeys(ctx))
	err = s.RotateKeys(ctx)
	require.ErrorContains(t, err, "no keys left")
	require.Equal(t, http.StatusConflict, apierror.Status(err, 0))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	got, err := s.Compute(ctx, "alice", start, end, "US/Eastern")
	require.NoError(t, err)
	require.Equal(t, pkg, got)
}

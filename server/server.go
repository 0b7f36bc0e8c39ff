// Package server exposes a reader over HTTP.
//
// Routes:
//
//	GET  /entities/{id}?start=YYYY-MM-DD&end=YYYY-MM-DD&no_cache=true
//	GET  /demo/{id}?start=YYYY-MM-DD&end=YYYY-MM-DD
//	POST /entities/{id}/refresh
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ipni/go-freshcache/apierror"
	"github.com/ipni/go-freshcache/model"
	"github.com/ipni/go-freshcache/reader"
)

var log = logging.Logger("server")

const maxRefreshBody = 4096

// Reader is the read side served over HTTP. It is satisfied by
// *reader.Reader.
type Reader interface {
	GetEntity(ctx context.Context, entityID string, start, end time.Time, bypassCache bool) (reader.Result, error)
	GetEntityDemo(ctx context.Context, entityID string, start, end time.Time, bypassCache bool) (reader.Result, error)
	RequestUpdate(ctx context.Context, entityID, credential string) bool
}

// RefreshRequest is the optional body of a refresh request.
type RefreshRequest struct {
	Credential string `json:"credential,omitempty"`
}

// Server is an http.Handler serving entity packages.
type Server struct {
	reader       Reader
	clock        clock.Clock
	defaultRange time.Duration
	mux          *http.ServeMux
}

var _ http.Handler = (*Server)(nil)

// New creates a Server that serves packages from r.
func New(r Reader, options ...Option) (*Server, error) {
	if r == nil {
		return nil, errors.New("nil reader")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	s := &Server{
		reader:       r,
		clock:        opts.clock,
		defaultRange: opts.defaultRange,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /entities/{id}", s.getEntity)
	s.mux.HandleFunc("GET /demo/{id}", s.getDemo)
	s.mux.HandleFunc("POST /entities/{id}/refresh", s.postRefresh)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	start, end, err := s.dateRange(r)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	var bypass bool
	if v := r.URL.Query().Get("no_cache"); v != "" {
		bypass, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, fmt.Errorf("invalid no_cache value: %s", v), http.StatusBadRequest)
			return
		}
	}

	res, err := s.reader.GetEntity(r.Context(), entityID, start, end, bypass)
	s.writeResult(w, r, entityID, res, err)
}

func (s *Server) getDemo(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	start, end, err := s.dateRange(r)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	res, err := s.reader.GetEntityDemo(r.Context(), entityID, start, end, false)
	s.writeResult(w, r, entityID, res, err)
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	var req RefreshRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRefreshBody))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if len(body) != 0 {
		if err = json.Unmarshal(body, &req); err != nil {
			writeError(w, fmt.Errorf("invalid refresh request: %w", err), http.StatusBadRequest)
			return
		}
	}

	if !s.reader.RequestUpdate(r.Context(), entityID, req.Credential) {
		log.Warnw("Refresh not requested", "entity", entityID)
		writeError(w, errors.New("refresh request not sent"), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, entityID string, res reader.Result, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, reader.ErrLookup):
			status = http.StatusNotFound
		case errors.Is(err, reader.ErrNoDemo):
			status = http.StatusNotImplemented
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		default:
			log.Errorw("Cannot read entity", "entity", entityID, "err", err)
		}
		writeError(w, err, status)
		return
	}
	if !res.Found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	pw, err := newPackageWriter(w, r)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if err = pw.writePackage(res.Package); err != nil {
		log.Errorw("Cannot write response", "entity", entityID, "err", err)
	}
}

// dateRange reads the start and end query parameters. End defaults to
// today, and start to the default range before end.
func (s *Server) dateRange(r *http.Request) (time.Time, time.Time, error) {
	query := r.URL.Query()

	var end time.Time
	if v := query.Get("end"); v != "" {
		var err error
		end, err = time.Parse(model.DateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %s", v)
		}
	} else {
		now := s.clock.Now().UTC()
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	start := end.Add(-s.defaultRange)
	if v := query.Get("start"); v != "" {
		var err error
		start, err = time.Parse(model.DateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %s", v)
		}
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, errors.New("start date is after end date")
	}
	return start, end, nil
}

func writeError(w http.ResponseWriter, err error, status int) {
	status = apierror.Status(err, status)
	w.Header().Set("Content-Type", mediaTypeJson)
	w.WriteHeader(status)
	w.Write(apierror.EncodeError(apierror.New(err, status)))
}

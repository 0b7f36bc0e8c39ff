// Package httpstore reads entity records from a remote store over HTTP.
package httpstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipni/go-freshcache/apierror"
	"github.com/ipni/go-freshcache/model"
	"github.com/ipni/go-freshcache/store"
)

const (
	entitiesPath = "entities"
	metadataPath = "metadata"
)

// Store reads records from <base>/entities/<id> and metadata from
// <base>/entities/<id>/metadata.
type Store struct {
	base   *url.URL
	url    *url.URL
	client *http.Client
	header http.Header
}

var _ store.Store = (*Store)(nil)

// New creates a new Store that reads from the store server at baseURL.
func New(baseURL string, options ...Option) (*Store, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must have http or https scheme: %s", baseURL)
	}
	u.Path = ""

	client := opts.client
	if client == nil {
		client = &http.Client{
			Timeout: opts.timeout,
		}
	}
	if opts.retryMax != 0 {
		rclient := &retryablehttp.Client{
			HTTPClient:   client,
			RetryWaitMin: opts.retryWaitMin,
			RetryWaitMax: opts.retryWaitMax,
			RetryMax:     opts.retryMax,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
		}
		client = rclient.StandardClient()
	}

	return &Store{
		base:   u,
		url:    u.JoinPath(entitiesPath),
		client: client,
	}, nil
}

// AddHeader adds a header sent with every request, such as an authorization
// header required by the store server.
func (s *Store) AddHeader(key, value string) {
	if s.header == nil {
		s.header = make(http.Header)
	}
	s.header.Add(key, value)
}

// GetRecord fetches the record for the entity. Returns nil if the store does
// not have it. With bypassCache set, the request asks any cache between here
// and the store not to serve a cached response.
func (s *Store) GetRecord(ctx context.Context, entityID string, bypassCache bool) (*model.Record, error) {
	var rec model.Record
	found, err := s.get(ctx, s.url.JoinPath(entityID), bypassCache, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// GetMetadata fetches the metadata for the entity. Returns nil if the store
// does not have it.
func (s *Store) GetMetadata(ctx context.Context, entityID string) (*model.Metadata, error) {
	var md model.Metadata
	found, err := s.get(ctx, s.url.JoinPath(entityID, metadataPath), false, &md)
	if err != nil || !found {
		return nil, err
	}
	return &md, nil
}

func (s *Store) newRequest(ctx context.Context, method string, u *url.URL) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, vals := range s.header {
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}
	req.Header.Add("Accept", "application/json")
	return req, nil
}

func (s *Store) get(ctx context.Context, u *url.URL, noCache bool, v any) (bool, error) {
	req, err := s.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return false, err
	}
	if noCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apierror.FromResponse(resp.StatusCode, body)
	}

	if err = json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("cannot decode response from %s: %w", u, err)
	}
	return true, nil
}

func (s *Store) String() string {
	return s.url.String()
}

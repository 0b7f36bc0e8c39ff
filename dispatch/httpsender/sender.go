// Package httpsender sends refresh requests to workers over HTTP.
package httpsender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipni/go-freshcache/apierror"
	"github.com/ipni/go-freshcache/dispatch"
	"github.com/ipni/go-freshcache/dispatch/message"
	"golang.org/x/sync/errgroup"
)

const refreshPath = "refresh"

// Sender POSTs refresh request messages to one or more worker URLs.
type Sender struct {
	client    *http.Client
	urls      []string
	userAgent string
}

var _ dispatch.Sender = (*Sender)(nil)

// New creates a new Sender that sends refresh requests to the refresh
// endpoint of each worker URL.
func New(workerURLs []*url.URL, options ...Option) (*Sender, error) {
	if len(workerURLs) == 0 {
		return nil, errors.New("no worker urls")
	}

	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(workerURLs))
	for i, u := range workerURLs {
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("url must have http or https scheme: %s", u)
		}
		urls[i] = u.JoinPath(refreshPath).String()
	}

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

	return &Sender{
		client:    client,
		urls:      urls,
		userAgent: opts.userAgent,
	}, nil
}

// Close closes idle connections held by the Sender's client.
func (s *Sender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Send sends the Message to every worker URL concurrently. An error is
// returned if any worker did not accept it.
func (s *Sender) Send(ctx context.Context, msg message.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	if len(s.urls) == 1 {
		return s.sendData(ctx, s.urls[0], data)
	}

	var g errgroup.Group
	for _, u := range s.urls {
		u := u
		g.Go(func() error {
			return s.sendData(ctx, u, data)
		})
	}
	return g.Wait()
}

func (s *Sender) sendData(ctx context.Context, u string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	}
	return fmt.Errorf("failed to send refresh request to %s: %w", u, apierror.FromResponse(resp.StatusCode, body))
}

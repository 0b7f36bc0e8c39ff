package httpstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipni/go-freshcache/apierror"
	"github.com/ipni/go-freshcache/model"
)

const (
	demoPath   = "demo"
	rotatePath = "keys/rotate"
)

// Compute asks the store server to compute the entity's package directly,
// from <base>/demo/<id>, without using stored data.
func (s *Store) Compute(ctx context.Context, entityID string, start, end time.Time, timezone string) (*model.Package, error) {
	u := s.base.JoinPath(demoPath, entityID)
	q := u.Query()
	q.Set("start", start.Format(model.DateLayout))
	q.Set("end", end.Format(model.DateLayout))
	if timezone != "" {
		q.Set("tz", timezone)
	}
	u.RawQuery = q.Encode()

	var pkg model.Package
	found, err := s.get(ctx, u, true, &pkg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no demo data for %s", entityID)
	}
	return &pkg, nil
}

// RotateKeys asks the store server to rotate the source credentials used for
// demo computations, at <base>/keys/rotate.
func (s *Store) RotateKeys(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodPost, s.base.JoinPath(rotatePath))
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return apierror.FromResponse(resp.StatusCode, body)
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/ipni/go-freshcache/apierror"
	"github.com/ipni/go-freshcache/model"
)

const (
	mediaTypeNDJson = "application/x-ndjson"
	mediaTypeJson   = "application/json"
	mediaTypeAny    = "*/*"
)

// packageWriter writes a package either as one JSON document, or as
// newline-delimited JSON with one line per day.
type packageWriter struct {
	w       http.ResponseWriter
	f       http.Flusher
	encoder *json.Encoder
	nd      bool
}

// newPackageWriter selects the response media type from the request's Accept
// headers. With no Accept header, JSON is used.
func newPackageWriter(w http.ResponseWriter, r *http.Request) (*packageWriter, error) {
	accepts := r.Header.Values("Accept")
	var nd, okJson bool
	for _, accept := range accepts {
		for _, amt := range strings.Split(accept, ",") {
			mt, _, err := mime.ParseMediaType(amt)
			if err != nil {
				return nil, apierror.New(errors.New("invalid Accept header"), http.StatusBadRequest)
			}
			switch mt {
			case mediaTypeNDJson:
				nd = true
			case mediaTypeJson, mediaTypeAny:
				okJson = true
			}
		}
	}
	if len(accepts) != 0 && !okJson && !nd {
		return nil, apierror.New(fmt.Errorf("media type not supported: %s", accepts), http.StatusBadRequest)
	}
	// Prefer a single document when both are acceptable.
	if okJson {
		nd = false
	}

	flusher, _ := w.(http.Flusher)
	if nd {
		w.Header().Set("Content-Type", mediaTypeNDJson)
		w.Header().Set("X-Content-Type-Options", "nosniff")
	} else {
		w.Header().Set("Content-Type", mediaTypeJson)
	}

	return &packageWriter{
		w:       w,
		f:       flusher,
		encoder: json.NewEncoder(w),
		nd:      nd,
	}, nil
}

func (pw *packageWriter) writePackage(p *model.Package) error {
	if !pw.nd {
		return pw.encoder.Encode(p)
	}
	if p.Contribs == nil {
		return nil
	}
	for _, day := range p.Contribs.Days {
		if err := pw.encoder.Encode(day); err != nil {
			return err
		}
		if pw.f != nil {
			pw.f.Flush()
		}
	}
	return nil
}

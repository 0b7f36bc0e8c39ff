// Package apierror carries HTTP status codes with errors exchanged between
// the freshcache HTTP server, its clients, and the store and worker
// endpoints it calls.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is an error with an associated HTTP status.
type Error struct {
	err    error
	status int
}

// ErrorMessage is the JSON form of an Error sent in a response body.
type ErrorMessage struct {
	Message string `json:"message,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// fallback is sent if an error message cannot be encoded.
var fallback = []byte(`{"message":"Internal Server Error","status":500}`)

func New(err error, status int) *Error {
	return &Error{
		err:    err,
		status: status,
	}
}

// FromResponse makes an error out of a non-success response. The trimmed
// body text, if any, becomes the error message. A zero status returns the
// plain error.
func FromResponse(status int, body []byte) error {
	var err error
	if text := strings.TrimSpace(string(body)); text != "" {
		var msg ErrorMessage
		if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
			text = msg.Message
		}
		err = errors.New(text)
	}
	if status == 0 {
		return err
	}
	return New(err, status)
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.status == 0 {
		return ""
	}
	if text := http.StatusText(e.status); text != "" {
		return fmt.Sprintf("%d %s", e.status, text)
	}
	return fmt.Sprintf("%d", e.status)
}

func (e *Error) Status() int {
	return e.status
}

func (e *Error) Unwrap() error {
	return e.err
}

// Status returns the HTTP status carried by err, or the given default if err
// does not carry one.
func Status(err error, dflt int) int {
	var apierr *Error
	if errors.As(err, &apierr) && apierr.status != 0 {
		return apierr.status
	}
	return dflt
}

// EncodeError returns the JSON response body for err.
func EncodeError(err error) []byte {
	if err == nil {
		return nil
	}
	msg := ErrorMessage{
		Message: err.Error(),
		Status:  Status(err, 0),
	}
	data, err := json.Marshal(&msg)
	if err != nil {
		return fallback
	}
	return data
}

// DecodeError is the reverse of EncodeError.
func DecodeError(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var msg ErrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("cannot decode error message: %w", err)
	}
	err := errors.New(msg.Message)
	if msg.Status == 0 {
		return err
	}
	return New(err, msg.Status)
}

// Package message defines the refresh request sent to the worker that
// recomputes entity data packages.
package message

import (
	"encoding/json"
	"errors"
)

// Message asks the worker to recompute the package for an entity.
type Message struct {
	EntityID   string `json:"entity_id"`
	Credential string `json:"credential"`
}

// Errors returned by Validate.
var (
	ErrNoEntityID   = errors.New("message has no entity id")
	ErrNoCredential = errors.New("message has no credential")
)

// Validate checks that the message can be acted on by a worker.
func (m Message) Validate() error {
	if m.EntityID == "" {
		return ErrNoEntityID
	}
	if m.Credential == "" {
		return ErrNoCredential
	}
	return nil
}

// Marshal encodes the message for the wire.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(&m)
}

// Unmarshal decodes a message from the wire and validates it.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

package model

import "time"

// Record is the stored state of one entity. It is owned by the store; the
// read path only reads it.
type Record struct {
	// EntityID identifies the entity.
	EntityID string `json:"entity_id"`
	// Credential is the opaque token used by the worker to recompute the
	// entity's package. An empty credential means the entity is not
	// provisioned.
	Credential string `json:"credential,omitempty"`
	// RawData is the last package written by the worker, if any.
	RawData *Package `json:"raw_data,omitempty"`
	// LastUpdated is when RawData was written. The zero time is read as the
	// epoch.
	LastUpdated time.Time `json:"last_updated,omitempty"`
	// Lock is when a refresh was last requested. The zero time is read as
	// the epoch.
	Lock time.Time `json:"lock,omitempty"`
}

// Metadata is the subset of a record needed to request a refresh.
type Metadata struct {
	EntityID   string `json:"entity_id"`
	Credential string `json:"credential,omitempty"`
}

// Metadata returns the metadata part of the record.
func (r *Record) Metadata() *Metadata {
	return &Metadata{
		EntityID:   r.EntityID,
		Credential: r.Credential,
	}
}

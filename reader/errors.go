package reader

import (
	"errors"
	"fmt"
)

// ErrLookup is matched by every *LookupError.
var ErrLookup = errors.New("entity not found or has no credential")

// LookupError is returned when an entity is absent from the store or has no
// credential, so its data cannot be computed.
type LookupError struct {
	EntityID string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %s", ErrLookup, e.EntityID)
}

func (e *LookupError) Is(target error) bool {
	return target == ErrLookup
}

package customers

import "errors"

var (
	// ErrNotFound is returned when no project has the requested id.
	ErrNotFound = errors.New("customer project not found")

	// ErrInvalidStatus is returned for an unknown appointment status.
	ErrInvalidStatus = errors.New("invalid appointment status")

	// ErrMissingID is returned when an id-keyed write has no id.
	ErrMissingID = errors.New("customer project id is required")
)

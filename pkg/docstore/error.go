package docstore

import "errors"

var (
	// ErrNotFound is returned when a document id is not in the store.
	ErrNotFound = errors.New("document not found")

	// ErrCorrupt is returned when a snapshot file cannot be read back.
	ErrCorrupt = errors.New("document snapshot corrupt")
)

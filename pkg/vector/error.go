package vector

import "errors"

var (
	// ErrIndexNotFound is returned when the named index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrUnavailable is returned when a server-resident backend cannot be
	// reached.
	ErrUnavailable = errors.New("vector backend unavailable")

	// ErrCorrupt is returned when a snapshot cannot be restored.
	ErrCorrupt = errors.New("vector snapshot corrupt")

	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensionMismatch is returned when a vector's dimensionality does
	// not match the index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

package engine

import "errors"

var (
	// ErrEmptyQuery is returned when a retrieval query is empty.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrEmptyIndexName is returned when an operation names no index.
	ErrEmptyIndexName = errors.New("index name must not be empty")

	// ErrNoDocuments is returned when an indexing batch is empty.
	ErrNoDocuments = errors.New("no documents provided")

	// ErrNoCompletion is returned by RetrieveAndComplete when no completion
	// function was configured.
	ErrNoCompletion = errors.New("no completion function configured")

	// ErrNoSnapshotDir is returned when persistence is requested without a
	// snapshot directory configured.
	ErrNoSnapshotDir = errors.New("no snapshot directory configured")
)

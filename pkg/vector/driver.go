// Package vector defines the pluggable index backend interface shared by the
// in-process and server-resident vector stores.
package vector

import "context"

// Node is one indexed chunk of a document: its text, the owning document id,
// inherited metadata, and the embedding vector.
type Node struct {
	// ID is a unique identifier for the node (a fresh UUID per chunk).
	ID string

	// DocID is the content hash of the source document.
	DocID string

	// Text is the chunk text.
	Text string

	// Metadata is inherited from the source document.
	Metadata map[string]string

	// Embedding is the vector representation of Text.
	Embedding []float32
}

// Match is a search hit: the stored node plus its similarity score.
type Match struct {
	Node

	// Score is the similarity in [0, 1]; higher is more similar.
	Score float32
}

// Backend stores and searches embedded nodes grouped into named indexes.
//
// Implementations create an index implicitly on first write, order Search
// results by descending similarity, and remove every node of a document on
// Delete. Search, Count, and Nodes against an unknown index return
// ErrIndexNotFound.
type Backend interface {
	// CreateIndex ensures the named index exists. Creating an existing index
	// is a no-op.
	CreateIndex(ctx context.Context, name string) error

	// Add stores nodes in the named index, creating it if needed.
	Add(ctx context.Context, name string, nodes []Node) error

	// Delete removes every node belonging to docID and returns how many
	// nodes were removed. Zero with a nil error means the document had no
	// nodes in the index.
	Delete(ctx context.Context, name string, docID string) (int, error)

	// Replace atomically removes every node of docID and stores the given
	// nodes in their place. Readers never observe the intermediate state.
	Replace(ctx context.Context, name string, docID string, nodes []Node) error

	// Search returns the topK nodes most similar to the embedding, ordered
	// by descending score.
	Search(ctx context.Context, name string, embedding []float32, topK int) ([]Match, error)

	// Count returns the number of nodes in the named index.
	Count(ctx context.Context, name string) (int, error)

	// Nodes returns every node in the named index. Embeddings may be omitted
	// by server-resident backends.
	Nodes(ctx context.Context, name string) ([]Node, error)

	// ListIndexes returns the names of all known indexes.
	ListIndexes(ctx context.Context) ([]string, error)

	// DeleteIndex removes the named index and all of its nodes.
	DeleteIndex(ctx context.Context, name string) error

	// Persist writes a durable snapshot of the named index under dir.
	// Server-resident backends treat this as a no-op.
	Persist(ctx context.Context, name string, dir string) error

	// Restore rebuilds the named index from a snapshot under dir. A corrupt
	// snapshot returns ErrCorrupt.
	Restore(ctx context.Context, name string, dir string) error

	// Close releases any resources held by the backend.
	Close() error
}

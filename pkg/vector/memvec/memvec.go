// Package memvec provides the in-process vector backend.
//
// Vectors live in a dense per-index arena whose positions renumber on delete,
// so callers are handed stable int64 handles and a translation table maps
// handles to arena positions. All writes across every index serialize on one
// backend-wide lock; reads share it.
package memvec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/vector"
)

// Backend implements vector.Backend with in-memory storage.
type Backend struct {
	mu      sync.RWMutex
	indexes map[string]*index
	logger  *zap.Logger
}

// index is one named arena plus its handle tables.
type index struct {
	// vectors and handleAt are parallel: the vector at position i belongs to
	// the handle at handleAt[i]. Deletes swap the last position in, so
	// positions are unstable while handles are not.
	vectors  [][]float32
	handleAt []int64

	posByHandle  map[int64]int
	nodeByHandle map[int64]vector.Node
	handlesByDoc map[string][]int64

	nextHandle int64
	dims       int
}

// New creates an empty in-process backend.
func New(logger *zap.Logger) *Backend {
	return &Backend{
		indexes: make(map[string]*index),
		logger:  logger,
	}
}

func newIndex() *index {
	return &index{
		posByHandle:  make(map[int64]int),
		nodeByHandle: make(map[int64]vector.Node),
		handlesByDoc: make(map[string][]int64),
	}
}

// CreateIndex ensures the named index exists.
func (b *Backend) CreateIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureIndex(name)
	return nil
}

// ensureIndex returns the named index, creating it if absent.
// Callers must hold the write lock.
func (b *Backend) ensureIndex(name string) *index {
	idx, ok := b.indexes[name]
	if !ok {
		idx = newIndex()
		b.indexes[name] = idx
		b.logger.Info("created in-process index", zap.String("index", name))
	}
	return idx
}

// Add stores nodes in the named index, creating it if needed.
func (b *Backend) Add(_ context.Context, name string, nodes []vector.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.ensureIndex(name)
	return idx.add(nodes)
}

func (idx *index) add(nodes []vector.Node) error {
	for _, node := range nodes {
		if idx.dims == 0 && len(node.Embedding) > 0 {
			idx.dims = len(node.Embedding)
		}
		if len(node.Embedding) != idx.dims {
			return fmt.Errorf("%w: node %s has %d dims, index has %d",
				vector.ErrDimensionMismatch, node.ID, len(node.Embedding), idx.dims)
		}
	}

	for _, node := range nodes {
		handle := idx.nextHandle
		idx.nextHandle++

		pos := len(idx.vectors)
		idx.vectors = append(idx.vectors, node.Embedding)
		idx.handleAt = append(idx.handleAt, handle)

		idx.posByHandle[handle] = pos
		idx.nodeByHandle[handle] = node
		idx.handlesByDoc[node.DocID] = append(idx.handlesByDoc[node.DocID], handle)
	}
	return nil
}

// Delete removes every node of docID, returning how many were removed.
func (b *Backend) Delete(_ context.Context, name string, docID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.indexes[name]
	if !ok {
		return 0, vector.ErrIndexNotFound
	}
	return idx.deleteDoc(docID), nil
}

func (idx *index) deleteDoc(docID string) int {
	handles := idx.handlesByDoc[docID]
	for _, handle := range handles {
		idx.removeHandle(handle)
	}
	delete(idx.handlesByDoc, docID)
	return len(handles)
}

// removeHandle drops one handle's vector by swapping the arena tail into its
// position and retargeting the moved handle's translation entry.
func (idx *index) removeHandle(handle int64) {
	pos, ok := idx.posByHandle[handle]
	if !ok {
		return
	}

	last := len(idx.vectors) - 1
	if pos != last {
		idx.vectors[pos] = idx.vectors[last]
		moved := idx.handleAt[last]
		idx.handleAt[pos] = moved
		idx.posByHandle[moved] = pos
	}
	idx.vectors = idx.vectors[:last]
	idx.handleAt = idx.handleAt[:last]

	delete(idx.posByHandle, handle)
	delete(idx.nodeByHandle, handle)
}

// Replace atomically swaps docID's nodes for the given ones.
func (b *Backend) Replace(_ context.Context, name string, docID string, nodes []vector.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.ensureIndex(name)
	idx.deleteDoc(docID)
	return idx.add(nodes)
}

// Search returns the topK most similar nodes by brute-force cosine scan.
func (b *Backend) Search(_ context.Context, name string, embedding []float32, topK int) ([]vector.Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return nil, vector.ErrIndexNotFound
	}
	if topK <= 0 || len(idx.vectors) == 0 {
		return nil, nil
	}
	if idx.dims != 0 && len(embedding) != idx.dims {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d",
			vector.ErrDimensionMismatch, len(embedding), idx.dims)
	}

	matches := make([]vector.Match, 0, len(idx.vectors))
	for pos, vec := range idx.vectors {
		node := idx.nodeByHandle[idx.handleAt[pos]]
		matches = append(matches, vector.Match{
			Node:  node,
			Score: cosineSimilarity(embedding, vec),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, clamped
// to [0, 1]. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return float32(sim)
}

// Count returns the number of nodes in the named index.
func (b *Backend) Count(_ context.Context, name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return 0, vector.ErrIndexNotFound
	}
	return len(idx.vectors), nil
}

// Nodes returns every node in the named index.
func (b *Backend) Nodes(_ context.Context, name string) ([]vector.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return nil, vector.ErrIndexNotFound
	}

	handles := make([]int64, 0, len(idx.nodeByHandle))
	for handle := range idx.nodeByHandle {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	nodes := make([]vector.Node, 0, len(handles))
	for _, handle := range handles {
		nodes = append(nodes, idx.nodeByHandle[handle])
	}
	return nodes, nil
}

// ListIndexes returns all index names in sorted order.
func (b *Backend) ListIndexes(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.indexes))
	for name := range b.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteIndex removes the named index and all of its nodes.
func (b *Backend) DeleteIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.indexes[name]; !ok {
		return vector.ErrIndexNotFound
	}
	delete(b.indexes, name)
	b.logger.Info("deleted in-process index", zap.String("index", name))
	return nil
}

// Close releases the backend. In-memory state is simply dropped.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.indexes = make(map[string]*index)
	return nil
}

var _ vector.Backend = (*Backend)(nil)

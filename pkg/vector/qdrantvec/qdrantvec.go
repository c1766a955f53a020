// Package qdrantvec provides the server-resident vector backend over Qdrant.
//
// Each named index maps to one Qdrant collection. Nodes are points whose
// payload carries doc_id, text, and metadata, so the full index state can be
// rediscovered from the running service after a restart. Persist and Restore
// are no-ops; the service owns durability.
package qdrantvec

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/vector"
)

const (
	// payloadDocID keys the owning document id in point payloads.
	payloadDocID = "doc_id"

	// payloadText keys the chunk text in point payloads.
	payloadText = "text"

	// payloadMetadata keys the inherited document metadata.
	payloadMetadata = "metadata"

	// scrollPageSize is the page size used when walking a full collection.
	scrollPageSize = 256
)

// Config holds connection settings for the Qdrant backend.
type Config struct {
	// Host is the Qdrant server host.
	Host string

	// Port is the Qdrant gRPC port (typically 6334).
	Port int

	// APIKey authenticates against a secured deployment. Optional.
	APIKey string

	// UseTLS enables TLS for the connection.
	UseTLS bool
}

// pointsAPI is the slice of the Qdrant client surface the backend uses.
type pointsAPI interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	ListCollections(ctx context.Context) ([]string, error)
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) (*qdrant.ScrollResponse, error)
	Close() error
}

// grpcAPI adapts *qdrant.Client to pointsAPI. Scroll goes through the raw
// points client because pagination needs the next-page offset the high-level
// helper drops.
type grpcAPI struct {
	*qdrant.Client
}

func (c grpcAPI) Scroll(ctx context.Context, req *qdrant.ScrollPoints) (*qdrant.ScrollResponse, error) {
	return c.GetPointsClient().Scroll(ctx, req)
}

// Backend implements vector.Backend against a Qdrant server.
type Backend struct {
	client pointsAPI
	logger *zap.Logger

	// pending tracks indexes created before their first write. Qdrant needs
	// the vector size to create a collection, so creation is deferred until
	// the first Add reveals it.
	mu      sync.Mutex
	pending map[string]bool
}

// New connects to the configured Qdrant server.
func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", vector.ErrUnavailable, err)
	}

	logger.Info("qdrant vector backend initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)

	return newBackend(grpcAPI{client}, logger), nil
}

func newBackend(client pointsAPI, logger *zap.Logger) *Backend {
	return &Backend{
		client:  client,
		logger:  logger,
		pending: make(map[string]bool),
	}
}

// CreateIndex marks the named index as existing. The Qdrant collection itself
// is created on the first write, once the vector size is known.
func (b *Backend) CreateIndex(ctx context.Context, name string) error {
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", vector.ErrUnavailable, name, err)
	}
	if exists {
		return nil
	}

	b.mu.Lock()
	b.pending[name] = true
	b.mu.Unlock()
	return nil
}

// ensureCollection creates the collection if it does not exist yet, using the
// given vector size.
func (b *Backend) ensureCollection(ctx context.Context, name string, dims int) error {
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", vector.ErrUnavailable, name, err)
	}
	if exists {
		return nil
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", vector.ErrUnavailable, name, err)
	}

	b.mu.Lock()
	delete(b.pending, name)
	b.mu.Unlock()

	b.logger.Info("created qdrant collection",
		zap.String("index", name),
		zap.Int("dimensions", dims),
	)
	return nil
}

// Add upserts nodes into the named index, creating the collection on first
// write.
func (b *Backend) Add(ctx context.Context, name string, nodes []vector.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	if err := b.ensureCollection(ctx, name, len(nodes[0].Embedding)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(nodes))
	for _, node := range nodes {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(node.ID),
			Vectors: qdrant.NewVectors(node.Embedding...),
			Payload: nodePayload(node),
		})
	}

	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upserting %d points into %s: %v", vector.ErrUnavailable, len(points), name, err)
	}

	b.logger.Debug("added nodes to qdrant",
		zap.String("index", name),
		zap.Int("count", len(nodes)),
	)
	return nil
}

func nodePayload(node vector.Node) map[string]*qdrant.Value {
	meta := make(map[string]any, len(node.Metadata))
	for k, v := range node.Metadata {
		meta[k] = v
	}
	return qdrant.NewValueMap(map[string]any{
		payloadDocID:    node.DocID,
		payloadText:     node.Text,
		payloadMetadata: meta,
	})
}

func docFilter(docID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocID, docID)},
	}
}

// Delete removes every point belonging to docID and returns how many points
// were removed.
func (b *Backend) Delete(ctx context.Context, name string, docID string) (int, error) {
	live, err := b.resolveCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	if !live {
		return 0, nil
	}

	count, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         docFilter(docID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting points for doc %s: %v", vector.ErrUnavailable, docID, err)
	}
	if count == 0 {
		return 0, nil
	}

	_, err = b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(docFilter(docID)),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: deleting points for doc %s: %v", vector.ErrUnavailable, docID, err)
	}

	return int(count), nil
}

// Replace removes docID's points and upserts the given nodes. Qdrant applies
// the two operations back to back with Wait set, so readers see the new state
// once Replace returns.
func (b *Backend) Replace(ctx context.Context, name string, docID string, nodes []vector.Node) error {
	if _, err := b.Delete(ctx, name, docID); err != nil {
		return err
	}
	return b.Add(ctx, name, nodes)
}

// Search returns the topK most similar points.
func (b *Backend) Search(ctx context.Context, name string, embedding []float32, topK int) ([]vector.Match, error) {
	live, err := b.resolveCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !live || topK <= 0 {
		return nil, nil
	}

	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", vector.ErrUnavailable, name, err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		node := nodeFromPayload(p.GetId().GetUuid(), p.GetPayload())
		matches = append(matches, vector.Match{Node: node, Score: p.GetScore()})
	}
	return matches, nil
}

func nodeFromPayload(id string, payload map[string]*qdrant.Value) vector.Node {
	node := vector.Node{ID: id}
	if v, ok := payload[payloadDocID]; ok {
		node.DocID = v.GetStringValue()
	}
	if v, ok := payload[payloadText]; ok {
		node.Text = v.GetStringValue()
	}
	if v, ok := payload[payloadMetadata]; ok {
		fields := v.GetStructValue().GetFields()
		if len(fields) > 0 {
			node.Metadata = make(map[string]string, len(fields))
			for k, fv := range fields {
				node.Metadata[k] = fv.GetStringValue()
			}
		}
	}
	return node
}

// Count returns the exact number of points in the named index.
func (b *Backend) Count(ctx context.Context, name string) (int, error) {
	live, err := b.resolveCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	if !live {
		return 0, nil
	}

	count, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting points in %s: %v", vector.ErrUnavailable, name, err)
	}
	return int(count), nil
}

// Nodes walks the full collection via scroll pagination. Embeddings are not
// fetched; payloads carry everything needed to rebuild local state.
func (b *Backend) Nodes(ctx context.Context, name string) ([]vector.Node, error) {
	live, err := b.resolveCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, nil
	}
	return b.scrollAll(ctx, name)
}

func (b *Backend) scrollAll(ctx context.Context, name string) ([]vector.Node, error) {
	var nodes []vector.Node
	var offset *qdrant.PointId

	for {
		resp, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scrolling %s: %v", vector.ErrUnavailable, name, err)
		}

		for _, p := range resp.GetResult() {
			nodes = append(nodes, nodeFromPayload(p.GetId().GetUuid(), p.GetPayload()))
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			return nodes, nil
		}
	}
}

// ListIndexes returns every collection name plus indexes created but not yet
// written to.
func (b *Backend) ListIndexes(ctx context.Context) ([]string, error) {
	collections, err := b.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %v", vector.ErrUnavailable, err)
	}

	seen := make(map[string]bool, len(collections))
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		seen[c] = true
		names = append(names, c)
	}

	b.mu.Lock()
	for name := range b.pending {
		if !seen[name] {
			names = append(names, name)
		}
	}
	b.mu.Unlock()

	sort.Strings(names)
	return names, nil
}

// DeleteIndex drops the collection.
func (b *Backend) DeleteIndex(ctx context.Context, name string) error {
	b.mu.Lock()
	wasPending := b.pending[name]
	delete(b.pending, name)
	b.mu.Unlock()

	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", vector.ErrUnavailable, name, err)
	}
	if !exists {
		if wasPending {
			return nil
		}
		return vector.ErrIndexNotFound
	}

	if err := b.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: deleting collection %s: %v", vector.ErrUnavailable, name, err)
	}
	return nil
}

// resolveCollection reports whether the named index is backed by a live
// collection. A pending (created but never written) index resolves with
// live=false and no error; readers treat it as empty instead of hitting the
// nonexistent collection. Unknown names report ErrIndexNotFound.
func (b *Backend) resolveCollection(ctx context.Context, name string) (bool, error) {
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: checking collection %s: %v", vector.ErrUnavailable, name, err)
	}
	if exists {
		return true, nil
	}

	b.mu.Lock()
	pending := b.pending[name]
	b.mu.Unlock()
	if pending {
		return false, nil
	}
	return false, vector.ErrIndexNotFound
}

// Persist is a no-op. The Qdrant service owns durability.
func (b *Backend) Persist(_ context.Context, _ string, _ string) error {
	return nil
}

// Restore is a no-op. Collections are rediscovered from the service through
// ListIndexes and Nodes.
func (b *Backend) Restore(_ context.Context, _ string, _ string) error {
	return nil
}

// Close shuts down the client connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

var _ vector.Backend = (*Backend)(nil)

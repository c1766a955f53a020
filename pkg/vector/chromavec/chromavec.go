// Package chromavec provides a server-resident vector backend over Chroma's
// REST API. Each named index maps to one Chroma collection; chunk text rides
// in the documents array and doc_id plus inherited metadata in the metadatas
// array. Persist and Restore are no-ops; the service owns durability.
package chromavec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/vector"
)

const (
	// apiPrefix is the v2 single-tenant path every collection call hangs off.
	apiPrefix = "/api/v2/tenants/default_tenant/databases/default_database"

	// metaDocID keys the owning document id in node metadata.
	metaDocID = "doc_id"

	// metaPrefix namespaces inherited document metadata keys. Chroma
	// metadata is a flat scalar map, so document metadata is folded in
	// under this prefix.
	metaPrefix = "meta."

	// getPageSize is the page size used when walking a full collection.
	getPageSize = 256
)

// Config holds configuration for the Chroma backend.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string
}

// Backend implements vector.Backend using Chroma's REST API.
type Backend struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// collectionIDs caches name -> collection id lookups.
	mu            sync.Mutex
	collectionIDs map[string]string
}

// New creates a new Chroma vector backend.
func New(c Config, logger *zap.Logger) (*Backend, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	logger.Info("chroma vector backend initialized", zap.String("url", c.URL))

	return &Backend{
		baseURL: c.URL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:        logger,
		collectionIDs: make(map[string]string),
	}, nil
}

// CreateIndex gets or creates the collection for the named index.
func (b *Backend) CreateIndex(ctx context.Context, name string) error {
	_, err := b.getOrCreateCollection(ctx, name)
	return err
}

// lookupCollection resolves an existing collection id, without creating.
func (b *Backend) lookupCollection(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	if id, ok := b.collectionIDs[name]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	url := fmt.Sprintf("%s%s/collections/%s", b.baseURL, apiPrefix, name)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending get request: %v", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		b.cacheCollection(name, collection.ID)
		return collection.ID, nil
	case http.StatusNotFound:
		return "", vector.ErrIndexNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: getting collection %s: status %d: %s",
			vector.ErrUnavailable, name, resp.StatusCode, string(body))
	}
}

// getOrCreateCollection resolves the collection id, creating the collection
// when it does not exist yet.
func (b *Backend) getOrCreateCollection(ctx context.Context, name string) (string, error) {
	id, err := b.lookupCollection(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, vector.ErrIndexNotFound) {
		return "", err
	}

	createURL := fmt.Sprintf("%s%s/collections", b.baseURL, apiPrefix)
	jsonBody, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", createURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending create request: %v", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: creating collection %s: status %d: %s",
			vector.ErrUnavailable, name, resp.StatusCode, string(body))
	}

	var collection chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}

	b.cacheCollection(name, collection.ID)
	b.logger.Info("created chroma collection",
		zap.String("index", name),
		zap.String("collection_id", collection.ID),
	)
	return collection.ID, nil
}

func (b *Backend) cacheCollection(name, id string) {
	b.mu.Lock()
	b.collectionIDs[name] = id
	b.mu.Unlock()
}

// post sends a JSON POST to a collection endpoint and decodes the response
// into out when out is non-nil.
func (b *Backend) post(ctx context.Context, collectionID, endpoint string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", endpoint, err)
	}

	url := fmt.Sprintf("%s%s/collections/%s/%s", b.baseURL, apiPrefix, collectionID, endpoint)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending %s request: %v", vector.ErrUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s: status %d: %s",
			vector.ErrUnavailable, endpoint, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
	}
	return nil
}

// Add stores nodes in the named index, creating the collection if needed.
func (b *Backend) Add(ctx context.Context, name string, nodes []vector.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	collectionID, err := b.getOrCreateCollection(ctx, name)
	if err != nil {
		return err
	}

	ids := make([]string, len(nodes))
	embeddings := make([][]float32, len(nodes))
	documents := make([]string, len(nodes))
	metadatas := make([]map[string]any, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
		embeddings[i] = node.Embedding
		documents[i] = node.Text
		metadatas[i] = nodeMetadata(node)
	}

	err = b.post(ctx, collectionID, "add", chromaAddRequest{
		IDs:        ids,
		Embeddings: embeddings,
		Documents:  documents,
		Metadatas:  metadatas,
	}, nil)
	if err != nil {
		return err
	}

	b.logger.Debug("added nodes to chroma",
		zap.String("index", name),
		zap.Int("count", len(nodes)),
	)
	return nil
}

func nodeMetadata(node vector.Node) map[string]any {
	meta := map[string]any{metaDocID: node.DocID}
	for k, v := range node.Metadata {
		meta[metaPrefix+k] = v
	}
	return meta
}

func nodeFromRow(id, text string, meta map[string]any) vector.Node {
	node := vector.Node{ID: id, Text: text}
	for k, v := range meta {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case k == metaDocID:
			node.DocID = s
		case len(k) > len(metaPrefix) && k[:len(metaPrefix)] == metaPrefix:
			if node.Metadata == nil {
				node.Metadata = make(map[string]string)
			}
			node.Metadata[k[len(metaPrefix):]] = s
		}
	}
	return node
}

// Delete removes every node of docID, returning how many were removed.
func (b *Backend) Delete(ctx context.Context, name string, docID string) (int, error) {
	collectionID, err := b.lookupCollection(ctx, name)
	if err != nil {
		return 0, err
	}

	var existing chromaGetResponse
	err = b.post(ctx, collectionID, "get", chromaGetRequest{
		Where:   map[string]any{metaDocID: docID},
		Include: []string{},
	}, &existing)
	if err != nil {
		return 0, err
	}
	if len(existing.IDs) == 0 {
		return 0, nil
	}

	err = b.post(ctx, collectionID, "delete", chromaDeleteRequest{
		Where: map[string]any{metaDocID: docID},
	}, nil)
	if err != nil {
		return 0, err
	}

	b.logger.Debug("deleted nodes from chroma",
		zap.String("index", name),
		zap.String("doc_id", docID),
		zap.Int("count", len(existing.IDs)),
	)
	return len(existing.IDs), nil
}

// Replace removes docID's nodes and stores the given ones.
func (b *Backend) Replace(ctx context.Context, name string, docID string, nodes []vector.Node) error {
	collectionID, err := b.getOrCreateCollection(ctx, name)
	if err != nil {
		return err
	}

	err = b.post(ctx, collectionID, "delete", chromaDeleteRequest{
		Where: map[string]any{metaDocID: docID},
	}, nil)
	if err != nil {
		return err
	}
	return b.Add(ctx, name, nodes)
}

// Search returns the topK most similar nodes.
func (b *Backend) Search(ctx context.Context, name string, embedding []float32, topK int) ([]vector.Match, error) {
	collectionID, err := b.lookupCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	var queryResp chromaQueryResponse
	err = b.post(ctx, collectionID, "query", chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"documents", "metadatas", "distances"},
	}, &queryResp)
	if err != nil {
		return nil, err
	}

	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	var matches []vector.Match
	for i, id := range ids {
		var text string
		if len(queryResp.Documents) > 0 && i < len(queryResp.Documents[0]) {
			text = queryResp.Documents[0][i]
		}
		var meta map[string]any
		if len(queryResp.Metadatas) > 0 && i < len(queryResp.Metadatas[0]) {
			meta = queryResp.Metadatas[0][i]
		}

		match := vector.Match{Node: nodeFromRow(id, text, meta)}
		// Lower distance means higher similarity.
		if len(queryResp.Distances) > 0 && i < len(queryResp.Distances[0]) {
			match.Score = 1.0 / (1.0 + queryResp.Distances[0][i])
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Count returns the number of nodes in the named index.
func (b *Backend) Count(ctx context.Context, name string) (int, error) {
	collectionID, err := b.lookupCollection(ctx, name)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s%s/collections/%s/count", b.baseURL, apiPrefix, collectionID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating count request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: sending count request: %v", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("%w: counting %s: status %d: %s",
			vector.ErrUnavailable, name, resp.StatusCode, string(body))
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return count, nil
}

// Nodes walks the full collection in pages.
func (b *Backend) Nodes(ctx context.Context, name string) ([]vector.Node, error) {
	collectionID, err := b.lookupCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	var nodes []vector.Node
	for offset := 0; ; offset += getPageSize {
		var page chromaGetResponse
		err = b.post(ctx, collectionID, "get", chromaGetRequest{
			Limit:   getPageSize,
			Offset:  offset,
			Include: []string{"documents", "metadatas"},
		}, &page)
		if err != nil {
			return nil, err
		}
		if len(page.IDs) == 0 {
			return nodes, nil
		}

		for i, id := range page.IDs {
			var text string
			if i < len(page.Documents) {
				text = page.Documents[i]
			}
			var meta map[string]any
			if i < len(page.Metadatas) {
				meta = page.Metadatas[i]
			}
			nodes = append(nodes, nodeFromRow(id, text, meta))
		}

		if len(page.IDs) < getPageSize {
			return nodes, nil
		}
	}
}

// ListIndexes returns every collection name.
func (b *Backend) ListIndexes(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s%s/collections", b.baseURL, apiPrefix)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating list request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending list request: %v", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: listing collections: status %d: %s",
			vector.ErrUnavailable, resp.StatusCode, string(body))
	}

	var collections []chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collections); err != nil {
		return nil, fmt.Errorf("decoding list response: %w", err)
	}

	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteIndex drops the collection.
func (b *Backend) DeleteIndex(ctx context.Context, name string) error {
	if _, err := b.lookupCollection(ctx, name); err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s/collections/%s", b.baseURL, apiPrefix, name)
	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending delete request: %v", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return vector.ErrIndexNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: deleting collection %s: status %d: %s",
			vector.ErrUnavailable, name, resp.StatusCode, string(body))
	}

	b.mu.Lock()
	delete(b.collectionIDs, name)
	b.mu.Unlock()
	return nil
}

// Persist is a no-op. The Chroma service owns durability.
func (b *Backend) Persist(_ context.Context, _ string, _ string) error {
	return nil
}

// Restore is a no-op.
func (b *Backend) Restore(_ context.Context, _ string, _ string) error {
	return nil
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	return nil
}

var _ vector.Backend = (*Backend)(nil)

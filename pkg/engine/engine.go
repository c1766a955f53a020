// Package engine orchestrates named retrieval indexes over one vector
// backend: ingestion, hybrid retrieval with budget filtering, partial-success
// updates and deletes, persistence, and post-restart rediscovery.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/budget"
	"github.com/papercomputeco/reels/pkg/chunk"
	"github.com/papercomputeco/reels/pkg/docstore"
	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/embeddings"
	"github.com/papercomputeco/reels/pkg/eventstream"
	"github.com/papercomputeco/reels/pkg/eventstream/nop"
	"github.com/papercomputeco/reels/pkg/retriever"
	"github.com/papercomputeco/reels/pkg/vector"
)

// DefaultContextWindow is the token window assumed when a retrieval request
// does not carry its own.
const DefaultContextWindow = 4096

// CompletionFunc generates a completion for a fully assembled prompt. The
// model behind it stays opaque to the engine.
type CompletionFunc func(ctx context.Context, prompt string) (string, error)

// Options configures an Engine.
type Options struct {
	// Backend stores and searches embedded nodes. Required.
	Backend vector.Backend

	// Embedder turns text into vectors. Required.
	Embedder embeddings.Embedder

	// Transformer chunks documents. Defaults to a prose transformer.
	Transformer *chunk.Transformer

	// Filter trims retrieval results to the context budget. Defaults to the
	// chars-per-token heuristic filter.
	Filter *budget.Filter

	// Publisher receives document lifecycle events. Defaults to the nop
	// publisher.
	Publisher eventstream.Publisher

	// Complete serves RetrieveAndComplete. Optional.
	Complete CompletionFunc

	// Registerer receives the engine's metrics. Defaults to the global
	// prometheus registerer.
	Registerer prometheus.Registerer

	// Retriever holds the hybrid fusion parameters.
	Retriever retriever.Config

	// ContextWindow is the default token window for retrieval requests.
	ContextWindow int

	// SnapshotsDir is where Persist writes index snapshots. Empty disables
	// persistence.
	SnapshotsDir string

	// AutoPersist persists an index after every successful write batch.
	AutoPersist bool
}

// Engine manages named indexes over one backend.
type Engine struct {
	backend     vector.Backend
	embedder    embeddings.Embedder
	transformer *chunk.Transformer
	filter      *budget.Filter
	publisher   eventstream.Publisher
	complete    CompletionFunc
	metrics     *metrics
	logger      *zap.Logger

	retrieverCfg  retriever.Config
	contextWindow int
	snapshotsDir  string
	autoPersist   bool

	// mu guards the indexes map. Each Index owns its own locking; the
	// backend serializes its own writes internally.
	mu      sync.RWMutex
	indexes map[string]*Index
}

// Index is the engine-local state of one named index: its document store and
// keyword index, kept in step with the backend.
type Index struct {
	name      string
	docs      *docstore.Store
	keyword   *retriever.BM25Index
	retriever *retriever.Retriever
}

// New creates an engine.
func New(opts Options, logger *zap.Logger) (*Engine, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("vector backend is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	transformer := opts.Transformer
	if transformer == nil {
		transformer = chunk.NewTransformer(chunk.Config{})
	}

	filter := opts.Filter
	if filter == nil {
		filter = budget.NewFilter(budget.NewHeuristic(0), budget.Config{}, logger)
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	contextWindow := opts.ContextWindow
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}

	return &Engine{
		backend:       opts.Backend,
		embedder:      opts.Embedder,
		transformer:   transformer,
		filter:        filter,
		publisher:     publisher,
		complete:      opts.Complete,
		metrics:       newMetrics(registerer),
		logger:        logger,
		retrieverCfg:  opts.Retriever,
		contextWindow: contextWindow,
		snapshotsDir:  opts.SnapshotsDir,
		autoPersist:   opts.AutoPersist,
		indexes:       make(map[string]*Index),
	}, nil
}

// newIndex builds the engine-local state for one named index.
func (e *Engine) newIndex(name string) *Index {
	keyword := retriever.NewBM25Index()
	return &Index{
		name:      name,
		docs:      docstore.New(e.logger),
		keyword:   keyword,
		retriever: retriever.New(e.backend, keyword, name, e.retrieverCfg, e.logger),
	}
}

// ensureIndex returns the named index, creating it on first write.
func (e *Engine) ensureIndex(ctx context.Context, name string) (*Index, error) {
	if name == "" {
		return nil, ErrEmptyIndexName
	}

	e.mu.Lock()
	idx, ok := e.indexes[name]
	if !ok {
		idx = e.newIndex(name)
		e.indexes[name] = idx
	}
	e.mu.Unlock()

	if !ok {
		if err := e.backend.CreateIndex(ctx, name); err != nil {
			return nil, fmt.Errorf("creating index %s: %w", name, err)
		}
	}
	return idx, nil
}

// lookupIndex resolves an existing index. When the engine has no local state
// for it but the backend does (a server-resident index surviving a restart),
// the local state is hydrated from the backend's nodes.
func (e *Engine) lookupIndex(ctx context.Context, name string) (*Index, error) {
	if name == "" {
		return nil, ErrEmptyIndexName
	}

	e.mu.RLock()
	idx, ok := e.indexes[name]
	e.mu.RUnlock()
	if ok {
		return idx, nil
	}

	names, err := e.backend.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}
	for _, n := range names {
		if n == name {
			return e.hydrateIndex(ctx, name)
		}
	}
	return nil, vector.ErrIndexNotFound
}

// hydrateIndex rebuilds local docstore and keyword state from the backend.
// Documents are reconstituted from their nodes, deduplicated by doc id with
// the first-seen chunk text standing in for the original document text.
func (e *Engine) hydrateIndex(ctx context.Context, name string) (*Index, error) {
	nodes, err := e.backend.Nodes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading nodes of index %s: %w", name, err)
	}

	idx := e.newIndex(name)
	idx.keyword.Add(nodes)
	for _, node := range nodes {
		if idx.docs.Exists(node.DocID) {
			continue
		}
		idx.docs.Put(document.StoredDocument{
			DocID:    node.DocID,
			Text:     node.Text,
			Hash:     document.Hash(node.Text, node.Metadata),
			Metadata: node.Metadata,
		})
	}

	e.mu.Lock()
	// Another caller may have hydrated concurrently; first one wins.
	if existing, ok := e.indexes[name]; ok {
		e.mu.Unlock()
		return existing, nil
	}
	e.indexes[name] = idx
	e.mu.Unlock()

	e.logger.Info("hydrated index from backend",
		zap.String("index", name),
		zap.Int("nodes", len(nodes)),
		zap.Int("documents", idx.docs.Count()),
	)
	return idx, nil
}

// Rediscover rebuilds local state for every index the backend knows about.
// Intended for startup against server-resident backends. An index that fails
// to hydrate is logged and skipped; the rest survive.
func (e *Engine) Rediscover(ctx context.Context) ([]string, error) {
	names, err := e.backend.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}
	sort.Strings(names)

	var hydrated []string
	for _, name := range names {
		e.mu.RLock()
		_, known := e.indexes[name]
		e.mu.RUnlock()
		if known {
			hydrated = append(hydrated, name)
			continue
		}

		if _, err := e.hydrateIndex(ctx, name); err != nil {
			e.logger.Warn("skipping index during rediscovery",
				zap.String("index", name),
				zap.Error(err),
			)
			continue
		}
		hydrated = append(hydrated, name)
	}
	return hydrated, nil
}

// ListIndexes returns the names of all indexes known to the backend.
func (e *Engine) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := e.backend.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteIndex removes the named index from the backend, the engine, and the
// snapshot directory.
func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyIndexName
	}

	if err := e.backend.DeleteIndex(ctx, name); err != nil {
		return fmt.Errorf("deleting index %s: %w", name, err)
	}

	e.mu.Lock()
	delete(e.indexes, name)
	e.mu.Unlock()

	if e.snapshotsDir != "" {
		if err := e.removeSnapshot(name); err != nil {
			e.logger.Warn("removing index snapshot failed",
				zap.String("index", name),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("deleted index", zap.String("index", name))
	return nil
}

// Close releases the backend, embedder, and publisher.
func (e *Engine) Close() error {
	var firstErr error
	for _, c := range []func() error{e.publisher.Close, e.embedder.Close, e.backend.Close} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

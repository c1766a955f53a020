package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/eventstream"
	"github.com/papercomputeco/reels/pkg/vector"
)

// indexFanOut caps how many documents of one batch are processed at once.
const indexFanOut = 8

// IndexResult reports the outcome of indexing one document.
type IndexResult struct {
	// DocID is the content hash of the document.
	DocID string

	// Nodes is how many chunks the document was split into. Zero when the
	// document was already indexed.
	Nodes int

	// Created is false when the document was already present and the batch
	// left it untouched.
	Created bool
}

// UpdateItem pairs the id of an already-indexed document with its
// replacement content.
type UpdateItem struct {
	DocID    string
	Document document.Document
}

// UpdateResult partitions an update batch by outcome. Failed lists items
// whose write failed mid-batch; the returned error aggregates the causes.
type UpdateResult struct {
	Updated   []string
	Unchanged []string
	NotFound  []string
	Failed    []string
}

// DeleteResult partitions a delete batch by outcome. Failed lists items
// whose write failed mid-batch; the returned error aggregates the causes.
type DeleteResult struct {
	Deleted  []string
	NotFound []string
	Failed   []string
}

// Index stores a batch of documents in the named index, creating it on first
// write. Documents whose content is already indexed are skipped, so a
// cancelled batch can be re-issued without duplicating work. Per-document
// work (hash, dedup, chunk, embed, add) fans out across the batch.
func (e *Engine) Index(ctx context.Context, name string, docs []document.Document) (results []IndexResult, err error) {
	defer func(start time.Time) { e.metrics.observe(opIndex, start, err) }(time.Now())

	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	idx, err := e.ensureIndex(ctx, name)
	if err != nil {
		return nil, err
	}

	results = make([]IndexResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexFanOut)

	for i, doc := range docs {
		g.Go(func() error {
			result, err := e.indexOne(gctx, idx, doc)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, result := range results {
		if result.Created {
			e.publish(ctx, eventstream.EventTypeDocumentIndexed, name, result.DocID, result.Nodes)
		}
	}

	if e.autoPersist && e.snapshotsDir != "" {
		if err := e.Persist(ctx, name); err != nil {
			return nil, fmt.Errorf("auto-persisting index %s: %w", name, err)
		}
	}

	e.logger.Info("indexed documents",
		zap.String("index", name),
		zap.Int("batch", len(docs)),
	)
	return results, nil
}

// indexOne processes a single document. The docstore Put doubles as the
// dedup reservation: losing the race to another writer (or an earlier copy
// of the same content in this batch) turns the document into a no-op.
func (e *Engine) indexOne(ctx context.Context, idx *Index, doc document.Document) (IndexResult, error) {
	stored := document.Stored(doc)

	docID, inserted := idx.docs.Put(stored)
	if !inserted {
		return IndexResult{DocID: docID}, nil
	}

	nodes, err := e.chunkAndEmbed(ctx, doc, docID)
	if err != nil {
		// Release the reservation so a later attempt can retry.
		_ = idx.docs.Delete(docID)
		return IndexResult{}, err
	}

	if err := e.backend.Add(ctx, idx.name, nodes); err != nil {
		_ = idx.docs.Delete(docID)
		return IndexResult{}, fmt.Errorf("adding nodes for doc %s: %w", docID, err)
	}
	idx.keyword.Add(nodes)

	return IndexResult{DocID: docID, Nodes: len(nodes), Created: true}, nil
}

// chunkAndEmbed splits a document and embeds each chunk.
func (e *Engine) chunkAndEmbed(ctx context.Context, doc document.Document, docID string) ([]vector.Node, error) {
	nodes, err := e.transformer.Split(doc, docID)
	if err != nil {
		return nil, fmt.Errorf("chunking doc %s: %w", docID, err)
	}

	for i := range nodes {
		embedding, err := e.embedder.Embed(ctx, nodes[i].Text)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk of doc %s: %w", docID, err)
		}
		nodes[i].Embedding = embedding
	}
	return nodes, nil
}

// Update applies a batch of replacements to the named index with per-item
// outcomes: an item whose hash is unchanged is left alone, a changed one has
// its nodes swapped, and an unknown id is reported, not created. A text
// change moves the document to its new content id. One failing item never
// discards outcomes already achieved for the rest of the batch.
func (e *Engine) Update(ctx context.Context, name string, items []UpdateItem) (result UpdateResult, err error) {
	defer func(start time.Time) { e.metrics.observe(opUpdate, start, err) }(time.Now())

	idx, err := e.lookupIndex(ctx, name)
	if err != nil {
		return UpdateResult{}, err
	}

	var errs []error
	for _, item := range items {
		existing, getErr := idx.docs.Get(item.DocID)
		if getErr != nil {
			result.NotFound = append(result.NotFound, item.DocID)
			continue
		}

		stored := document.Stored(item.Document)
		if existing.Hash == stored.Hash {
			result.Unchanged = append(result.Unchanged, item.DocID)
			continue
		}

		nodes, applyErr := e.applyUpdate(ctx, idx, item.DocID, item.Document, stored)
		if applyErr != nil {
			result.Failed = append(result.Failed, item.DocID)
			errs = append(errs, applyErr)
			continue
		}

		result.Updated = append(result.Updated, item.DocID)
		e.publish(ctx, eventstream.EventTypeDocumentUpdated, name, stored.DocID, nodes)
	}

	if e.autoPersist && e.snapshotsDir != "" && len(result.Updated) > 0 {
		if perErr := e.Persist(ctx, name); perErr != nil {
			errs = append(errs, fmt.Errorf("auto-persisting index %s: %w", name, perErr))
		}
	}

	e.logger.Info("updated documents",
		zap.String("index", name),
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("not_found", len(result.NotFound)),
		zap.Int("failed", len(result.Failed)),
	)
	err = errors.Join(errs...)
	return result, err
}

// applyUpdate swaps the document stored under oldID for its replacement and
// returns how many nodes it now has.
func (e *Engine) applyUpdate(ctx context.Context, idx *Index, oldID string, doc document.Document, stored document.StoredDocument) (int, error) {
	// A text change re-homes the document under its new content id. When
	// that id is already indexed, the update reduces to dropping the old
	// copy.
	if stored.DocID != oldID && idx.docs.Exists(stored.DocID) {
		if _, err := e.backend.Delete(ctx, idx.name, oldID); err != nil {
			return 0, fmt.Errorf("deleting nodes for doc %s: %w", oldID, err)
		}
		idx.keyword.RemoveDoc(oldID)
		return 0, idx.docs.Delete(oldID)
	}

	nodes, err := e.chunkAndEmbed(ctx, doc, stored.DocID)
	if err != nil {
		return 0, err
	}

	// Replace removes the old id's nodes and inserts the new ones under the
	// backend's writer lock, so readers see the old version or the new one,
	// never a mix.
	if err := e.backend.Replace(ctx, idx.name, oldID, nodes); err != nil {
		return 0, fmt.Errorf("replacing nodes for doc %s: %w", oldID, err)
	}
	idx.keyword.RemoveDoc(oldID)
	idx.keyword.Add(nodes)

	if err := idx.docs.Replace(oldID, stored); err != nil {
		return 0, fmt.Errorf("replacing doc %s: %w", oldID, err)
	}
	return len(nodes), nil
}

// Delete removes documents by id with per-document outcomes. Unknown ids are
// reported and the rest of the batch proceeds; one failing item never
// discards deletions already achieved.
func (e *Engine) Delete(ctx context.Context, name string, docIDs []string) (result DeleteResult, err error) {
	defer func(start time.Time) { e.metrics.observe(opDelete, start, err) }(time.Now())

	idx, err := e.lookupIndex(ctx, name)
	if err != nil {
		return DeleteResult{}, err
	}

	var errs []error
	for _, docID := range docIDs {
		if !idx.docs.Exists(docID) {
			result.NotFound = append(result.NotFound, docID)
			continue
		}

		// Backend nodes go first: if that fails the docstore entry
		// survives, so the document is never half-deleted.
		if _, delErr := e.backend.Delete(ctx, name, docID); delErr != nil {
			result.Failed = append(result.Failed, docID)
			errs = append(errs, fmt.Errorf("deleting nodes for doc %s: %w", docID, delErr))
			continue
		}
		_ = idx.docs.Delete(docID)
		idx.keyword.RemoveDoc(docID)

		result.Deleted = append(result.Deleted, docID)
		e.publish(ctx, eventstream.EventTypeDocumentDeleted, name, docID, 0)
	}

	if e.autoPersist && e.snapshotsDir != "" && len(result.Deleted) > 0 {
		if perErr := e.Persist(ctx, name); perErr != nil {
			errs = append(errs, fmt.Errorf("auto-persisting index %s: %w", name, perErr))
		}
	}

	e.logger.Info("deleted documents",
		zap.String("index", name),
		zap.Int("deleted", len(result.Deleted)),
		zap.Int("not_found", len(result.NotFound)),
		zap.Int("failed", len(result.Failed)),
	)
	err = errors.Join(errs...)
	return result, err
}

// publish emits one lifecycle event. Publish failures are logged, never
// surfaced; the write itself already succeeded.
func (e *Engine) publish(ctx context.Context, eventType, index, docID string, nodes int) {
	err := e.publisher.PublishDocument(ctx, &eventstream.DocumentEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Index:         index,
		DocID:         docID,
		Nodes:         nodes,
	})
	if err != nil {
		e.logger.Warn("publishing document event failed",
			zap.String("event_type", eventType),
			zap.String("doc_id", docID),
			zap.Error(err),
		)
	}
}

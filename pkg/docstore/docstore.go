// Package docstore provides the in-memory, insertion-ordered document store.
//
// Documents are keyed by content hash, so storing the same text twice is a
// no-op and Put doubles as a dedup check. Reads taken while writers are
// active see either the pre-write or post-write state, never a partial one.
package docstore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/document"
)

// ListRequest bundles the pagination and projection options for List.
type ListRequest struct {
	// Offset is the number of documents to skip, in insertion order.
	Offset int

	// Limit caps the number of documents returned. Non-positive means no cap.
	Limit int

	// MaxTextLen truncates each returned document's text. Non-positive means
	// full text.
	MaxTextLen int

	// Filter restricts results to documents whose metadata matches.
	Filter document.MetadataFilter
}

// Store holds documents in insertion order.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]document.StoredDocument
	order  []string
	logger *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	return &Store{
		docs:   make(map[string]document.StoredDocument),
		logger: logger,
	}
}

// Put stores the document and returns its id. inserted is false when a
// document with the same id already exists, in which case the store is left
// untouched.
func (s *Store) Put(doc document.StoredDocument) (docID string, inserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.DocID]; ok {
		return doc.DocID, false
	}

	s.docs[doc.DocID] = doc
	s.order = append(s.order, doc.DocID)
	return doc.DocID, true
}

// Get returns the document for the given id.
func (s *Store) Get(docID string) (document.StoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docID]
	if !ok {
		return document.StoredDocument{}, ErrNotFound
	}
	return doc, nil
}

// Replace swaps the document stored under oldID for doc, preserving the
// original insertion position. When the ids are equal this is an in-place
// overwrite. Returns ErrNotFound when oldID is absent.
func (s *Store) Replace(oldID string, doc document.StoredDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[oldID]; !ok {
		return ErrNotFound
	}

	if oldID != doc.DocID {
		delete(s.docs, oldID)
		for i, id := range s.order {
			if id == oldID {
				s.order[i] = doc.DocID
				break
			}
		}
	}
	s.docs[doc.DocID] = doc
	return nil
}

// Delete removes the document for the given id. Returns ErrNotFound when the
// id is absent.
func (s *Store) Delete(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[docID]; !ok {
		return ErrNotFound
	}

	delete(s.docs, docID)
	for i, id := range s.order {
		if id == docID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Exists reports whether a document with the given id is stored.
func (s *Store) Exists(docID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.docs[docID]
	return ok
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// List returns documents in insertion order, honoring the request's offset,
// limit, metadata filter, and text truncation. Offset and limit apply to the
// filtered sequence.
func (s *Store) List(req ListRequest) []document.StoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []document.StoredDocument
	skipped := 0
	for _, id := range s.order {
		doc := s.docs[id]
		if !req.Filter.Matches(doc.Metadata) {
			continue
		}
		if skipped < req.Offset {
			skipped++
			continue
		}
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
		out = append(out, doc.View(req.MaxTextLen))
	}
	return out
}

// All returns every stored document in insertion order.
func (s *Store) All() []document.StoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]document.StoredDocument, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

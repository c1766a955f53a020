// Package document defines the content-addressed document model shared by the
// document store, the vector backends, and the retrieval engine.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Document is an item submitted for indexing: raw text plus optional
// string-valued metadata.
type Document struct {
	Text     string
	Metadata map[string]string
}

// StoredDocument is a document as held by the store, keyed by its content
// hash. Hash covers text and metadata together so updates can distinguish
// metadata-only changes from no-ops.
type StoredDocument struct {
	DocID    string
	Text     string
	Hash     string
	Metadata map[string]string

	// IsTruncated is set on views produced with a max text length.
	IsTruncated bool
}

// ID derives the document identifier from its text: the hex-encoded SHA-256
// of the UTF-8 bytes. Identical text always maps to the same id.
func ID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Hash derives the content hash over text plus metadata, with metadata keys
// visited in sorted order so the hash is deterministic.
func Hash(text string, metadata map[string]string) string {
	h := sha256.New()
	h.Write([]byte(text))

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(metadata[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Stored converts a Document into its stored form, deriving DocID and Hash.
func Stored(doc Document) StoredDocument {
	return StoredDocument{
		DocID:    ID(doc.Text),
		Text:     doc.Text,
		Hash:     Hash(doc.Text, doc.Metadata),
		Metadata: cloneMetadata(doc.Metadata),
	}
}

// View returns a copy of the document with its text truncated to maxLen
// bytes. A non-positive maxLen returns the document unmodified.
func (d StoredDocument) View(maxLen int) StoredDocument {
	out := d
	out.Metadata = cloneMetadata(d.Metadata)
	if maxLen > 0 && len(d.Text) > maxLen {
		out.Text = d.Text[:maxLen]
		out.IsTruncated = true
	}
	return out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetadataFilter selects documents whose metadata contains every listed
// key/value pair exactly. A nil or empty filter matches everything.
type MetadataFilter map[string]string

// Matches reports whether the given metadata satisfies the filter.
func (f MetadataFilter) Matches(metadata map[string]string) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentIndexed is emitted after a document is first indexed.
	EventTypeDocumentIndexed = "reels.document.indexed"

	// EventTypeDocumentUpdated is emitted after a document's content or
	// metadata changes.
	EventTypeDocumentUpdated = "reels.document.updated"

	// EventTypeDocumentDeleted is emitted after a document is removed.
	EventTypeDocumentDeleted = "reels.document.deleted"
)

// DocumentEvent is a transport-neutral payload describing one document
// lifecycle transition.
type DocumentEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// Index is the name of the index the document belongs to.
	Index string `json:"index"`

	// DocID is the content hash of the document.
	DocID string `json:"doc_id"`

	// Nodes is how many chunks the document occupies after the transition.
	Nodes int `json:"nodes,omitempty"`
}

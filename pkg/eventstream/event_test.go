package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reels/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals DocumentEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.DocumentEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeDocumentIndexed,
			EventID:       "evt_123",
			EmittedAt:     now,
			Index:         "docs",
			DocID:         "abc123",
			Nodes:         4,
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("index"))
		Expect(got).To(HaveKey("doc_id"))
		Expect(got).To(HaveKey("nodes"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeDocumentIndexed).To(Equal("reels.document.indexed"))
		Expect(eventstream.EventTypeDocumentUpdated).To(Equal("reels.document.updated"))
		Expect(eventstream.EventTypeDocumentDeleted).To(Equal("reels.document.deleted"))
	})

	It("provides ErrNilDocumentEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilDocumentEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilDocumentEvent).To(MatchError("nil document event"))
	})
})

package engine_test

import (
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/docstore"
	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/engine"
	testutils "github.com/papercomputeco/reels/pkg/utils/test"
	"github.com/papercomputeco/reels/pkg/vector"
	"github.com/papercomputeco/reels/pkg/vector/memvec"
)

// failingDeleteBackend delegates to the wrapped backend but fails node
// deletion for one document.
type failingDeleteBackend struct {
	vector.Backend
	failDocID string
}

func (b *failingDeleteBackend) Delete(ctx context.Context, name string, docID string) (int, error) {
	if docID == b.failDocID {
		return 0, fmt.Errorf("simulated backend outage")
	}
	return b.Backend.Delete(ctx, name, docID)
}

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		backend  *memvec.Backend
		embedder *testutils.MockEmbedder
		eng      *engine.Engine
	)

	newEngine := func(opts engine.Options) *engine.Engine {
		opts.Backend = backend
		opts.Embedder = embedder
		opts.Registerer = prometheus.NewRegistry()
		e, err := engine.New(opts, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	BeforeEach(func() {
		ctx = context.Background()
		backend = memvec.New(zap.NewNop())
		embedder = testutils.NewMockEmbedder()
		eng = newEngine(engine.Options{})
	})

	doc := func(text string) document.Document {
		return document.Document{Text: text}
	}

	Describe("Index", func() {
		It("creates the index on first write and reports per-document results", func() {
			results, err := eng.Index(ctx, "docs", []document.Document{
				doc("alpha document"),
				doc("bravo document"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Created).To(BeTrue())
			Expect(results[0].DocID).To(Equal(document.ID("alpha document")))
			Expect(results[0].Nodes).To(BeNumerically(">", 0))

			names, err := eng.ListIndexes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ContainElement("docs"))
		})

		It("re-indexing the same content is a no-op", func() {
			_, err := eng.Index(ctx, "docs", []document.Document{doc("alpha document")})
			Expect(err).NotTo(HaveOccurred())

			before, err := backend.Count(ctx, "docs")
			Expect(err).NotTo(HaveOccurred())

			results, err := eng.Index(ctx, "docs", []document.Document{doc("alpha document")})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Created).To(BeFalse())

			after, err := backend.Count(ctx, "docs")
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("rejects an empty batch and an empty index name", func() {
			_, err := eng.Index(ctx, "docs", nil)
			Expect(err).To(MatchError(engine.ErrNoDocuments))

			_, err = eng.Index(ctx, "", []document.Document{doc("x")})
			Expect(err).To(MatchError(engine.ErrEmptyIndexName))
		})

		It("leaves no reservation behind when embedding fails", func() {
			embedder.FailOn = "poison pill"

			_, err := eng.Index(ctx, "docs", []document.Document{doc("poison pill")})
			Expect(err).To(HaveOccurred())

			embedder.FailOn = ""
			results, err := eng.Index(ctx, "docs", []document.Document{doc("poison pill")})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Created).To(BeTrue())
		})
	})

	Describe("Retrieve", func() {
		BeforeEach(func() {
			_, err := eng.Index(ctx, "docs", []document.Document{
				{Text: "kubernetes orchestrates containers", Metadata: map[string]string{"topic": "infra"}},
				{Text: "jazz music swings at midnight", Metadata: map[string]string{"topic": "music"}},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects an empty query", func() {
			_, err := eng.Retrieve(ctx, "docs", "   ", engine.RetrieveOptions{})
			Expect(err).To(MatchError(engine.ErrEmptyQuery))
		})

		It("returns ErrIndexNotFound for an unknown index", func() {
			_, err := eng.Retrieve(ctx, "missing", "query", engine.RetrieveOptions{})
			Expect(err).To(MatchError(vector.ErrIndexNotFound))
		})

		It("ranks the keyword-matching document first", func() {
			results, err := eng.Retrieve(ctx, "docs", "kubernetes containers", engine.RetrieveOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeEmpty())
			Expect(results[0].Text).To(ContainSubstring("kubernetes"))
		})

		It("applies the metadata filter", func() {
			results, err := eng.Retrieve(ctx, "docs", "midnight music", engine.RetrieveOptions{
				Filter: document.MetadataFilter{"topic": "infra"},
			})
			Expect(err).NotTo(HaveOccurred())
			for _, r := range results {
				Expect(r.Metadata).To(HaveKeyWithValue("topic", "infra"))
			}
		})

		It("keeps filtered matches that would otherwise lose the maxResults cut", func() {
			// The query is the music document verbatim, so unfiltered it
			// takes the single slot; the filter must win before the cut.
			results, err := eng.Retrieve(ctx, "docs", "jazz music swings at midnight", engine.RetrieveOptions{
				MaxResults: 1,
				Filter:     document.MetadataFilter{"topic": "infra"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Metadata).To(HaveKeyWithValue("topic", "infra"))
		})

		It("returns empty when the context window has no room", func() {
			results, err := eng.Retrieve(ctx, "docs", "kubernetes", engine.RetrieveOptions{
				ContextWindow: 100,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("RetrieveAndComplete", func() {
		It("errors without a completion function", func() {
			_, _, err := eng.RetrieveAndComplete(ctx, "docs", "query", engine.RetrieveOptions{})
			Expect(err).To(MatchError(engine.ErrNoCompletion))
		})

		It("hands the assembled prompt to the completion function", func() {
			var gotPrompt string
			withComplete := newEngine(engine.Options{
				Complete: func(_ context.Context, prompt string) (string, error) {
					gotPrompt = prompt
					return "the answer", nil
				},
			})

			_, err := withComplete.Index(ctx, "docs", []document.Document{
				doc("kubernetes orchestrates containers"),
			})
			Expect(err).NotTo(HaveOccurred())

			completion, results, err := withComplete.RetrieveAndComplete(ctx, "docs", "kubernetes", engine.RetrieveOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(completion).To(Equal("the answer"))
			Expect(results).NotTo(BeEmpty())
			Expect(gotPrompt).To(ContainSubstring("kubernetes orchestrates containers"))
			Expect(gotPrompt).To(ContainSubstring("Question: kubernetes"))
		})
	})

	Describe("Update", func() {
		var docID string

		BeforeEach(func() {
			results, err := eng.Index(ctx, "docs", []document.Document{
				{Text: "stable text", Metadata: map[string]string{"rev": "1"}},
			})
			Expect(err).NotTo(HaveOccurred())
			docID = results[0].DocID
		})

		It("partitions the batch into updated, unchanged, and not found", func() {
			result, err := eng.Update(ctx, "docs", []engine.UpdateItem{
				{DocID: docID, Document: document.Document{Text: "stable text", Metadata: map[string]string{"rev": "2"}}},
				{DocID: "never-indexed", Document: document.Document{Text: "whatever"}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Updated).To(Equal([]string{docID}))
			Expect(result.Unchanged).To(BeEmpty())
			Expect(result.NotFound).To(Equal([]string{"never-indexed"}))
			Expect(result.Failed).To(BeEmpty())
		})

		It("reports unchanged for an identical document", func() {
			result, err := eng.Update(ctx, "docs", []engine.UpdateItem{
				{DocID: docID, Document: document.Document{Text: "stable text", Metadata: map[string]string{"rev": "1"}}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Unchanged).To(Equal([]string{docID}))
			Expect(result.Updated).To(BeEmpty())
		})

		It("swaps nodes without changing the document count", func() {
			before, err := eng.ListDocuments(ctx, "docs", docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Update(ctx, "docs", []engine.UpdateItem{
				{DocID: docID, Document: document.Document{Text: "stable text", Metadata: map[string]string{"rev": "2"}}},
			})
			Expect(err).NotTo(HaveOccurred())

			after, err := eng.ListDocuments(ctx, "docs", docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(HaveLen(len(before)))
			Expect(after[0].Metadata).To(HaveKeyWithValue("rev", "2"))
		})

		It("moves a document whose text changed to its new content id", func() {
			result, err := eng.Update(ctx, "docs", []engine.UpdateItem{
				{DocID: docID, Document: document.Document{Text: "rewritten text", Metadata: map[string]string{"rev": "2"}}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Updated).To(Equal([]string{docID}))

			docs, err := eng.ListDocuments(ctx, "docs", docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].DocID).To(Equal(document.ID("rewritten text")))
			Expect(docs[0].Metadata).To(HaveKeyWithValue("rev", "2"))

			hits, err := eng.Retrieve(ctx, "docs", "rewritten text", engine.RetrieveOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).NotTo(BeEmpty())
			for _, hit := range hits {
				Expect(hit.DocID).NotTo(Equal(docID))
			}
		})

		It("keeps earlier outcomes when a later item fails", func() {
			results, err := eng.Index(ctx, "docs", []document.Document{doc("other text")})
			Expect(err).NotTo(HaveOccurred())
			otherID := results[0].DocID

			embedder.FailOn = "broken replacement"
			result, err := eng.Update(ctx, "docs", []engine.UpdateItem{
				{DocID: docID, Document: document.Document{Text: "stable text", Metadata: map[string]string{"rev": "2"}}},
				{DocID: otherID, Document: document.Document{Text: "broken replacement"}},
			})
			Expect(err).To(HaveOccurred())
			Expect(result.Updated).To(Equal([]string{docID}))
			Expect(result.Failed).To(Equal([]string{otherID}))

			docs, err := eng.ListDocuments(ctx, "docs", docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())
			revs := make(map[string]string, len(docs))
			for _, d := range docs {
				revs[d.DocID] = d.Metadata["rev"]
			}
			Expect(revs).To(HaveKeyWithValue(docID, "2"))
		})
	})

	Describe("Delete", func() {
		It("removes documents and their nodes completely", func() {
			results, err := eng.Index(ctx, "docs", []document.Document{
				doc("delete me entirely"),
				doc("keep me around"),
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := eng.Delete(ctx, "docs", []string{results[0].DocID, "unknown-id"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Deleted).To(Equal([]string{results[0].DocID}))
			Expect(result.NotFound).To(Equal([]string{"unknown-id"}))

			hits, err := eng.Retrieve(ctx, "docs", "delete me entirely", engine.RetrieveOptions{})
			Expect(err).NotTo(HaveOccurred())
			for _, hit := range hits {
				Expect(hit.DocID).NotTo(Equal(results[0].DocID))
			}

			docs, err := eng.ListDocuments(ctx, "docs", docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
		})

		It("keeps earlier deletions when the backend fails mid-batch", func() {
			results, err := eng.Index(ctx, "docs", []document.Document{
				doc("first victim"),
				doc("second survivor"),
			})
			Expect(err).NotTo(HaveOccurred())

			flaky := &failingDeleteBackend{Backend: backend, failDocID: results[1].DocID}
			broken, err := engine.New(engine.Options{
				Backend:    flaky,
				Embedder:   embedder,
				Registerer: prometheus.NewRegistry(),
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			result, err := broken.Delete(ctx, "docs", []string{results[0].DocID, results[1].DocID})
			Expect(err).To(HaveOccurred())
			Expect(result.Deleted).To(Equal([]string{results[0].DocID}))
			Expect(result.Failed).To(Equal([]string{results[1].DocID}))

			// The failing document stays whole: still listed and still
			// searchable, never half-deleted.
			docs, err := broken.ListDocuments(ctx, "docs", docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].DocID).To(Equal(results[1].DocID))

			hits, err := broken.Retrieve(ctx, "docs", "second survivor", engine.RetrieveOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).NotTo(BeEmpty())
			Expect(hits[0].DocID).To(Equal(results[1].DocID))
		})
	})

	Describe("ListAllDocuments", func() {
		BeforeEach(func() {
			var bulk []document.Document
			for i := 0; i < 6; i++ {
				bulk = append(bulk, doc(fmt.Sprintf("big index doc %d", i)))
			}
			_, err := eng.Index(ctx, "big", bulk)
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Index(ctx, "small", []document.Document{
				doc("small index doc 0"),
				doc("small index doc 1"),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("splits the limit proportionally with the remainder going first", func() {
			byIndex, err := eng.ListAllDocuments(ctx, docstore.ListRequest{Limit: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(byIndex["big"]).To(HaveLen(3))
			Expect(byIndex["small"]).To(HaveLen(1))
		})

		It("returns everything without a limit", func() {
			byIndex, err := eng.ListAllDocuments(ctx, docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(byIndex["big"]).To(HaveLen(6))
			Expect(byIndex["small"]).To(HaveLen(2))
		})
	})

	Describe("persistence", func() {
		It("round-trips an index through Persist and Restore", func() {
			dir := GinkgoT().TempDir()
			persisting := newEngine(engine.Options{SnapshotsDir: dir})

			_, err := persisting.Index(ctx, "docs", []document.Document{
				{Text: "durable knowledge", Metadata: map[string]string{"k": "v"}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(persisting.Persist(ctx, "docs")).To(Succeed())

			freshBackend := memvec.New(zap.NewNop())
			backend = freshBackend
			restored := newEngine(engine.Options{SnapshotsDir: dir})

			names, err := restored.RestoreAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"docs"}))

			hits, err := restored.Retrieve(ctx, "docs", "durable knowledge", engine.RetrieveOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).NotTo(BeEmpty())
			Expect(hits[0].Text).To(Equal("durable knowledge"))
			Expect(hits[0].Metadata).To(HaveKeyWithValue("k", "v"))
		})

		It("errors without a snapshot directory", func() {
			Expect(eng.Persist(ctx, "docs")).To(MatchError(engine.ErrNoSnapshotDir))
		})
	})

	Describe("rediscovery", func() {
		It("hydrates engine state from a backend that already has data", func() {
			_, err := eng.Index(ctx, "docs", []document.Document{
				doc("previously indexed knowledge"),
			})
			Expect(err).NotTo(HaveOccurred())

			// A second engine over the same backend starts with no local
			// state and rebuilds it from the backend's nodes.
			second := newEngine(engine.Options{})
			names, err := second.Rediscover(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"docs"}))

			hits, err := second.Retrieve(ctx, "docs", "previously indexed knowledge", engine.RetrieveOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).NotTo(BeEmpty())

			docs, err := second.ListDocuments(ctx, "docs", docstore.ListRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
		})
	})

	Describe("DeleteIndex", func() {
		It("drops the index from the backend and the engine", func() {
			_, err := eng.Index(ctx, "docs", []document.Document{doc("ephemeral")})
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.DeleteIndex(ctx, "docs")).To(Succeed())

			names, err := eng.ListIndexes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).NotTo(ContainElement("docs"))

			_, err = eng.Retrieve(ctx, "docs", "ephemeral", engine.RetrieveOptions{})
			Expect(err).To(MatchError(vector.ErrIndexNotFound))
		})
	})

	Describe("chunking large documents", func() {
		It("splits a long document into several searchable nodes", func() {
			long := strings.Repeat("Retrieval systems mix keyword and vector search. ", 40)
			results, err := eng.Index(ctx, "docs", []document.Document{doc(long)})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Nodes).To(BeNumerically(">", 1))

			count, err := backend.Count(ctx, "docs")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(results[0].Nodes))
		})
	})
})

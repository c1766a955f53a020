package docstore_test

import (
	"context"
	"fmt"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/docstore"
	"github.com/papercomputeco/reels/pkg/document"
)

func stored(text string, metadata map[string]string) document.StoredDocument {
	return document.Stored(document.Document{Text: text, Metadata: metadata})
}

var _ = Describe("Store", func() {
	var store *docstore.Store

	BeforeEach(func() {
		store = docstore.New(zap.NewNop())
	})

	Describe("Put", func() {
		It("reports inserted for new content and not for duplicates", func(ctx context.Context) {
			id1, inserted := store.Put(stored("alpha", nil))
			Expect(inserted).To(BeTrue())

			id2, inserted := store.Put(stored("alpha", nil))
			Expect(inserted).To(BeFalse())
			Expect(id2).To(Equal(id1))
			Expect(store.Count()).To(Equal(1))
		})
	})

	Describe("Get and Delete", func() {
		It("round-trips a document and reports missing ids", func(ctx context.Context) {
			doc := stored("alpha", map[string]string{"k": "v"})
			store.Put(doc)

			got, err := store.Get(doc.DocID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Text).To(Equal("alpha"))
			Expect(got.Metadata).To(HaveKeyWithValue("k", "v"))

			Expect(store.Delete(doc.DocID)).To(Succeed())
			_, err = store.Get(doc.DocID)
			Expect(err).To(MatchError(docstore.ErrNotFound))
			Expect(store.Delete(doc.DocID)).To(MatchError(docstore.ErrNotFound))
		})
	})

	Describe("Replace", func() {
		It("keeps the insertion position when the id changes", func(ctx context.Context) {
			a := stored("alpha", nil)
			b := stored("bravo", nil)
			c := stored("charlie", nil)
			store.Put(a)
			store.Put(b)
			store.Put(c)

			replacement := stored("bravo two", nil)
			Expect(store.Replace(b.DocID, replacement)).To(Succeed())

			docs := store.List(docstore.ListRequest{})
			Expect(docs).To(HaveLen(3))
			Expect(docs[1].Text).To(Equal("bravo two"))
			Expect(store.Exists(b.DocID)).To(BeFalse())
		})

		It("errors on an unknown id", func(ctx context.Context) {
			Expect(store.Replace("missing", stored("x", nil))).To(MatchError(docstore.ErrNotFound))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			for i := 0; i < 10; i++ {
				meta := map[string]string{"parity": "even"}
				if i%2 == 1 {
					meta["parity"] = "odd"
				}
				store.Put(stored(fmt.Sprintf("document number %d", i), meta))
			}
		})

		It("pages without gaps or duplicates", func(ctx context.Context) {
			seen := map[string]bool{}
			for offset := 0; offset < 10; offset += 3 {
				for _, doc := range store.List(docstore.ListRequest{Offset: offset, Limit: 3}) {
					Expect(seen[doc.DocID]).To(BeFalse())
					seen[doc.DocID] = true
				}
			}
			Expect(seen).To(HaveLen(10))
		})

		It("applies offset and limit after the metadata filter", func(ctx context.Context) {
			docs := store.List(docstore.ListRequest{
				Offset: 1,
				Limit:  2,
				Filter: document.MetadataFilter{"parity": "odd"},
			})
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].Text).To(Equal("document number 3"))
			Expect(docs[1].Text).To(Equal("document number 5"))
		})

		It("truncates text to the requested view length", func(ctx context.Context) {
			docs := store.List(docstore.ListRequest{Limit: 1, MaxTextLen: 8})
			Expect(docs[0].Text).To(Equal("document"))
			Expect(docs[0].IsTruncated).To(BeTrue())
		})

		It("returns an out-of-range page as empty", func(ctx context.Context) {
			Expect(store.List(docstore.ListRequest{Offset: 100, Limit: 5})).To(BeEmpty())
		})
	})

	Describe("snapshots", func() {
		It("round-trips contents and order through a sqlite file", func(ctx context.Context) {
			dbPath := filepath.Join(GinkgoT().TempDir(), "documents.db")

			store.Put(stored("first", map[string]string{"k": "v"}))
			store.Put(stored("second", nil))
			Expect(store.SaveTo(ctx, dbPath)).To(Succeed())

			restored := docstore.New(zap.NewNop())
			Expect(restored.LoadFrom(ctx, dbPath)).To(Succeed())

			docs := restored.List(docstore.ListRequest{})
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].Text).To(Equal("first"))
			Expect(docs[0].Metadata).To(HaveKeyWithValue("k", "v"))
			Expect(docs[1].Text).To(Equal("second"))
		})
	})
})

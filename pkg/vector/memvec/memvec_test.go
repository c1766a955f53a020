package memvec_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/vector"
	"github.com/papercomputeco/reels/pkg/vector/memvec"
)

func node(id, docID string, embedding []float32) vector.Node {
	return vector.Node{ID: id, DocID: docID, Text: "text of " + id, Embedding: embedding}
}

var _ = Describe("Backend", func() {
	var (
		backend *memvec.Backend
		ctx     context.Context
	)

	BeforeEach(func() {
		backend = memvec.New(zap.NewNop())
		ctx = context.Background()
	})

	Describe("Add and Search", func() {
		It("creates the index on first write", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1, 0, 0}),
			})).To(Succeed())

			names, err := backend.ListIndexes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"docs"}))
		})

		It("orders matches by descending cosine similarity", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1, 0, 0}),
				node("n2", "d2", []float32{0, 1, 0}),
				node("n3", "d3", []float32{0.9, 0.1, 0}),
			})).To(Succeed())

			matches, err := backend.Search(ctx, "docs", []float32{1, 0, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(2))
			Expect(matches[0].ID).To(Equal("n1"))
			Expect(matches[1].ID).To(Equal("n3"))
			Expect(matches[0].Score).To(BeNumerically(">", matches[1].Score))
		})

		It("rejects mismatched dimensions", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1, 0, 0}),
			})).To(Succeed())

			err := backend.Add(ctx, "docs", []vector.Node{
				node("n2", "d2", []float32{1, 0}),
			})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			_, err = backend.Search(ctx, "docs", []float32{1, 0}, 1)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("returns ErrIndexNotFound for unknown indexes", func() {
			_, err := backend.Search(ctx, "missing", []float32{1}, 1)
			Expect(err).To(MatchError(vector.ErrIndexNotFound))

			_, err = backend.Count(ctx, "missing")
			Expect(err).To(MatchError(vector.ErrIndexNotFound))
		})
	})

	Describe("Delete", func() {
		It("removes every node of the document and nothing else", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1, 0}),
				node("n2", "d1", []float32{0, 1}),
				node("n3", "d2", []float32{1, 1}),
			})).To(Succeed())

			removed, err := backend.Delete(ctx, "docs", "d1")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(2))

			count, err := backend.Count(ctx, "docs")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			matches, err := backend.Search(ctx, "docs", []float32{1, 1}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(1))
			Expect(matches[0].ID).To(Equal("n3"))
		})

		It("reports zero removals for an unknown document", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1}),
			})).To(Succeed())

			removed, err := backend.Delete(ctx, "docs", "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())
		})

		It("keeps surviving nodes searchable after interleaved deletes", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1, 0, 0}),
				node("n2", "d2", []float32{0, 1, 0}),
				node("n3", "d3", []float32{0, 0, 1}),
			})).To(Succeed())

			_, err := backend.Delete(ctx, "docs", "d1")
			Expect(err).NotTo(HaveOccurred())

			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n4", "d4", []float32{0, 1, 0.1}),
			})).To(Succeed())

			matches, err := backend.Search(ctx, "docs", []float32{0, 1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches[0].ID).To(Equal("n2"))
			Expect(matches[1].ID).To(Equal("n4"))
		})
	})

	Describe("Replace", func() {
		It("swaps a document's nodes in one step", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1, 0}),
				node("n2", "d1", []float32{0, 1}),
			})).To(Succeed())

			Expect(backend.Replace(ctx, "docs", "d1", []vector.Node{
				node("n3", "d1", []float32{1, 1}),
			})).To(Succeed())

			nodes, err := backend.Nodes(ctx, "docs")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].ID).To(Equal("n3"))
		})
	})

	Describe("DeleteIndex", func() {
		It("removes the index entirely", func() {
			Expect(backend.Add(ctx, "docs", []vector.Node{
				node("n1", "d1", []float32{1}),
			})).To(Succeed())

			Expect(backend.DeleteIndex(ctx, "docs")).To(Succeed())
			Expect(backend.DeleteIndex(ctx, "docs")).To(MatchError(vector.ErrIndexNotFound))

			names, err := backend.ListIndexes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeEmpty())
		})
	})

	Describe("Persist and Restore", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("round-trips nodes, embeddings, and metadata", func() {
			n := node("n1", "d1", []float32{0.5, 0.25, 0.125})
			n.Metadata = map[string]string{"lang": "go"}
			Expect(backend.Add(ctx, "docs", []vector.Node{n})).To(Succeed())
			Expect(backend.Persist(ctx, "docs", dir)).To(Succeed())

			restored := memvec.New(zap.NewNop())
			Expect(restored.Restore(ctx, "docs", dir)).To(Succeed())

			nodes, err := restored.Nodes(ctx, "docs")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].ID).To(Equal("n1"))
			Expect(nodes[0].DocID).To(Equal("d1"))
			Expect(nodes[0].Metadata).To(HaveKeyWithValue("lang", "go"))
			Expect(nodes[0].Embedding).To(Equal([]float32{0.5, 0.25, 0.125}))

			matches, err := restored.Search(ctx, "docs", []float32{0.5, 0.25, 0.125}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches[0].Score).To(BeNumerically("~", 1.0, 1e-5))
		})

		It("records persisted indexes in the registry", func() {
			Expect(backend.Add(ctx, "alpha", []vector.Node{node("n1", "d1", []float32{1})})).To(Succeed())
			Expect(backend.Add(ctx, "beta", []vector.Node{node("n2", "d2", []float32{1})})).To(Succeed())
			Expect(backend.Persist(ctx, "beta", dir)).To(Succeed())
			Expect(backend.Persist(ctx, "alpha", dir)).To(Succeed())

			entries, err := memvec.ReadRegistry(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Name).To(Equal("alpha"))
			Expect(entries[1].Name).To(Equal("beta"))
			Expect(entries[0].Nodes).To(Equal(1))

			Expect(memvec.RemoveRegistryEntry(dir, "alpha")).To(Succeed())
			entries, err = memvec.ReadRegistry(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Name).To(Equal("beta"))
		})

		It("returns ErrCorrupt for a damaged snapshot", func() {
			Expect(os.MkdirAll(filepath.Join(dir, "docs"), 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "docs", "snapshot.db"), []byte("not a database"), 0o644)).To(Succeed())

			err := backend.Restore(ctx, "docs", dir)
			Expect(err).To(MatchError(vector.ErrCorrupt))
		})

		It("returns ErrCorrupt for a missing snapshot", func() {
			err := backend.Restore(ctx, "missing", dir)
			Expect(err).To(MatchError(vector.ErrCorrupt))
		})
	})
})

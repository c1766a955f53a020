package retriever_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/retriever"
	"github.com/papercomputeco/reels/pkg/vector"
	"github.com/papercomputeco/reels/pkg/vector/memvec"
)

// unitAt returns a 2d unit vector whose cosine against (1, 0) is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

var _ = Describe("Retriever", func() {
	var (
		ctx     context.Context
		backend *memvec.Backend
		keyword *retriever.BM25Index
	)

	queryVec := []float32{1, 0}

	BeforeEach(func() {
		ctx = context.Background()
		backend = memvec.New(zap.NewNop())
		keyword = retriever.NewBM25Index()
	})

	addNode := func(id, docID, text string, sim float64) {
		node := vector.Node{ID: id, DocID: docID, Text: text, Embedding: unitAt(sim)}
		Expect(backend.Add(ctx, "docs", []vector.Node{node})).To(Succeed())
		keyword.Add([]vector.Node{node})
	}

	newRetriever := func(cfg retriever.Config) *retriever.Retriever {
		return retriever.New(backend, keyword, "docs", cfg, zap.NewNop())
	}

	Describe("fusion arithmetic", func() {
		It("combines normalized weights, similarity, and rank-derived text score", func() {
			// n1: similarity 0.86 and the best keyword hit (rank 0), so
			// 0.5*0.86 + 0.5*1.0 = 0.93. n2: similarity 0.56 and no keyword
			// overlap, so 0.5*0.56 = 0.28.
			addNode("n1", "d1", "alpha bravo", 0.86)
			addNode("n2", "d2", "charlie delta", 0.56)

			results, err := newRetriever(retriever.Config{
				VectorWeight:   0.5,
				TextWeight:     0.5,
				PoolMultiplier: 2.0,
			}).Retrieve(ctx, "alpha", queryVec, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))

			Expect(results[0].NodeID).To(Equal("n1"))
			Expect(results[0].Score).To(BeNumerically("~", 0.93, 0.005))
			Expect(results[1].NodeID).To(Equal("n2"))
			Expect(results[1].Score).To(BeNumerically("~", 0.28, 0.005))
		})

		It("normalizes weights that do not sum to one", func() {
			addNode("n1", "d1", "alpha", 0.8)

			results, err := newRetriever(retriever.Config{
				VectorWeight:   2.0,
				TextWeight:     2.0,
				PoolMultiplier: 1.0,
			}).Retrieve(ctx, "alpha", queryVec, 1, nil)
			Expect(err).NotTo(HaveOccurred())
			// 0.5*0.8 + 0.5*1.0, same as weights 0.5/0.5.
			Expect(results[0].Score).To(BeNumerically("~", 0.9, 0.005))
		})

		It("derives the text score from keyword rank", func() {
			// Both nodes match the query; the second-ranked one gets 1/(1+1).
			addNode("n1", "d1", "alpha alpha alpha", 0.0)
			addNode("n2", "d2", "alpha unrelated words here", 0.0)

			results, err := newRetriever(retriever.Config{
				VectorWeight: 0.5,
				TextWeight:   0.5,
			}).Retrieve(ctx, "alpha", queryVec, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].NodeID).To(Equal("n1"))
			Expect(results[1].Score).To(BeNumerically("~", 0.25, 0.01))
		})
	})

	Describe("candidate pool", func() {
		It("clamps the widened pool to the corpus size", func() {
			addNode("n1", "d1", "alpha", 0.9)
			addNode("n2", "d2", "bravo", 0.8)

			results, err := newRetriever(retriever.Config{PoolMultiplier: 10.0}).
				Retrieve(ctx, "alpha", queryVec, 5, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("truncates fused results to maxResults", func() {
			for i, id := range []string{"n1", "n2", "n3", "n4"} {
				addNode(id, "d"+id, "alpha common text", 0.9-float64(i)*0.1)
			}

			results, err := newRetriever(retriever.Config{}).Retrieve(ctx, "alpha", queryVec, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
		})
	})

	Describe("metadata filter", func() {
		addTagged := func(id, docID, text string, sim float64, meta map[string]string) {
			node := vector.Node{ID: id, DocID: docID, Text: text, Metadata: meta, Embedding: unitAt(sim)}
			Expect(backend.Add(ctx, "docs", []vector.Node{node})).To(Succeed())
			keyword.Add([]vector.Node{node})
		}

		It("narrows candidates before the maxResults cut and re-ranks keyword hits", func() {
			addTagged("n1", "d1", "alpha bravo", 0.95, map[string]string{"lang": "en"})
			addTagged("n2", "d2", "alpha charlie", 0.90, map[string]string{"lang": "en"})
			addTagged("n3", "d3", "alpha delta", 0.10, map[string]string{"lang": "de"})

			results, err := newRetriever(retriever.Config{
				VectorWeight:   0.5,
				TextWeight:     0.5,
				PoolMultiplier: 10.0,
			}).Retrieve(ctx, "alpha", queryVec, 1, document.MetadataFilter{"lang": "de"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].NodeID).To(Equal("n3"))
			// n3 is the only surviving keyword hit, so it takes rank 0:
			// 0.5*0.10 + 0.5*1.0.
			Expect(results[0].Score).To(BeNumerically("~", 0.55, 0.01))
		})

		It("matches everything with a nil filter", func() {
			addTagged("n1", "d1", "alpha", 0.9, map[string]string{"lang": "en"})

			results, err := newRetriever(retriever.Config{}).
				Retrieve(ctx, "alpha", queryVec, 1, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})
	})

	Describe("edge cases", func() {
		It("returns empty for an empty index", func() {
			Expect(backend.CreateIndex(ctx, "docs")).To(Succeed())

			results, err := newRetriever(retriever.Config{}).Retrieve(ctx, "alpha", queryVec, 3, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("returns empty for non-positive maxResults", func() {
			addNode("n1", "d1", "alpha", 0.9)

			results, err := newRetriever(retriever.Config{}).Retrieve(ctx, "alpha", queryVec, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("breaks score ties by node id", func() {
			addNode("n2", "d2", "zebra", 0.7)
			addNode("n1", "d1", "yonder", 0.7)

			results, err := newRetriever(retriever.Config{}).Retrieve(ctx, "unmatched", queryVec, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].NodeID).To(Equal("n1"))
			Expect(results[1].NodeID).To(Equal("n2"))
		})
	})
})

package qdrantvec

import (
	"context"
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/vector"
)

// fakeService stands in for the Qdrant API: it tracks which collections
// exist and records every point-level call it receives.
type fakeService struct {
	collections map[string]bool
	created     []string
	pointCalls  []string
}

func newFakeService() *fakeService {
	return &fakeService{collections: make(map[string]bool)}
}

func (f *fakeService) CollectionExists(_ context.Context, name string) (bool, error) {
	return f.collections[name], nil
}

func (f *fakeService) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.collections[req.GetCollectionName()] = true
	f.created = append(f.created, req.GetCollectionName())
	return nil
}

func (f *fakeService) ListCollections(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeService) DeleteCollection(_ context.Context, name string) error {
	delete(f.collections, name)
	return nil
}

func (f *fakeService) Upsert(_ context.Context, _ *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.pointCalls = append(f.pointCalls, "upsert")
	return nil, nil
}

func (f *fakeService) Delete(_ context.Context, _ *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.pointCalls = append(f.pointCalls, "delete")
	return nil, nil
}

func (f *fakeService) Count(_ context.Context, _ *qdrant.CountPoints) (uint64, error) {
	f.pointCalls = append(f.pointCalls, "count")
	return 0, nil
}

func (f *fakeService) Query(_ context.Context, _ *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.pointCalls = append(f.pointCalls, "query")
	return nil, nil
}

func (f *fakeService) Scroll(_ context.Context, _ *qdrant.ScrollPoints) (*qdrant.ScrollResponse, error) {
	f.pointCalls = append(f.pointCalls, "scroll")
	return &qdrant.ScrollResponse{}, nil
}

func (f *fakeService) Close() error { return nil }

var _ = Describe("Backend", func() {
	var (
		ctx context.Context
		svc *fakeService
		b   *Backend
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = newFakeService()
		b = newBackend(svc, zap.NewNop())
	})

	Describe("pending indexes", func() {
		BeforeEach(func() {
			Expect(b.CreateIndex(ctx, "notes")).To(Succeed())
		})

		It("treats a created-but-never-written index as empty", func() {
			matches, err := b.Search(ctx, "notes", []float32{1, 0}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())

			count, err := b.Count(ctx, "notes")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())

			nodes, err := b.Nodes(ctx, "notes")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(BeEmpty())

			removed, err := b.Delete(ctx, "notes", "some-doc")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())

			// None of the reads may touch the nonexistent collection.
			Expect(svc.pointCalls).To(BeEmpty())
		})

		It("lists the pending index by name", func() {
			names, err := b.ListIndexes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ContainElement("notes"))
		})

		It("still reports unknown indexes", func() {
			_, err := b.Search(ctx, "missing", []float32{1, 0}, 5)
			Expect(err).To(MatchError(vector.ErrIndexNotFound))

			_, err = b.Count(ctx, "missing")
			Expect(err).To(MatchError(vector.ErrIndexNotFound))
		})
	})

	Describe("first write", func() {
		It("creates the collection and serves reads from it afterwards", func() {
			Expect(b.CreateIndex(ctx, "notes")).To(Succeed())
			Expect(b.Add(ctx, "notes", []vector.Node{
				{ID: "n1", DocID: "d1", Text: "alpha", Embedding: []float32{1, 0, 0}},
			})).To(Succeed())
			Expect(svc.created).To(Equal([]string{"notes"}))
			Expect(svc.pointCalls).To(ContainElement("upsert"))

			_, err := b.Search(ctx, "notes", []float32{1, 0, 0}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.pointCalls).To(ContainElement("query"))
		})
	})
})

package budget_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/budget"
	"github.com/papercomputeco/reels/pkg/retriever"
)

// result builds a ranked result whose text costs exactly tokens under the
// 3-chars-per-token heuristic.
func result(id string, tokens int) retriever.RankedResult {
	return retriever.RankedResult{
		NodeID: id,
		Text:   strings.Repeat("a", tokens*3),
	}
}

var _ = Describe("Heuristic", func() {
	It("rounds up partial tokens", func() {
		h := budget.NewHeuristic(3.0)
		Expect(h.Estimate("")).To(BeZero())
		Expect(h.Estimate("ab")).To(Equal(1))
		Expect(h.Estimate("abc")).To(Equal(1))
		Expect(h.Estimate("abcd")).To(Equal(2))
	})

	It("defaults the ratio when non-positive", func() {
		h := budget.NewHeuristic(0)
		Expect(h.CharsPerToken).To(Equal(3.0))
	})
})

var _ = Describe("Filter", func() {
	var filter *budget.Filter

	BeforeEach(func() {
		filter = budget.NewFilter(budget.NewHeuristic(3.0), budget.Config{}, zap.NewNop())
	})

	It("keeps exactly the ranked prefix that fits a 600-token budget", func() {
		// Window 1751 minus 1 query token, 150 overhead, and the 1000
		// response reserve leaves 600 tokens: room for two 250-token nodes.
		results := []retriever.RankedResult{
			result("n1", 250),
			result("n2", 250),
			result("n3", 250),
		}

		kept := filter.Apply("abc", results, 1751, 0)
		Expect(kept).To(HaveLen(2))
		Expect(kept[0].NodeID).To(Equal("n1"))
		Expect(kept[1].NodeID).To(Equal("n2"))
	})

	It("skips an oversized result and keeps later smaller ones", func() {
		results := []retriever.RankedResult{
			result("n1", 250),
			result("n2", 500),
			result("n3", 100),
		}

		kept := filter.Apply("abc", results, 1751, 0)
		Expect(kept).To(HaveLen(2))
		Expect(kept[0].NodeID).To(Equal("n1"))
		Expect(kept[1].NodeID).To(Equal("n3"))
	})

	It("caps the response reserve at maxTokens when tighter", func() {
		// Reserving only 100 instead of 1000 frees 900 extra tokens.
		results := []retriever.RankedResult{
			result("n1", 250),
			result("n2", 250),
			result("n3", 250),
		}

		kept := filter.Apply("abc", results, 1751, 100)
		Expect(kept).To(HaveLen(3))
	})

	It("returns empty when the budget is non-positive", func() {
		Expect(filter.Apply("abc", []retriever.RankedResult{result("n1", 1)}, 1000, 0)).To(BeEmpty())
	})

	It("returns empty for empty input", func() {
		Expect(filter.Apply("abc", nil, 10000, 0)).To(BeEmpty())
	})
})

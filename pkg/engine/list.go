package engine

import (
	"context"
	"sort"
	"time"

	"github.com/papercomputeco/reels/pkg/docstore"
	"github.com/papercomputeco/reels/pkg/document"
)

// ListDocuments pages through one index's documents in insertion order.
func (e *Engine) ListDocuments(ctx context.Context, name string, req docstore.ListRequest) (docs []document.StoredDocument, err error) {
	defer func(start time.Time) { e.metrics.observe(opList, start, err) }(time.Now())

	idx, err := e.lookupIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	return idx.docs.List(req), nil
}

// ListAllDocuments pages across every index at once. The limit and offset
// are split into per-index shares proportional to each index's document
// count, with the remainder going to the first indexes in name order, so one
// huge index cannot crowd the others out of a page.
func (e *Engine) ListAllDocuments(ctx context.Context, req docstore.ListRequest) (byIndex map[string][]document.StoredDocument, err error) {
	defer func(start time.Time) { e.metrics.observe(opList, start, err) }(time.Now())

	names, err := e.Rediscover(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	counts := make([]int, len(names))
	total := 0
	e.mu.RLock()
	for i, name := range names {
		if idx, ok := e.indexes[name]; ok {
			counts[i] = idx.docs.Count()
			total += counts[i]
		}
	}
	e.mu.RUnlock()

	byIndex = make(map[string][]document.StoredDocument, len(names))
	if total == 0 {
		return byIndex, nil
	}

	limits := fairShares(req.Limit, counts, total)
	offsets := fairShares(req.Offset, counts, total)

	for i, name := range names {
		if req.Limit > 0 && limits[i] == 0 {
			continue
		}

		e.mu.RLock()
		idx, ok := e.indexes[name]
		e.mu.RUnlock()
		if !ok {
			continue
		}

		docs := idx.docs.List(docstore.ListRequest{
			Offset:     offsets[i],
			Limit:      limits[i],
			MaxTextLen: req.MaxTextLen,
			Filter:     req.Filter,
		})
		if len(docs) > 0 {
			byIndex[name] = docs
		}
	}
	return byIndex, nil
}

// fairShares splits value across buckets proportionally to counts, handing
// the rounding remainder to the earliest buckets. A non-positive value means
// unlimited and yields all zeros (the store treats zero as no cap).
func fairShares(value int, counts []int, total int) []int {
	shares := make([]int, len(counts))
	if value <= 0 || total == 0 {
		return shares
	}

	assigned := 0
	for i, count := range counts {
		shares[i] = value * count / total
		assigned += shares[i]
	}

	for i := 0; assigned < value && i < len(shares); i++ {
		if counts[i] > shares[i] {
			shares[i]++
			assigned++
		}
	}
	return shares
}

// Package retriever fuses semantic and keyword retrieval over one index.
//
// The vector pass asks the backend for a widened candidate pool; the keyword
// pass ranks the same pool size out of the BM25 index. Each candidate's final
// score is the weighted sum of its vector similarity and a rank-derived text
// score, with the weights normalized to sum to one.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/vector"
)

const (
	// DefaultVectorWeight is the default semantic share of the fused score.
	DefaultVectorWeight = 0.5

	// DefaultTextWeight is the default keyword share of the fused score.
	DefaultTextWeight = 0.5

	// DefaultPoolMultiplier widens the candidate pool beyond maxResults.
	DefaultPoolMultiplier = 2.0
)

// Config holds fusion parameters.
type Config struct {
	// VectorWeight scales the semantic score. Defaults to DefaultVectorWeight.
	VectorWeight float64

	// TextWeight scales the keyword score. Defaults to DefaultTextWeight.
	TextWeight float64

	// PoolMultiplier widens the candidate pool: pool = ceil(maxResults *
	// multiplier), never below maxResults. Defaults to DefaultPoolMultiplier.
	PoolMultiplier float64
}

// RankedResult is one fused retrieval hit.
type RankedResult struct {
	NodeID   string
	DocID    string
	Text     string
	Score    float64
	Metadata map[string]string
}

// Retriever runs hybrid retrieval for one named index.
type Retriever struct {
	backend vector.Backend
	keyword *BM25Index
	index   string

	vectorWeight   float64
	textWeight     float64
	poolMultiplier float64

	logger *zap.Logger
}

// New creates a retriever over the given backend and keyword index.
func New(backend vector.Backend, keyword *BM25Index, index string, cfg Config, logger *zap.Logger) *Retriever {
	vectorWeight := cfg.VectorWeight
	textWeight := cfg.TextWeight
	if vectorWeight <= 0 && textWeight <= 0 {
		vectorWeight = DefaultVectorWeight
		textWeight = DefaultTextWeight
	}

	poolMultiplier := cfg.PoolMultiplier
	if poolMultiplier < 1.0 {
		poolMultiplier = DefaultPoolMultiplier
	}

	return &Retriever{
		backend:        backend,
		keyword:        keyword,
		index:          index,
		vectorWeight:   vectorWeight,
		textWeight:     textWeight,
		poolMultiplier: poolMultiplier,
		logger:         logger,
	}
}

// Retrieve returns up to maxResults fused hits for the query, best first.
// The metadata filter narrows both passes before the maxResults cut, so a
// filtered query is ranked over the matching candidates only. Ties are broken
// by node id so results are deterministic.
func (r *Retriever) Retrieve(ctx context.Context, query string, queryVec []float32, maxResults int, filter document.MetadataFilter) ([]RankedResult, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	corpus, err := r.backend.Count(ctx, r.index)
	if err != nil {
		return nil, fmt.Errorf("counting index %s: %w", r.index, err)
	}
	if corpus == 0 {
		return nil, nil
	}

	pool := int(math.Ceil(float64(maxResults) * r.poolMultiplier))
	if pool < maxResults {
		pool = maxResults
	}
	if pool > corpus {
		pool = corpus
	}

	matches, err := r.backend.Search(ctx, r.index, queryVec, pool)
	if err != nil {
		return nil, fmt.Errorf("searching index %s: %w", r.index, err)
	}

	keywordHits := r.keyword.Search(query, pool)

	// Normalize weights to sum to one.
	total := r.vectorWeight + r.textWeight
	wVec := r.vectorWeight / total
	wText := r.textWeight / total

	type candidate struct {
		node        vector.Node
		vectorScore float64
		textScore   float64
	}
	candidates := make(map[string]*candidate, len(matches)+len(keywordHits))

	for _, m := range matches {
		if !filter.Matches(m.Metadata) {
			continue
		}
		candidates[m.ID] = &candidate{node: m.Node, vectorScore: float64(m.Score)}
	}
	rank := 0
	for _, hit := range keywordHits {
		if !filter.Matches(hit.node.Metadata) {
			continue
		}
		c, ok := candidates[hit.node.ID]
		if !ok {
			c = &candidate{node: hit.node}
			candidates[hit.node.ID] = c
		}
		// Rank 0 is the best keyword hit.
		c.textScore = 1.0 / (1.0 + float64(rank))
		rank++
	}

	results := make([]RankedResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, RankedResult{
			NodeID:   c.node.ID,
			DocID:    c.node.DocID,
			Text:     c.node.Text,
			Score:    wVec*c.vectorScore + wText*c.textScore,
			Metadata: c.node.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].NodeID < results[j].NodeID
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	r.logger.Debug("hybrid retrieval complete",
		zap.String("index", r.index),
		zap.Int("pool", pool),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// logIDF is the BM25 inverse document frequency with the +1 smoothing that
// keeps scores positive for common terms.
func logIDF(n, df float64) float64 {
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

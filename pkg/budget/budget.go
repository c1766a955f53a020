// Package budget trims retrieval results to fit a model's context window.
package budget

import (
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/retriever"
)

const (
	// DefaultPromptOverhead covers the prompt template around the context.
	DefaultPromptOverhead = 150

	// DefaultResponseReserve is held back for the model's response when the
	// caller does not cap it tighter.
	DefaultResponseReserve = 1000
)

// Config holds the filter's fixed costs.
type Config struct {
	// PromptOverhead is the token cost of the prompt scaffolding.
	// Defaults to DefaultPromptOverhead.
	PromptOverhead int

	// ResponseReserve is the ceiling on tokens reserved for the response.
	// Defaults to DefaultResponseReserve.
	ResponseReserve int
}

// Filter selects the prefix-by-rank of results that fits the token budget.
type Filter struct {
	estimator Estimator
	overhead  int
	reserve   int
	logger    *zap.Logger
}

// NewFilter creates a budget filter using the given estimator.
func NewFilter(estimator Estimator, cfg Config, logger *zap.Logger) *Filter {
	overhead := cfg.PromptOverhead
	if overhead <= 0 {
		overhead = DefaultPromptOverhead
	}
	reserve := cfg.ResponseReserve
	if reserve <= 0 {
		reserve = DefaultResponseReserve
	}

	return &Filter{
		estimator: estimator,
		overhead:  overhead,
		reserve:   reserve,
		logger:    logger,
	}
}

// Apply walks results in rank order, keeping each one that still fits the
// remaining budget. A result too large for the remainder is skipped, not a
// stopping point; later smaller results may still fit.
//
// The budget is contextWindow minus the query's tokens, the prompt overhead,
// and the response reservation (maxTokens capped at the configured reserve;
// non-positive maxTokens reserves the full amount).
func (f *Filter) Apply(query string, results []retriever.RankedResult, contextWindow, maxTokens int) []retriever.RankedResult {
	reserve := f.reserve
	if maxTokens > 0 && maxTokens < reserve {
		reserve = maxTokens
	}

	available := contextWindow - f.estimator.Estimate(query) - f.overhead - reserve
	if available <= 0 {
		f.logger.Warn("no context budget available",
			zap.Int("context_window", contextWindow),
			zap.Int("available", available),
		)
		return nil
	}

	var kept []retriever.RankedResult
	skipped := 0
	for _, result := range results {
		cost := f.estimator.Estimate(result.Text)
		if cost > available {
			skipped++
			continue
		}
		kept = append(kept, result)
		available -= cost
	}

	if skipped > 0 {
		f.logger.Debug("skipped results over budget",
			zap.Int("skipped", skipped),
			zap.Int("kept", len(kept)),
		)
	}
	return kept
}

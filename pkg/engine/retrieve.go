package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/retriever"
)

// DefaultMaxResults caps retrieval results when the request does not.
const DefaultMaxResults = 10

// RetrieveOptions tunes one retrieval request.
type RetrieveOptions struct {
	// MaxResults caps the number of results. Defaults to DefaultMaxResults.
	MaxResults int

	// ContextWindow overrides the engine's default token window.
	ContextWindow int

	// MaxTokens is the response budget the caller intends to request from
	// the model. Zero reserves the filter's full default.
	MaxTokens int

	// Filter restricts results to nodes whose metadata matches.
	Filter document.MetadataFilter
}

// Retrieve runs hybrid retrieval over the named index and trims the fused
// results to the token budget.
func (e *Engine) Retrieve(ctx context.Context, name, query string, opts RetrieveOptions) (results []retriever.RankedResult, err error) {
	defer func(start time.Time) { e.metrics.observe(opQuery, start, err) }(time.Now())

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	idx, err := e.lookupIndex(ctx, name)
	if err != nil {
		return nil, err
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	contextWindow := opts.ContextWindow
	if contextWindow <= 0 {
		contextWindow = e.contextWindow
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	fused, err := idx.retriever.Retrieve(ctx, query, queryVec, maxResults, opts.Filter)
	if err != nil {
		return nil, err
	}

	results = e.filter.Apply(query, fused, contextWindow, opts.MaxTokens)

	e.logger.Debug("retrieval complete",
		zap.String("index", name),
		zap.Int("fused", len(fused)),
		zap.Int("returned", len(results)),
	)
	return results, nil
}

// RetrieveAndComplete retrieves context for the query, assembles a prompt,
// and hands it to the configured completion function.
func (e *Engine) RetrieveAndComplete(ctx context.Context, name, query string, opts RetrieveOptions) (string, []retriever.RankedResult, error) {
	if e.complete == nil {
		return "", nil, ErrNoCompletion
	}

	results, err := e.Retrieve(ctx, name, query, opts)
	if err != nil {
		return "", nil, err
	}

	completion, err := e.complete(ctx, buildPrompt(query, results))
	if err != nil {
		return "", nil, fmt.Errorf("generating completion: %w", err)
	}
	return completion, results, nil
}

// buildPrompt lays the retrieved context ahead of the question.
func buildPrompt(query string, results []retriever.RankedResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using the context below.\n\n")
	if len(results) > 0 {
		b.WriteString("Context:\n")
		for _, r := range results {
			b.WriteString(r.Text)
			b.WriteString("\n---\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

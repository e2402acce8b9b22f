package search

import (
	"context"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Built-in strategy names.
const (
	StrategyFullText = "fulltext"
	StrategyFallback = "fallback"
	StrategyRecent   = "recent"
)

// Strategy produces a candidate pool for a query. The orchestrator owns
// structural filtering, ranking, and pagination — a strategy only decides
// how candidates are generated and scored.
type Strategy interface {
	// Name is the registry key callers select the strategy by.
	Name() string

	// RequiresNativeIndex reports whether the strategy depends on the
	// storage backend's native full-text index. When the backend lacks
	// one, the orchestrator degrades to the fallback strategy.
	RequiresNativeIndex() bool

	// Execute returns scored candidates for the query. The candidate
	// pool may exceed the requested result count; the orchestrator trims
	// after filtering.
	Execute(ctx context.Context, query string, opts Options, driver storage.Driver) ([]storage.TextMatch, error)
}

// fullTextStrategy routes the query through the driver's text index.
type fullTextStrategy struct{}

func (fullTextStrategy) Name() string              { return StrategyFullText }
func (fullTextStrategy) RequiresNativeIndex() bool { return true }

func (fullTextStrategy) Execute(ctx context.Context, query string, opts Options, driver storage.Driver) ([]storage.TextMatch, error) {
	return driver.QueryByText(ctx, query, opts.Namespace, candidateLimit(opts))
}

// fallbackStrategy scores records with the shared substring matcher,
// independent of any index. It is the degradation target when a backend
// has no native index, and is registered in its own right so callers can
// select it explicitly.
type fallbackStrategy struct{}

func (fallbackStrategy) Name() string              { return StrategyFallback }
func (fallbackStrategy) RequiresNativeIndex() bool { return false }

func (fallbackStrategy) Execute(ctx context.Context, query string, opts Options, driver storage.Driver) ([]storage.TextMatch, error) {
	terms := storage.FallbackTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	recs, err := driver.List(ctx, opts.Namespace)
	if err != nil {
		return nil, err
	}

	var matches []storage.TextMatch
	for _, rec := range recs {
		haystack := rec.Content + " " + rec.Summary + " " + strings.Join(rec.Tags, " ")
		score := storage.FallbackScore(haystack, terms)
		if score <= 0 {
			continue
		}
		matches = append(matches, storage.TextMatch{Record: rec, Score: score})
	}

	return matches, nil
}

// recentStrategy has no text predicate: it returns records ordered by
// recency, scored by rank so newer records sort first. Temporal filters
// act as the pre-filter.
type recentStrategy struct{}

func (recentStrategy) Name() string              { return StrategyRecent }
func (recentStrategy) RequiresNativeIndex() bool { return false }

func (recentStrategy) Execute(ctx context.Context, _ string, opts Options, driver storage.Driver) ([]storage.TextMatch, error) {
	recs, err := driver.List(ctx, opts.Namespace)
	if err != nil {
		return nil, err
	}

	// List is newest-first; map rank onto a descending (0,1] score.
	matches := make([]storage.TextMatch, 0, len(recs))
	for i, rec := range recs {
		matches = append(matches, storage.TextMatch{
			Record: rec,
			Score:  1.0 / float64(i+1),
		})
	}

	return matches, nil
}

// candidateLimit sizes the pool a strategy fetches so that structural
// filtering still leaves enough results for the requested page.
func candidateLimit(opts Options) int {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	pool := (limit + opts.Offset) * 4
	if pool < 50 {
		pool = 50
	}
	return pool
}

// Package search orchestrates memory retrieval across pluggable query
// strategies with graceful degradation.
//
// The orchestrator dispatches a query to a named strategy, degrades to the
// fallback matcher when the backend lacks a native full-text index, applies
// structural filters (namespace, importance, category, temporal, metadata)
// uniformly across every path, and ranks results deterministically. Because
// filtering happens orchestrator-side, the fallback path can never admit a
// record the native path would exclude for structural reasons — the two
// paths differ only in candidate generation and ranking quality.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/hierarchy"
	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// DefaultLimit is used when options carry no limit.
const DefaultLimit = 20

// Options enumerates the knobs of one search call.
type Options struct {
	Limit         int              `json:"limit,omitempty"`
	Offset        int              `json:"offset,omitempty"`
	Namespace     string           `json:"namespace,omitempty"`
	MinImportance float64          `json:"min_importance,omitempty"`
	Categories    []string         `json:"categories,omitempty"`
	Temporal      []TemporalFilter `json:"temporal,omitempty"`
	Metadata      []MetadataFilter `json:"metadata,omitempty"`

	// IncludeMetadata attaches per-result annotations (strategy used,
	// index kind) to each result.
	IncludeMetadata bool `json:"include_metadata,omitempty"`
}

// Result is one ranked search hit. Never persisted; built fresh per query.
type Result struct {
	ID           string         `json:"id"`
	Score        float64        `json:"score"`
	StrategyUsed string         `json:"strategy_used"`
	Record       *record.Record `json:"record,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Orchestrator dispatches queries to registered strategies over one
// storage driver.
type Orchestrator struct {
	driver storage.Driver
	logger *zap.Logger

	// tree, when set, expands category filters to include descendant
	// categories.
	tree *hierarchy.Store

	// now is injected for temporal-filter tests.
	now func() time.Time

	mu         sync.RWMutex
	strategies map[string]Strategy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHierarchy expands category filters through the hierarchy store so a
// filter on "Technology" also matches records categorized under its
// descendants.
func WithHierarchy(tree *hierarchy.Store) Option {
	return func(o *Orchestrator) { o.tree = tree }
}

// WithClock overrides the reference clock used by temporal filters.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator with the built-in strategies
// (fulltext, fallback, recent) registered.
func NewOrchestrator(driver storage.Driver, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		driver:     driver,
		logger:     logger,
		now:        time.Now,
		strategies: make(map[string]Strategy),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.Register(fullTextStrategy{})
	o.Register(fallbackStrategy{})
	o.Register(recentStrategy{})

	return o
}

// Register installs a strategy under its name, replacing any previous
// registration.
func (o *Orchestrator) Register(s Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.strategies[s.Name()] = s
}

// AvailableStrategies returns the registered strategy names, sorted, so
// callers can probe capability instead of hard-coding names.
func (o *Orchestrator) AvailableStrategies() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.strategies))
	for name := range o.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search runs a query through the named strategy (default fulltext) and
// returns ranked, filtered results. Invalid filters and unknown strategy
// names are rejected before any query work begins.
func (o *Orchestrator) Search(ctx context.Context, query, strategyName string, opts Options) ([]Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	if strategyName == "" {
		strategyName = StrategyFullText
	}

	o.mu.RLock()
	strategy, ok := o.strategies[strategyName]
	fallback := o.strategies[StrategyFallback]
	o.mu.RUnlock()
	if !ok {
		return nil, UnknownStrategyError{Name: strategyName}
	}

	// Dispatch policy: degrade to the fallback matcher when the strategy
	// needs an index the backend doesn't have.
	if strategy.RequiresNativeIndex() && !o.driver.NativeIndex() && fallback != nil {
		o.logger.Debug("native index unavailable, degrading to fallback",
			zap.String("requested", strategyName),
		)
		strategy = fallback
	}

	matches, err := strategy.Execute(ctx, query, opts, o.driver)
	if err != nil {
		// Never swallowed at this layer: log with enough context to
		// diagnose, then re-raise typed.
		o.logger.Error("search strategy failed",
			zap.String("strategy", strategy.Name()),
			zap.Error(err),
		)
		return nil, StrategyError{Strategy: strategy.Name(), Err: err}
	}

	now := o.now()
	categories := o.expandCategories(opts.Categories)

	filtered := matches[:0]
	for _, m := range matches {
		if o.admit(m.Record, opts, categories, now) {
			filtered = append(filtered, m)
		}
	}

	// Deterministic ordering: score desc, recency desc, id asc. Never
	// map iteration order.
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		if !filtered[i].Record.CreatedAt.Equal(filtered[j].Record.CreatedAt) {
			return filtered[i].Record.CreatedAt.After(filtered[j].Record.CreatedAt)
		}
		return filtered[i].Record.ID < filtered[j].Record.ID
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if opts.Offset >= len(filtered) {
		return []Result{}, nil
	}
	filtered = filtered[opts.Offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	results := make([]Result, 0, len(filtered))
	for _, m := range filtered {
		r := Result{
			ID:           m.Record.ID,
			Score:        m.Score,
			StrategyUsed: strategy.Name(),
			Record:       m.Record,
		}
		if opts.IncludeMetadata {
			r.Metadata = map[string]any{
				"native_index": o.driver.NativeIndex(),
				"namespace":    m.Record.Namespace,
			}
		}
		results = append(results, r)
	}

	return results, nil
}

// admit applies the structural filters shared by every strategy path.
func (o *Orchestrator) admit(rec *record.Record, opts Options, categories map[string]bool, now time.Time) bool {
	if opts.Namespace != "" && rec.Namespace != opts.Namespace {
		return false
	}
	if rec.Consolidated {
		return false
	}
	if opts.MinImportance > 0 && rec.Importance < opts.MinImportance {
		return false
	}
	if len(categories) > 0 && !categories[strings.ToLower(rec.Category)] {
		return false
	}
	for _, tf := range opts.Temporal {
		if !tf.Matches(rec, now) {
			return false
		}
	}
	for _, mf := range opts.Metadata {
		if !mf.Matches(rec) {
			return false
		}
	}
	return true
}

// expandCategories lower-cases the requested categories and, when a
// hierarchy store is attached, widens each to its descendants.
func (o *Orchestrator) expandCategories(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}

	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[strings.ToLower(name)] = true
		if o.tree == nil {
			continue
		}
		descendants, err := o.tree.Descendants(name)
		if err != nil {
			continue
		}
		for _, d := range descendants {
			out[strings.ToLower(d.Name)] = true
		}
	}
	return out
}

func validateOptions(opts Options) error {
	for _, mf := range opts.Metadata {
		if err := mf.Validate(); err != nil {
			return err
		}
	}
	for _, tf := range opts.Temporal {
		if err := tf.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Package extract classifies memory text into weighted categories using a
// rule-driven matcher resolved against the category hierarchy.
//
// Extraction never fails toward its caller: any internal problem degrades
// to a low-confidence fallback result instead of an error, and every rule's
// matching work is bounded by match count, wall clock, and a non-advancing
// match guard so adversarial text or patterns cannot hang a call.
package extract

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/hierarchy"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

// Source identifies where a category candidate came from.
type Source string

const (
	SourcePattern   Source = "pattern"
	SourceMetadata  Source = "metadata"
	SourceRule      Source = "rule"
	SourceML        Source = "ml"
	SourceHierarchy Source = "hierarchy_suggestion"
)

// Category is one extracted candidate. Immutable once returned.
type Category struct {
	Name           string  `json:"name"`
	NormalizedName string  `json:"normalized_name"`
	HierarchyPath  string  `json:"hierarchy_path,omitempty"`
	Confidence     float64 `json:"confidence"`
	RelevanceScore float64 `json:"relevance_score"`
	Source         Source  `json:"source"`

	// Ref is the tagged hierarchy resolution backing HierarchyPath.
	Ref NodeRef `json:"-"`
}

// Result is the outcome of one extraction call.
type Result struct {
	Categories []Category `json:"categories"`

	// PrimaryCategory is the name of the top-confidence category.
	PrimaryCategory string `json:"primary_category"`

	// Confidence is the confidence of the primary category.
	Confidence float64 `json:"confidence"`

	// Fallback marks a degraded result produced after an internal
	// failure.
	Fallback bool `json:"fallback,omitempty"`
}

// Input carries the text and capture-time metadata for one extraction.
type Input struct {
	Content  string
	Summary  string
	Tags     []string
	Keywords []string

	// Existing are categories already attached to the memory (e.g. by
	// the capture layer). They merge into the result at high confidence.
	Existing []string
}

// Config holds extractor tunables.
type Config struct {
	// ConfidenceThreshold drops candidates scoring below it.
	ConfidenceThreshold float64

	// MaxCategories caps how many categories one memory receives.
	MaxCategories int

	// MaxMatchesPerRule caps matches contributed by a single rule.
	MaxMatchesPerRule int

	// RuleBudget is the per-rule wall-clock matching budget.
	RuleBudget time.Duration

	// MaxStall bounds consecutive non-advancing matches per rule.
	MaxStall int

	// MaxTextSize caps the concatenated text fed to the matcher.
	MaxTextSize int

	// CacheSize bounds the extraction result cache. Zero disables it.
	CacheSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.3,
		MaxCategories:       5,
		MaxMatchesPerRule:   50,
		RuleBudget:          100 * time.Millisecond,
		MaxStall:            3,
		MaxTextSize:         8192,
		CacheSize:           512,
	}
}

const (
	// existingConfidence is the weight given to capture-time categories.
	existingConfidence = 0.9

	// fallbackConfidence is the weight of the degraded fallback result.
	fallbackConfidence = 0.3

	// fallbackCategory is used when a failing extraction has no existing
	// category to fall back on.
	fallbackCategory = "General"

	// cacheKeyPrefixLen is how much content participates in the cache key.
	cacheKeyPrefixLen = 200
)

// Extractor is a rule-driven category extractor bound to one hierarchy
// store. One extractor owns its rule set and cache; nothing is
// process-global.
type Extractor struct {
	mu     sync.RWMutex
	config Config
	rules  []Rule

	tree   *hierarchy.Store
	cache  *utils.LRU[string, Result]
	logger *zap.Logger
}

// NewExtractor creates an extractor with the given rules. Pass
// DefaultRules() for the built-in table.
func NewExtractor(config Config, rules []Rule, tree *hierarchy.Store, logger *zap.Logger) *Extractor {
	if config.MaxCategories <= 0 {
		config.MaxCategories = DefaultConfig().MaxCategories
	}
	if config.MaxMatchesPerRule <= 0 {
		config.MaxMatchesPerRule = DefaultConfig().MaxMatchesPerRule
	}
	if config.RuleBudget <= 0 {
		config.RuleBudget = DefaultConfig().RuleBudget
	}
	if config.MaxStall <= 0 {
		config.MaxStall = DefaultConfig().MaxStall
	}
	if config.MaxTextSize <= 0 {
		config.MaxTextSize = DefaultConfig().MaxTextSize
	}

	sortRules(rules)

	return &Extractor{
		config: config,
		rules:  rules,
		tree:   tree,
		cache:  utils.NewLRU[string, Result](config.CacheSize),
		logger: logger,
	}
}

// Extract classifies the input. It never panics or returns an error: an
// internal failure yields a fallback result instead.
func (e *Extractor) Extract(in Input) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction failed, returning fallback",
				zap.Any("panic", r),
			)
			result = e.fallback(in)
		}
	}()

	key := e.cacheKey(in)
	if cached, ok := e.cache.Get(key); ok {
		return cached
	}

	result = e.extract(in)
	e.cache.Put(key, result)
	return result
}

func (e *Extractor) extract(in Input) Result {
	text := e.cappedText(in)

	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	budget := matchBudget{
		maxMatches: e.config.MaxMatchesPerRule,
		wallClock:  e.config.RuleBudget,
		maxStall:   e.config.MaxStall,
	}

	// best candidate per normalized category name
	type candidate struct {
		name       string
		confidence float64
		matches    int
		source     Source
		suggestion string
	}
	best := make(map[string]*candidate)

	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled || rule.re == nil {
			continue
		}

		offsets, timedOut := matchOffsets(rule.re, text, budget)
		if timedOut {
			// Budget exhaustion is recovered locally: partial matches
			// are kept and the call proceeds.
			e.logger.Warn("rule matching budget exceeded",
				zap.String("rule", rule.Name),
				zap.Int("matches", len(offsets)),
			)
		}
		if len(offsets) == 0 {
			continue
		}

		for _, off := range offsets {
			ratio := 0.0
			if len(text) > 0 {
				ratio = float64(off) / float64(len(text))
			}
			conf := rule.Confidence * positionBoost(ratio)
			if conf > 1.0 {
				conf = 1.0
			}

			key := strings.ToLower(rule.Category)
			c, ok := best[key]
			if !ok {
				best[key] = &candidate{
					name:       rule.Category,
					confidence: conf,
					matches:    1,
					source:     SourcePattern,
					suggestion: rule.HierarchySuggestion,
				}
				continue
			}
			c.matches++
			if conf > c.confidence {
				c.confidence = conf
				c.suggestion = rule.HierarchySuggestion
			}
		}
	}

	// Merge capture-time categories at high confidence.
	for _, name := range in.Existing {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		c, ok := best[key]
		if !ok {
			best[key] = &candidate{
				name:       name,
				confidence: existingConfidence,
				matches:    1,
				source:     SourceMetadata,
			}
			continue
		}
		if existingConfidence > c.confidence {
			c.confidence = existingConfidence
			c.source = SourceMetadata
		}
	}

	categories := make([]Category, 0, len(best))
	for key, c := range best {
		ref := e.resolve(c.name, c.suggestion)

		// Relevance blends confidence, match frequency, and how deep the
		// category sits in the hierarchy.
		freq := float64(c.matches) / 3.0
		if freq > 1 {
			freq = 1
		}
		depth := float64(ref.Depth()) / float64(hierarchy.DefaultMaxDepth)
		relevance := 0.6*c.confidence + 0.3*freq + 0.1*depth
		if relevance > 1 {
			relevance = 1
		}

		categories = append(categories, Category{
			Name:           c.name,
			NormalizedName: key,
			HierarchyPath:  ref.Path(),
			Confidence:     c.confidence,
			RelevanceScore: relevance,
			Source:         c.source,
			Ref:            ref,
		})
	}

	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Confidence != categories[j].Confidence {
			return categories[i].Confidence > categories[j].Confidence
		}
		return categories[i].NormalizedName < categories[j].NormalizedName
	})

	filtered := categories[:0]
	for _, c := range categories {
		if c.Confidence >= e.config.ConfidenceThreshold {
			filtered = append(filtered, c)
		}
	}
	categories = filtered
	if len(categories) > e.config.MaxCategories {
		categories = categories[:e.config.MaxCategories]
	}

	if len(categories) == 0 {
		return e.fallback(in)
	}

	return Result{
		Categories:      categories,
		PrimaryCategory: categories[0].Name,
		Confidence:      categories[0].Confidence,
	}
}

// resolve maps a category name onto the hierarchy: exact node match first,
// then the rule's declared suggestion if the tree contains it, otherwise a
// virtual node that exists only in this result.
func (e *Extractor) resolve(name, suggestion string) NodeRef {
	if node, ok := e.tree.Node(name); ok {
		return PersistedRef(node)
	}
	if suggestion != "" {
		if node, ok := e.tree.Node(suggestion); ok {
			return PersistedRef(node)
		}
	}
	return VirtualRef(name, suggestion)
}

// fallback builds the degraded result: the first existing category, or
// "General", at low confidence.
func (e *Extractor) fallback(in Input) Result {
	name := fallbackCategory
	for _, existing := range in.Existing {
		if strings.TrimSpace(existing) != "" {
			name = strings.TrimSpace(existing)
			break
		}
	}

	cat := Category{
		Name:           name,
		NormalizedName: strings.ToLower(name),
		Confidence:     fallbackConfidence,
		RelevanceScore: fallbackConfidence,
		Source:         SourceRule,
		Ref:            e.resolve(name, ""),
	}
	cat.HierarchyPath = cat.Ref.Path()

	return Result{
		Categories:      []Category{cat},
		PrimaryCategory: name,
		Confidence:      fallbackConfidence,
		Fallback:        true,
	}
}

// cappedText concatenates content, summary, tags, and keywords up to the
// configured size cap and lower-cases once.
func (e *Extractor) cappedText(in Input) string {
	parts := []string{in.Content, in.Summary}
	parts = append(parts, in.Tags...)
	parts = append(parts, in.Keywords...)

	joined := strings.Join(parts, " ")
	if len(joined) > e.config.MaxTextSize {
		joined = joined[:e.config.MaxTextSize]
	}
	return strings.ToLower(joined)
}

// cacheKey derives the cache key from a content prefix, the sorted tag and
// category sets, and the hierarchy generation. Including the generation
// means a hierarchy mutation implicitly invalidates every older entry.
func (e *Extractor) cacheKey(in Input) string {
	prefix := in.Content
	if len(prefix) > cacheKeyPrefixLen {
		prefix = prefix[:cacheKeyPrefixLen]
	}

	tags := append([]string(nil), in.Tags...)
	sort.Strings(tags)
	existing := append([]string(nil), in.Existing...)
	sort.Strings(existing)

	return fmt.Sprintf("%d|%s|%s|%s",
		e.tree.Generation(),
		prefix,
		strings.Join(tags, ","),
		strings.Join(existing, ","),
	)
}

// AddRule compiles and installs a rule, purging the result cache.
func (e *Extractor) AddRule(r Rule) error {
	if err := r.compile(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rules := make([]Rule, len(e.rules), len(e.rules)+1)
	copy(rules, e.rules)
	rules = append(rules, r)
	sortRules(rules)
	e.rules = rules

	e.cache.Purge()
	return nil
}

// RemoveRule removes a rule by name, purging the result cache. Reports
// whether a rule was removed.
func (e *Extractor) RemoveRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		if e.rules[i].Name == name {
			rules := make([]Rule, 0, len(e.rules)-1)
			rules = append(rules, e.rules[:i]...)
			rules = append(rules, e.rules[i+1:]...)
			e.rules = rules
			e.cache.Purge()
			return true
		}
	}
	return false
}

// SetRules replaces the whole rule set, purging the result cache. Used by
// the rules-file watcher.
func (e *Extractor) SetRules(rules []Rule) {
	sortRules(rules)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = rules
	e.cache.Purge()
}

// Rules returns a copy of the current rule set in evaluation order.
func (e *Extractor) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

package extract

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/BurntSushi/toml"
)

// Rule maps a text pattern to a weighted candidate category. Rules are
// configuration data: a default table ships compiled in and deployments can
// replace or extend it from a TOML rules file.
type Rule struct {
	// Name identifies the rule in logs and diagnostics.
	Name string `toml:"name"`

	// Pattern is the regular expression source matched against the text.
	Pattern string `toml:"pattern"`

	// Category is the category name the rule votes for.
	Category string `toml:"category"`

	// HierarchySuggestion optionally names the full hierarchy path the
	// category should resolve under when the tree has no exact match.
	HierarchySuggestion string `toml:"hierarchy,omitempty"`

	// Confidence is the prior weight of a match, 0.0-1.0.
	Confidence float64 `toml:"confidence"`

	// Priority orders rule evaluation, higher first.
	Priority int `toml:"priority"`

	// Enabled toggles the rule without removing it.
	Enabled bool `toml:"enabled"`

	re *regexp.Regexp
}

// compile parses the pattern. Go's regexp is linear-time by construction,
// which backs the extractor's termination guarantee; the match/time budgets
// in match.go stay mandatory regardless.
func (r *Rule) compile() error {
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	r.re = re
	return nil
}

// rulesFile is the TOML layout of a rules file.
type rulesFile struct {
	Rule []Rule `toml:"rule"`
}

// LoadRules reads and compiles a TOML rules file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rf rulesFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	for i := range rf.Rule {
		if err := rf.Rule[i].compile(); err != nil {
			return nil, err
		}
	}

	sortRules(rf.Rule)
	return rf.Rule, nil
}

// sortRules orders rules priority-descending with name as the tie break.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].Name < rules[j].Name
	})
}

// DefaultRules returns the built-in rule table. Patterns are intentionally
// plain word alternations: sophistication lives in the scoring, not the
// regexes.
func DefaultRules() []Rule {
	rules := []Rule{
		{
			Name:                "programming-languages",
			Pattern:             `(?i)\b(python|golang|typescript|javascript|rust|java|c\+\+|code|coding|program(?:ming)?|function|compiler)\b`,
			Category:            "Programming",
			HierarchySuggestion: "Technology/Programming",
			Confidence:          0.8,
			Priority:            100,
			Enabled:             true,
		},
		{
			Name:                "databases",
			Pattern:             `(?i)\b(postgres(?:ql)?|sqlite|mysql|redis|database|sql|schema|migration|query)\b`,
			Category:            "Databases",
			HierarchySuggestion: "Technology/Databases",
			Confidence:          0.8,
			Priority:            95,
			Enabled:             true,
		},
		{
			Name:                "infrastructure",
			Pattern:             `(?i)\b(docker|kubernetes|k8s|deploy(?:ment)?|terraform|server|cluster|ci/cd|pipeline)\b`,
			Category:            "Infrastructure",
			HierarchySuggestion: "Technology/Infrastructure",
			Confidence:          0.75,
			Priority:            90,
			Enabled:             true,
		},
		{
			Name:                "debugging",
			Pattern:             `(?i)\b(bug|error|stack trace|crash|exception|panic|fix(?:ed)?|root cause|workaround)\b`,
			Category:            "Debugging",
			HierarchySuggestion: "Technology/Debugging",
			Confidence:          0.7,
			Priority:            85,
			Enabled:             true,
		},
		{
			Name:                "security",
			Pattern:             `(?i)\b(vulnerabilit(?:y|ies)|cve|auth(?:entication|orization)?|injection|exploit|credential|secret)\b`,
			Category:            "Security",
			HierarchySuggestion: "Technology/Security",
			Confidence:          0.75,
			Priority:            85,
			Enabled:             true,
		},
		{
			Name:                "finance",
			Pattern:             `(?i)\b(invoice|payment|billing|budget|expense|salar(?:y|ies)|tax(?:es)?)\b`,
			Category:            "Finance",
			HierarchySuggestion: "Work/Finance",
			Confidence:          0.7,
			Priority:            70,
			Enabled:             true,
		},
		{
			Name:                "scheduling",
			Pattern:             `(?i)\b(reminder|schedule|meeting|appointment|deadline|calendar|every (?:day|week|month))\b`,
			Category:            "Scheduling",
			HierarchySuggestion: "Work/Scheduling",
			Confidence:          0.65,
			Priority:            65,
			Enabled:             true,
		},
		{
			Name:                "preferences",
			Pattern:             `(?i)\b(prefer(?:s|red)?|favorite|likes?|dislikes?|always use|never use)\b`,
			Category:            "Preferences",
			HierarchySuggestion: "Personal/Preferences",
			Confidence:          0.6,
			Priority:            50,
			Enabled:             true,
		},
	}

	for i := range rules {
		// Built-in patterns are constants; a failure here is a programmer
		// error caught by the test suite.
		if err := rules[i].compile(); err != nil {
			panic(err)
		}
	}

	sortRules(rules)
	return rules
}

package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/record"
)

// Operator enumerates the comparison operators accepted in metadata
// filters.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpLike     Operator = "like"
)

var validOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpIn: true, OpContains: true, OpLike: true,
}

// filterFields are the record fields a metadata filter may reference.
// Keys under the record's free-form metadata map are addressed as
// "metadata.<key>".
var filterFields = map[string]bool{
	"id": true, "namespace": true, "content": true, "summary": true,
	"tags": true, "category": true, "importance": true,
}

// MetadataFilter is one field/operator/value predicate. Filters combine
// with AND semantics.
type MetadataFilter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Validate rejects unknown fields and operators eagerly.
func (f MetadataFilter) Validate() error {
	if !validOperators[f.Operator] {
		return InvalidFilterError{Field: f.Field, Operator: string(f.Operator), Reason: "unknown operator"}
	}
	if !filterFields[f.Field] && !strings.HasPrefix(f.Field, "metadata.") {
		return InvalidFilterError{Field: f.Field, Reason: "unknown field"}
	}
	if f.Operator == OpIn {
		if _, ok := valueList(f.Value); !ok {
			return InvalidFilterError{Field: f.Field, Operator: string(OpIn), Reason: "value must be a list"}
		}
	}
	return nil
}

// Matches evaluates the predicate against a record.
func (f MetadataFilter) Matches(rec *record.Record) bool {
	fieldVal, ok := fieldValue(rec, f.Field)
	if !ok {
		return false
	}

	switch f.Operator {
	case OpEq:
		return compareEq(fieldVal, f.Value)
	case OpNe:
		return !compareEq(fieldVal, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareOrdered(fieldVal, f.Value, f.Operator)
	case OpIn:
		list, _ := valueList(f.Value)
		for _, v := range list {
			if compareEq(fieldVal, v) {
				return true
			}
		}
		return false
	case OpContains:
		return containsValue(fieldVal, f.Value)
	case OpLike:
		pattern, ok := f.Value.(string)
		if !ok {
			return false
		}
		s, ok := fieldVal.(string)
		if !ok {
			return false
		}
		return likeMatch(s, pattern)
	}
	return false
}

// TemporalFilter restricts records by creation time. Within accepts
// relative expressions like "90m", "24h", "7d", or "2w"; After/Before are
// absolute bounds. A filter may combine both.
type TemporalFilter struct {
	After  *time.Time `json:"after,omitempty"`
	Before *time.Time `json:"before,omitempty"`
	Within string     `json:"within,omitempty"`
}

// Validate rejects malformed relative expressions eagerly.
func (f TemporalFilter) Validate() error {
	if f.Within == "" {
		return nil
	}
	if _, err := parseRelative(f.Within); err != nil {
		return InvalidFilterError{Field: "within", Reason: err.Error()}
	}
	return nil
}

// Matches evaluates the filter against a record at the given reference
// time (normally time.Now, injected for testability).
func (f TemporalFilter) Matches(rec *record.Record, now time.Time) bool {
	if f.After != nil && rec.CreatedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && rec.CreatedAt.After(*f.Before) {
		return false
	}
	if f.Within != "" {
		d, err := parseRelative(f.Within)
		if err != nil {
			return false
		}
		if rec.CreatedAt.Before(now.Add(-d)) {
			return false
		}
	}
	return true
}

// parseRelative parses a relative time expression. Plain durations are
// handed to time.ParseDuration; "d" (days) and "w" (weeks) suffixes are
// expanded first since the stdlib stops at hours.
func parseRelative(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(strings.ToLower(expr))
	if expr == "" {
		return 0, fmt.Errorf("empty relative expression")
	}

	unit := expr[len(expr)-1]
	if unit == 'd' || unit == 'w' {
		n, err := strconv.ParseFloat(expr[:len(expr)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("malformed relative expression %q", expr)
		}
		hours := n * 24
		if unit == 'w' {
			hours *= 7
		}
		return time.Duration(hours * float64(time.Hour)), nil
	}

	d, err := time.ParseDuration(expr)
	if err != nil {
		return 0, fmt.Errorf("malformed relative expression %q", expr)
	}
	return d, nil
}

func fieldValue(rec *record.Record, field string) (any, bool) {
	if key, ok := strings.CutPrefix(field, "metadata."); ok {
		if rec.Metadata == nil {
			return nil, false
		}
		v, ok := rec.Metadata[key]
		return v, ok
	}

	switch field {
	case "id":
		return rec.ID, true
	case "namespace":
		return rec.Namespace, true
	case "content":
		return rec.Content, true
	case "summary":
		return rec.Summary, true
	case "tags":
		return rec.Tags, true
	case "category":
		return rec.Category, true
	case "importance":
		return rec.Importance, true
	}
	return nil, false
}

func compareEq(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return strings.EqualFold(toString(a), toString(b))
}

func compareOrdered(a, b any, op Operator) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if !aok || !bok {
		// Fall back to lexicographic ordering for non-numeric fields.
		sa, sb := toString(a), toString(b)
		switch op {
		case OpGt:
			return sa > sb
		case OpGte:
			return sa >= sb
		case OpLt:
			return sa < sb
		case OpLte:
			return sa <= sb
		}
		return false
	}

	switch op {
	case OpGt:
		return fa > fb
	case OpGte:
		return fa >= fb
	case OpLt:
		return fa < fb
	case OpLte:
		return fa <= fb
	}
	return false
}

func containsValue(fieldVal, want any) bool {
	needle := toString(want)
	switch v := fieldVal.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(needle))
	case []string:
		for _, s := range v {
			if strings.EqualFold(s, needle) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if strings.EqualFold(toString(item), needle) {
				return true
			}
		}
	}
	return false
}

// likeMatch implements SQL LIKE semantics with % wildcards,
// case-insensitively.
func likeMatch(s, pattern string) bool {
	s = strings.ToLower(s)
	pattern = strings.ToLower(pattern)

	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}

	if parts[0] != "" && !strings.HasPrefix(s, parts[0]) {
		return false
	}
	last := parts[len(parts)-1]
	if last != "" && !strings.HasSuffix(s, last) {
		return false
	}

	pos := len(parts[0])
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(s[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}
	return true
}

func valueList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Package similarity scores how alike two pieces of memory text are.
//
// The score blends a token-level Jaccard ratio with a character trigram
// overlap so that both lexical matches ("invoices" == "invoices") and
// sub-word variants ("fifth" vs "5th or so") contribute. Scoring is a pure
// function: no state, deterministic, symmetric.
package similarity

import "strings"

const (
	// tokenWeight and ngramWeight blend the two measures. They sum to 1
	// so the result stays in [0,1].
	tokenWeight = 0.6
	ngramWeight = 0.4

	// ngramSize is the character n-gram width.
	ngramSize = 3
)

// Score returns a similarity in [0,1] between two texts. Identical
// non-empty inputs score 1.0; inputs sharing nothing score 0.
func Score(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(a, b) {
		return 1.0
	}

	return tokenWeight*jaccard(tokens(a), tokens(b)) +
		ngramWeight*jaccard(ngrams(a), ngrams(b))
}

// tokens returns the set of normalized words in the text.
func tokens(text string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			out[f] = true
		}
	}
	return out
}

// ngrams returns the set of character trigrams of the normalized text.
func ngrams(text string) map[string]bool {
	normalized := []rune(strings.ToLower(strings.Join(strings.Fields(text), " ")))
	out := make(map[string]bool)
	if len(normalized) < ngramSize {
		if len(normalized) > 0 {
			out[string(normalized)] = true
		}
		return out
	}
	for i := 0; i+ngramSize <= len(normalized); i++ {
		out[string(normalized[i:i+ngramSize])] = true
	}
	return out
}

// jaccard is |intersection| / |union| of two sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

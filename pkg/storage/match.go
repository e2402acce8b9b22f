package storage

import "strings"

// FallbackTerms splits query text into the lowercase terms used by the
// fallback substring matcher. Punctuation is trimmed and duplicates removed
// so drivers without a native index all agree on what constitutes a match.
func FallbackTerms(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// FallbackScore scores a haystack against fallback terms as the fraction of
// terms present. Deliberately crude: ranking quality is the native index's
// job, the fallback only has to agree on which records match structurally.
// Returns 0 when nothing matches.
func FallbackScore(haystack string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	haystack = strings.ToLower(haystack)

	hits := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}

	return float64(hits) / float64(len(terms))
}

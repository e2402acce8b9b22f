package extract

import (
	"regexp"
	"time"
)

// matchBudget bounds one rule's matching work. All three limits are
// mandatory: even with a linear-time regexp engine, a pathological pattern
// against pathological input must never let one rule dominate an
// extraction call.
type matchBudget struct {
	// maxMatches caps how many matches a single rule may contribute.
	maxMatches int

	// wallClock is the per-rule time budget. When it expires, matching
	// stops and whatever was found so far is kept.
	wallClock time.Duration

	// maxStall bounds consecutive zero-width (non-advancing) matches
	// before the loop aborts, guaranteeing termination.
	maxStall int
}

// matchOffsets returns the byte offsets where the pattern matches, honoring
// the budget. The second return reports whether the wall-clock budget
// expired; partial results are still returned.
func matchOffsets(re *regexp.Regexp, text string, budget matchBudget) ([]int, bool) {
	deadline := time.Now().Add(budget.wallClock)

	var offsets []int
	pos := 0
	stall := 0

	for len(offsets) < budget.maxMatches && pos <= len(text) {
		if time.Now().After(deadline) {
			return offsets, true
		}

		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}

		offsets = append(offsets, pos+loc[0])

		if loc[1] == loc[0] {
			// Zero-width match: force a one-byte advance and count the
			// stall so a pattern matching the empty string cannot spin.
			stall++
			if stall >= budget.maxStall {
				break
			}
			pos += loc[1] + 1
		} else {
			stall = 0
			pos += loc[1]
		}
	}

	return offsets, false
}

// positionBoost rewards matches that appear early in the text. Matches in
// the first tenth score well above baseline, decaying to a floor past the
// midpoint.
func positionBoost(ratio float64) float64 {
	switch {
	case ratio <= 0.1:
		return 1.25
	case ratio <= 0.5:
		// Linear decay from 1.25 at 10% to 0.8 at the midpoint.
		return 1.25 - (ratio-0.1)*(1.25-0.8)/0.4
	default:
		return 0.6
	}
}

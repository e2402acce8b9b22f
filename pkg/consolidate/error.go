package consolidate

import (
	"fmt"
	"strings"
)

// IneligibleError is returned by Commit when the plan fails the safety
// checks. It carries the same enumerable reasons ValidateEligibility
// reports, so callers can surface them without re-running validation.
type IneligibleError struct {
	PrimaryID string
	Reasons   []string
}

func (e IneligibleError) Error() string {
	return fmt.Sprintf("consolidation into %s not eligible: %s",
		e.PrimaryID, strings.Join(e.Reasons, "; "))
}

// ConflictError is returned when a commit references an id already claimed
// by another in-flight commit. Two concurrent commits with overlapping ids
// never both succeed.
type ConflictError struct {
	ID string
}

func (e ConflictError) Error() string {
	return "record " + e.ID + " is claimed by a concurrent consolidation"
}

// CommitError wraps a storage failure during commit. The transaction is
// rolled back before this surfaces; no partial merge is ever visible.
type CommitError struct {
	PrimaryID string
	Err       error
}

func (e CommitError) Error() string {
	return fmt.Sprintf("consolidation commit into %s failed: %v", e.PrimaryID, e.Err)
}

func (e CommitError) Unwrap() error {
	return e.Err
}

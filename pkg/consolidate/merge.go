package consolidate

import (
	"sort"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/record"
)

// ContentPolicy selects how member content folds into the primary record.
type ContentPolicy string

const (
	// ContentConcat appends each member's content to the primary's,
	// separated by blank lines.
	ContentConcat ContentPolicy = "concat"

	// ContentDedupe appends only member content not already present in
	// the accumulated text.
	ContentDedupe ContentPolicy = "dedupe"
)

// FieldDiff describes how one field changes if the merge is committed.
type FieldDiff struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// mergeRecords computes the post-merge shape of the primary without touching
// storage: union of tags, max importance, content folded per policy.
func mergeRecords(primary *record.Record, members []*record.Record, policy ContentPolicy) *record.Record {
	merged := primary.Clone()

	tagSet := make(map[string]bool, len(merged.Tags))
	for _, t := range merged.Tags {
		tagSet[strings.ToLower(t)] = true
	}

	for _, m := range members {
		for _, t := range m.Tags {
			if !tagSet[strings.ToLower(t)] {
				tagSet[strings.ToLower(t)] = true
				merged.Tags = append(merged.Tags, t)
			}
		}

		if m.Importance > merged.Importance {
			merged.Importance = m.Importance
		}

		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if policy == ContentDedupe && strings.Contains(merged.Content, content) {
			continue
		}
		merged.Content = merged.Content + "\n\n" + content
	}

	sort.Strings(merged.Tags)
	return merged
}

// diffRecords lists the fields that change between before and after.
func diffRecords(before, after *record.Record) []FieldDiff {
	var diffs []FieldDiff

	if before.Content != after.Content {
		diffs = append(diffs, FieldDiff{Field: "content", Before: before.Content, After: after.Content})
	}
	if !equalTags(before.Tags, after.Tags) {
		diffs = append(diffs, FieldDiff{Field: "tags", Before: before.Tags, After: after.Tags})
	}
	if before.Importance != after.Importance {
		diffs = append(diffs, FieldDiff{Field: "importance", Before: before.Importance, After: after.Importance})
	}

	return diffs
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if !strings.EqualFold(as[i], bs[i]) {
			return false
		}
	}
	return true
}

// Package record defines the memory record domain type shared by the
// storage, search, and consolidation layers.
//
// A Record is a single durable memory: one captured exchange (or a distilled
// fact) plus the classification metadata the curation engine maintains for
// it. Records are scoped to a namespace so that independent agents never see
// each other's memories.
package record

import "time"

// Record is a single stored memory.
type Record struct {
	// ID is the unique identifier of the record.
	ID string `json:"id"`

	// Namespace scopes the record to one logical agent/partition.
	Namespace string `json:"namespace"`

	// Content is the full memory text.
	Content string `json:"content"`

	// Summary is an optional short form of Content.
	Summary string `json:"summary,omitempty"`

	// Tags are free-form labels attached at capture time.
	Tags []string `json:"tags,omitempty"`

	// Category is the primary extracted category, if any.
	Category string `json:"category,omitempty"`

	// Importance ranks the record for retention and retrieval, 0.0-1.0.
	Importance float64 `json:"importance"`

	// CreatedAt is when the record was captured.
	CreatedAt time.Time `json:"created_at"`

	// Consolidated marks a record that has been merged into another
	// record. Consolidated records are excluded from search and detection.
	Consolidated bool `json:"consolidated,omitempty"`

	// Metadata carries opaque structured annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result without
// touching shared state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Tags != nil {
		out.Tags = make([]string, len(r.Tags))
		copy(out.Tags, r.Tags)
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Patch is a partial update applied to a stored record. Nil fields are
// left unchanged.
type Patch struct {
	Content      *string        `json:"content,omitempty"`
	Summary      *string        `json:"summary,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Category     *string        `json:"category,omitempty"`
	Importance   *float64       `json:"importance,omitempty"`
	Consolidated *bool          `json:"consolidated,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Apply copies the set fields of the patch onto the record.
func (p Patch) Apply(r *Record) {
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.Summary != nil {
		r.Summary = *p.Summary
	}
	if p.Tags != nil {
		r.Tags = make([]string, len(p.Tags))
		copy(r.Tags, p.Tags)
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Importance != nil {
		r.Importance = *p.Importance
	}
	if p.Consolidated != nil {
		r.Consolidated = *p.Consolidated
	}
	if p.Metadata != nil {
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			r.Metadata[k] = v
		}
	}
}

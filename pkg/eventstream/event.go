package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecordsConsolidated is emitted after a consolidation commit.
	EventTypeRecordsConsolidated = "mnemo.records.consolidated"
)

// ConsolidationEvent is a transport-neutral event payload for a committed
// consolidation.
type ConsolidationEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Namespace     string    `json:"namespace,omitempty"`
	PrimaryID     string    `json:"primary_id"`
	MemberIDs     []string  `json:"member_ids"`
}

package eventstream

import "context"

// Publisher publishes consolidation events to an event stream backend.
type Publisher interface {
	PublishConsolidation(ctx context.Context, event *ConsolidationEvent) error
	Close() error
}

// Package storage defines the persistence capability used by the search and
// consolidation layers.
//
// The Driver is the primary interface for working with pkg/record — it
// handles insertion, retrieval, text querying, and transactional updates per
// the storage implementor. Text querying is two-tier: a backend with a
// native full-text index reports NativeIndex() == true and returns ranked
// matches; backends without one fall back to substring matching with the
// same structural semantics (namespace scoping, consolidated-record
// exclusion) but lower ranking quality.
package storage

import (
	"context"

	"github.com/papercomputeco/mnemo/pkg/record"
)

// TextMatch is a record returned from a text query together with the
// backend's relevance score, normalized to [0,1].
type TextMatch struct {
	Record *record.Record
	Score  float64
}

// Driver defines the interface for persisting and retrieving memory records
// in a storage backend.
type Driver interface {
	// Insert stores a new record. Inserting an id that already exists
	// returns ConflictError.
	Insert(ctx context.Context, rec *record.Record) error

	// Get retrieves a record by id. Returns NotFoundError if absent.
	Get(ctx context.Context, id string) (*record.Record, error)

	// QueryByText returns live (non-consolidated) records in the namespace
	// matching the query text, ranked by relevance, at most limit entries.
	// An empty namespace matches all namespaces.
	QueryByText(ctx context.Context, text, namespace string, limit int) ([]TextMatch, error)

	// List returns all live records in the namespace, newest first.
	// An empty namespace matches all namespaces.
	List(ctx context.Context, namespace string) ([]*record.Record, error)

	// Update applies a partial update to a record.
	Update(ctx context.Context, id string, patch record.Patch) error

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// NativeIndex reports whether text queries are served by a native
	// full-text index rather than the fallback substring matcher.
	NativeIndex() bool

	// WithTransaction runs fn with a transactional view of the store.
	// All writes performed through the Tx are applied atomically when fn
	// returns nil and discarded entirely when it returns an error.
	WithTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Close closes the store and releases any resources.
	Close() error
}

// Tx is the transactional subset of the driver. Writes through a Tx become
// visible only when the enclosing WithTransaction call commits.
type Tx interface {
	Get(ctx context.Context, id string) (*record.Record, error)
	Update(ctx context.Context, id string, patch record.Patch) error
	Delete(ctx context.Context, id string) error
}

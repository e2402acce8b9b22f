// Package inmemory provides an in-memory implementation of storage.Driver.
//
// It has no native full-text index — text queries run through the fallback
// substring matcher — which makes it the reference implementation for
// fallback-path semantics and the storage double used throughout the test
// suites.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu guards the record map. Transactions take the write lock for
	// their whole span, which trivially serializes concurrent commits.
	mu sync.RWMutex

	records map[string]*record.Record
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]*record.Record),
	}
}

// Insert stores a new record.
func (d *Driver) Insert(_ context.Context, rec *record.Record) error {
	if rec == nil {
		return errors.New("cannot store nil record")
	}
	if rec.ID == "" {
		return errors.New("record id is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[rec.ID]; ok {
		return storage.ConflictError{ID: rec.ID}
	}

	d.records[rec.ID] = rec.Clone()
	return nil
}

// Get retrieves a record by its id.
func (d *Driver) Get(_ context.Context, id string) (*record.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return rec.Clone(), nil
}

// QueryByText matches live records whose content, summary, or tags contain
// any of the query terms. Scores are the fraction of query terms present,
// which is deliberately crude: ranking quality is the native index's job,
// the fallback only has to agree on which records match structurally.
func (d *Driver) QueryByText(_ context.Context, text, namespace string, limit int) ([]storage.TextMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	terms := storage.FallbackTerms(text)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var matches []storage.TextMatch
	for _, rec := range d.records {
		if rec.Consolidated {
			continue
		}
		if namespace != "" && rec.Namespace != namespace {
			continue
		}

		score := matchScore(rec, terms)
		if score <= 0 {
			continue
		}

		matches = append(matches, storage.TextMatch{Record: rec.Clone(), Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].Record.CreatedAt.Equal(matches[j].Record.CreatedAt) {
			return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// List returns all live records in the namespace, newest first.
func (d *Driver) List(_ context.Context, namespace string) ([]*record.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var recs []*record.Record
	for _, rec := range d.records {
		if rec.Consolidated {
			continue
		}
		if namespace != "" && rec.Namespace != namespace {
			continue
		}
		recs = append(recs, rec.Clone())
	}

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})

	return recs, nil
}

// Update applies a partial update to a record.
func (d *Driver) Update(_ context.Context, id string, patch record.Patch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}

	patch.Apply(rec)
	return nil
}

// Delete removes a record by id.
func (d *Driver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[id]; !ok {
		return storage.NotFoundError{ID: id}
	}

	delete(d.records, id)
	return nil
}

// NativeIndex reports false: the in-memory driver only has the fallback
// matcher.
func (d *Driver) NativeIndex() bool {
	return false
}

// WithTransaction runs fn against a staged copy of the store. Writes land
// on the staging map and replace the live map only if fn returns nil, so a
// failing fn leaves the store untouched.
func (d *Driver) WithTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	staged := make(map[string]*record.Record, len(d.records))
	for id, rec := range d.records {
		staged[id] = rec.Clone()
	}

	if err := fn(&memTx{records: staged}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	d.records = staged
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// memTx is the staged transactional view handed to WithTransaction callbacks.
type memTx struct {
	records map[string]*record.Record
}

func (t *memTx) Get(_ context.Context, id string) (*record.Record, error) {
	rec, ok := t.records[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return rec.Clone(), nil
}

func (t *memTx) Update(_ context.Context, id string, patch record.Patch) error {
	rec, ok := t.records[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}
	patch.Apply(rec)
	return nil
}

func (t *memTx) Delete(_ context.Context, id string) error {
	if _, ok := t.records[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	delete(t.records, id)
	return nil
}

func matchScore(rec *record.Record, terms []string) float64 {
	haystack := rec.Content + " " + rec.Summary + " " + strings.Join(rec.Tags, " ")
	return storage.FallbackScore(haystack, terms)
}

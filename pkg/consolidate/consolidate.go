// Package consolidate detects duplicate memory records and merges them
// atomically.
//
// A consolidation attempt moves through Detect, Validate, Preview, and then
// Commit or Abort. Detection and preview never mutate storage; commit runs
// inside a storage transaction so a partial merge (some members marked,
// others dangling) is structurally impossible. Concurrent commits touching
// overlapping ids are serialized through an in-process reservation table and
// the second attempt fails with ConflictError.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/similarity"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const (
	// DefaultThreshold is the similarity score below which a candidate is
	// not considered a duplicate.
	DefaultThreshold = 0.6

	// DefaultDetectLimit bounds the candidate pool pulled from search.
	DefaultDetectLimit = 10

	defaultMaxHistory = 256
)

// Candidate is one potential duplicate with its similarity score against
// the probe content.
type Candidate struct {
	Record *record.Record `json:"record"`
	Score  float64        `json:"score"`
}

// Eligibility is the outcome of the validation stage. Not eligible is an
// expected result, so it is a value with enumerable reasons rather than an
// error.
type Eligibility struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// Preview shows what a commit would produce without mutating storage.
type Preview struct {
	Summary    string         `json:"summary"`
	Merged     *record.Record `json:"merged"`
	FieldDiffs []FieldDiff    `json:"field_diffs,omitempty"`
}

// CommitResult reports a successful commit.
type CommitResult struct {
	Consolidated int    `json:"consolidated"`
	EventID      string `json:"event_id,omitempty"`
}

// HistoryEntry records one consolidation stage outcome for analytics.
type HistoryEntry struct {
	Stage     string    `json:"stage"`
	PrimaryID string    `json:"primary_id,omitempty"`
	MemberIDs []string  `json:"member_ids,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Config tunes the service.
type Config struct {
	// ContentPolicy selects concat or dedupe folding of member content.
	ContentPolicy ContentPolicy

	// MaxHistory bounds the retained history ring.
	MaxHistory int
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		ContentPolicy: ContentDedupe,
		MaxHistory:    defaultMaxHistory,
	}
}

// Service implements duplicate detection and atomic consolidation over one
// storage driver.
type Service struct {
	driver    storage.Driver
	searcher  *search.Orchestrator
	publisher eventstream.Publisher
	logger    *zap.Logger
	config    Config

	mu       sync.Mutex
	inflight map[string]bool
	history  []HistoryEntry

	commitAttempts  int
	commitSuccesses int
}

// NewService creates a consolidation service. A nil publisher disables
// event emission.
func NewService(driver storage.Driver, searcher *search.Orchestrator, publisher eventstream.Publisher, logger *zap.Logger, config Config) *Service {
	if config.ContentPolicy == "" {
		config.ContentPolicy = ContentDedupe
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = defaultMaxHistory
	}

	return &Service{
		driver:    driver,
		searcher:  searcher,
		publisher: publisher,
		logger:    logger,
		config:    config,
		inflight:  make(map[string]bool),
	}
}

// DetectDuplicates queries for candidates resembling content and scores
// each with the similarity scorer. Results at or above threshold come back
// sorted by score descending.
func (s *Service) DetectDuplicates(ctx context.Context, content string, threshold float64, namespace string, limit int) ([]Candidate, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if limit <= 0 {
		limit = DefaultDetectLimit
	}

	// Candidates come from the full-text strategy; the orchestrator
	// degrades to the fallback matcher when the backend has no native
	// index. Similarity does the real scoring, so pull a wider net than
	// the caller's limit.
	results, err := s.searcher.Search(ctx, content, search.StrategyFullText, search.Options{
		Namespace: namespace,
		Limit:     limit * 4,
	})
	if err != nil {
		s.record("detect", "", nil, "error", err.Error())
		return nil, fmt.Errorf("detect candidates: %w", err)
	}

	var candidates []Candidate
	for _, res := range results {
		score := similarity.Score(content, res.Record.Content)
		if score < threshold {
			continue
		}
		candidates = append(candidates, Candidate{Record: res.Record, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Record.ID < candidates[j].Record.ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	s.record("detect", "", nil, "ok", fmt.Sprintf("%d candidates", len(candidates)))
	return candidates, nil
}

// ValidateEligibility checks whether merging members into primary is safe.
// Every failed check contributes a reason; callers get the full list, not
// the first failure.
func (s *Service) ValidateEligibility(ctx context.Context, primaryID string, memberIDs []string) (Eligibility, error) {
	reasons := s.validate(ctx, primaryID, memberIDs, false)

	outcome := "valid"
	if len(reasons) > 0 {
		outcome = "invalid"
	}
	s.record("validate", primaryID, memberIDs, outcome, "")

	return Eligibility{Valid: len(reasons) == 0, Reasons: reasons}, nil
}

// validate runs the safety checks. ownReservation skips the in-flight
// check for ids this caller has already reserved (the commit path validates
// under its own reservation).
func (s *Service) validate(ctx context.Context, primaryID string, memberIDs []string, ownReservation bool) []string {
	var reasons []string

	if primaryID == "" {
		reasons = append(reasons, "primary id is empty")
	}
	if len(memberIDs) == 0 {
		reasons = append(reasons, "no member ids given")
	}
	for _, id := range memberIDs {
		if id == primaryID {
			reasons = append(reasons, "primary id "+primaryID+" appears in member ids")
			break
		}
	}

	// Member ids must be unique: a duplicated member would fold its
	// content into the primary twice under the concat policy.
	seen := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		if seen[id] {
			reasons = append(reasons, "member id "+id+" appears more than once")
			continue
		}
		seen[id] = true
	}

	primary, err := s.driver.Get(ctx, primaryID)
	if err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			reasons = append(reasons, "primary record "+primaryID+" not found")
		} else {
			reasons = append(reasons, "primary record "+primaryID+" unavailable: "+err.Error())
		}
	} else if primary.Consolidated {
		reasons = append(reasons, "primary record "+primaryID+" is already consolidated")
	}

	for _, id := range memberIDs {
		if id == primaryID {
			continue
		}
		member, err := s.driver.Get(ctx, id)
		if err != nil {
			var nf storage.NotFoundError
			if errors.As(err, &nf) {
				reasons = append(reasons, "member record "+id+" not found")
			} else {
				reasons = append(reasons, "member record "+id+" unavailable: "+err.Error())
			}
			continue
		}
		if member.Consolidated {
			reasons = append(reasons, "member record "+id+" is already consolidated")
		}
		if primary != nil && member.Namespace != primary.Namespace {
			reasons = append(reasons, "member record "+id+" is in namespace "+member.Namespace+", primary is in "+primary.Namespace)
		}
	}

	if !ownReservation {
		s.mu.Lock()
		for _, id := range append([]string{primaryID}, memberIDs...) {
			if s.inflight[id] {
				reasons = append(reasons, "record "+id+" is the target of an unresolved consolidation")
			}
		}
		s.mu.Unlock()
	}

	return reasons
}

// PreviewMerge computes the merged record and per-field differences without
// mutating storage.
func (s *Service) PreviewMerge(ctx context.Context, primaryID string, memberIDs []string) (*Preview, error) {
	primary, err := s.driver.Get(ctx, primaryID)
	if err != nil {
		return nil, err
	}

	members := make([]*record.Record, 0, len(memberIDs))
	for _, id := range memberIDs {
		m, err := s.driver.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	merged := mergeRecords(primary, members, s.config.ContentPolicy)
	diffs := diffRecords(primary, merged)

	s.record("preview", primaryID, memberIDs, "ok", "")

	return &Preview{
		Summary: fmt.Sprintf("merge %d record(s) into %s: %d field(s) change",
			len(members), primaryID, len(diffs)),
		Merged:     merged,
		FieldDiffs: diffs,
	}, nil
}

// Commit applies the merge atomically: the primary absorbs the members and
// each member is marked consolidated, all inside one storage transaction.
// Overlapping concurrent commits fail with ConflictError; a repeated commit
// of the same plan fails validation because the members are already
// consolidated.
func (s *Service) Commit(ctx context.Context, primaryID string, memberIDs []string) (*CommitResult, error) {
	ids := append([]string{primaryID}, memberIDs...)
	if err := s.reserve(ids); err != nil {
		s.record("commit", primaryID, memberIDs, "conflict", err.Error())
		return nil, err
	}
	defer s.release(ids)

	s.mu.Lock()
	s.commitAttempts++
	s.mu.Unlock()

	// Revalidate inside the reservation so a plan invalidated since
	// preview (e.g. a member deleted or merged elsewhere) is caught.
	if reasons := s.validate(ctx, primaryID, memberIDs, true); len(reasons) > 0 {
		s.record("commit", primaryID, memberIDs, "ineligible", reasons[0])
		return nil, IneligibleError{PrimaryID: primaryID, Reasons: reasons}
	}

	primary, err := s.driver.Get(ctx, primaryID)
	if err != nil {
		return nil, CommitError{PrimaryID: primaryID, Err: err}
	}

	members := make([]*record.Record, 0, len(memberIDs))
	for _, id := range memberIDs {
		m, err := s.driver.Get(ctx, id)
		if err != nil {
			return nil, CommitError{PrimaryID: primaryID, Err: err}
		}
		members = append(members, m)
	}

	merged := mergeRecords(primary, members, s.config.ContentPolicy)

	err = s.driver.WithTransaction(ctx, func(tx storage.Tx) error {
		consolidated := true
		if err := tx.Update(ctx, primaryID, record.Patch{
			Content:    &merged.Content,
			Tags:       merged.Tags,
			Importance: &merged.Importance,
			Metadata: map[string]any{
				"consolidated_members": memberIDs,
			},
		}); err != nil {
			return err
		}

		for _, id := range memberIDs {
			if err := tx.Update(ctx, id, record.Patch{
				Consolidated: &consolidated,
				Metadata: map[string]any{
					"consolidated_into": primaryID,
				},
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		s.record("commit", primaryID, memberIDs, "error", err.Error())
		return nil, CommitError{PrimaryID: primaryID, Err: err}
	}

	eventID := s.publish(ctx, primary.Namespace, primaryID, memberIDs)

	s.mu.Lock()
	s.commitSuccesses++
	s.mu.Unlock()
	s.record("commit", primaryID, memberIDs, "ok", "")

	s.logger.Info("consolidation committed",
		zap.String("primary", primaryID),
		zap.Int("members", len(memberIDs)),
		zap.String("namespace", primary.Namespace),
	)

	return &CommitResult{Consolidated: len(memberIDs), EventID: eventID}, nil
}

// publish emits the consolidation event. Publishing happens after the
// transaction commits; a failed publish is logged, never unwound.
func (s *Service) publish(ctx context.Context, namespace, primaryID string, memberIDs []string) string {
	if s.publisher == nil {
		return ""
	}

	event := &eventstream.ConsolidationEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeRecordsConsolidated,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Namespace:     namespace,
		PrimaryID:     primaryID,
		MemberIDs:     memberIDs,
	}

	if err := s.publisher.PublishConsolidation(ctx, event); err != nil {
		s.logger.Warn("consolidation event publish failed",
			zap.String("primary", primaryID),
			zap.Error(err),
		)
	}

	return event.EventID
}

// SuccessRate returns the fraction of commit attempts that succeeded.
// Derived from counters, never authoritative.
func (s *Service) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitAttempts == 0 {
		return 0
	}
	return float64(s.commitSuccesses) / float64(s.commitAttempts)
}

// History returns a copy of the retained stage outcomes, oldest first.
func (s *Service) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) reserve(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if s.inflight[id] {
			return ConflictError{ID: id}
		}
	}
	for _, id := range ids {
		s.inflight[id] = true
	}
	return nil
}

func (s *Service) release(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.inflight, id)
	}
}

func (s *Service) record(stage, primaryID string, memberIDs []string, outcome, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, HistoryEntry{
		Stage:     stage,
		PrimaryID: primaryID,
		MemberIDs: memberIDs,
		Outcome:   outcome,
		Detail:    detail,
		At:        time.Now().UTC(),
	})
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[len(s.history)-s.config.MaxHistory:]
	}
}

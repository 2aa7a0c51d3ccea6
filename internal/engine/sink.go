package engine

import (
	"context"
	"sync"

	"github.com/biolinkhq/vcmatch/internal/matching"

	"go.uber.org/zap"
)

// matchStore is the persistence surface the engine needs from the record
// store.
type matchStore interface {
	CreateMatch(ctx context.Context, match *matching.MatchRecord) (string, error)
	UpdateMatchScore(ctx context.Context, recordID string, match *matching.MatchRecord) error
	BatchCreateMatches(ctx context.Context, matches []*matching.MatchRecord) (int, error)
	MarkMatchingDone(ctx context.Context, subjectID string, clearTrigger bool) error
}

// sink persists match records for one pass. In immediate mode every worker
// writes its own record as soon as it exists; in buffered mode records are
// collected and flushed in batches when the pool drains. Either way a
// candidate id is admitted at most once per pass.
type sink struct {
	store    matchStore
	buffered bool
	logger   *zap.Logger

	mu      sync.Mutex
	seen    map[string]struct{}
	pending []*matching.MatchRecord
	created int
}

func newSink(store matchStore, buffered bool, logger *zap.Logger) *sink {
	return &sink{
		store:    store,
		buffered: buffered,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
}

// admit reserves the candidate's slot for this pass. A second admission of
// the same candidate is a duplicate and is rejected.
func (s *sink) admit(candidateID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[candidateID]; dup {
		return false
	}
	s.seen[candidateID] = struct{}{}
	return true
}

// create persists the verdict part of the record in immediate mode and
// returns the store record id for the later score update. Buffered mode
// defers all writes to flush.
func (s *sink) create(ctx context.Context, match *matching.MatchRecord) (string, error) {
	if s.buffered {
		return "", nil
	}

	recordID, err := s.store.CreateMatch(ctx, match)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.created++
	s.mu.Unlock()

	return recordID, nil
}

// complete finishes the record: a score update in immediate mode, an append
// to the flush buffer in buffered mode.
func (s *sink) complete(ctx context.Context, recordID string, match *matching.MatchRecord) error {
	if s.buffered {
		s.mu.Lock()
		s.pending = append(s.pending, match)
		s.mu.Unlock()
		return nil
	}

	return s.store.UpdateMatchScore(ctx, recordID, match)
}

// flush writes any buffered records. Partial failures are logged per record
// by the store and do not fail the pass.
func (s *sink) flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	created, err := s.store.BatchCreateMatches(ctx, pending)

	s.mu.Lock()
	s.created += created
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("some buffered match records could not be written",
			zap.Int("created", created),
			zap.Int("buffered", len(pending)),
			zap.Error(err),
		)
	}

	return nil
}

// finalize performs the subject's terminal state transition.
func (s *sink) finalize(ctx context.Context, subjectID string, clearTrigger bool) error {
	return s.store.MarkMatchingDone(ctx, subjectID, clearTrigger)
}

func (s *sink) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/biolinkhq/vcmatch/internal/ai"
	"github.com/biolinkhq/vcmatch/internal/matching"

	"go.uber.org/zap"
)

// fakeStore records every persistence call for assertions.
type fakeStore struct {
	mu sync.Mutex

	created []*matching.MatchRecord
	updated map[string]*matching.MatchRecord
	batched []*matching.MatchRecord

	createErr error
	updateErr error

	doneSubject  string
	doneCalls    int
	clearTrigger bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{updated: make(map[string]*matching.MatchRecord)}
}

func (f *fakeStore) CreateMatch(_ context.Context, match *matching.MatchRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, match)
	return fmt.Sprintf("rec%d", len(f.created)), nil
}

func (f *fakeStore) UpdateMatchScore(_ context.Context, recordID string, match *matching.MatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[recordID] = match
	return nil
}

func (f *fakeStore) BatchCreateMatches(_ context.Context, matches []*matching.MatchRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batched = append(f.batched, matches...)
	return len(matches), nil
}

func (f *fakeStore) MarkMatchingDone(_ context.Context, subjectID string, clearTrigger bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doneSubject = subjectID
	f.doneCalls++
	f.clearTrigger = clearTrigger
	return nil
}

// stubPrescanner answers per candidate id; unlisted candidates pass.
type stubPrescanner struct {
	mu      sync.Mutex
	calls   []string
	reject  map[string]bool
	err     error
	degrade bool
}

func (s *stubPrescanner) Prescan(_ context.Context, _ *matching.Subject, candidate *matching.Candidate) (*ai.PrescanVerdict, error) {
	s.mu.Lock()
	s.calls = append(s.calls, candidate.ID)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.degrade {
		return &ai.PrescanVerdict{Degraded: true}, nil
	}

	pass := !s.reject[candidate.ID]
	return &ai.PrescanVerdict{
		Modality: pass, Disease: pass, Stage: pass, Geography: pass, Amount: pass,
		Overall: pass,
	}, nil
}

func (s *stubPrescanner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubScorer struct {
	mu    sync.Mutex
	calls []string
	score *ai.PortfolioScore
	err   error
}

func (s *stubScorer) Score(_ context.Context, _ *matching.Subject, candidate *matching.Candidate) (*ai.PortfolioScore, error) {
	s.mu.Lock()
	s.calls = append(s.calls, candidate.ID)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.score != nil {
		return s.score, nil
	}
	return &ai.PortfolioScore{Modality: 80, Disease: 70, Geography: 90, Overall: 81, Verified: true}, nil
}

func testSubject() *matching.Subject {
	return &matching.Subject{ID: "recSubject", Name: "Acme Bio"}
}

func enrichedCandidate(id string) *matching.Candidate {
	return &matching.Candidate{
		ID:   id,
		Name: "Firm " + id,
		Stated: matching.DimensionSet{
			Modality:  "Small Molecule",
			Disease:   "Oncology",
			Stage:     "Series A",
			Geography: "US",
			Amount:    "1M-10M",
		},
		TherapeuticInvestor: matching.True,
		EquityInvestor:      matching.True,
		ProfileCrawled:      true,
		PortfolioAnalyzed:   true,
	}
}

func TestRunForSubject(t *testing.T) {
	store := newFakeStore()
	prescanner := &stubPrescanner{reject: map[string]bool{"c2": true}}
	scorer := &stubScorer{}

	ineligible := enrichedCandidate("c3")
	ineligible.RequiresRevenue = matching.True

	candidates := []*matching.Candidate{
		enrichedCandidate("c1"),
		enrichedCandidate("c2"),
		ineligible,
	}

	eng := New(store, prescanner, scorer, Config{PoolSize: 2}, zap.NewNop())
	result, err := eng.RunForSubject(context.Background(), testSubject(), candidates, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Total != 3 {
		t.Fatalf("total = %d, expected 3", result.Total)
	}
	if result.FilteredOut != 1 {
		t.Fatalf("filtered = %d, expected 1", result.FilteredOut)
	}
	if result.PrescanFailed != 1 {
		t.Fatalf("prescan failed = %d, expected 1", result.PrescanFailed)
	}
	if result.Created != 1 {
		t.Fatalf("created = %d, expected 1", result.Created)
	}
	if result.Verified != 1 {
		t.Fatalf("verified = %d, expected 1", result.Verified)
	}

	// The ineligible candidate must never reach an oracle.
	if prescanner.callCount() != 2 {
		t.Fatalf("prescan calls = %d, expected 2", prescanner.callCount())
	}
	for _, id := range prescanner.calls {
		if id == "c3" {
			t.Fatalf("ineligible candidate was sent to the oracle")
		}
	}

	// Only the passing candidate is scored.
	if len(scorer.calls) != 1 || scorer.calls[0] != "c1" {
		t.Fatalf("unexpected scorer calls: %v", scorer.calls)
	}

	if store.doneCalls != 1 || store.doneSubject != "recSubject" {
		t.Fatalf("terminal transition not performed: %+v", store)
	}
	if !store.clearTrigger {
		t.Fatalf("batch mode must clear the trigger on completion")
	}

	record := store.updated["rec1"]
	if record == nil || record.Score == nil || !record.Score.Verified {
		t.Fatalf("scored record not persisted: %+v", record)
	}
}

func TestRunForSubjectPinnedKeepsTrigger(t *testing.T) {
	store := newFakeStore()
	eng := New(store, &stubPrescanner{}, &stubScorer{}, Config{}, zap.NewNop())

	if _, err := eng.RunForSubject(context.Background(), testSubject(), nil, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.doneCalls != 1 {
		t.Fatalf("expected terminal transition even with no candidates")
	}
	if store.clearTrigger {
		t.Fatalf("pinned run must not clear the trigger")
	}
}

func TestRunForSubjectScoreFailureKeepsVerdictRecord(t *testing.T) {
	store := newFakeStore()
	scorer := &stubScorer{err: errors.New("oracle down")}

	eng := New(store, &stubPrescanner{}, scorer, Config{}, zap.NewNop())
	result, err := eng.RunForSubject(context.Background(), testSubject(),
		[]*matching.Candidate{enrichedCandidate("c1")}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ScoreFailed != 1 {
		t.Fatalf("score failed = %d, expected 1", result.ScoreFailed)
	}
	if result.Verified != 0 {
		t.Fatalf("verified = %d, expected 0", result.Verified)
	}
	if result.Created != 1 {
		t.Fatalf("verdict record must still be created, got %d", result.Created)
	}

	record := store.updated["rec1"]
	if record == nil {
		t.Fatalf("verdict-only completion missing")
	}
	if record.Score != nil {
		t.Fatalf("failed scoring must not attach a score")
	}
}

func TestRunForSubjectPrescanErrorCountsFailed(t *testing.T) {
	store := newFakeStore()
	prescanner := &stubPrescanner{err: errors.New("oracle down")}

	eng := New(store, prescanner, &stubScorer{}, Config{}, zap.NewNop())
	result, err := eng.RunForSubject(context.Background(), testSubject(),
		[]*matching.Candidate{enrichedCandidate("c1")}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Failed != 1 {
		t.Fatalf("failed = %d, expected 1", result.Failed)
	}
	if len(store.created) != 0 {
		t.Fatalf("no record may exist for a failed prescan")
	}
	if store.doneCalls != 1 {
		t.Fatalf("terminal transition must still happen")
	}
}

func TestRunForSubjectDegradedPrescanRejects(t *testing.T) {
	store := newFakeStore()
	prescanner := &stubPrescanner{degrade: true}

	eng := New(store, prescanner, &stubScorer{}, Config{}, zap.NewNop())
	result, err := eng.RunForSubject(context.Background(), testSubject(),
		[]*matching.Candidate{enrichedCandidate("c1")}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PrescanFailed != 1 {
		t.Fatalf("degraded verdict must count as a prescan rejection, got %+v", result)
	}
	if len(store.created) != 0 {
		t.Fatalf("degraded verdict must not create a record")
	}
}

func TestRunForSubjectDeduplicatesCandidates(t *testing.T) {
	store := newFakeStore()

	// The same store row appearing twice in the population must produce
	// exactly one match record.
	candidates := []*matching.Candidate{enrichedCandidate("c1"), enrichedCandidate("c1")}

	eng := New(store, &stubPrescanner{}, &stubScorer{}, Config{PoolSize: 1}, zap.NewNop())
	result, err := eng.RunForSubject(context.Background(), testSubject(), candidates, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Created != 1 {
		t.Fatalf("created = %d, expected 1", result.Created)
	}
	if result.Failed != 1 {
		t.Fatalf("duplicate must surface as a failure, got %+v", result)
	}
	if len(store.created) != 1 {
		t.Fatalf("store saw %d creates, expected 1", len(store.created))
	}
}

func TestProgressStats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name             string
		completed, total int
		elapsed          time.Duration
		rate             float64
		eta              time.Duration
	}{
		{name: "halfway", completed: 5, total: 10, elapsed: time.Second, rate: 5, eta: time.Second},
		{name: "sub-second remainder rounds up", completed: 9, total: 10, elapsed: time.Second, rate: 9, eta: time.Second},
		{name: "done", completed: 10, total: 10, elapsed: 2 * time.Second, rate: 5, eta: 0},
		{name: "no elapsed time yet", completed: 0, total: 10, elapsed: 0, rate: 0, eta: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, eta := progressStats(tc.completed, tc.total, tc.elapsed)
			if rate != tc.rate {
				t.Fatalf("rate = %v, expected %v", rate, tc.rate)
			}
			if eta != tc.eta {
				t.Fatalf("eta = %v, expected %v", eta, tc.eta)
			}
		})
	}
}

func TestRunForSubjectBufferedWrites(t *testing.T) {
	store := newFakeStore()

	candidates := []*matching.Candidate{
		enrichedCandidate("c1"),
		enrichedCandidate("c2"),
	}

	eng := New(store, &stubPrescanner{}, &stubScorer{}, Config{PoolSize: 2, BufferedWrites: true}, zap.NewNop())
	result, err := eng.RunForSubject(context.Background(), testSubject(), candidates, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 0 {
		t.Fatalf("buffered mode must not create records per worker")
	}
	if len(store.batched) != 2 {
		t.Fatalf("batched = %d, expected 2", len(store.batched))
	}
	if result.Created != 2 {
		t.Fatalf("created = %d, expected 2", result.Created)
	}
	for _, match := range store.batched {
		if match.Score == nil {
			t.Fatalf("buffered record missing its score")
		}
	}
}

package matching

import (
	"context"
	"fmt"

	"github.com/biolinkhq/vcmatch/internal/airtable"
)

// Default table names of the record store.
const (
	DefaultSubjectTable   = "Startup Submissions"
	DefaultCandidateTable = "VC Database"
	DefaultMatchTable     = "Startup-VC Matches"
)

const (
	fieldRunMatch     = "Run Match"
	fieldMatchingDone = "Matching Done?"
	fieldCreatedTime  = "Created Time"
	fieldCandidateKey = "VC/Investor Name"

	// Subjects are selected only while the trigger is set and no finished
	// pass has marked them done.
	pendingFormula = "AND({Run Match} = TRUE(), OR({Matching Done?} = FALSE(), {Matching Done?} = BLANK()))"
)

// TableNames selects the store tables; zero values fall back to defaults.
type TableNames struct {
	Subjects   string
	Candidates string
	Matches    string
}

// Store is the typed repository over the record store's three tables.
type Store struct {
	subjects   *airtable.Table
	candidates *airtable.Table
	matches    *airtable.Table
}

func NewStore(client *airtable.Client, names TableNames) *Store {
	if names.Subjects == "" {
		names.Subjects = DefaultSubjectTable
	}
	if names.Candidates == "" {
		names.Candidates = DefaultCandidateTable
	}
	if names.Matches == "" {
		names.Matches = DefaultMatchTable
	}

	return &Store{
		subjects:   client.Table(names.Subjects),
		candidates: client.Table(names.Candidates),
		matches:    client.Table(names.Matches),
	}
}

// PendingSubjects returns subjects with the trigger set and no completed
// pass, newest first.
func (s *Store) PendingSubjects(ctx context.Context) ([]*Subject, error) {
	records, err := s.subjects.List(ctx, airtable.ListOptions{
		Formula:   pendingFormula,
		SortField: fieldCreatedTime,
		SortDesc:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("list pending subjects: %w", err)
	}

	subjects := make([]*Subject, 0, len(records))
	for _, record := range records {
		subject, err := SubjectFromRecord(record)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}

	return subjects, nil
}

// SubjectByID fetches a single subject regardless of its flags.
func (s *Store) SubjectByID(ctx context.Context, id string) (*Subject, error) {
	record, err := s.subjects.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subject %s: %w", id, err)
	}
	return SubjectFromRecord(*record)
}

// Candidates returns the full candidate population, sorted by name.
func (s *Store) Candidates(ctx context.Context) ([]*Candidate, error) {
	records, err := s.candidates.List(ctx, airtable.ListOptions{
		SortField: fieldCandidateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	candidates := make([]*Candidate, 0, len(records))
	for _, record := range records {
		candidate, err := CandidateFromRecord(record)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// ClearRunMatch resets the subject's pending trigger. Done before any work is
// dispatched so a trigger cycle firing mid-pass cannot re-pick the subject.
func (s *Store) ClearRunMatch(ctx context.Context, subjectID string) error {
	return s.subjects.Update(ctx, subjectID, map[string]any{fieldRunMatch: false})
}

// MarkMatchingDone records the terminal state of a pass. When clearTrigger is
// set the pending flag is re-asserted false in the same write.
func (s *Store) MarkMatchingDone(ctx context.Context, subjectID string, clearTrigger bool) error {
	fields := map[string]any{fieldMatchingDone: true}
	if clearTrigger {
		fields[fieldRunMatch] = false
	}
	return s.subjects.Update(ctx, subjectID, fields)
}

// CreateMatch writes the verdict part of a match record and returns the
// created record's id for the later score update.
func (s *Store) CreateMatch(ctx context.Context, match *MatchRecord) (string, error) {
	record, err := s.matches.Create(ctx, match.VerdictFields())
	if err != nil {
		return "", fmt.Errorf("create match %s/%s: %w", match.SubjectName, match.CandidateName, err)
	}
	return record.ID, nil
}

// UpdateMatchScore attaches the scoring-stage fields to an existing match.
func (s *Store) UpdateMatchScore(ctx context.Context, recordID string, match *MatchRecord) error {
	fields := match.ScoreFields()
	if fields == nil {
		return nil
	}
	if err := s.matches.Update(ctx, recordID, fields); err != nil {
		return fmt.Errorf("update match score %s/%s: %w", match.SubjectName, match.CandidateName, err)
	}
	return nil
}

// BatchCreateMatches writes buffered match records in store-sized chunks.
func (s *Store) BatchCreateMatches(ctx context.Context, matches []*MatchRecord) (int, error) {
	fields := make([]map[string]any, 0, len(matches))
	for _, match := range matches {
		fields = append(fields, match.Fields())
	}
	return s.matches.BatchCreate(ctx, fields)
}

package matching

// DimensionVerdict is the prescan outcome per compatibility dimension.
type DimensionVerdict struct {
	Modality  bool
	Disease   bool
	Stage     bool
	Geography bool
	Amount    bool
}

// PortfolioScore is the portfolio-verification outcome for a match.
// Degraded marks a result inferred by the oracle client's fallback
// heuristic; numeric scores are absent in that case and are not persisted.
type PortfolioScore struct {
	Modality   int
	Disease    int
	Geography  int
	Overall    int
	Verified   bool
	Assessment string
	Degraded   bool
}

// MatchRecord is the persisted outcome of one (subject, candidate)
// evaluation. Score is nil when the scoring stage failed or was skipped.
type MatchRecord struct {
	SubjectID     string
	SubjectName   string
	CandidateID   string
	CandidateName string
	Verdict       DimensionVerdict
	Overall       bool
	Score         *PortfolioScore
}

// Store column names of the match table.
const (
	fieldMatchSubject   = "Startup Name"
	fieldMatchCandidate = "VC Name"
	fieldMatchModality  = "Drug Modality Match?"
	fieldMatchDisease   = "Disease Focus Match?"
	fieldMatchStage     = "Investment Stage Match?"
	fieldMatchGeography = "Geography Match?"
	fieldMatchAmount    = "Investment Amount Match?"
	fieldMatchOverall   = "GPT fit?"

	fieldScoreVerified   = "Verified With Portfolio Analysis"
	fieldScoreAssessment = "Overall Assessment"
	fieldScoreModality   = "Drug Modality Portfolio Score"
	fieldScoreDisease    = "Disease Focus Portfolio Score"
	fieldScoreGeography  = "Geography Portfolio Score"
	fieldScoreOverall    = "Overall Portfolio Alignment Score"
)

// VerdictFields returns the store fields written when the match is created.
func (m *MatchRecord) VerdictFields() map[string]any {
	return map[string]any{
		fieldMatchSubject:   m.SubjectName,
		fieldMatchCandidate: m.CandidateName,
		fieldMatchModality:  m.Verdict.Modality,
		fieldMatchDisease:   m.Verdict.Disease,
		fieldMatchStage:     m.Verdict.Stage,
		fieldMatchGeography: m.Verdict.Geography,
		fieldMatchAmount:    m.Verdict.Amount,
		fieldMatchOverall:   m.Overall,
	}
}

// ScoreFields returns the store fields of the scoring stage, or nil when no
// score was produced.
func (m *MatchRecord) ScoreFields() map[string]any {
	if m.Score == nil {
		return nil
	}

	fields := map[string]any{
		fieldScoreVerified: m.Score.Verified,
	}
	if !m.Score.Degraded {
		fields[fieldScoreModality] = m.Score.Modality
		fields[fieldScoreDisease] = m.Score.Disease
		fields[fieldScoreGeography] = m.Score.Geography
		fields[fieldScoreOverall] = m.Score.Overall
	}
	if m.Score.Assessment != "" {
		fields[fieldScoreAssessment] = m.Score.Assessment
	}
	return fields
}

// Fields returns the full field set of the record, verdict plus score.
func (m *MatchRecord) Fields() map[string]any {
	fields := m.VerdictFields()
	for key, value := range m.ScoreFields() {
		fields[key] = value
	}
	return fields
}

package gemini

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/biolinkhq/vcmatch/internal/ai"
	"github.com/biolinkhq/vcmatch/internal/backoff"
	"github.com/biolinkhq/vcmatch/internal/logger"
	"github.com/biolinkhq/vcmatch/internal/matching"

	"go.uber.org/zap"
)

//go:embed scoring_prompt.md
var scoringPromptTemplate string

// Verification thresholds of the scoring contract.
const (
	verifiedOverallMin = 60
	verifiedSubMin     = 20
)

// Sentiment keywords of the parse-failure fallback. Checked against the raw
// response text when no JSON object can be extracted.
var (
	positiveKeywords = []string{"good match", "strong match", "excellent match", "suitable", "fits well", "true"}
	negativeKeywords = []string{"not a match", "poor match", "doesn't fit", "unsuitable", "mismatch", "false"}
)

// Scorer is the portfolio-scoring oracle client, invoked only for candidates
// that passed prescan.
type Scorer struct {
	generator contentGenerator
	retry     backoff.Policy
	timeout   time.Duration
	maxLogLen int
	logger    *zap.Logger
}

func NewScorer(generator contentGenerator, retry backoff.Policy, timeout time.Duration, maxLogLength int, log *zap.Logger) *Scorer {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Scorer{
		generator: generator,
		retry:     retry,
		timeout:   timeout,
		maxLogLen: maxLogLength,
		logger:    logger.WithOracleFields(log, Provider, generator.Model()),
	}
}

// Score produces the weighted portfolio-alignment result. The overall score
// and the verified flag are recomputed client-side so stored records always
// satisfy the documented formula and thresholds. Degradation is two-level:
// structured parse, then keyword sentiment over the raw text, then an
// unverified default.
func (s *Scorer) Score(ctx context.Context, subject *matching.Subject, candidate *matching.Candidate) (*ai.PortfolioScore, error) {
	prompt := buildScoringPrompt(subject, candidate)

	s.logger.Debug("portfolio scoring request",
		zap.String("candidate", candidate.Name),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	var raw string
	err := s.retry.Do(ctx, s.logger, "portfolio scoring", func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var err error
		raw, err = s.generator.GenerateContent(callCtx, prompt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("portfolio scoring response",
		zap.String("candidate", candidate.Name),
		zap.String("response_preview", logger.TruncateForLog(raw, s.maxLogLen)),
	)

	data, err := parseObject(raw)
	if err != nil {
		s.logger.Warn("scoring response unparseable, falling back to keyword heuristic",
			zap.String("candidate", candidate.Name),
			zap.Error(err),
		)
		return fallbackScore(raw), nil
	}

	score := &ai.PortfolioScore{
		Modality:  clampScore(coerceInt(data["drug_modality_portfolio_score"])),
		Disease:   clampScore(coerceInt(data["disease_focus_portfolio_score"])),
		Geography: clampScore(coerceInt(data["geography_portfolio_score"])),
		Raw:       raw,
	}

	if breakdown, ok := data["scoring_breakdown"].(map[string]any); ok {
		score.Assessment = coerceString(breakdown["overall_assessment"])
	}

	score.Overall = weightedOverall(score.Modality, score.Disease, score.Geography)
	score.Verified = score.Overall >= verifiedOverallMin &&
		score.Modality >= verifiedSubMin &&
		score.Disease >= verifiedSubMin &&
		score.Geography >= verifiedSubMin

	return score, nil
}

// weightedOverall is the documented alignment formula. Geography carries the
// highest weight: the specificity of a firm's historical footprint is the
// strongest behavioral signal.
func weightedOverall(modality, disease, geography int) int {
	return int(math.Round(0.3*float64(modality) + 0.3*float64(disease) + 0.4*float64(geography)))
}

// fallbackScore scans the raw response for sentiment keywords to infer the
// verified flag. When neither keyword set is found the result stays
// unverified.
func fallbackScore(raw string) *ai.PortfolioScore {
	lower := strings.ToLower(raw)

	for _, keyword := range positiveKeywords {
		if strings.Contains(lower, keyword) {
			return &ai.PortfolioScore{Verified: true, Degraded: true, Raw: raw}
		}
	}
	for _, keyword := range negativeKeywords {
		if strings.Contains(lower, keyword) {
			return &ai.PortfolioScore{Verified: false, Degraded: true, Raw: raw}
		}
	}

	// Neither keyword set found: stay unverified.
	return &ai.PortfolioScore{Verified: false, Degraded: true, Raw: raw}
}

func buildScoringPrompt(subject *matching.Subject, candidate *matching.Candidate) string {
	replacer := strings.NewReplacer(
		"{{SUBJECT_MODALITY}}", sanitizeValue(subject.Profile.Modality),
		"{{SUBJECT_DISEASE}}", sanitizeValue(subject.Profile.Disease),
		"{{SUBJECT_STAGE}}", sanitizeValue(subject.Profile.Stage),
		"{{SUBJECT_GEOGRAPHY}}", sanitizeValue(subject.Profile.Geography),
		"{{SUBJECT_AMOUNT}}", sanitizeValue(subject.Profile.Amount),
		"{{CANDIDATE_MODALITY}}", sanitizeValue(candidate.Stated.Modality),
		"{{CANDIDATE_MODALITY_PORTFOLIO}}", sanitizeValue(candidate.PortfolioModality),
		"{{CANDIDATE_DISEASE}}", sanitizeValue(candidate.Stated.Disease),
		"{{CANDIDATE_DISEASE_PORTFOLIO}}", sanitizeValue(candidate.PortfolioDisease),
		"{{CANDIDATE_STAGE}}", sanitizeValue(candidate.Stated.Stage),
		"{{CANDIDATE_GEOGRAPHY}}", sanitizeValue(candidate.Stated.Geography),
		"{{CANDIDATE_GEOGRAPHY_PORTFOLIO}}", sanitizeValue(candidate.PortfolioGeography),
		"{{CANDIDATE_AMOUNT}}", sanitizeValue(candidate.Stated.Amount),
		"{{CANDIDATE_PORTFOLIO_COMPANIES}}", sanitizeValue(candidate.PortfolioCompanies),
	)
	return replacer.Replace(scoringPromptTemplate)
}

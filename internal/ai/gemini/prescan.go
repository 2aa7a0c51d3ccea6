package gemini

import (
	"context"
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

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

//go:embed prescan_prompt.md
var prescanPromptTemplate string

const (
	defaultCallTimeout  = 90 * time.Second
	defaultMaxLogLength = 200
)

// Prescanner is the compatibility-oracle client: one call per
// (subject, candidate) pair returning a per-dimension verdict.
type Prescanner struct {
	generator contentGenerator
	retry     backoff.Policy
	timeout   time.Duration
	maxLogLen int
	logger    *zap.Logger
}

func NewPrescanner(generator contentGenerator, retry backoff.Policy, timeout time.Duration, maxLogLength int, log *zap.Logger) *Prescanner {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Prescanner{
		generator: generator,
		retry:     retry,
		timeout:   timeout,
		maxLogLen: maxLogLength,
		logger:    logger.WithOracleFields(log, Provider, generator.Model()),
	}
}

// Prescan evaluates the pair across the five dimensions. A transient oracle
// failure is returned as an error after retries; a malformed response
// degrades to the conservative all-false verdict with a nil error.
func (p *Prescanner) Prescan(ctx context.Context, subject *matching.Subject, candidate *matching.Candidate) (*ai.PrescanVerdict, error) {
	prompt := buildPrescanPrompt(subject, candidate)

	p.logger.Debug("prescan request",
		zap.String("candidate", candidate.Name),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	raw, err := p.generate(ctx, "prescan", prompt)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("prescan response",
		zap.String("candidate", candidate.Name),
		zap.String("response_preview", logger.TruncateForLog(raw, p.maxLogLen)),
	)

	data, err := parseObject(raw)
	if err != nil {
		p.logger.Warn("prescan response unparseable, assuming no match",
			zap.String("candidate", candidate.Name),
			zap.Error(err),
		)
		return &ai.PrescanVerdict{Degraded: true, Raw: raw}, nil
	}

	verdict := &ai.PrescanVerdict{
		Modality:  coerceBool(data["Drug Modality"]),
		Disease:   coerceBool(data["Disease Focus"]),
		Stage:     coerceBool(data["Investment Stage"]),
		Geography: coerceBool(data["Geography"]),
		Amount:    coerceBool(data["Investment Amount"]),
		Raw:       raw,
	}

	applyBlankDefaults(verdict, candidate)
	verdict.Overall = verdict.Modality && verdict.Disease && verdict.Stage && verdict.Geography && verdict.Amount

	return verdict, nil
}

func (p *Prescanner) generate(ctx context.Context, operation, prompt string) (string, error) {
	var raw string
	err := p.retry.Do(ctx, p.logger, operation, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		var err error
		raw, err = p.generator.GenerateContent(callCtx, prompt)
		return err
	})
	return raw, err
}

// applyBlankDefaults enforces the blank-is-true contract regardless of what
// the oracle answered: an empty stated value never fails its dimension.
func applyBlankDefaults(verdict *ai.PrescanVerdict, c *matching.Candidate) {
	if c.Stated.Modality == "" {
		verdict.Modality = true
	}
	if c.Stated.Disease == "" {
		verdict.Disease = true
	}
	if c.Stated.Stage == "" {
		verdict.Stage = true
	}
	if c.Stated.Geography == "" {
		verdict.Geography = true
	}
	if c.Stated.Amount == "" {
		verdict.Amount = true
	}
}

func buildPrescanPrompt(subject *matching.Subject, candidate *matching.Candidate) string {
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
	)
	return replacer.Replace(prescanPromptTemplate)
}

package engine

import (
	"context"
	"fmt"

	"github.com/biolinkhq/vcmatch/internal/ai"
	"github.com/biolinkhq/vcmatch/internal/matching"

	"go.uber.org/zap"
)

// Outcome is the terminal state of one candidate's pipeline.
type Outcome int

const (
	// OutcomeFilteredOut: failed a deterministic eligibility rule, no
	// oracle call was made and no record exists.
	OutcomeFilteredOut Outcome = iota
	// OutcomePrescanFailed: the compatibility oracle said no, no record.
	OutcomePrescanFailed
	// OutcomeScored: full pipeline, record with verdict and score.
	OutcomeScored
	// OutcomeScoreFailed: prescan passed but scoring failed, record with
	// verdict only.
	OutcomeScoreFailed
	// OutcomeFailed: an oracle or persistence error before any record
	// existed for this candidate.
	OutcomeFailed
)

type workerResult struct {
	outcome   Outcome
	candidate string
	verified  bool
}

// runWorker drives one candidate through filter, prescan, scoring and
// persistence. Every error is absorbed here so a failing candidate never
// disturbs its siblings.
func (e *Engine) runWorker(ctx context.Context, subject *matching.Subject, candidate *matching.Candidate, snk *sink) (result workerResult) {
	result = workerResult{candidate: candidate.Name}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("worker panic",
				zap.String("candidate", candidate.Name),
				zap.Any("panic", r),
			)
			result.outcome = OutcomeFailed
		}
	}()

	eligible, reason := matching.IsEligible(subject, candidate)
	if !eligible {
		e.logger.Debug("candidate filtered out",
			zap.String("candidate", candidate.Name),
			zap.String("reason", reason),
		)
		result.outcome = OutcomeFilteredOut
		return result
	}

	verdict, err := e.prescanner.Prescan(ctx, subject, candidate)
	if err != nil {
		e.logger.Warn("prescan failed",
			zap.String("candidate", candidate.Name),
			zap.Error(err),
		)
		result.outcome = OutcomeFailed
		return result
	}

	if !verdict.Overall {
		e.logger.Debug("prescan rejected candidate", zap.String("candidate", candidate.Name))
		result.outcome = OutcomePrescanFailed
		return result
	}

	match := &matching.MatchRecord{
		SubjectID:     subject.ID,
		SubjectName:   subject.Name,
		CandidateID:   candidate.ID,
		CandidateName: candidate.Name,
		Verdict: matching.DimensionVerdict{
			Modality:  verdict.Modality,
			Disease:   verdict.Disease,
			Stage:     verdict.Stage,
			Geography: verdict.Geography,
			Amount:    verdict.Amount,
		},
		Overall: verdict.Overall,
	}

	if !snk.admit(candidate.ID) {
		e.logger.Error("duplicate match suppressed",
			zap.String("candidate", candidate.Name),
		)
		result.outcome = OutcomeFailed
		return result
	}

	recordID, err := snk.create(ctx, match)
	if err != nil {
		e.logger.Warn("creating match record failed",
			zap.String("candidate", candidate.Name),
			zap.Error(err),
		)
		result.outcome = OutcomeFailed
		return result
	}

	e.logger.Info("prescan passed", zap.String("candidate", candidate.Name))

	score, err := e.scoreCandidate(ctx, subject, candidate)
	if err != nil {
		e.logger.Warn("portfolio scoring failed, keeping verdict-only record",
			zap.String("candidate", candidate.Name),
			zap.Error(err),
		)
		if err := snk.complete(ctx, recordID, match); err != nil {
			e.logger.Warn("completing verdict-only record failed",
				zap.String("candidate", candidate.Name),
				zap.Error(err),
			)
		}
		result.outcome = OutcomeScoreFailed
		return result
	}

	if score != nil {
		match.Score = &matching.PortfolioScore{
			Modality:   score.Modality,
			Disease:    score.Disease,
			Geography:  score.Geography,
			Overall:    score.Overall,
			Verified:   score.Verified,
			Assessment: score.Assessment,
			Degraded:   score.Degraded,
		}
		result.verified = score.Verified
	}

	if err := snk.complete(ctx, recordID, match); err != nil {
		e.logger.Warn("persisting score failed, keeping verdict-only record",
			zap.String("candidate", candidate.Name),
			zap.Error(err),
		)
		result.outcome = OutcomeScoreFailed
		result.verified = false
		return result
	}

	if match.Score == nil {
		result.outcome = OutcomeScoreFailed
		return result
	}

	e.logger.Info("portfolio verification completed",
		zap.String("candidate", candidate.Name),
		zap.Bool("verified", match.Score.Verified),
	)
	result.outcome = OutcomeScored
	return result
}

// scoreCandidate runs the scoring oracle. A candidate without a store id
// cannot receive a score update, so scoring is skipped for it.
func (e *Engine) scoreCandidate(ctx context.Context, subject *matching.Subject, candidate *matching.Candidate) (*ai.PortfolioScore, error) {
	if candidate.ID == "" {
		return nil, nil
	}

	score, err := e.scorer.Score(ctx, subject, candidate)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", candidate.Name, err)
	}

	return score, nil
}

package ai

import (
	"context"

	"github.com/biolinkhq/vcmatch/internal/matching"
)

// PrescanVerdict is the compatibility oracle's structured answer: one boolean
// per dimension plus the overall verdict, which is true iff all five are.
type PrescanVerdict struct {
	Modality  bool
	Disease   bool
	Stage     bool
	Geography bool
	Amount    bool
	Overall   bool
	// Degraded marks a verdict produced by the conservative fallback after
	// the oracle's response could not be parsed.
	Degraded bool
	Raw      string
}

// PortfolioScore is the scoring oracle's answer: per-dimension alignment
// scores and a weighted overall, each in [0,100].
type PortfolioScore struct {
	Modality   int
	Disease    int
	Geography  int
	Overall    int
	Verified   bool
	Assessment string
	// Degraded marks a score inferred by the keyword heuristic after the
	// structured response could not be parsed.
	Degraded bool
	Raw      string
}

// Prescanner evaluates subject/candidate compatibility across the five
// dimensions.
type Prescanner interface {
	Prescan(ctx context.Context, subject *matching.Subject, candidate *matching.Candidate) (*PrescanVerdict, error)
}

// PortfolioScorer produces the portfolio-alignment score for a candidate
// that passed prescan.
type PortfolioScorer interface {
	Score(ctx context.Context, subject *matching.Subject, candidate *matching.Candidate) (*PortfolioScore, error)
}

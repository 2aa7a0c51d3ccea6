package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/biolinkhq/vcmatch/internal/ai"
	"github.com/biolinkhq/vcmatch/internal/matching"

	"go.uber.org/zap"
)

const (
	// DefaultPoolSize bounds concurrent workers; sized to the external
	// call capacity of the oracle service.
	DefaultPoolSize = 25

	progressEvery = 10
)

// Config tunes one Engine.
type Config struct {
	// PoolSize is the number of concurrent workers; DefaultPoolSize when
	// zero or negative.
	PoolSize int
	// BufferedWrites collects match records and writes them in batches
	// when the pool drains, instead of per worker.
	BufferedWrites bool
}

// BatchResult aggregates one subject's pass.
type BatchResult struct {
	Total         int
	FilteredOut   int
	PrescanFailed int
	Created       int
	Verified      int
	ScoreFailed   int
	Failed        int
	Elapsed       time.Duration
}

// Engine fans candidates out over a bounded worker pool and aggregates the
// per-candidate outcomes.
type Engine struct {
	store      matchStore
	prescanner ai.Prescanner
	scorer     ai.PortfolioScorer
	config     Config
	logger     *zap.Logger
}

func New(store matchStore, prescanner ai.Prescanner, scorer ai.PortfolioScorer, config Config, logger *zap.Logger) *Engine {
	if config.PoolSize <= 0 {
		config.PoolSize = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		store:      store,
		prescanner: prescanner,
		scorer:     scorer,
		config:     config,
		logger:     logger,
	}
}

// RunForSubject processes the full candidate population for one subject and
// performs the subject's terminal state transition when the pool drains.
// pinned marks a single-subject invocation, whose trigger flag is managed by
// the caller rather than re-cleared here.
func (e *Engine) RunForSubject(ctx context.Context, subject *matching.Subject, candidates []*matching.Candidate, pinned bool) (*BatchResult, error) {
	start := time.Now()
	snk := newSink(e.store, e.config.BufferedWrites, e.logger)

	e.logger.Info("starting matching pass",
		zap.String("subject", subject.Name),
		zap.Int("candidates", len(candidates)),
		zap.Int("workers", e.config.PoolSize),
		zap.Bool("buffered_writes", e.config.BufferedWrites),
	)

	results := make(chan workerResult, len(candidates))
	sem := make(chan struct{}, e.config.PoolSize)

	var wg sync.WaitGroup
	for _, candidate := range candidates {
		wg.Add(1)
		go func(c *matching.Candidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- e.runWorker(ctx, subject, c, snk)
		}(candidate)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &BatchResult{Total: len(candidates)}
	completed := 0
	for wr := range results {
		completed++
		switch wr.outcome {
		case OutcomeFilteredOut:
			result.FilteredOut++
		case OutcomePrescanFailed:
			result.PrescanFailed++
		case OutcomeScored:
			if wr.verified {
				result.Verified++
			}
		case OutcomeScoreFailed:
			result.ScoreFailed++
		case OutcomeFailed:
			result.Failed++
		}

		if completed%progressEvery == 0 || completed == len(candidates) {
			e.logProgress(completed, len(candidates), start)
		}
	}

	if err := snk.flush(ctx); err != nil {
		e.logger.Warn("flushing buffered match records failed", zap.Error(err))
	}

	result.Created = snk.createdCount()
	result.Elapsed = time.Since(start)

	e.logger.Info("matching pass finished",
		zap.String("subject", subject.Name),
		zap.Int("created", result.Created),
		zap.Int("verified", result.Verified),
		zap.Int("filtered_out", result.FilteredOut),
		zap.Int("prescan_failed", result.PrescanFailed),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.Elapsed),
	)

	if err := snk.finalize(ctx, subject.ID, !pinned); err != nil {
		return result, err
	}

	return result, nil
}

func (e *Engine) logProgress(completed, total int, start time.Time) {
	rate, eta := progressStats(completed, total, time.Since(start))

	e.logger.Info("progress",
		zap.Int("completed", completed),
		zap.Int("total", total),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("eta", eta),
	)
}

// progressStats derives the processing rate and remaining time. The estimate
// is rounded up to whole seconds so it never reads zero while work is still
// outstanding.
func progressStats(completed, total int, elapsed time.Duration) (float64, time.Duration) {
	rate := 0.0
	if seconds := elapsed.Seconds(); seconds > 0 {
		rate = float64(completed) / seconds
	}

	eta := time.Duration(0)
	if rate > 0 && total > completed {
		eta = time.Duration(math.Ceil(float64(total-completed)/rate)) * time.Second
	}

	return rate, eta
}

package backoff

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

// Policy holds the retry knobs applied to transient external-call failures.
type Policy struct {
	Attempts  uint
	Delay     time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
}

// Default returns the policy used for oracle and store calls: a small fixed
// number of attempts with exponential backoff and jitter.
func Default() Policy {
	return Policy{
		Attempts:  3,
		Delay:     500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		MaxJitter: 100 * time.Millisecond,
	}
}

// Do executes fn under the policy. The last error is returned once attempts
// are exhausted. Errors wrapped with retry.Unrecoverable stop immediately.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, operation string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.MaxJitter(p.MaxJitter),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("retrying after transient failure",
				zap.String("operation", operation),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
		retry.LastErrorOnly(true),
	)
}

// Unrecoverable marks err as terminal so Do stops retrying.
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}

package tools

import (
	"context"
	"time"

	"github.com/anstrom/hostenum/internal/errors"
	"github.com/anstrom/hostenum/internal/logging"
)

// RetryRunner retries retryable failures with exponential backoff.
type RetryRunner struct {
	Next              Runner
	MaxRetries        int
	Delay             time.Duration
	BackoffMultiplier float64
	Logger            *logging.Logger
}

// Run runs cmd through Next, retrying while the error is retryable. The
// last attempt's output is returned.
func (r *RetryRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	delay := r.Delay
	var (
		out Output
		err error
	)
	for attempt := 0; ; attempt++ {
		out, err = r.Next.Run(ctx, cmd)
		if err == nil || attempt >= r.MaxRetries || !errors.IsRetryable(err) {
			return out, err
		}

		if r.Logger != nil {
			r.Logger.Debug("Retrying tool",
				"tool", cmd.Tool,
				"target", cmd.Target,
				"attempt", attempt+1,
				"max_retries", r.MaxRetries,
				"error", err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return out, err
		}
		if r.BackoffMultiplier > 1 {
			delay = time.Duration(float64(delay) * r.BackoffMultiplier)
		}
	}
}

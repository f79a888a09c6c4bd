package tools

import (
	"context"

	"github.com/anstrom/hostenum/internal/errors"
	"github.com/anstrom/hostenum/internal/logging"
	"github.com/anstrom/hostenum/internal/metrics"
)

// InstrumentedRunner logs every invocation and records it in Prometheus.
type InstrumentedRunner struct {
	Next    Runner
	Metrics *metrics.PrometheusMetrics
	Logger  *logging.Logger
}

// Run implements Runner.
func (r *InstrumentedRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Debug("Running tool", "tool", cmd.Tool, "target", cmd.Target, "command", cmd.String())

	out, err := r.Next.Run(ctx, cmd)
	status := statusOf(err)

	if r.Metrics != nil {
		r.Metrics.RecordToolInvocation(cmd.Tool, status, out.Duration)
	}

	switch status {
	case metrics.StatusSuccess:
		logger.InfoTool("Tool finished", cmd.Tool, cmd.Target,
			"duration", out.Duration, "bytes", len(out.Text))
	case metrics.StatusUnavailable:
		logger.Warn("Tool not available", "tool", cmd.Tool, "binary", cmd.Binary)
	default:
		logger.ErrorTool("Tool failed", cmd.Tool, cmd.Target, err,
			"duration", out.Duration, "exit_code", out.ExitCode, "timed_out", out.TimedOut)
	}
	return out, err
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.IsCode(err, errors.CodeToolUnavailable):
		return metrics.StatusUnavailable
	case errors.IsCode(err, errors.CodeTimeout):
		return metrics.StatusTimeout
	default:
		return metrics.StatusError
	}
}

package tools

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/anstrom/hostenum/internal/errors"
)

const (
	// waitDelay bounds how long Run waits for I/O after the process is killed.
	waitDelay = 2 * time.Second
	// timedOutExitCode marks output cut short by a timeout.
	timedOutExitCode = -1
)

// ExecRunner runs commands as local processes.
type ExecRunner struct {
	// LookPath resolves binaries; defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{LookPath: exec.LookPath}
}

// Run executes cmd. Output collected before a failure or timeout is
// returned alongside the error.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	if cmd.Probe != nil {
		return r.runProbe(ctx, cmd)
	}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(cmd.Binary)
	if err != nil {
		return Output{}, errors.ErrToolUnavailable(cmd.Tool, err)
	}

	var buf bytes.Buffer
	proc := exec.CommandContext(ctx, path, cmd.Args...)
	proc.Stdout = &buf
	proc.Stderr = &buf
	proc.WaitDelay = waitDelay

	start := time.Now()
	runErr := proc.Run()
	out := Output{
		Text:     buf.String(),
		Duration: time.Since(start),
	}
	if proc.ProcessState != nil {
		out.ExitCode = proc.ProcessState.ExitCode()
	}

	return out, classify(ctx, cmd, &out, runErr)
}

func (r *ExecRunner) runProbe(ctx context.Context, cmd Command) (Output, error) {
	start := time.Now()
	text, err := cmd.Probe(ctx)
	out := Output{Text: text, Duration: time.Since(start)}
	if err != nil {
		out.ExitCode = 1
	}
	return out, classify(ctx, cmd, &out, err)
}

// classify maps a run error onto the tool error codes.
func classify(ctx context.Context, cmd Command, out *Output, err error) error {
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		out.TimedOut = true
		out.ExitCode = timedOutExitCode
		return errors.ErrToolTimeout(cmd.Tool, cmd.Target).WithContext("timeout", cmd.Timeout.String())
	case stderrors.Is(ctx.Err(), context.Canceled):
		e := errors.WrapToolError(errors.CodeCanceled, cmd.Tool, "canceled", ctx.Err())
		e.Target = cmd.Target
		return e
	case err == nil:
		return nil
	}

	var exitErr *exec.ExitError
	msg := err.Error()
	if stderrors.As(err, &exitErr) {
		msg = fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}
	e := errors.WrapToolError(errors.CodeToolFailed, cmd.Tool, msg, err).
		WithContext("exit_code", out.ExitCode)
	e.Target = cmd.Target
	e.Command = cmd.String()
	return e
}

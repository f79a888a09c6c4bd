// Package tools runs the external enumeration programs (nmap, enum4linux,
// smbclient, nmblookup, nbtscan, ldapsearch) and in-process probes, and
// returns their raw output for evidence capture.
package tools

import (
	"context"
	"strings"
	"time"

	"github.com/anstrom/hostenum/internal/model"
)

// ProbeFunc is an in-process probe that renders its findings as text.
type ProbeFunc func(ctx context.Context) (string, error)

// Command describes one tool invocation against one target.
type Command struct {
	// Tool is the logical tool name used for metrics and logging.
	Tool string
	// Binary is the executable name or path.
	Binary string
	Args   []string
	Target string
	// Timeout bounds the invocation; zero means no limit beyond ctx.
	Timeout time.Duration
	Source  model.Source
	// Probe, when set, runs instead of an external process.
	Probe ProbeFunc
}

// String renders the literal command line recorded as evidence.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Binary))
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return "''"
	}
	if strings.ContainsAny(a, " \t'\"") {
		return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return a
}

// Output is what a tool produced.
type Output struct {
	// Text is combined stdout and stderr.
	Text     string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Runner executes commands.
//
//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks . Runner
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

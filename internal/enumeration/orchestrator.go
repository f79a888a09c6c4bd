// Package enumeration drives per-host enumeration: it runs the planned
// stages through a tools.Runner, turns each result into evidence, parses it
// and folds the facts into the host record.
package enumeration

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/anstrom/hostenum/internal/errors"
	"github.com/anstrom/hostenum/internal/logging"
	"github.com/anstrom/hostenum/internal/metrics"
	"github.com/anstrom/hostenum/internal/model"
	"github.com/anstrom/hostenum/internal/parsing"
	"github.com/anstrom/hostenum/internal/scanning"
	"github.com/anstrom/hostenum/internal/tools"
)

// Orchestrator enumerates hosts one stage at a time.
type Orchestrator struct {
	planner     *scanning.Planner
	runner      tools.Runner
	engine      *parsing.Engine
	logger      *logging.Logger
	metrics     *metrics.PrometheusMetrics
	concurrency int
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics records record and pool metrics in pm.
func WithMetrics(pm *metrics.PrometheusMetrics) Option {
	return func(o *Orchestrator) { o.metrics = pm }
}

// WithConcurrency sets how many hosts Run enumerates at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithClock sets the evidence timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(planner *scanning.Planner, runner tools.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:     planner,
		runner:      runner,
		engine:      parsing.Default(),
		logger:      logging.Default(),
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.metrics != nil {
		o.metrics.InitFactLabels(factKindLabels(), confidenceLabels())
	}
	o.logger = o.logger.WithComponent("enumeration")
	return o
}

func factKindLabels() []string {
	labels := make([]string, len(model.AllKinds))
	for i, k := range model.AllKinds {
		labels[i] = string(k)
	}
	return labels
}

func confidenceLabels() []string {
	labels := make([]string, len(model.AllConfidences))
	for i, c := range model.AllConfidences {
		labels[i] = string(c)
	}
	return labels
}

// hostRun is the state of one EnumerateHost call.
type hostRun struct {
	rec     *model.HostRecord
	ctx     parsing.HostContext
	logger  *logging.Logger
	trigger string
}

// EnumerateHost runs every applicable stage against addr and returns the
// finalized record. It never fails: missing tools, tool errors and
// cancellation leave gaps that Finalize explains.
func (o *Orchestrator) EnumerateHost(ctx context.Context, addr netip.Addr) *model.HostRecord {
	ip := addr.String()
	h := &hostRun{
		rec:    model.NewHostRecord(addr),
		ctx:    parsing.HostContext{Address: addr},
		logger: o.logger.WithTarget(ip),
	}
	start := time.Now()
	h.logger.Info("Starting host enumeration", "profile", o.planner.Profile().Name)

	stages := []func() (scanning.Step, bool){
		func() (scanning.Step, bool) { return o.planner.General(ip), true },
		func() (scanning.Step, bool) { return o.planner.OSDetection(ip) },
		func() (scanning.Step, bool) { return o.planner.UDP(ip) },
	}
	for _, next := range stages {
		if ctx.Err() != nil {
			break
		}
		if step, ok := next(); ok {
			o.runStep(ctx, h, step)
		}
	}

	if ctx.Err() == nil && h.trigger != "" && o.planner.WindowsEnabled() {
		h.logger.Info("Running Windows enumeration", "reason", h.trigger)
		for _, step := range o.planner.WindowsSteps(ip, h.rec) {
			if ctx.Err() != nil {
				break
			}
			o.runStep(ctx, h, step)
		}
	}

	if ctx.Err() == nil {
		if step, ok := o.planner.SNMP(ip, h.rec); ok {
			o.runStep(ctx, h, step)
		}
	}

	if err := ctx.Err(); err != nil {
		h.logger.Warn("Enumeration interrupted, finalizing partial record", "error", err)
	}
	o.finalize(h)

	family, conf := h.rec.OSFamily()
	h.logger.Info("Host enumeration complete",
		"os_family", family,
		"os_confidence", conf,
		"services", len(h.rec.Services()),
		"evidence", len(h.rec.Evidence()),
		"duration", time.Since(start))
	return h.rec
}

// runStep tries the step's alternatives until one is accepted.
func (o *Orchestrator) runStep(ctx context.Context, h *hostRun, step scanning.Step) {
	for i, cmd := range step.Commands {
		out, err := o.runner.Run(ctx, cmd)
		o.record(h, cmd, out, err)

		if step.Accepts(out, err) {
			return
		}
		if errors.IsCode(err, errors.CodeCanceled) || ctx.Err() != nil {
			return
		}
		if i+1 < len(step.Commands) {
			h.logger.Debug("Trying fallback", "stage", step.Name,
				"failed", cmd.Tool, "fallback", step.Commands[i+1].Tool)
		}
	}
}

// record turns one tool result into evidence and applies its facts. A tool
// that is not installed leaves no evidence.
func (o *Orchestrator) record(h *hostRun, cmd tools.Command, out tools.Output, err error) {
	if errors.IsCode(err, errors.CodeToolUnavailable) {
		return
	}
	text := out.Text
	if text == "" && err != nil {
		if errors.IsCode(err, errors.CodeCanceled) {
			return
		}
		text = fmt.Sprintf("[%s]", err)
	}
	if text == "" {
		return
	}

	ev := model.NewEvidence(cmd.Source, cmd.String(), text, o.now())
	o.ingest(h, ev)
}

// ingest adds ev to the record and applies its facts one at a time, checking
// the Windows trigger after each.
func (o *Orchestrator) ingest(h *hostRun, ev model.Evidence) {
	if !model.AddEvidence(h.rec, ev) {
		return
	}
	if o.metrics != nil {
		o.metrics.IncrementEvidence(string(ev.Source))
	}

	for _, f := range o.engine.Parse(ev, h.ctx) {
		if !model.Apply(h.rec, f) {
			continue
		}
		if o.metrics != nil {
			o.metrics.IncrementFacts(string(f.Kind), string(f.Confidence))
		}
		if h.trigger == "" {
			if reason := model.WindowsTriggerReason(h.rec); reason != "" {
				h.trigger = reason
				h.logger.Debug("Windows enumeration triggered", "reason", reason, "source", ev.Source)
				if o.metrics != nil {
					o.metrics.IncrementWindowsTriggers()
				}
			}
		}
	}
}

func (o *Orchestrator) finalize(h *hostRun) {
	model.Finalize(h.rec)
	if o.metrics != nil {
		family, _ := h.rec.OSFamily()
		o.metrics.IncrementHosts(string(family))
	}
}

// Import builds a finalized record for addr from saved evidence, in order.
func (o *Orchestrator) Import(addr netip.Addr, evidence []model.Evidence) *model.HostRecord {
	h := &hostRun{
		rec:    model.NewHostRecord(addr),
		ctx:    parsing.HostContext{Address: addr},
		logger: o.logger.WithTarget(addr.String()),
	}
	for _, ev := range evidence {
		o.ingest(h, ev)
	}
	o.finalize(h)
	return h.rec
}

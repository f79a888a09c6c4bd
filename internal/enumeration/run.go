package enumeration

import (
	"context"
	"net/netip"
	"time"

	"github.com/anstrom/hostenum/internal/model"
	"github.com/anstrom/hostenum/internal/workers"
)

const jobTypeEnumerateHost = "enumerate_host"

// Summary describes a finished run.
type Summary struct {
	Targets  int
	Records  int
	Windows  int
	Failed   []string
	Duration time.Duration
}

// Run enumerates addrs on a worker pool and returns one record per address.
// Hosts whose job never ran, for example after cancellation, get an empty
// finalized record.
func (o *Orchestrator) Run(ctx context.Context, addrs []netip.Addr) (*model.ResultSet, Summary) {
	start := time.Now()
	results := model.NewResultSet()
	summary := Summary{Targets: len(addrs)}

	cfg := workers.DefaultConfig()
	cfg.Size = o.concurrency
	cfg.QueueSize = len(addrs)
	cfg.ShutdownTimeout = 0

	pool := workers.NewWithContext(ctx, cfg)
	if o.metrics != nil {
		pool.WithMetrics(o.metrics)
	}
	pool.Start()

	o.logger.Info("Starting enumeration run", "targets", len(addrs), "concurrency", o.concurrency)

	for _, addr := range addrs {
		addr := addr
		job := workers.NewFuncJob(addr.String(), jobTypeEnumerateHost, func(jobCtx context.Context) error {
			results.Add(o.EnumerateHost(jobCtx, addr))
			return nil
		})
		if err := pool.Submit(job); err != nil {
			o.logger.ErrorHost("Failed to schedule host", addr.String(), err)
		}
	}

	pool.Wait()
	if err := pool.Shutdown(); err != nil {
		o.logger.Warn("Worker pool shutdown", "error", err)
	}

	for _, addr := range addrs {
		if _, ok := results.Get(addr); ok {
			continue
		}
		summary.Failed = append(summary.Failed, addr.String())
		h := &hostRun{rec: model.NewHostRecord(addr)}
		o.finalize(h)
		results.Add(h.rec)
	}

	for _, rec := range results.Records() {
		if model.NeedsWindowsEnumeration(rec) {
			summary.Windows++
		}
	}
	summary.Records = results.Len()
	summary.Duration = time.Since(start)

	o.logger.Info("Enumeration run complete",
		"targets", summary.Targets,
		"records", summary.Records,
		"windows_hosts", summary.Windows,
		"not_enumerated", len(summary.Failed),
		"duration", summary.Duration)
	return results, summary
}

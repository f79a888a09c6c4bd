// Package metrics provides Prometheus-based metrics collection for hostenum.
// Collectors cover external tool invocations, extracted facts, finished host
// records and the worker pool, plus Go runtime and process collectors.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all hostenum metrics
	namespace = "hostenum"

	// Subsystems
	subsystemTool   = "tool"
	subsystemRecord = "record"
	subsystemPool   = "pool"
	subsystemSystem = "system"
)

// Tool invocation statuses.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusUnavailable = "unavailable"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Tool metrics
	toolInvocations *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec

	// Record metrics
	factsTotal      *prometheus.CounterVec
	hostsTotal      *prometheus.CounterVec
	evidenceTotal   *prometheus.CounterVec
	windowsTriggers prometheus.Counter

	// Pool metrics
	poolJobs      *prometheus.CounterVec
	activeWorkers prometheus.Gauge

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initToolMetrics()
	pm.initRecordMetrics()
	pm.initPoolMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initToolMetrics() {
	pm.toolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTool,
			Name:      "invocations_total",
			Help:      "Total number of external tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	pm.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemTool,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of external tool invocations in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
		[]string{"tool"},
	)
}

func (pm *PrometheusMetrics) initRecordMetrics() {
	pm.factsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRecord,
			Name:      "facts_total",
			Help:      "Total number of facts applied to host records by kind and confidence",
		},
		[]string{"kind", "confidence"},
	)

	pm.hostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRecord,
			Name:      "hosts_total",
			Help:      "Total number of finalized host records by OS family",
		},
		[]string{"os_family"},
	)

	pm.evidenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRecord,
			Name:      "evidence_total",
			Help:      "Total number of evidence items captured by source",
		},
		[]string{"source"},
	)

	pm.windowsTriggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRecord,
			Name:      "windows_triggers_total",
			Help:      "Number of hosts that entered Windows enumeration",
		},
	)
}

func (pm *PrometheusMetrics) initPoolMetrics() {
	pm.poolJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPool,
			Name:      "jobs_total",
			Help:      "Total number of worker pool jobs by final status",
		},
		[]string{"status"},
	)

	pm.activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemPool,
			Name:      "active_workers",
			Help:      "Number of workers currently executing a job",
		},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_usage_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(pm.toolInvocations)
	pm.registry.MustRegister(pm.toolDuration)

	pm.registry.MustRegister(pm.factsTotal)
	pm.registry.MustRegister(pm.hostsTotal)
	pm.registry.MustRegister(pm.evidenceTotal)
	pm.registry.MustRegister(pm.windowsTriggers)

	pm.registry.MustRegister(pm.poolJobs)
	pm.registry.MustRegister(pm.activeWorkers)

	pm.registry.MustRegister(pm.memoryUsage)
	pm.registry.MustRegister(pm.goroutines)
	pm.registry.MustRegister(pm.uptime)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Tool Metrics Methods

// RecordToolInvocation counts one tool run and observes its duration.
func (pm *PrometheusMetrics) RecordToolInvocation(tool, status string, duration time.Duration) {
	pm.toolInvocations.WithLabelValues(tool, status).Inc()
	if status != StatusUnavailable {
		pm.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	}
}

// Record Metrics Methods

// IncrementFacts counts an applied fact
func (pm *PrometheusMetrics) IncrementFacts(kind, confidence string) {
	pm.factsTotal.WithLabelValues(kind, confidence).Inc()
}

// InitFactLabels creates the facts_total series for every kind and
// confidence pair so they are exported at zero before the first fact.
func (pm *PrometheusMetrics) InitFactLabels(kinds, confidences []string) {
	for _, kind := range kinds {
		for _, confidence := range confidences {
			pm.factsTotal.WithLabelValues(kind, confidence)
		}
	}
}

// IncrementHosts counts a finalized host record
func (pm *PrometheusMetrics) IncrementHosts(osFamily string) {
	pm.hostsTotal.WithLabelValues(osFamily).Inc()
}

// IncrementEvidence counts a captured evidence item
func (pm *PrometheusMetrics) IncrementEvidence(source string) {
	pm.evidenceTotal.WithLabelValues(source).Inc()
}

// IncrementWindowsTriggers counts a host entering Windows enumeration
func (pm *PrometheusMetrics) IncrementWindowsTriggers() {
	pm.windowsTriggers.Inc()
}

// Pool Metrics Methods

// IncrementPoolJobs counts a finished pool job
func (pm *PrometheusMetrics) IncrementPoolJobs(status string) {
	pm.poolJobs.WithLabelValues(status).Inc()
}

// AddActiveWorkers adjusts the busy worker gauge by delta
func (pm *PrometheusMetrics) AddActiveWorkers(delta int) {
	pm.activeWorkers.Add(float64(delta))
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates starts a loop that periodically updates system metrics
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}

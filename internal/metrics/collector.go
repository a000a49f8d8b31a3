// Package metrics provides Prometheus metrics for go-proc-warden.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	wardenInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_warden_info",
			Help: "Information about the supervisor (value always 1)",
		},
		[]string{"version", "strategy", "shell"},
	)

	wardenActiveExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proc_warden_active_executions",
			Help: "Commands currently running under supervision",
		},
	)

	wardenExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_warden_executions_total",
			Help: "Completed executions by terminal cause and strategy",
		},
		[]string{"cause", "strategy"},
	)

	wardenExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proc_warden_execution_duration_seconds",
			Help:    "Wall-clock duration of supervised executions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
	)

	wardenOutputBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_warden_output_bytes_total",
			Help: "Bytes captured from supervised commands by stream",
		},
		[]string{"stream"},
	)

	wardenKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proc_warden_kills_total",
			Help: "Supervised processes forcibly killed",
		},
	)

	wardenTracerStallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proc_warden_tracer_stalls_total",
			Help: "Syscall tracer waits that hit the per-wait timeout",
		},
	)
)

// Collector manages all Prometheus metrics for the supervisor.
type Collector struct {
	gatherer prometheus.Gatherer

	// For summary generation
	mu          sync.Mutex
	startTime   time.Time
	causeCounts map[string]int64
	totalKills  int64
	totalStalls int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version  string
	Strategy string
	Shell    string
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime:   time.Now(),
		causeCounts: make(map[string]int64),
	}

	if g, ok := registry.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.DefaultGatherer
	}

	registry.MustRegister(
		wardenInfo,
		wardenActiveExecutions,
		wardenExecutionsTotal,
		wardenExecutionDurationSeconds,
		wardenOutputBytesTotal,
		wardenKillsTotal,
		wardenTracerStallsTotal,
	)

	wardenInfo.WithLabelValues(cfg.Version, cfg.Strategy, cfg.Shell).Set(1)

	return c
}

// ExecutionStarted records an execution entering supervision.
func (c *Collector) ExecutionStarted() {
	wardenActiveExecutions.Inc()
}

// ExecutionFinished records a completed execution.
func (c *Collector) ExecutionFinished(cause, strategy string, duration time.Duration) {
	wardenActiveExecutions.Dec()
	wardenExecutionsTotal.WithLabelValues(cause, strategy).Inc()
	wardenExecutionDurationSeconds.Observe(duration.Seconds())

	c.mu.Lock()
	c.causeCounts[cause]++
	c.mu.Unlock()
}

// RecordOutputBytes records captured output volume.
func (c *Collector) RecordOutputBytes(stream string, n int) {
	wardenOutputBytesTotal.WithLabelValues(stream).Add(float64(n))
}

// RecordKill records a forced kill of a supervised process.
func (c *Collector) RecordKill() {
	wardenKillsTotal.Inc()

	c.mu.Lock()
	c.totalKills++
	c.mu.Unlock()
}

// RecordStalls records syscall tracer per-wait timeouts.
func (c *Collector) RecordStalls(n int) {
	if n <= 0 {
		return
	}
	wardenTracerStallsTotal.Add(float64(n))

	c.mu.Lock()
	c.totalStalls += int64(n)
	c.mu.Unlock()
}

// Summary holds the data for generating an exit summary.
type Summary struct {
	Uptime      time.Duration
	CauseCounts map[string]int64
	TotalKills  int64
	TotalStalls int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Uptime:      time.Since(c.startTime),
		CauseCounts: make(map[string]int64, len(c.causeCounts)),
		TotalKills:  c.totalKills,
		TotalStalls: c.totalStalls,
	}
	for cause, count := range c.causeCounts {
		s.CauseCounts[cause] = count
	}
	return s
}

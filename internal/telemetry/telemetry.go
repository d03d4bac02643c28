package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewLogger builds a production zap logger named for one component.
func NewLogger(name string) *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger.Named(name)
}

// Metrics holds the service's prometheus collectors. A nil *Metrics is
// valid and records nothing, so tests can run without a registry.
type Metrics struct {
	DiscoveryRuns  prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	JobsSubmitted  prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	EntriesUpserts prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DiscoveryRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpwizard_discovery_runs_total",
			Help: "Number of aggregated discovery runs.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpwizard_discovery_cache_hits_total",
			Help: "Discovery calls answered from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpwizard_discovery_cache_misses_total",
			Help: "Discovery calls that reached the providers.",
		}),
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpwizard_discovery_jobs_submitted_total",
			Help: "Discovery jobs submitted.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpwizard_discovery_jobs_completed_total",
			Help: "Discovery jobs that reached completed.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpwizard_discovery_jobs_failed_total",
			Help: "Discovery jobs that reached failed.",
		}),
		EntriesUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpwizard_catalog_upserts_total",
			Help: "Catalog entries persisted after discovery.",
		}),
	}

	reg.MustRegister(
		m.DiscoveryRuns,
		m.CacheHits,
		m.CacheMisses,
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.EntriesUpserts,
	)
	return m
}

func (m *Metrics) IncDiscoveryRuns() {
	if m != nil {
		m.DiscoveryRuns.Inc()
	}
}

func (m *Metrics) IncCacheHits() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) IncCacheMisses() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) IncJobsSubmitted() {
	if m != nil {
		m.JobsSubmitted.Inc()
	}
}

func (m *Metrics) IncJobsCompleted() {
	if m != nil {
		m.JobsCompleted.Inc()
	}
}

func (m *Metrics) IncJobsFailed() {
	if m != nil {
		m.JobsFailed.Inc()
	}
}

func (m *Metrics) IncEntriesUpserts() {
	if m != nil {
		m.EntriesUpserts.Inc()
	}
}

package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	DiscoveredCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "bounties_discovered_total", Help: "Bounties returned by collectors"})
	AdmittedCounter    = prometheus.NewCounter(prometheus.CounterOpts{Name: "bounties_admitted_total", Help: "Bounties newly admitted to the queue"})
	DuplicateCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "bounties_duplicates_total", Help: "Pushes rejected as duplicates"})
	StageSuccess       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_stage_success_total", Help: "Stage executions that succeeded"}, []string{"stage"})
	StageFailure       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_stage_failure_total", Help: "Stage executions that failed or halted the chain"}, []string{"stage"})
	InvalidTransitions = prometheus.NewCounter(prometheus.CounterOpts{Name: "lifecycle_invalid_transitions_total", Help: "Transitions rejected by the lifecycle table"})
	RateLimitRejects   = prometheus.NewCounter(prometheus.CounterOpts{Name: "push_rate_limit_rejects_total", Help: "Pushes rejected by the rate limiter"})
	QueueDepthGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bounties_intake_depth", Help: "Length of the intake stream"})
	HeapSizeGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bounties_heap_size", Help: "In-memory priority heap size"})
	FilterCountGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bounties_filter_count", Help: "Fingerprints added to the membership filter"})
	InFlightGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "pipeline_inflight_chains", Help: "Stage chains currently holding an admission slot"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			DiscoveredCounter,
			AdmittedCounter,
			DuplicateCounter,
			StageSuccess,
			StageFailure,
			InvalidTransitions,
			RateLimitRejects,
			QueueDepthGauge,
			HeapSizeGauge,
			FilterCountGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}

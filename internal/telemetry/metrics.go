package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the payload manager's Prometheus instruments, following
// cuemby-warren's pkg/metrics naming convention (a metric per
// observable outcome, registered eagerly) but built off a private
// registry supplied by the caller instead of package-level vars plus a
// func init(), since Init already owns registry construction.
type Metrics struct {
	OpsTotal      *prometheus.CounterVec
	TierBytes     *prometheus.GaugeVec
	TierOccupancy *prometheus.GaugeVec

	SpillDuration   prometheus.Histogram
	SpillFailures   prometheus.Counter
	PressureEvents  *prometheus.CounterVec
	LeaseConflicts  prometheus.Counter
	StreamAppends   *prometheus.CounterVec
	RetentionTrims  *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payloadmgr_operations_total",
			Help: "Total number of payload manager operations by name and result.",
		}, []string{"op", "result"}),

		TierBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payloadmgr_tier_bytes",
			Help: "Bytes currently occupied per storage tier.",
		}, []string{"tier"}),

		TierOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payloadmgr_tier_payload_count",
			Help: "Number of payloads currently resident per storage tier.",
		}, []string{"tier"}),

		SpillDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payloadmgr_spill_duration_seconds",
			Help:    "Time taken to execute a single tier migration.",
			Buckets: prometheus.DefBuckets,
		}),

		SpillFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payloadmgr_spill_failures_total",
			Help: "Total number of spill executions that failed.",
		}),

		PressureEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payloadmgr_pressure_events_total",
			Help: "Total number of times a tier crossed its pressure threshold.",
		}, []string{"tier"}),

		LeaseConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payloadmgr_lease_conflicts_total",
			Help: "Total number of deletes rejected due to an outstanding lease.",
		}),

		StreamAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payloadmgr_stream_appends_total",
			Help: "Total number of entries appended per stream.",
		}, []string{"stream"}),

		RetentionTrims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payloadmgr_stream_retention_trims_total",
			Help: "Total number of entries trimmed by stream retention.",
		}, []string{"stream"}),
	}

	reg.MustRegister(
		m.OpsTotal, m.TierBytes, m.TierOccupancy,
		m.SpillDuration, m.SpillFailures, m.PressureEvents,
		m.LeaseConflicts, m.StreamAppends, m.RetentionTrims,
	)
	return m
}

// Timer times an operation and records its duration against a
// histogram on completion, mirroring cuemby-warren's metrics.Timer.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// ObserveDuration records elapsed time since NewTimer against h.
func (t Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

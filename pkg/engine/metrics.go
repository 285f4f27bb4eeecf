package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the engine's Prometheus collectors.
type metrics struct {
	ChangesRecorded *prometheus.CounterVec
	DiffFailures    prometheus.Counter
	CommitFailures  prometheus.Counter
	DecodeFailures  prometheus.Counter
}

// newMetrics creates and registers the collectors. A nil registerer
// leaves the collectors unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		ChangesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldtrail_changes_recorded_total",
				Help: "Total number of field-level changes written to the audit log",
			},
			[]string{"table"},
		),
		DiffFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldtrail_diff_failures_total",
				Help: "Total number of change computations that failed",
			},
		),
		CommitFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldtrail_commit_failures_total",
				Help: "Total number of audit write batches that failed",
			},
		),
		DecodeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldtrail_decode_failures_total",
				Help: "Total number of stored values that could not be restored on read",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.ChangesRecorded, m.DiffFailures, m.CommitFailures, m.DecodeFailures)
	}
	return m
}

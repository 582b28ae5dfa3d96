// Package metrics provides the Prometheus instruments of the schedule engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fitness_calendar"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
)

// Metrics holds the engine's counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatewayFailures     *prometheus.CounterVec
	integrityExclusions *prometheus.CounterVec
	resyncJobs          *prometheus.CounterVec
	importedEvents      *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
// If reg is nil, it returns nil (no-op metrics).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		gatewayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_gateway_failures_total",
			Help:      "External calendar calls that failed, by operation.",
		}, []string{"operation"}),
		integrityExclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_integrity_exclusions_total",
			Help:      "Workouts left out of the schedule because their sync record is inconsistent.",
		}, []string{"reason"}),
		resyncJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resync_jobs_total",
			Help:      "Processed resync jobs, by outcome.",
		}, []string{"outcome"}),
		importedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_import_events_total",
			Help:      "External events seen by the calendar import, by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.gatewayFailures, m.integrityExclusions, m.resyncJobs, m.importedEvents} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// GatewayFailure counts a failed call to the external calendar.
func (m *Metrics) GatewayFailure(operation string) {
	if m == nil {
		return
	}
	m.gatewayFailures.WithLabelValues(operation).Inc()
}

// IntegrityExclusion counts a workout dropped from a schedule read.
func (m *Metrics) IntegrityExclusion(reason string) {
	if m == nil {
		return
	}
	m.integrityExclusions.WithLabelValues(reason).Inc()
}

// ResyncJob counts a processed resync job.
func (m *Metrics) ResyncJob(outcome string) {
	if m == nil {
		return
	}
	m.resyncJobs.WithLabelValues(outcome).Inc()
}

// ImportedEvents adds n events to the given import result.
func (m *Metrics) ImportedEvents(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedEvents.WithLabelValues(result).Add(float64(n))
}

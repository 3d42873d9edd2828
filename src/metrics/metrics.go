// Package metrics exposes Prometheus counters for the capture pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Capture outcomes.
const (
	OutcomeRecorded = "recorded"
	OutcomeFailed   = "failed"
	OutcomeIgnored  = "ignored"
)

// Collaborator labels.
const (
	CollaboratorNotifier  = "notifier"
	CollaboratorTicketing = "ticketing"
)

// Metrics holds the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	captures         *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	upsertRetries    prometheus.Counter
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errortracker_captures_total",
				Help: "Total number of capture events by outcome",
			},
			[]string{"outcome"},
		),
		dispatchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errortracker_dispatch_failures_total",
				Help: "Total number of failed notifier and ticketing calls",
			},
			[]string{"collaborator"},
		),
		upsertRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "errortracker_upsert_retries_total",
				Help: "Total number of retried aggregate upserts",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.captures, m.dispatchFailures, m.upsertRetries)
	}

	return m
}

// RecordCapture counts one capture event.
func (m *Metrics) RecordCapture(outcome string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(outcome).Inc()
}

// RecordDispatchFailure counts one failed collaborator call.
func (m *Metrics) RecordDispatchFailure(collaborator string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(collaborator).Inc()
}

// RecordUpsertRetry counts one retried upsert. Its signature matches
// repository.ErrorAggregateRepository.WithRetryObserver.
func (m *Metrics) RecordUpsertRetry(_ int, _ error) {
	if m == nil {
		return
	}
	m.upsertRetries.Inc()
}

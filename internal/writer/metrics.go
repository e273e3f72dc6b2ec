// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writerBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_writer_batches_total",
		Help: "Batches handed to a writer by mode and result",
	}, []string{"mode", "result"})

	writerRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_writer_records_delivered_total",
		Help: "Records confirmed delivered by mode",
	}, []string{"mode"})

	writerAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_writer_http_attempts_total",
		Help: "HTTP delivery attempts by outcome",
	}, []string{"outcome"})

	writerCredentialRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_writer_credential_rotations_total",
		Help: "Times the HTTP writer switched credentials after an auth rejection",
	})

	writerDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_writer_duplicates_total",
		Help: "Records already present at the destination",
	}, []string{"mode"})

	writerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_writer_batch_latency_seconds",
		Help:    "WriteBatch latency by mode",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	writerCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audit_writer_circuit_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
)

// RecordBatch records the outcome of one WriteBatch call.
func RecordBatch(mode string, records int, seconds float64, err error) {
	writerLatency.WithLabelValues(mode).Observe(seconds)
	if err != nil {
		writerBatchesTotal.WithLabelValues(mode, "failure").Inc()
		return
	}
	writerBatchesTotal.WithLabelValues(mode, "success").Inc()
	writerRecordsTotal.WithLabelValues(mode).Add(float64(records))
}

// RecordAttempt records a single HTTP attempt outcome.
func RecordAttempt(outcome string) {
	writerAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordCredentialRotation increments the rotation counter.
func RecordCredentialRotation() {
	writerCredentialRotations.Inc()
}

// RecordDuplicates counts records the destination already had.
func RecordDuplicates(mode string, n int) {
	if n > 0 {
		writerDuplicatesTotal.WithLabelValues(mode).Add(float64(n))
	}
}

// SetCircuitState updates the breaker state gauge.
func SetCircuitState(name string, state float64) {
	writerCircuitState.WithLabelValues(name).Set(state)
}

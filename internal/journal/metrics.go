// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for journal operations
var (
	journalLinesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_journal_lines_persisted_total",
		Help: "Total number of records appended to the audit journal",
	})

	journalPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_journal_persist_failures_total",
		Help: "Total number of failed journal appends",
	})

	journalPersistLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_journal_persist_latency_seconds",
		Help:    "Journal append latency including fsync",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})

	journalFilesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_journal_files_consumed_total",
		Help: "Total number of journal segments marked consumed",
	})

	journalActiveSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_journal_active_segments",
		Help: "Current number of open journal segments",
	})

	journalBacklogFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_journal_backlog_files",
		Help: "Sealed journal segments awaiting delivery at last scan",
	})
)

// RecordPersist records a successful append of n lines.
func RecordPersist(n int, seconds float64) {
	journalLinesPersisted.Add(float64(n))
	journalPersistLatency.Observe(seconds)
}

// RecordPersistFailure increments the append failure counter.
func RecordPersistFailure() {
	journalPersistFailures.Inc()
}

// RecordFileConsumed increments the consumed segment counter.
func RecordFileConsumed() {
	journalFilesConsumed.Inc()
}

// SetActiveSegments sets the open segment gauge.
func SetActiveSegments(n int) {
	journalActiveSegments.Set(float64(n))
}

// SetBacklogFiles sets the backlog gauge.
func SetBacklogFiles(n int) {
	journalBacklogFiles.Set(float64(n))
}

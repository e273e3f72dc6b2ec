// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for engine operations
var (
	// walAppendsTotal counts Append calls by result.
	walAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_wal_appends_total",
		Help: "Total number of Append calls by result (accepted, spilled, overflow, dropped, rejected)",
	}, []string{"result"})

	// walQueueDepth is the current in-memory queue length.
	walQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audit_wal_queue_depth",
		Help: "Records waiting in the in-memory queue",
	})

	// walSpillsTotal counts queue-full spills.
	walSpillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_wal_spills_total",
		Help: "Times a full queue was spilled to the journal",
	})

	// walRecordsDelivered counts confirmed deliveries by source (memory, journal).
	walRecordsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_wal_records_delivered_total",
		Help: "Records confirmed delivered by source",
	}, []string{"source"})

	// walRecordsJournaled counts records written to the journal.
	walRecordsJournaled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_wal_records_journaled_total",
		Help: "Records written to the journal after a failure or spill",
	})

	// walWriteFailures counts failed WriteBatch calls during flush.
	walWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_wal_write_failures_total",
		Help: "Failed WriteBatch calls during flush",
	})

	// walFlushesTotal counts flushes by result (ok, partial, skipped, error).
	walFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_wal_flushes_total",
		Help: "Flush runs by result",
	}, []string{"result"})

	// walFlushLatency measures a whole flush.
	walFlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_wal_flush_latency_seconds",
		Help:    "Flush latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordAppend increments the append counter for result.
func RecordAppend(result string) {
	walAppendsTotal.WithLabelValues(result).Inc()
}

// UpdateQueueDepth sets the queue depth gauge.
func UpdateQueueDepth(n int) {
	walQueueDepth.Set(float64(n))
}

// RecordSpill increments the spill counter.
func RecordSpill() {
	walSpillsTotal.Inc()
}

// RecordDelivered adds confirmed deliveries from source.
func RecordDelivered(source string, n int) {
	if n > 0 {
		walRecordsDelivered.WithLabelValues(source).Add(float64(n))
	}
}

// RecordJournaled adds journaled records.
func RecordJournaled(n int) {
	if n > 0 {
		walRecordsJournaled.Add(float64(n))
	}
}

// RecordWriteFailure increments the write failure counter.
func RecordWriteFailure() {
	walWriteFailures.Inc()
}

// RecordFlush records a finished flush.
func RecordFlush(result string, seconds float64) {
	walFlushesTotal.WithLabelValues(result).Inc()
	if result != "skipped" {
		walFlushLatency.Observe(seconds)
	}
}

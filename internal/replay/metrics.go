// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package replay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replayRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_replay_runs_total",
		Help: "Replay passes by result",
	}, []string{"result"})

	replayRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_replay_records_total",
		Help: "Records delivered from the journal",
	})

	replayMalformedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_replay_malformed_lines_total",
		Help: "Journal lines skipped because they could not be decoded",
	})

	replayFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_replay_files_total",
		Help: "Journal files processed by outcome",
	}, []string{"outcome"})

	replayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_replay_duration_seconds",
		Help:    "Duration of a replay pass",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

// RecordRun records a finished pass.
func RecordRun(s *Stats) {
	result := "clean"
	if s.FilesFailed > 0 {
		result = "partial"
	}
	replayRunsTotal.WithLabelValues(result).Inc()
	replayDuration.Observe(s.Duration.Seconds())
}

// RecordReplayed counts delivered records.
func RecordReplayed(n int) {
	replayRecordsTotal.Add(float64(n))
}

// RecordMalformed counts a skipped line.
func RecordMalformed() {
	replayMalformedTotal.Inc()
}

// RecordFile counts a file outcome: consumed or failed.
func RecordFile(outcome string) {
	replayFilesTotal.WithLabelValues(outcome).Inc()
}

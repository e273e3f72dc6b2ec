// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-level metrics: the HTTP ingest surface, the supervisor tree and
// build info. Pipeline metrics (audit_wal_*, audit_journal_*, audit_writer_*,
// audit_replay_*) live next to the code they measure.

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwal_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditwal_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditwal_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwal_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"route"},
	)

	// Ingest outcomes per entry, as seen by the API.
	IngestEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwal_ingest_entries_total",
			Help: "Audit entries received over HTTP by result (accepted, spilled, dropped, invalid, failed)",
		},
		[]string{"result"},
	)

	IngestBodyBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditwal_ingest_body_bytes",
			Help:    "Size of decoded ingest request bodies",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)

	// Supervisor Metrics
	ServiceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwal_supervisor_events_total",
			Help: "Supervisor tree events by type (panic, terminate, backoff, resume)",
		},
		[]string{"event"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auditwal_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version", "writer_mode"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditwal_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records one finished API request. route is the chi
// route pattern, never the raw path, to keep label cardinality bounded.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRateLimitHit counts a 429 issued by the rate limiter.
func RecordRateLimitHit(route string) {
	APIRateLimitHits.WithLabelValues(route).Inc()
}

// RecordIngest adds n entries with the given result.
func RecordIngest(result string, n int) {
	if n <= 0 {
		return
	}
	IngestEntriesTotal.WithLabelValues(result).Add(float64(n))
}

// RecordIngestBody observes the decoded size of one ingest body.
func RecordIngestBody(bytes int64) {
	IngestBodyBytes.Observe(float64(bytes))
}

// RecordServiceEvent counts one supervisor event.
func RecordServiceEvent(event string) {
	ServiceEventsTotal.WithLabelValues(event).Inc()
}

// SetAppInfo publishes build information. Call once at startup.
func SetAppInfo(version, writerMode string) {
	AppInfo.WithLabelValues(version, runtime.Version(), writerMode).Set(1)
}

// UpdateUptime sets the uptime gauge from the process start time.
func UpdateUptime(start time.Time) {
	AppUptime.Set(time.Since(start).Seconds())
}

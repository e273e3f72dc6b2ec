// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package middleware provides the service's own HTTP middleware. CORS, rate
limiting and panic recovery come from the chi ecosystem and are wired in
internal/api; the pieces here are:

  - RequestID: accepts or generates X-Request-ID and puts it in the logging
    context, from where the HTTP writer forwards it downstream
  - PrometheusMetrics: request count, latency and in-flight gauge labeled by
    chi route pattern
  - DecompressRequest: inflates gzip-encoded ingest bodies

All three are plain func(http.Handler) http.Handler and go straight into
chi's r.Use:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.With(middleware.DecompressRequest).Post("/entries", h.IngestEntries)
*/
package middleware

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tomtom215/auditwal/internal/middleware"
)

// Router wires the Handler into a chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authorize     func(http.Handler) http.Handler
	stream        http.Handler
}

// NewRouter creates a Router. A nil config uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, config *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(config),
	}
}

// WithAuthorizer guards the audit routes with mw. Health, metrics and
// swagger stay open.
func (router *Router) WithAuthorizer(mw func(http.Handler) http.Handler) *Router {
	router.authorize = mw
	return router
}

// WithStream mounts the engine event stream at /api/v1/audit/stream.
func (router *Router) WithStream(h http.Handler) *Router {
	router.stream = h
	return router
}

// Setup builds the http.Handler.
//
// Routes:
//
//	GET  /api/v1/health/live
//	GET  /api/v1/health/ready
//	POST /api/v1/audit/entries   (gzip bodies accepted)
//	POST /api/v1/audit/flush
//	GET  /api/v1/audit/stats
//	GET  /api/v1/audit/stream    (WebSocket, when a stream is set)
//	GET  /metrics
//	GET  /swagger/*             (OpenAPI UI, served when the docs package is linked)
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		if router.authorize != nil {
			r.Use(router.authorize)
		}

		r.With(middleware.DecompressRequest).Post("/entries", router.handler.IngestEntries)
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitFlush)).Post("/flush", router.handler.Flush)
		r.Get("/stats", router.handler.Stats)
		if router.stream != nil {
			r.Method(http.MethodGet, "/stream", router.stream)
		}
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DocExpansion("list"),
	))

	return r
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/auditwal/internal/logging"
)

// healthCheckTimeout bounds each dependency check on the readiness probe.
const healthCheckTimeout = 2 * time.Second

// HealthCheck is one dependency probed by HealthReady. A failing critical
// check makes the service unready; a failing non-critical one only
// degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// LivenessResponse is the body of the liveness probe.
type LivenessResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime_seconds"`
}

// ReadinessResponse is the body of the readiness probe.
type ReadinessResponse struct {
	Status string            `json:"status"` // ready, degraded, not_ready
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// HealthLive reports that the process is up. It never touches dependencies.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} APIResponse{data=LivenessResponse}
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(LivenessResponse{
		Status: "alive",
		Uptime: time.Since(h.startTime).Seconds(),
	})
}

// HealthReady reports whether entries can be taken: boot replay has
// finished, the engine is open and no critical dependency is failing.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} APIResponse{data=ReadinessResponse}
// @Failure 503 {object} APIResponse{error=APIError{details=ReadinessResponse}}
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	resp := ReadinessResponse{Status: "ready", Ready: true, Checks: map[string]string{}}

	if !h.ready.Load() {
		resp.Checks["replay"] = "pending"
		resp.Status, resp.Ready = "not_ready", false
	} else {
		resp.Checks["replay"] = "ok"
	}

	if h.engine.Stats().Closed {
		resp.Checks["engine"] = "closed"
		resp.Status, resp.Ready = "not_ready", false
	} else {
		resp.Checks["engine"] = "ok"
	}

	for _, hc := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.Check(ctx)
		cancel()
		if err == nil {
			resp.Checks[hc.Name] = "ok"
			continue
		}
		resp.Checks[hc.Name] = "error: " + err.Error()
		logging.Ctx(r.Context()).Warn().Err(err).Str("check", hc.Name).Msg("Readiness check failed")
		if hc.Critical {
			resp.Status, resp.Ready = "not_ready", false
		} else if resp.Ready {
			resp.Status = "degraded"
		}
	}

	if !resp.Ready {
		rw.ServiceUnavailable("Service not ready", resp)
		return
	}
	rw.Success(resp)
}

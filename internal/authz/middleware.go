// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package authz

import (
	"net/http"
	"strings"

	"github.com/tomtom215/auditwal/internal/logging"
)

// APIKeyHeader carries the caller's key. "Authorization: Bearer <key>" is
// accepted as well.
const APIKeyHeader = "X-API-Key"

// Error codes passed to the ErrorWriter.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorWriter renders a rejection. api.WriteError has this shape.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

// Middleware authenticates API keys and authorizes them against the policy.
type Middleware struct {
	keys     *KeyRing
	enforcer *Enforcer
	writeErr ErrorWriter
	security *logging.SecurityLogger
}

// NewMiddleware builds the middleware. A nil writeErr falls back to http.Error.
func NewMiddleware(keys *KeyRing, enforcer *Enforcer, writeErr ErrorWriter) *Middleware {
	if writeErr == nil {
		writeErr = func(w http.ResponseWriter, _ *http.Request, status int, _, message string) {
			http.Error(w, message, status)
		}
	}
	return &Middleware{
		keys:     keys,
		enforcer: enforcer,
		writeErr: writeErr,
		security: logging.NewSecurityLogger(),
	}
}

// Enabled is false when no keys are configured; Authorize then passes
// every request through.
func (m *Middleware) Enabled() bool {
	return m.keys != nil && m.keys.Len() > 0
}

// Authorize resolves the request's key to a principal and checks the
// principal's role for the request path and method.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		key := requestKey(r)
		if key == "" {
			recordDecision(DecisionUnauthenticated)
			m.security.LogAuthFailure(r.RemoteAddr, r.URL.Path, "missing api key")
			m.writeErr(w, r, http.StatusUnauthorized, CodeUnauthorized, "API key required")
			return
		}

		principal, err := m.keys.Lookup(key)
		if err != nil {
			recordDecision(DecisionUnauthenticated)
			m.security.LogAuthFailure(r.RemoteAddr, r.URL.Path, err.Error())
			m.writeErr(w, r, http.StatusUnauthorized, CodeUnauthorized, "Invalid API key")
			return
		}

		allowed, err := m.enforcer.Allowed(principal.Role, r.URL.Path, r.Method)
		if err != nil {
			recordDecision(DecisionError)
			logging.Ctx(r.Context()).Error().Err(err).Str("principal", principal.Name).Msg("Authorization check failed")
			m.writeErr(w, r, http.StatusInternalServerError, CodeInternal, "Authorization check failed")
			return
		}
		if !allowed {
			recordDecision(DecisionDenied)
			m.security.LogAccessDenied(principal.Name, principal.Role, r.Method, r.URL.Path)
			m.writeErr(w, r, http.StatusForbidden, CodeForbidden, "Role not permitted for this route")
			return
		}

		recordDecision(DecisionAllowed)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

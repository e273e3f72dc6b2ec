// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision labels.
const (
	DecisionAllowed         = "allowed"
	DecisionDenied          = "denied"
	DecisionUnauthenticated = "unauthenticated"
	DecisionError           = "error"
)

// DecisionsTotal counts authorization outcomes on protected routes.
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auditwal_authz_decisions_total",
		Help: "Authorization decisions on audit routes by result",
	},
	[]string{"result"},
)

func recordDecision(result string) {
	DecisionsTotal.WithLabelValues(result).Inc()
}

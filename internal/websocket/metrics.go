// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditwal_stream_clients",
			Help: "Connected event stream clients",
		},
	)

	StreamDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditwal_stream_messages_dropped_total",
			Help: "Stream messages dropped because the broadcast buffer was full",
		},
	)

	StreamSlowClientsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditwal_stream_slow_clients_total",
			Help: "Stream clients disconnected for not keeping up",
		},
	)
)

// UpdateClients sets the connected client gauge.
func UpdateClients(n int) {
	StreamClients.Set(float64(n))
}

// RecordDropped counts a message lost to a full broadcast buffer.
func RecordDropped() {
	StreamDroppedTotal.Inc()
}

// RecordSlowClient counts a client disconnected by fan-out.
func RecordSlowClient() {
	StreamSlowClientsTotal.Inc()
}

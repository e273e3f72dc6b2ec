// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package websocket streams engine events to operators.

GET /api/v1/audit/stream upgrades to a WebSocket. The Hub is registered as
the engine's wal.Observer and pushes one JSON frame per finished flush and
per boot replay:

	{"type":"flush","time":"...","data":{"result":"ok","accepted":12,"journaled":0,"backlog":{...},"duration":1200000}}
	{"type":"replay","time":"...","data":{"files_scanned":2,"records_replayed":40,...}}

A client may send {"type":"ping"} and gets {"type":"pong"} back. Anything
else it sends is ignored.

The stream is best effort. Publish never blocks the engine: a full
broadcast buffer drops the message, and a client that falls behind is
disconnected. Counters for both are exported as Prometheus metrics.

The Hub runs under the supervisor's API layer. When it stops, every client
receives a close frame.
*/
package websocket

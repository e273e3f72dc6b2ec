// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package main

// General API information for swag.
//
// @title Auditwal API
// @version 1.0
// @description Durable audit entry ingest. Begin and end entries are merged
// @description by correlation id and delivered at least once.
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
//
// @tag.name Audit
// @tag.description Entry ingest, flush and engine statistics
// @tag.name Health
// @tag.description Liveness and readiness probes

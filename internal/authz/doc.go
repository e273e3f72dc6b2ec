// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package authz guards the audit routes with API keys and a Casbin RBAC policy.

Keys are configured as "role:name:key" (AUDIT_AUTH_API_KEYS, comma
separated). Only SHA-256 digests are kept in memory. A request presents its
key in X-API-Key or as a bearer token; the key resolves to a Principal and
the principal's role is checked against the request path and method.

Embedded policy:

	producer   POST /api/v1/audit/entries
	operator   GET and POST /api/v1/audit/*   (inherits producer)
	admin      inherits operator

AUDIT_AUTH_POLICY_PATH replaces the embedded policy with a CSV file in the
same format. The model is fixed.

With no keys configured the middleware lets every request through, which
suits a sidecar bound to localhost.
*/
package authz

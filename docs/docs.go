// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package docs registers the OpenAPI description served at /swagger/.
// Regenerate with: swag init -g cmd/server/docs.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "AGPL-3.0-or-later",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/audit/entries": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Audit"],
                "summary": "Ingest audit entries",
                "security": [{"ApiKeyAuth": []}],
                "parameters": [
                    {
                        "description": "One entry, {\"entries\": [...]} or a bare array",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/audit.Entry"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "401": {"description": "Missing or unknown API key", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "403": {"description": "Role not permitted", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "413": {"description": "Payload Too Large", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/audit/flush": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Audit"],
                "summary": "Flush queued records and drain the journal backlog",
                "security": [{"ApiKeyAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "401": {"description": "Missing or unknown API key", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "403": {"description": "Role not permitted", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "409": {"description": "Another flush is running", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "503": {"description": "Engine stopped", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/audit/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Audit"],
                "summary": "Engine statistics",
                "security": [{"ApiKeyAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/health/live": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/health/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        }
    },
    "definitions": {
        "api.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "api.APIMeta": {
            "type": "object",
            "properties": {
                "duration_ms": {"type": "integer"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "api.APIResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"$ref": "#/definitions/api.APIError"},
                "meta": {"$ref": "#/definitions/api.APIMeta"},
                "success": {"type": "boolean"}
            }
        },
        "audit.Entry": {
            "type": "object",
            "required": ["correlation_id", "event_id", "phase", "service"],
            "properties": {
                "correlation_id": {"type": "string", "maxLength": 128},
                "event_id": {"type": "string", "maxLength": 128},
                "http_code": {"type": "integer", "minimum": 100, "maximum": 599},
                "payload": {"type": "object"},
                "phase": {"type": "string", "enum": ["begin", "end"]},
                "request_id": {"type": "string", "maxLength": 128},
                "service": {"type": "string", "maxLength": 128},
                "status": {"type": "string", "enum": ["ok", "error"]},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Auditwal API",
	Description:      "Durable audit entry ingest. Begin and end entries are merged by correlation id and delivered at least once.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent is a credential or access event worth its own log line.
type SecurityEvent struct {
	// Event is the type of event (e.g., "credential_rejected", "credential_rotated").
	Event string
	// Destination identifies the remote service (URL host or name).
	Destination string
	// Slot is the credential slot involved (primary, secondary).
	Slot string
	// StatusCode is the HTTP status that triggered the event, if any.
	StatusCode int
	// Success indicates if the operation was successful.
	Success bool
	// Error is the error message if the operation failed.
	Error string
	// Details contains additional details, sanitized by key.
	Details map[string]string
}

// SecurityLogger logs credential and access events. Sensitive values are sanitized
// before they reach the log.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a new security logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{
		logger: With().Str("component", "security").Logger(),
	}
}

// NewSecurityLoggerWithLogger creates a security logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "security").Logger(),
	}
}

// LogEvent logs a security event with automatic sanitization.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Warn()
	if event.Success {
		e = l.logger.Info()
	}
	e = e.Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}
	if event.Destination != "" {
		e = e.Str("destination", event.Destination)
	}
	if event.Slot != "" {
		e = e.Str("slot", event.Slot)
	}
	if event.StatusCode != 0 {
		e = e.Int("http_status", event.StatusCode)
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", SanitizeError(event.Error))
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("")
}

// LogCredentialRejected logs a 401/403 answer for a credential slot.
func (l *SecurityLogger) LogCredentialRejected(destination, slot string, status int, body string) {
	l.LogEvent(&SecurityEvent{
		Event:       "credential_rejected",
		Destination: destination,
		Slot:        slot,
		StatusCode:  status,
		Error:       body,
	})
}

// LogCredentialRotated logs a switch to another credential slot.
func (l *SecurityLogger) LogCredentialRotated(destination, from, to string) {
	l.LogEvent(&SecurityEvent{
		Event:       "credential_rotated",
		Destination: destination,
		Slot:        to,
		Success:     true,
		Details:     map[string]string{"previous_slot": from},
	})
}

// LogCredentialsExhausted logs that every configured credential was rejected.
func (l *SecurityLogger) LogCredentialsExhausted(destination string, status int) {
	l.LogEvent(&SecurityEvent{
		Event:       "credentials_exhausted",
		Destination: destination,
		StatusCode:  status,
		Error:       "all configured credentials rejected",
	})
}

// LogAuthFailure logs a request without a usable API key.
func (l *SecurityLogger) LogAuthFailure(remoteAddr, path, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:   "auth_failed",
		Error:   reason,
		Details: map[string]string{"remote_addr": remoteAddr, "path": path},
	})
}

// LogAccessDenied logs an authenticated caller whose role lacks the permission.
func (l *SecurityLogger) LogAccessDenied(principal, role, method, path string) {
	l.LogEvent(&SecurityEvent{
		Event:      "access_denied",
		StatusCode: 403,
		Error:      "role not permitted",
		Details: map[string]string{
			"principal": principal,
			"role":      role,
			"method":    method,
			"path":      path,
		},
	})
}

// SanitizeToken masks a token, showing only first and last 4 characters.
// Example: "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9..." -> "eyJh...kpXV"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeError removes potentially sensitive information from error messages.
func SanitizeError(err string) string {
	sensitivePatterns := []string{
		"password",
		"secret",
		"token",
		"key",
		"bearer",
		"authorization",
		"cookie",
	}

	lowerErr := strings.ToLower(err)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerErr, pattern) {
			return "authentication error"
		}
	}

	return truncateString(err, 200)
}

// sensitiveKeys are detail keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"credential":    true,
	"password":      true,
	"secret":        true,
	"api_key":       true,
	"apikey":        true,
	"internal_key":  true,
	"authorization": true,
	"bearer":        true,
	"dsn":           true,
}

// SanitizeValue sanitizes a value based on its key name.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	return value
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

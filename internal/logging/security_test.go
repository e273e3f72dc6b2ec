// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSanitizeToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "***"},
		{"exactlytwelv", "***"},
		{"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9", "eyJh...VCJ9"},
		{"1234567890123456", "1234...3456"},
	}

	for _, tt := range tests {
		result := SanitizeToken(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"regular error", "regular error"},
		{"token expired", "authentication error"},
		{"invalid internal key", "authentication error"},
		{"Bearer token missing", "authentication error"},
		{"authorization failed", "authentication error"},
	}

	for _, tt := range tests {
		result := SanitizeError(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeError(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSanitizeError_LongError(t *testing.T) {
	t.Parallel()

	result := SanitizeError(strings.Repeat("a", 250))
	if len(result) > 210 {
		t.Errorf("expected truncated error, got length %d", len(result))
	}
	if !strings.HasSuffix(result, "...") {
		t.Error("expected truncation suffix")
	}
}

func TestSanitizeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key      string
		value    string
		expected string
	}{
		{"slot", "primary", "primary"},
		{"token", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9", "eyJh...VCJ9"},
		{"credential", "secret123", "***"},
		{"DSN", "postgres://u:p@db:5432/audit", "post...udit"},
	}

	for _, tt := range tests {
		result := SanitizeValue(tt.key, tt.value)
		if result != tt.expected {
			t.Errorf("SanitizeValue(%q, %q) = %q, want %q", tt.key, tt.value, result, tt.expected)
		}
	}
}

func TestSecurityLogger_CredentialEvents(t *testing.T) {
	var buf bytes.Buffer
	secLog := NewSecurityLoggerWithLogger(zerolog.New(&buf))

	secLog.LogCredentialRejected("audit.example.com", "primary", 401, "invalid bearer token")
	secLog.LogCredentialRotated("audit.example.com", "primary", "secondary")
	secLog.LogCredentialsExhausted("audit.example.com", 403)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d log lines, want 3: %s", len(lines), buf.String())
	}

	for _, want := range []string{`"event":"credential_rejected"`, `"http_status":401`, `"slot":"primary"`, `"status":"failed"`, `"error":"authentication error"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("rejected line missing %s: %s", want, lines[0])
		}
	}
	if strings.Contains(lines[0], "invalid bearer token") {
		t.Error("raw error body leaked into the log")
	}
	for _, want := range []string{`"event":"credential_rotated"`, `"slot":"secondary"`, `"previous_slot":"primary"`, `"status":"success"`} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("rotated line missing %s: %s", want, lines[1])
		}
	}
	if !strings.Contains(lines[2], `"event":"credentials_exhausted"`) {
		t.Errorf("exhausted line = %s", lines[2])
	}
}

func TestSecurityLogger_AccessEvents(t *testing.T) {
	var buf bytes.Buffer
	secLog := NewSecurityLoggerWithLogger(zerolog.New(&buf))

	secLog.LogAuthFailure("10.0.0.7:5123", "/api/v1/audit/flush", "missing api key")
	secLog.LogAccessDenied("billing", "producer", "POST", "/api/v1/audit/flush")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2: %s", len(lines), buf.String())
	}
	for _, want := range []string{`"event":"auth_failed"`, `"remote_addr":"10.0.0.7:5123"`, `"component":"security"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("auth failure line missing %s: %s", want, lines[0])
		}
	}
	for _, want := range []string{`"event":"access_denied"`, `"principal":"billing"`, `"role":"producer"`, `"http_status":403`} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("access denied line missing %s: %s", want, lines[1])
		}
	}
}

func TestNewSecurityLogger(t *testing.T) {
	if NewSecurityLogger() == nil {
		t.Error("NewSecurityLogger() returned nil")
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abcdef", 3); got != "abc..." {
		t.Errorf("truncateString() = %q", got)
	}
	if got := truncateString("ab", 3); got != "ab" {
		t.Errorf("truncateString() = %q", got)
	}
}

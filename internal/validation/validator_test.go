// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/auditwal/internal/audit"
)

func intPtr(v int) *int { return &v }

func validEntry() audit.Entry {
	return audit.Entry{
		Phase:         audit.PhaseEnd,
		EventID:       "evt-2",
		CorrelationID: "corr-1",
		RequestID:     "req-1",
		Service:       "orders",
		Timestamp:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		HTTPCode:      intPtr(201),
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}

func TestValidateStruct_Entry(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(e *audit.Entry)
		field string
		tag   string
	}{
		{"valid", func(e *audit.Entry) {}, "", ""},
		{"begin without status", func(e *audit.Entry) { e.Phase = audit.PhaseBegin; e.HTTPCode = nil }, "", ""},
		{"end without status or code", func(e *audit.Entry) { e.HTTPCode = nil }, "", ""},
		{"unknown phase", func(e *audit.Entry) { e.Phase = "middle" }, "phase", "oneof"},
		{"missing phase", func(e *audit.Entry) { e.Phase = "" }, "phase", "required"},
		{"missing correlation", func(e *audit.Entry) { e.CorrelationID = "" }, "correlation_id", "required"},
		{"correlation with space", func(e *audit.Entry) { e.CorrelationID = "a b" }, "correlation_id", "identifier"},
		{"event with newline", func(e *audit.Entry) { e.EventID = "e\n1" }, "event_id", "identifier"},
		{"long request id", func(e *audit.Entry) { e.RequestID = strings.Repeat("r", 129) }, "request_id", "max"},
		{"missing service", func(e *audit.Entry) { e.Service = "" }, "service", "required"},
		{"bad status", func(e *audit.Entry) { e.Status = "maybe" }, "status", "oneof"},
		{"code too low", func(e *audit.Entry) { e.HTTPCode = intPtr(42) }, "http_code", "min"},
		{"code too high", func(e *audit.Entry) { e.HTTPCode = intPtr(700) }, "http_code", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.edit(&e)
			verr := ValidateStruct(&e)
			if tt.field == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatalf("ValidateStruct() = nil, want %s/%s", tt.field, tt.tag)
			}
			got := verr.Errors()
			if len(got) != 1 {
				t.Fatalf("errors = %v, want exactly one", got)
			}
			if got[0].Field() != tt.field || got[0].Tag() != tt.tag {
				t.Errorf("error = %s/%s, want %s/%s", got[0].Field(), got[0].Tag(), tt.field, tt.tag)
			}
		})
	}
}

func TestToAPIError_Single(t *testing.T) {
	e := validEntry()
	e.CorrelationID = ""
	apiErr := ValidateStruct(&e).ToAPIError()

	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %s", apiErr.Code)
	}
	if apiErr.Message != "correlation_id is required" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "correlation_id" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_Multiple(t *testing.T) {
	e := validEntry()
	e.CorrelationID = ""
	e.Service = ""
	verr := ValidateStruct(&e)
	apiErr := verr.ToAPIError()

	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("Details = %v, want two fields", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "correlation_id is required") || !strings.Contains(apiErr.Message, "service is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if verr.Error() != apiErr.Message {
		t.Errorf("Error() = %q, want %q", verr.Error(), apiErr.Message)
	}
}

func TestTranslateError_Messages(t *testing.T) {
	type sample struct {
		Mode  string `json:"mode" validate:"oneof=http db"`
		Short string `json:"short" validate:"min=3"`
		Count int    `json:"count" validate:"max=5"`
	}

	verr := ValidateStruct(&sample{Mode: "ftp", Short: "a", Count: 9})
	if verr == nil {
		t.Fatal("ValidateStruct() = nil")
	}
	want := map[string]string{
		"mode":  "mode must be one of: http db",
		"short": "short must be at least 3 characters",
		"count": "count must be at most 5",
	}
	for _, e := range verr.Errors() {
		if e.Error() != want[e.Field()] {
			t.Errorf("%s: %q, want %q", e.Field(), e.Error(), want[e.Field()])
		}
	}
}

func TestValidateStruct_NotAStruct(t *testing.T) {
	verr := ValidateStruct("nope")
	if verr == nil || verr.Errors()[0].Field() != "unknown" {
		t.Errorf("ValidateStruct(string) = %v", verr)
	}
}

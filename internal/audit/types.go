// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package audit

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Phase identifies which half of a request lifecycle an entry describes.
type Phase string

const (
	PhaseBegin Phase = "begin"
	PhaseEnd   Phase = "end"
)

// Status is the normalized result of an audited request.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Outcome distinguishes merged records from synthetic ones emitted by the
// correlator's TTL policy.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Abandon reasons.
const (
	ReasonEndTimeout   = "end_timeout"
	ReasonBeginMissing = "begin_missing"
	ReasonShutdown     = "shutdown"
)

// Channel names used for journal partitioning.
const (
	ChannelAudit = "audit"
	ChannelError = "error"
)

// Sentinel errors.
var (
	// ErrUnnormalizable is returned for an end entry with neither status nor HTTP code.
	ErrUnnormalizable = errors.New("audit: end entry has neither status nor http code")

	// ErrInvalidEntry is returned for entries missing required identity fields.
	ErrInvalidEntry = errors.New("audit: invalid entry")

	// ErrPhaseMismatch is returned when Merge is given two entries of the wrong phases.
	ErrPhaseMismatch = errors.New("audit: merge requires one begin and one end entry")

	// ErrCorrelationMismatch is returned when Merge is given entries from different requests.
	ErrCorrelationMismatch = errors.New("audit: correlation ids differ")
)

// Entry is one observed lifecycle event for an audited request.
type Entry struct {
	Phase         Phase           `json:"phase" validate:"required,oneof=begin end"`
	EventID       string          `json:"event_id" validate:"required,max=128,identifier"`
	CorrelationID string          `json:"correlation_id" validate:"required,max=128,identifier"`
	RequestID     string          `json:"request_id,omitempty" validate:"omitempty,max=128,identifier"`
	Service       string          `json:"service" validate:"required,max=128"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`

	// Status and HTTPCode are only meaningful on end entries.
	Status   Status `json:"status,omitempty" validate:"omitempty,oneof=ok error"`
	HTTPCode *int   `json:"http_code,omitempty" validate:"omitempty,min=100,max=599"`
}

// Validate checks the identity fields every entry must carry.
func (e *Entry) Validate() error {
	switch {
	case e.Phase != PhaseBegin && e.Phase != PhaseEnd:
		return errors.Join(ErrInvalidEntry, errors.New("unknown phase "+string(e.Phase)))
	case e.CorrelationID == "":
		return errors.Join(ErrInvalidEntry, errors.New("missing correlation_id"))
	case e.EventID == "":
		return errors.Join(ErrInvalidEntry, errors.New("missing event_id"))
	}
	return nil
}

// Record is the immutable merged result of a begin and an end entry.
// Construct it with Merge or Abandon; downstream stores treat it as append-only.
type Record struct {
	CorrelationID string          `json:"correlation_id"`
	EventID       string          `json:"event_id"`
	EndEventID    string          `json:"end_event_id,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	Service       string          `json:"service"`
	Status        Status          `json:"status"`
	HTTPCode      *int            `json:"http_code,omitempty"`
	Outcome       Outcome         `json:"outcome"`
	Reason        string          `json:"reason,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       time.Time       `json:"ended_at"`
	DurationMs    int64           `json:"duration_ms"`
	BeginPayload  json.RawMessage `json:"begin_payload,omitempty"`
	EndPayload    json.RawMessage `json:"end_payload,omitempty"`
}

// Channel returns the journal channel the record belongs to.
func (r *Record) Channel() string {
	if r.Status == StatusError {
		return ChannelError
	}
	return ChannelAudit
}

// Abandoned reports whether the record was synthesized by the TTL policy.
func (r *Record) Abandoned() bool {
	return r.Outcome == OutcomeAbandoned
}

// Validate checks that a decoded record carries the fields replay depends on.
func (r *Record) Validate() error {
	if r.CorrelationID == "" {
		return errors.Join(ErrInvalidEntry, errors.New("record missing correlation_id"))
	}
	if r.Status != StatusOK && r.Status != StatusError {
		return errors.Join(ErrInvalidEntry, errors.New("record has invalid status "+string(r.Status)))
	}
	return nil
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package audit

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Normalize resolves the status of an end entry.
// An explicit status wins; otherwise it is derived from the HTTP code.
func Normalize(end *Entry) (Status, error) {
	switch end.Status {
	case StatusOK, StatusError:
		return end.Status, nil
	case "":
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrUnnormalizable, end.Status)
	}

	if end.HTTPCode == nil {
		return "", ErrUnnormalizable
	}
	if *end.HTTPCode >= 400 {
		return StatusError, nil
	}
	return StatusOK, nil
}

// Merge builds the final record for a begin/end pair.
// It fails with ErrUnnormalizable when the end entry cannot be normalized.
func Merge(begin, end *Entry) (Record, error) {
	if begin.Phase != PhaseBegin || end.Phase != PhaseEnd {
		return Record{}, ErrPhaseMismatch
	}
	if begin.CorrelationID != end.CorrelationID {
		return Record{}, fmt.Errorf("%w: %s != %s", ErrCorrelationMismatch, begin.CorrelationID, end.CorrelationID)
	}

	status, err := Normalize(end)
	if err != nil {
		return Record{}, err
	}

	service := begin.Service
	if service == "" {
		service = end.Service
	}
	requestID := begin.RequestID
	if requestID == "" {
		requestID = end.RequestID
	}

	return Record{
		CorrelationID: begin.CorrelationID,
		EventID:       begin.EventID,
		EndEventID:    end.EventID,
		RequestID:     requestID,
		Service:       service,
		Status:        status,
		HTTPCode:      copyCode(end.HTTPCode),
		Outcome:       OutcomeCompleted,
		StartedAt:     begin.Timestamp,
		EndedAt:       end.Timestamp,
		DurationMs:    durationMs(begin.Timestamp, end.Timestamp),
		BeginPayload:  copyPayload(begin.Payload),
		EndPayload:    copyPayload(end.Payload),
	}, nil
}

// Abandon builds a synthetic record for a half that never found its partner.
// Abandoned records always carry status error so they land on the error channel.
func Abandon(half *Entry, reason string, now time.Time) Record {
	rec := Record{
		CorrelationID: half.CorrelationID,
		RequestID:     half.RequestID,
		Service:       half.Service,
		Status:        StatusError,
		Outcome:       OutcomeAbandoned,
		Reason:        reason,
	}

	switch half.Phase {
	case PhaseBegin:
		rec.EventID = half.EventID
		rec.StartedAt = half.Timestamp
		rec.EndedAt = now
		rec.BeginPayload = copyPayload(half.Payload)
	default:
		rec.EndEventID = half.EventID
		rec.StartedAt = half.Timestamp
		rec.EndedAt = half.Timestamp
		rec.HTTPCode = copyCode(half.HTTPCode)
		rec.EndPayload = copyPayload(half.Payload)
	}
	rec.DurationMs = durationMs(rec.StartedAt, rec.EndedAt)

	return rec
}

func durationMs(start, end time.Time) int64 {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start).Milliseconds()
}

func copyPayload(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out
}

func copyCode(code *int) *int {
	if code == nil {
		return nil
	}
	c := *code
	return &c
}

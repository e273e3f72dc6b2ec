// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/logging"
	"github.com/tomtom215/auditwal/internal/metrics"
	"github.com/tomtom215/auditwal/internal/validation"
	"github.com/tomtom215/auditwal/internal/wal"
)

// Defaults for HandlerConfig.
const (
	DefaultMaxBodyBytes = 1 << 20
	DefaultMaxEntries   = 1000
)

// Engine is the part of *wal.Engine the handlers drive.
type Engine interface {
	Append(entry audit.Entry) (wal.AppendResult, error)
	Flush(ctx context.Context) (wal.FlushResult, error)
	Stats() wal.Stats
}

// HandlerConfig bounds ingest requests.
type HandlerConfig struct {
	// MaxBodyBytes caps the decoded request body. Default: 1 MiB
	MaxBodyBytes int64

	// MaxEntries caps entries per batch request. Default: 1000
	MaxEntries int

	// Now stamps entries that arrive without a timestamp. Default: time.Now
	Now func() time.Time
}

// Handler serves the audit ingest, flush, stats and health endpoints.
type Handler struct {
	engine    Engine
	cfg       HandlerConfig
	checks    []HealthCheck
	ready     atomic.Bool
	startTime time.Time
}

// NewHandler creates a Handler. It reports not-ready until SetReady(true),
// which main calls once boot replay has finished.
func NewHandler(engine Engine, cfg HandlerConfig, checks ...HealthCheck) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		engine:    engine,
		cfg:       cfg,
		checks:    checks,
		startTime: time.Now(),
	}
}

// SetReady flips the readiness gate.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IngestResult reports what happened to each entry of an ingest request.
type IngestResult struct {
	Received int `json:"received"`

	// Accepted entries were taken by the engine; Merged of them completed a
	// begin/end pair and Spilled of those went straight to the journal.
	Accepted int `json:"accepted"`
	Merged   int `json:"merged"`
	Spilled  int `json:"spilled"`

	// Dropped entries were well formed but discarded by the correlator
	// (unnormalizable end, duplicate half).
	Dropped int `json:"dropped"`

	// Invalid entries failed decoding or validation and never reached the
	// engine.
	Invalid int `json:"invalid"`

	// Failed entries hit an engine error; the client should retry them.
	Failed int `json:"failed"`

	Errors []EntryError `json:"errors,omitempty"`
}

// EntryError describes one entry that was not accepted.
type EntryError struct {
	Index   int         `json:"index"`
	EventID string      `json:"event_id,omitempty"`
	Reason  string      `json:"reason"`
	Details interface{} `json:"details,omitempty"`
}

// IngestEntries accepts a single entry object, a {"entries": [...]} batch,
// or a bare JSON array.
//
// @Summary Ingest audit entries
// @Tags Audit
// @Accept json
// @Produce json
// @Success 202 {object} APIResponse{data=IngestResult}
// @Failure 400 {object} APIResponse
// @Failure 413 {object} APIResponse
// @Failure 503 {object} APIResponse{error=APIError{details=IngestResult}}
// @Failure 401 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Security ApiKeyAuth
// @Router /audit/entries [post]
func (h *Handler) IngestEntries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.PayloadTooLarge("Request body exceeds limit")
			return
		}
		rw.BadRequest("Failed to read request body")
		return
	}
	metrics.RecordIngestBody(int64(len(body)))

	raws, single, err := splitEntries(body)
	if err != nil {
		rw.BadRequest("Malformed JSON: " + err.Error())
		return
	}
	if len(raws) == 0 {
		rw.BadRequest("No entries in request")
		return
	}
	if len(raws) > h.cfg.MaxEntries {
		rw.PayloadTooLarge("Too many entries in one request")
		return
	}

	res := IngestResult{Received: len(raws)}
	closed := false
	for i, raw := range raws {
		if closed {
			res.Failed++
			continue
		}
		entry, entryErr := h.decodeEntry(i, raw)
		if entryErr != nil {
			if single {
				h.rejectSingle(rw, entryErr)
				return
			}
			res.Invalid++
			res.Errors = append(res.Errors, *entryErr)
			continue
		}
		if h.appendEntry(r.Context(), i, &entry, &res) {
			closed = true
		}
	}

	h.recordIngest(&res)

	if res.Failed > 0 {
		rw.ServiceUnavailable("Some entries were not accepted, retry them", res)
		return
	}
	rw.Accepted(res)
}

// splitEntries returns the raw entries of a request body and whether the
// body was a single entry object.
func splitEntries(body []byte) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, nil
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, false, err
		}
		return raws, false, nil
	}

	var envelope struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, false, err
	}
	if envelope.Entries != nil {
		return envelope.Entries, false, nil
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, true, nil
}

func (h *Handler) decodeEntry(i int, raw json.RawMessage) (audit.Entry, *EntryError) {
	var entry audit.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, &EntryError{Index: i, Reason: "malformed", Details: err.Error()}
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.cfg.Now().UTC()
	}
	if verr := validation.ValidateStruct(&entry); verr != nil {
		apiErr := verr.ToAPIError()
		return entry, &EntryError{Index: i, EventID: entry.EventID, Reason: "invalid", Details: apiErr.Details}
	}
	return entry, nil
}

func (h *Handler) rejectSingle(rw *ResponseWriter, e *EntryError) {
	metrics.RecordIngest("invalid", 1)
	if e.Reason == "malformed" {
		rw.BadRequest("Malformed entry")
		return
	}
	rw.ValidationError("Entry failed validation", e.Details)
}

// appendEntry hands one entry to the engine. It reports true when the
// engine is closed and the rest of the request should not be tried.
func (h *Handler) appendEntry(ctx context.Context, i int, entry *audit.Entry, res *IngestResult) bool {
	out, err := h.engine.Append(*entry)
	switch {
	case errors.Is(err, wal.ErrEngineClosed):
		res.Failed++
		res.Errors = append(res.Errors, EntryError{Index: i, EventID: entry.EventID, Reason: "shutting_down"})
		return true
	case err != nil:
		res.Failed++
		res.Errors = append(res.Errors, EntryError{Index: i, EventID: entry.EventID, Reason: "engine_error"})
		logging.Ctx(logging.ContextWithCorrelationID(ctx, entry.CorrelationID)).
			Error().Err(err).Str("event_id", entry.EventID).Msg("Audit entry append failed")
		return false
	case out.Dropped:
		res.Dropped++
		res.Errors = append(res.Errors, EntryError{Index: i, EventID: entry.EventID, Reason: out.Reason})
		return false
	}

	res.Accepted++
	if out.Record != nil {
		res.Merged++
	}
	if out.Spilled {
		res.Spilled++
	}
	return false
}

func (h *Handler) recordIngest(res *IngestResult) {
	metrics.RecordIngest("accepted", res.Accepted)
	metrics.RecordIngest("spilled", res.Spilled)
	metrics.RecordIngest("dropped", res.Dropped)
	metrics.RecordIngest("invalid", res.Invalid)
	metrics.RecordIngest("failed", res.Failed)
}

// Flush runs a flush now and returns its result.
//
// @Summary Flush queued records and drain the journal backlog
// @Tags Audit
// @Produce json
// @Success 200 {object} APIResponse{data=wal.FlushResult}
// @Failure 409 {object} APIResponse "Another flush is running"
// @Failure 503 {object} APIResponse "Engine stopped"
// @Failure 401 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Security ApiKeyAuth
// @Router /audit/flush [post]
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	// A client hanging up must not cut the flush short.
	res, err := h.engine.Flush(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, wal.ErrFlushInProgress):
		rw.Error(http.StatusConflict, ErrCodeFlushInProgress, "A flush is already running")
	case errors.Is(err, wal.ErrEngineClosed):
		rw.ServiceUnavailable("Engine is shutting down", nil)
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Requested flush failed")
		rw.ErrorWithDetails(http.StatusInternalServerError, ErrCodeJournalFailure, "Flush failed", res)
	default:
		rw.Success(res)
	}
}

// Stats returns the engine snapshot.
//
// @Summary Engine statistics
// @Tags Audit
// @Produce json
// @Success 200 {object} APIResponse{data=wal.Stats}
// @Failure 401 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Security ApiKeyAuth
// @Router /audit/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.engine.Stats())
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// IngestCapture is one request received by MockIngestServer.
type IngestCapture struct {
	Headers http.Header
	Body    []byte
	Status  int
}

// CorrelationIDs decodes the batch body and returns its correlation IDs.
func (c IngestCapture) CorrelationIDs() []string {
	var body struct {
		Records []struct {
			CorrelationID string `json:"correlation_id"`
		} `json:"records"`
	}
	if err := json.Unmarshal(c.Body, &body); err != nil {
		return nil
	}
	ids := make([]string, 0, len(body.Records))
	for _, r := range body.Records {
		ids = append(ids, r.CorrelationID)
	}
	return ids
}

// MockIngestServer stands in for a remote audit ingest endpoint.
// Responses follow Script in order, then ResponseStatus.
type MockIngestServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []IngestCapture
	script   []int
	status   int
	accepted map[string]struct{}
}

// NewMockIngestServer starts a server that answers 202 by default.
func NewMockIngestServer(t *testing.T) *MockIngestServer {
	t.Helper()

	m := &MockIngestServer{
		status:   http.StatusAccepted,
		accepted: make(map[string]struct{}),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockIngestServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	m.mu.Lock()
	status := m.status
	if len(m.script) > 0 {
		status = m.script[0]
		m.script = m.script[1:]
	}
	c := IngestCapture{Headers: r.Header.Clone(), Body: body, Status: status}
	m.captures = append(m.captures, c)
	if status >= 200 && status < 300 {
		for _, id := range c.CorrelationIDs() {
			m.accepted[id] = struct{}{}
		}
	}
	m.mu.Unlock()

	w.WriteHeader(status)
}

// URL returns the ingest endpoint URL.
func (m *MockIngestServer) URL() string {
	return m.Server.URL + "/ingest"
}

// Script queues status codes for the next requests.
func (m *MockIngestServer) Script(codes ...int) {
	m.mu.Lock()
	m.script = append(m.script, codes...)
	m.mu.Unlock()
}

// SetStatus sets the status returned once the script is exhausted.
func (m *MockIngestServer) SetStatus(code int) {
	m.mu.Lock()
	m.status = code
	m.mu.Unlock()
}

// Captures returns every received request.
func (m *MockIngestServer) Captures() []IngestCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IngestCapture, len(m.captures))
	copy(out, m.captures)
	return out
}

// Accepted returns the number of distinct correlation IDs acknowledged with 2xx.
func (m *MockIngestServer) Accepted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accepted)
}

// HasAccepted reports whether a correlation ID was acknowledged.
func (m *MockIngestServer) HasAccepted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accepted[id]
	return ok
}

// WaitForAccepted polls until n distinct records were acknowledged.
func (m *MockIngestServer) WaitForAccepted(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Accepted() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return m.Accepted() >= n
}

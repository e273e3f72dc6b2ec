// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package services

import (
	"context"
	"time"

	"github.com/tomtom215/auditwal/internal/metrics"
)

// UptimeService refreshes the uptime gauge on a fixed interval.
type UptimeService struct {
	start    time.Time
	interval time.Duration
}

// NewUptimeService creates an UptimeService. interval defaults to 15s.
func NewUptimeService(start time.Time, interval time.Duration) *UptimeService {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &UptimeService{start: start, interval: interval}
}

// Serve implements suture.Service.
func (s *UptimeService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	metrics.UpdateUptime(s.start)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			metrics.UpdateUptime(s.start)
		}
	}
}

func (s *UptimeService) String() string {
	return "uptime"
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package services

import (
	"context"
	"fmt"
)

// StartStopper is the Start/Stop lifecycle shared by the background loops.
//
// Satisfied by:
//   - *wal.FlushLoop (Engine.Loop())
//   - *audit.Sweeper
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// LifecycleService runs a StartStopper under suture.
//
//  1. Start(ctx) launches the component's goroutine
//  2. Serve blocks until ctx is canceled
//  3. Stop() waits for the goroutine to exit
//
// If Start fails the error is returned and suture restarts the service with
// backoff.
//
// Example usage:
//
//	tree.AddDataService(services.NewLifecycleService("wal-flush-loop", engine.Loop()))
//	tree.AddDataService(services.NewLifecycleService("pending-sweeper", sweeper))
type LifecycleService struct {
	component StartStopper
	name      string
}

// NewLifecycleService wraps component under the given service name.
func NewLifecycleService(name string, component StartStopper) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// Serve implements suture.Service.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	s.component.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer. Suture logs services by this name.
func (s *LifecycleService) String() string {
	return s.name
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package audit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/auditwal/internal/cache"
)

// ErrDuplicateHalf is returned when a second begin (or end) arrives for a
// correlation ID that already holds one. The first half wins.
var ErrDuplicateHalf = errors.New("audit: duplicate half for correlation id")

// DefaultPendingTTL is how long an unmatched half is held before it is
// emitted as an abandoned record.
const DefaultPendingTTL = 10 * time.Minute

// CorrelatorConfig configures a Correlator.
type CorrelatorConfig struct {
	// PendingTTL bounds how long an unmatched half is held. Default: 10m
	PendingTTL time.Duration

	// CompletedCapacity bounds how many merged correlation IDs are
	// remembered for PendingTTL so retried halves are rejected. Default: 10000
	CompletedCapacity int

	// Now overrides the clock (tests).
	Now func() time.Time
}

// CorrelatorStats is a point-in-time snapshot of correlator counters.
type CorrelatorStats struct {
	Pending        int   `json:"pending"`
	Merged         int64 `json:"merged"`
	Abandoned      int64 `json:"abandoned"`
	Duplicates     int64 `json:"duplicates"`
	Unnormalizable int64 `json:"unnormalizable"`
}

// Correlator pairs begin and end entries into records.
type Correlator struct {
	store     PendingStore
	completed *cache.RecentSet
	ttl       time.Duration
	now       func() time.Time
	mu        sync.Mutex

	merged         atomic.Int64
	abandoned      atomic.Int64
	duplicates     atomic.Int64
	unnormalizable atomic.Int64
}

// NewCorrelator creates a correlator backed by store.
func NewCorrelator(store PendingStore, cfg CorrelatorConfig) *Correlator {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Correlator{
		store:     store,
		completed: cache.NewRecentSet(cfg.CompletedCapacity, cfg.PendingTTL, cfg.Now),
		ttl:       cfg.PendingTTL,
		now:       cfg.Now,
	}
}

// Observe records one half of a request. It returns the merged record when
// the entry completes a pair, or nil while the partner is still outstanding.
//
// Invalid and unnormalizable entries are rejected before touching the store,
// so a bad end never consumes its begin.
func (c *Correlator) Observe(e Entry) (*Record, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.Phase == PhaseEnd {
		if _, err := Normalize(&e); err != nil {
			c.unnormalizable.Add(1)
			return nil, err
		}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.completed.Contains(e.CorrelationID) {
		c.duplicates.Add(1)
		return nil, fmt.Errorf("%w: %s %s already merged", ErrDuplicateHalf, e.Phase, e.CorrelationID)
	}

	other, ok, err := c.store.Take(e.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("lookup pending half: %w", err)
	}

	if !ok {
		if err := c.store.Put(PendingHalf{Entry: e, SeenAt: c.now()}); err != nil {
			return nil, fmt.Errorf("hold pending half: %w", err)
		}
		return nil, nil
	}

	if other.Entry.Phase == e.Phase {
		c.duplicates.Add(1)
		if err := c.store.Put(other); err != nil {
			return nil, fmt.Errorf("restore pending half: %w", err)
		}
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateHalf, e.Phase, e.CorrelationID)
	}

	begin, end := &other.Entry, &e
	if e.Phase == PhaseBegin {
		begin, end = &e, &other.Entry
	}

	rec, err := Merge(begin, end)
	if err != nil {
		return nil, err
	}
	c.completed.Add(e.CorrelationID)
	c.merged.Add(1)
	return &rec, nil
}

// Sweep evicts halves older than the TTL and returns abandoned records for them.
func (c *Correlator) Sweep() ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completed.Prune()

	now := c.now()
	halves, err := c.store.TakeExpired(now.Add(-c.ttl))
	if err != nil {
		return nil, fmt.Errorf("sweep pending halves: %w", err)
	}
	return c.abandon(halves, "", now), nil
}

// Drain removes every held half and returns abandoned records tagged with reason.
func (c *Correlator) Drain(reason string) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	halves, err := c.store.TakeAll()
	if err != nil {
		return nil, fmt.Errorf("drain pending halves: %w", err)
	}
	return c.abandon(halves, reason, c.now()), nil
}

func (c *Correlator) abandon(halves []PendingHalf, reason string, now time.Time) []Record {
	if len(halves) == 0 {
		return nil
	}

	out := make([]Record, 0, len(halves))
	for i := range halves {
		r := reason
		if r == "" {
			r = ReasonEndTimeout
			if halves[i].Entry.Phase == PhaseEnd {
				r = ReasonBeginMissing
			}
		}
		out = append(out, Abandon(&halves[i].Entry, r, now))
	}
	c.abandoned.Add(int64(len(out)))
	return out
}

// Durable reports whether held halves survive a restart.
func (c *Correlator) Durable() bool {
	return c.store.Durable()
}

// Stats returns current counters.
func (c *Correlator) Stats() CorrelatorStats {
	return CorrelatorStats{
		Pending:        c.store.Len(),
		Merged:         c.merged.Load(),
		Abandoned:      c.abandoned.Load(),
		Duplicates:     c.duplicates.Load(),
		Unnormalizable: c.unnormalizable.Load(),
	}
}

// Close closes the pending store.
func (c *Correlator) Close() error {
	return c.store.Close()
}

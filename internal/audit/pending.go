// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package audit

import (
	"sort"
	"sync"
	"time"
)

// PendingHalf is a begin or end entry waiting for its partner.
type PendingHalf struct {
	Entry  Entry     `json:"entry"`
	SeenAt time.Time `json:"seen_at"`
}

// PendingStore holds unmatched halves keyed by correlation ID.
// The Correlator serializes access, so implementations need not be atomic
// across calls.
type PendingStore interface {
	// Put stores a half, replacing any existing half for the same ID.
	Put(half PendingHalf) error

	// Take removes and returns the half stored for the ID.
	Take(correlationID string) (PendingHalf, bool, error)

	// TakeExpired removes and returns every half seen before cutoff, oldest first.
	TakeExpired(cutoff time.Time) ([]PendingHalf, error)

	// TakeAll removes and returns every half, oldest first.
	TakeAll() ([]PendingHalf, error)

	// Len returns the number of held halves.
	Len() int

	// Durable reports whether held halves survive a process restart.
	Durable() bool

	Close() error
}

// MemoryPendingStore is a map-backed PendingStore.
type MemoryPendingStore struct {
	mu     sync.Mutex
	halves map[string]PendingHalf
}

// NewMemoryPendingStore creates an empty in-memory store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{halves: make(map[string]PendingHalf)}
}

func (s *MemoryPendingStore) Put(half PendingHalf) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halves[half.Entry.CorrelationID] = half
	return nil
}

func (s *MemoryPendingStore) Take(correlationID string) (PendingHalf, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	half, ok := s.halves[correlationID]
	if ok {
		delete(s.halves, correlationID)
	}
	return half, ok, nil
}

func (s *MemoryPendingStore) TakeExpired(cutoff time.Time) ([]PendingHalf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PendingHalf
	for id, half := range s.halves {
		if half.SeenAt.Before(cutoff) {
			out = append(out, half)
			delete(s.halves, id)
		}
	}
	sortHalves(out)
	return out, nil
}

func (s *MemoryPendingStore) TakeAll() ([]PendingHalf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingHalf, 0, len(s.halves))
	for _, half := range s.halves {
		out = append(out, half)
	}
	s.halves = make(map[string]PendingHalf)
	sortHalves(out)
	return out, nil
}

func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.halves)
}

func (s *MemoryPendingStore) Durable() bool { return false }

func (s *MemoryPendingStore) Close() error { return nil }

func sortHalves(halves []PendingHalf) {
	sort.Slice(halves, func(i, j int) bool {
		if halves[i].SeenAt.Equal(halves[j].SeenAt) {
			return halves[i].Entry.CorrelationID < halves[j].Entry.CorrelationID
		}
		return halves[i].SeenAt.Before(halves[j].SeenAt)
	})
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRecentSet_AddContains(t *testing.T) {
	s := NewRecentSet(10, time.Minute, nil)

	if s.Contains("a") {
		t.Error("empty set contains a")
	}
	s.Add("a")
	if !s.Contains("a") {
		t.Error("Contains(a) = false after Add")
	}
	s.Add("a")
	if s.Len() != 1 {
		t.Errorf("Len() = %d after re-adding, want 1", s.Len())
	}
}

func TestRecentSet_TTL(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := NewRecentSet(10, time.Minute, clock.Now)

	s.Add("a")
	clock.Advance(30 * time.Second)
	s.Add("b")

	clock.Advance(31 * time.Second)
	if s.Contains("a") {
		t.Error("a still present after TTL")
	}
	if !s.Contains("b") {
		t.Error("b expired early")
	}

	clock.Advance(time.Minute)
	if got := s.Prune(); got != 1 {
		t.Errorf("Prune() = %d, want 1", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after prune", s.Len())
	}
}

func TestRecentSet_ReAddRefreshesExpiry(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := NewRecentSet(10, time.Minute, clock.Now)

	s.Add("a")
	clock.Advance(50 * time.Second)
	s.Add("a")
	clock.Advance(50 * time.Second)
	if !s.Contains("a") {
		t.Error("refreshed key expired")
	}
}

func TestRecentSet_CapacityEvictsOldest(t *testing.T) {
	s := NewRecentSet(3, time.Hour, nil)
	for i := 0; i < 5; i++ {
		s.Add(fmt.Sprintf("k%d", i))
	}

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.Evictions() != 2 {
		t.Errorf("Evictions() = %d, want 2", s.Evictions())
	}
	for _, k := range []string{"k0", "k1"} {
		if s.Contains(k) {
			t.Errorf("%s survived eviction", k)
		}
	}
	for _, k := range []string{"k2", "k3", "k4"} {
		if !s.Contains(k) {
			t.Errorf("%s evicted", k)
		}
	}
}

func TestRecentSet_Defaults(t *testing.T) {
	s := NewRecentSet(0, 0, nil)
	if s.capacity != DefaultRecentCapacity || s.ttl != DefaultRecentTTL {
		t.Errorf("defaults = %d, %v", s.capacity, s.ttl)
	}
}

func TestRecentSet_Concurrent(t *testing.T) {
	s := NewRecentSet(100, time.Minute, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				s.Add(key)
				s.Contains(key)
			}
		}(g)
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Errorf("Len() = %d, want 100", s.Len())
	}
}

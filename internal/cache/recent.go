// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package cache

import (
	"sync"
	"time"
)

// Defaults for NewRecentSet.
const (
	DefaultRecentCapacity = 10000
	DefaultRecentTTL      = 10 * time.Minute
)

type recentEntry struct {
	key       string
	expiresAt time.Time
	prev      *recentEntry
	next      *recentEntry
}

// RecentSet remembers keys for a bounded time and a bounded count.
// The least recently added key is evicted first when full; expired keys
// are dropped lazily on lookup and by Prune.
//
// Safe for concurrent use.
type RecentSet struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	items    map[string]*recentEntry

	// head.next is the newest entry, tail.prev the oldest.
	head *recentEntry
	tail *recentEntry

	evictions int64
}

// NewRecentSet creates a set. Non-positive values take the defaults; a nil
// now uses time.Now.
func NewRecentSet(capacity int, ttl time.Duration, now func() time.Time) *RecentSet {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	if ttl <= 0 {
		ttl = DefaultRecentTTL
	}
	if now == nil {
		now = time.Now
	}

	s := &RecentSet{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		items:    make(map[string]*recentEntry),
		head:     &recentEntry{},
		tail:     &recentEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Add records key, refreshing its expiry if already present.
func (s *RecentSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(s.ttl)
	if e, ok := s.items[key]; ok {
		e.expiresAt = expiresAt
		s.unlink(e)
		s.pushFront(e)
		return
	}

	e := &recentEntry{key: key, expiresAt: expiresAt}
	s.pushFront(e)
	s.items[key] = e

	for len(s.items) > s.capacity {
		s.remove(s.tail.prev)
		s.evictions++
	}
}

// Contains reports whether key was added within the TTL.
func (s *RecentSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return false
	}
	if s.now().After(e.expiresAt) {
		s.remove(e)
		return false
	}
	return true
}

// Prune drops expired keys and returns how many went.
func (s *RecentSet) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for e := s.tail.prev; e != s.head; {
		prev := e.prev
		if now.After(e.expiresAt) {
			s.remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Len returns the number of keys held, expired ones included until pruned.
func (s *RecentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Evictions is the number of keys pushed out by the capacity bound.
func (s *RecentSet) Evictions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

// Lock held for everything below.

func (s *RecentSet) pushFront(e *recentEntry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *RecentSet) unlink(e *recentEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (s *RecentSet) remove(e *recentEntry) {
	if e == s.head || e == s.tail {
		return
	}
	s.unlink(e)
	delete(s.items, e.key)
}

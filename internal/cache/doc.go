// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package cache provides small in-memory structures used on the ingest path.

RecentSet is a bounded, TTL-limited set of keys built on a hashmap and a
doubly-linked list, so Add, Contains and eviction are O(1). The correlator
uses it to remember correlation IDs that have already produced a record:
a retried half for such an ID is dropped as a duplicate instead of being
held until it is abandoned.

	seen := cache.NewRecentSet(10000, 10*time.Minute, nil)
	seen.Add("corr-1")
	seen.Contains("corr-1") // true until the TTL passes or it is evicted

The set is process-local. After a restart a late retry for a merged ID is
held like any other half.
*/
package cache

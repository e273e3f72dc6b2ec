// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package authz

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

// MinKeyLength is the shortest accepted API key.
const MinKeyLength = 16

// ErrUnknownKey is returned by KeyRing.Lookup for a key that is not configured.
var ErrUnknownKey = errors.New("unknown api key")

// Principal is the caller an API key resolves to.
type Principal struct {
	Name string
	Role string
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal set by the middleware, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type keyEntry struct {
	digest    [sha256.Size]byte
	principal Principal
}

// KeyRing holds API key digests. Raw keys are not retained.
type KeyRing struct {
	entries []keyEntry
}

// ParseKeySpec splits "role:name:key". The key itself may contain colons.
func ParseKeySpec(spec string) (Principal, string, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return Principal{}, "", errors.New("api key must be role:name:key")
	}
	role, name, key := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), parts[2]
	if role == "" || name == "" {
		return Principal{}, "", errors.New("api key role and name must be set")
	}
	if len(key) < MinKeyLength {
		return Principal{}, "", fmt.Errorf("api key for %q shorter than %d characters", name, MinKeyLength)
	}
	return Principal{Name: name, Role: role}, key, nil
}

// NewKeyRing parses specs. When enforcer is non-nil every role must be
// known to its policy.
func NewKeyRing(specs []string, enforcer *Enforcer) (*KeyRing, error) {
	ring := &KeyRing{}
	names := make(map[string]bool, len(specs))

	for i, spec := range specs {
		p, key, err := ParseKeySpec(spec)
		if err != nil {
			return nil, fmt.Errorf("api key %d: %w", i, err)
		}
		if names[p.Name] {
			return nil, fmt.Errorf("api key %d: duplicate name %q", i, p.Name)
		}
		if enforcer != nil && !enforcer.KnownRole(p.Role) {
			return nil, fmt.Errorf("api key %q: role %q not in policy", p.Name, p.Role)
		}
		names[p.Name] = true
		ring.entries = append(ring.entries, keyEntry{digest: sha256.Sum256([]byte(key)), principal: p})
	}
	return ring, nil
}

// Len is the number of configured keys.
func (k *KeyRing) Len() int {
	return len(k.entries)
}

// Lookup resolves key. Every entry is compared so timing does not depend
// on which one matches.
func (k *KeyRing) Lookup(key string) (Principal, error) {
	digest := sha256.Sum256([]byte(key))

	var found Principal
	match := 0
	for i := range k.entries {
		if subtle.ConstantTimeCompare(digest[:], k.entries[i].digest[:]) == 1 {
			found = k.entries[i].principal
			match = 1
		}
	}
	if match == 0 {
		return Principal{}, ErrUnknownKey
	}
	return found, nil
}

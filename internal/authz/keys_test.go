// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package authz

import (
	"context"
	"errors"
	"testing"
)

const (
	producerKey = "prod-0123456789abcdef"
	operatorKey = "oper-0123456789abcdef"
)

func TestParseKeySpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    Principal
		wantKey string
		wantErr bool
	}{
		{name: "valid", spec: "producer:billing:" + producerKey, want: Principal{Name: "billing", Role: "producer"}, wantKey: producerKey},
		{name: "colon in key", spec: "admin:ops:abc:def:0123456789ab", want: Principal{Name: "ops", Role: "admin"}, wantKey: "abc:def:0123456789ab"},
		{name: "two parts", spec: "producer:" + producerKey, wantErr: true},
		{name: "empty role", spec: ":billing:" + producerKey, wantErr: true},
		{name: "empty name", spec: "producer::" + producerKey, wantErr: true},
		{name: "short key", spec: "producer:billing:short", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, key, err := ParseKeySpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKeySpec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p != tt.want || key != tt.wantKey {
				t.Errorf("ParseKeySpec() = %+v, %q", p, key)
			}
		})
	}
}

func TestKeyRing_Lookup(t *testing.T) {
	ring, err := NewKeyRing([]string{
		"producer:billing:" + producerKey,
		"operator:oncall:" + operatorKey,
	}, nil)
	if err != nil {
		t.Fatalf("NewKeyRing() error = %v", err)
	}
	if ring.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ring.Len())
	}

	p, err := ring.Lookup(operatorKey)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if p.Name != "oncall" || p.Role != RoleOperator {
		t.Errorf("Lookup() = %+v", p)
	}

	if _, err := ring.Lookup("nope-0123456789abcdef"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Lookup(unknown) error = %v, want ErrUnknownKey", err)
	}
}

func TestNewKeyRing_Rejects(t *testing.T) {
	e, err := NewEnforcer(EnforcerConfig{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewKeyRing([]string{"auditor:x:" + producerKey}, e); err == nil {
		t.Error("role outside the policy accepted")
	}
	if _, err := NewKeyRing([]string{
		"producer:billing:" + producerKey,
		"operator:billing:" + operatorKey,
	}, e); err == nil {
		t.Error("duplicate name accepted")
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Error("principal found in empty context")
	}
	ctx := WithPrincipal(context.Background(), Principal{Name: "billing", Role: RoleProducer})
	p, ok := PrincipalFrom(ctx)
	if !ok || p.Name != "billing" {
		t.Errorf("PrincipalFrom() = %+v, %v", p, ok)
	}
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CredentialSource yields the token sent with each HTTP request.
type CredentialSource interface {
	Token() (string, error)
}

// StaticCredential is a fixed bearer token or internal key.
type StaticCredential string

// Token returns the credential unchanged.
func (c StaticCredential) Token() (string, error) {
	if c == "" {
		return "", fmt.Errorf("static credential is empty")
	}
	return string(c), nil
}

// JWTCredential mints a short-lived HS256 token per request.
type JWTCredential struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	now      func() time.Time
}

// NewJWTCredential creates a signer. TTL defaults to five minutes.
func NewJWTCredential(secret, issuer, audience string, ttl time.Duration) *JWTCredential {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWTCredential{
		Secret:   []byte(secret),
		Issuer:   issuer,
		Audience: audience,
		TTL:      ttl,
		now:      time.Now,
	}
}

// Token signs a fresh token.
func (c *JWTCredential) Token() (string, error) {
	if len(c.Secret) == 0 {
		return "", fmt.Errorf("jwt credential: signing secret is empty")
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.Issuer,
		Subject:   "audit-writer",
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL)),
		ID:        uuid.New().String(),
	}
	if c.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt credential: %w", err)
	}
	return signed, nil
}

// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// EncryptedPrefix marks a credential value that must be decrypted with the
// secret key before use.
const EncryptedPrefix = "enc:"

const (
	credentialEncryptionSalt = "auditwal-writer-credentials"
	credentialEncryptionInfo = "credential-encryption-v1"
	aesKeySize               = 32
	gcmNonceSize             = 12
)

var (
	// ErrEmptySecret is returned when no secret key is configured.
	ErrEmptySecret = errors.New("secret key cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrDecryptionFailed is returned for tampered data or a wrong key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
)

// CredentialEncryptor provides AES-256-GCM encryption for writer credentials
// kept in config files. The key is derived from AUDIT_SECRET_KEY with HKDF.
type CredentialEncryptor struct {
	cipher cipher.AEAD
}

// NewCredentialEncryptor creates an encryptor keyed from secret.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &CredentialEncryptor{cipher: gcm}, nil
}

// Encrypt returns "enc:" + base64(nonce || ciphertext || tag).
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.cipher.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The "enc:" prefix is optional.
func (e *CredentialEncryptor) Decrypt(value string) (string, error) {
	value = strings.TrimPrefix(value, EncryptedPrefix)
	if value == "" {
		return "", ErrInvalidCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	// nonce + at least one byte + tag
	if len(data) < gcmNonceSize+1+e.cipher.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	plaintext, err := e.cipher.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// MaskCredential returns a display-safe version of a credential.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 4 {
		return "****"
	}
	return "****..." + credential[len(credential)-4:]
}

func deriveKey(secret string) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte(credentialEncryptionSalt),
		[]byte(credentialEncryptionInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}

// decryptCredentials replaces every "enc:" credential in place.
func (c *Config) decryptCredentials() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"AUDIT_HTTP_CREDENTIAL", &c.Writer.HTTP.Credential},
		{"AUDIT_HTTP_SECONDARY_CREDENTIAL", &c.Writer.HTTP.SecondaryCredential},
		{"AUDIT_HTTP_SIGNING_SECRET", &c.Writer.HTTP.SigningSecret},
		{"AUDIT_DB_DSN", &c.Writer.DB.DSN},
	}

	var enc *CredentialEncryptor
	for _, f := range fields {
		if !strings.HasPrefix(*f.value, EncryptedPrefix) {
			continue
		}
		if enc == nil {
			var err error
			if enc, err = NewCredentialEncryptor(c.SecretKey); err != nil {
				return fmt.Errorf("%s is encrypted but AUDIT_SECRET_KEY is unusable: %w", f.name, err)
			}
		}
		plain, err := enc.Decrypt(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = plain
	}

	for i, spec := range c.Auth.APIKeys {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) != 3 || !strings.HasPrefix(parts[2], EncryptedPrefix) {
			continue
		}
		if enc == nil {
			var err error
			if enc, err = NewCredentialEncryptor(c.SecretKey); err != nil {
				return fmt.Errorf("AUDIT_AUTH_API_KEYS[%d] is encrypted but AUDIT_SECRET_KEY is unusable: %w", i, err)
			}
		}
		plain, err := enc.Decrypt(parts[2])
		if err != nil {
			return fmt.Errorf("AUDIT_AUTH_API_KEYS[%d]: %w", i, err)
		}
		c.Auth.APIKeys[i] = parts[0] + ":" + parts[1] + ":" + plain
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

// Package session implements server-side session state keyed by an opaque
// token carried in a client cookie.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Session token configuration.
const (
	TokenBytes = 32             // 32 bytes = 64 hex chars
	DefaultTTL = 24 * time.Hour // absolute expiry
)

// ErrNoSession is returned when an identifier maps to no live session.
var ErrNoSession = oops.Code("SESSION_MISSING").Errorf("no session for identifier")

// Store is the key/value backend sessions live in. Identifiers are token
// hashes, never the raw cookie tokens. Every entry carries the store's TTL;
// reads of an expired identifier behave exactly like reads of an unknown
// one. Rotate must be atomic: once it returns, the old identifier reads as
// absent.
type Store interface {
	// Get returns the value stored under key for the session, and whether
	// it was present.
	Get(ctx context.Context, id, key string) ([]byte, bool, error)

	// Set stores value under key, creating the session entry if needed
	// and stamping its expiry.
	Set(ctx context.Context, id, key string, value []byte) error

	// Delete destroys the whole session.
	Delete(ctx context.Context, id string) error

	// Rotate moves every key from oldID to newID and invalidates oldID.
	Rotate(ctx context.Context, oldID, newID string) error
}

// GenerateToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; only the hash touches the store.
func GenerateToken() (token, hash string, err error) {
	raw := make([]byte, TokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(raw)
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken computes the SHA256 hash of a session token. Keying the store
// by the hash means a leaked store dump yields no usable cookies.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks if the plaintext token matches the stored hash.
// Uses constant-time comparison to prevent timing attacks.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

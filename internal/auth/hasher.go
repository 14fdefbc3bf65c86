// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// ErrMalformedHash wraps every hash-parse failure from Verify. Callers that
// must not leak account state treat it as a plain mismatch.
var ErrMalformedHash = errors.New("malformed password hash")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted, self-describing hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the stored hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error
	// when the stored hash cannot be parsed.
	Verify(password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id encoded in the
// PHC string format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<digest>.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password with a fresh random salt.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	digest := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify re-derives the digest using the parameters embedded in encodedHash
// and compares in constant time.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	params, err := decodeHash(encodedHash)
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").
			With("detail", err.Error()).
			Wrap(ErrMalformedHash)
	}

	computed := argon2.IDKey([]byte(password), params.salt, params.time, params.memory, params.threads, params.keyLen)

	return subtle.ConstantTimeCompare(computed, params.digest) == 1, nil
}

// hashParams holds the decoded fields of a PHC-encoded argon2id hash.
type hashParams struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	digest  []byte
	keyLen  uint32
}

// decodeHash parses a PHC argon2id string. A corrupt stored hash must never
// panic the caller, so every field is validated before use.
func decodeHash(encodedHash string) (*hashParams, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("parse version: %w", err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	// Threads must fit in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return nil, fmt.Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}

	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}
	// Bounded key length prevents integer overflow in the uint32 conversion
	if len(digest) == 0 || len(digest) > 1<<30 {
		return nil, fmt.Errorf("invalid digest length: %d", len(digest))
	}

	return &hashParams{
		memory:  memory,
		time:    time,
		threads: uint8(threads),
		salt:    salt,
		digest:  digest,
		keyLen:  uint32(len(digest)),
	}, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// ContextHasher is the hashing contract the service depends on. HashPool
// satisfies it; tests substitute fakes.
type ContextHasher interface {
	HashContext(ctx context.Context, password string) (string, error)
	VerifyContext(ctx context.Context, password, hash string) (bool, error)
}

// Service verifies credentials and registers accounts. It never touches
// sessions or cookies; callers turn its results into session state.
type Service struct {
	users  UserRepository
	hasher ContextHasher
	logger *slog.Logger
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher ContextHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, hasher: hasher, logger: logger}, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authenticate verifies an email/password pair against the stored account.
// Unknown email and wrong password both come back as ErrInvalidCredentials
// after the same amount of work; repository and hashing-backend failures
// surface as distinct internal errors so they are never mistaken for a bad
// password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, lookupErr := s.users.GetByEmail(ctx, strings.ToLower(email))

	// Verify against a dummy hash when the account is absent so response
	// time stays uniform.
	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.VerifyContext(ctx, password, targetHash)
	if verifyErr != nil {
		// A corrupt stored hash fails closed as a credential mismatch;
		// anything else is a backend failure the operator must see.
		if errors.Is(verifyErr, ErrMalformedHash) {
			if userExists {
				s.logger.Warn("stored password hash is malformed",
					"user_id", user.ID.String())
			}
			return nil, ErrInvalidCredentials
		}
		return nil, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Register creates a new account. Uniqueness violations on email or
// username pass through as DuplicateFieldError so the caller can report
// them per field.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	passwordHash, err := s.hasher.HashContext(ctx, password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, username, passwordHash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if _, ok := IsDuplicateField(err); ok {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			With("username", username).
			Wrap(err)
	}

	s.logger.Info("user registered",
		"user_id", user.ID.String(),
		"username", user.Username)

	return user, nil
}

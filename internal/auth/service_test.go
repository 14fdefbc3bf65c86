// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/auth"
)

// fakeUserRepo is an in-memory UserRepository keyed by lowercased email.
type fakeUserRepo struct {
	users     map[string]*auth.User
	createErr error
	lookupErr error

	createCalls int
	lookupCalls int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*auth.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.users[user.Email]; exists {
		return &auth.DuplicateFieldError{Field: "email"}
	}
	for _, u := range r.users {
		if u.Username == user.Username {
			return &auth.DuplicateFieldError{Field: "username"}
		}
	}
	r.users[user.Email] = user
	return nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.lookupCalls++
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	user, ok := r.users[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// recordingHasher wraps fakeHasher and records every hash it was asked to
// verify against.
type recordingHasher struct {
	fakeHasher
	verified []string
}

func (h *recordingHasher) HashContext(_ context.Context, password string) (string, error) {
	return h.Hash(password)
}

func (h *recordingHasher) VerifyContext(_ context.Context, password, hash string) (bool, error) {
	h.verified = append(h.verified, hash)
	return h.Verify(password, hash)
}

func newService(t *testing.T, repo *fakeUserRepo, hasher *recordingHasher) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(repo, hasher, nil)
	require.NoError(t, err)
	return svc
}

func mustRegister(t *testing.T, svc *auth.Service, username, email, password string) *auth.User {
	t.Helper()
	user, err := svc.Register(context.Background(), username, email, password)
	require.NoError(t, err)
	return user
}

func TestNewService_NilDependencies(t *testing.T) {
	t.Run("nil user repository", func(t *testing.T) {
		svc, err := auth.NewService(nil, &recordingHasher{}, nil)
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "user repository is required")
	})

	t.Run("nil hasher", func(t *testing.T) {
		svc, err := auth.NewService(newFakeUserRepo(), nil, nil)
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "password hasher is required")
	})
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a user with a hashed password", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})

		user, err := svc.Register(ctx, "alice", "Alice@Example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "hash-of-password123", user.PasswordHash)
		assert.NotEqual(t, uuid.Nil, user.ID)
	})

	t.Run("rejects invalid usernames before hashing", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})

		tests := []string{"", "ab", "1starts_with_digit", "has space", "has-dash"}
		for _, username := range tests {
			_, err := svc.Register(ctx, username, "a@example.com", "password123")
			assert.Error(t, err, "username %q", username)
		}
		assert.Zero(t, repo.createCalls)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})

		_, err := svc.Register(ctx, "alice", "not-an-email", "password123")
		assert.Error(t, err)
		assert.Zero(t, repo.createCalls)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})

		_, err := svc.Register(ctx, "alice", "a@example.com", "")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
		assert.Zero(t, repo.createCalls)
	})

	t.Run("duplicate email passes through with the field name", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})
		mustRegister(t, svc, "alice", "a@example.com", "password123")

		_, err := svc.Register(ctx, "bob", "a@example.com", "otherpassword")
		field, ok := auth.IsDuplicateField(err)
		require.True(t, ok)
		assert.Equal(t, "email", field)
	})

	t.Run("duplicate username passes through with the field name", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})
		mustRegister(t, svc, "alice", "a@example.com", "password123")

		_, err := svc.Register(ctx, "alice", "b@example.com", "otherpassword")
		field, ok := auth.IsDuplicateField(err)
		require.True(t, ok)
		assert.Equal(t, "username", field)
	})

	t.Run("hashing failure surfaces as an internal error", func(t *testing.T) {
		repo := newFakeUserRepo()
		hasher := &recordingHasher{fakeHasher: fakeHasher{hashErr: errors.New("pool down")}}
		svc := newService(t, repo, hasher)

		_, err := svc.Register(ctx, "alice", "a@example.com", "password123")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Zero(t, repo.createCalls)
	})

	t.Run("other repository failures are wrapped", func(t *testing.T) {
		repo := newFakeUserRepo()
		repo.createErr = errors.New("connection reset")
		svc := newService(t, repo, &recordingHasher{})

		_, err := svc.Register(ctx, "alice", "a@example.com", "password123")
		require.Error(t, err)
		_, isDup := auth.IsDuplicateField(err)
		assert.False(t, isDup)
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials return the user", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})
		registered := mustRegister(t, svc, "alice", "a@example.com", "password123")

		user, err := svc.Authenticate(ctx, "a@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("email lookup is case-insensitive", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})
		mustRegister(t, svc, "alice", "a@example.com", "password123")

		_, err := svc.Authenticate(ctx, "A@Example.COM", "password123")
		require.NoError(t, err)
	})

	t.Run("wrong password returns ErrInvalidCredentials", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})
		mustRegister(t, svc, "alice", "a@example.com", "password123")

		user, err := svc.Authenticate(ctx, "a@example.com", "wrongpassword")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Nil(t, user)
	})

	t.Run("unknown email still runs verification", func(t *testing.T) {
		repo := newFakeUserRepo()
		hasher := &recordingHasher{}
		svc := newService(t, repo, hasher)

		user, err := svc.Authenticate(ctx, "ghost@example.com", "password123")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Nil(t, user)

		// The dummy hash was verified so timing matches the known-user path.
		require.Len(t, hasher.verified, 1)
		assert.Contains(t, hasher.verified[0], "$argon2id$")
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := newService(t, repo, &recordingHasher{})
		mustRegister(t, svc, "alice", "a@example.com", "password123")

		_, unknownErr := svc.Authenticate(ctx, "ghost@example.com", "password123")
		_, wrongErr := svc.Authenticate(ctx, "a@example.com", "wrongpassword")
		assert.Equal(t, unknownErr, wrongErr)
	})

	t.Run("malformed stored hash fails closed as invalid credentials", func(t *testing.T) {
		repo := newFakeUserRepo()
		hasher := &recordingHasher{fakeHasher: fakeHasher{verifyErr: auth.ErrMalformedHash}}
		svc := newService(t, repo, hasher)
		mustRegister(t, svc, "alice", "a@example.com", "password123")

		user, err := svc.Authenticate(ctx, "a@example.com", "password123")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Nil(t, user)
	})

	t.Run("verification backend failure is not a credential error", func(t *testing.T) {
		repo := newFakeUserRepo()
		backendErr := errors.New("pool closed")
		hasher := &recordingHasher{fakeHasher: fakeHasher{verifyErr: backendErr}}
		svc := newService(t, repo, hasher)
		mustRegister(t, svc, "alice", "a@example.com", "password123")

		_, err := svc.Authenticate(ctx, "a@example.com", "password123")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.ErrorIs(t, err, backendErr)
	})

	t.Run("repository failure is not a credential error", func(t *testing.T) {
		repo := newFakeUserRepo()
		repo.lookupErr = errors.New("connection reset")
		svc := newService(t, repo, &recordingHasher{})

		_, err := svc.Authenticate(ctx, "a@example.com", "password123")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

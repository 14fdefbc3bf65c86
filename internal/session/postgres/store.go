// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

// Package postgres implements the session store on PostgreSQL, for
// deployments where sessions must survive a process restart.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/taskweave/taskweave/internal/session"
)

// db is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store keeps sessions in the sessions table, one row per (id, key).
type Store struct {
	db  db
	ttl time.Duration
}

// NewStore creates a Store. ttl <= 0 falls back to session.DefaultTTL.
func NewStore(db db, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &Store{db: db, ttl: ttl}
}

// Get returns the value stored under key for the session. Expired rows
// read as absent; DeleteExpired reaps them for real.
func (s *Store) Get(ctx context.Context, id, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `
		SELECT value FROM sessions
		WHERE id = $1 AND key = $2 AND expires_at > now()
	`, id, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.Code("SESSION_STORE_GET_FAILED").
			With("operation", "select session value").
			Wrap(err)
	}
	return value, true, nil
}

// Set stores value under key, refreshing the session's expiry.
func (s *Store) Set(ctx context.Context, id, key string, value []byte) error {
	expiresAt := time.Now().Add(s.ttl)
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id, key) DO UPDATE SET value = $3, expires_at = $4
	`, id, key, value, expiresAt)
	if err != nil {
		return oops.Code("SESSION_STORE_SET_FAILED").
			With("operation", "upsert session value").
			Wrap(err)
	}
	return nil
}

// Delete destroys the whole session.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return oops.Code("SESSION_STORE_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// Rotate re-keys every row of oldID to newID in one transaction, so reads
// of oldID fail as absent the moment the rotation commits.
func (s *Store) Rotate(ctx context.Context, oldID, newID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("SESSION_STORE_ROTATE_FAILED").
			With("operation", "begin rotate transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	expiresAt := time.Now().Add(s.ttl)
	if _, err := tx.Exec(ctx, `
		UPDATE sessions SET id = $2, expires_at = $3
		WHERE id = $1
	`, oldID, newID, expiresAt); err != nil {
		return oops.Code("SESSION_STORE_ROTATE_FAILED").
			With("operation", "re-key session rows").
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("SESSION_STORE_ROTATE_FAILED").
			With("operation", "commit rotate transaction").
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all expired rows and returns the count of deleted
// records.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, oops.Code("SESSION_STORE_REAP_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ session.Store = (*Store)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package session

import (
	"context"
	"sync"
	"time"
)

// entry is one session's values plus its absolute expiry.
type entry struct {
	values    map[string][]byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. It is safe for concurrent use and
// suitable for tests and single-node deployments; the postgres store is the
// durable option.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. ttl <= 0 falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// live returns the entry for id if it exists and has not expired.
// Expired entries are reaped on sight. Caller must hold mu.
func (s *MemoryStore) live(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return nil
	}
	return e
}

// Get returns the value stored under key for the session.
func (s *MemoryStore) Get(_ context.Context, id, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return nil, false, nil
	}
	v, ok := e.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores value under key, creating the session entry if needed.
func (s *MemoryStore) Set(_ context.Context, id, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		e = &entry{values: make(map[string][]byte)}
		s.entries[id] = e
	}
	e.expiresAt = s.now().Add(s.ttl)
	stored := make([]byte, len(value))
	copy(stored, value)
	e.values[key] = stored
	return nil
}

// Delete destroys the whole session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Rotate moves every key from oldID to newID and invalidates oldID in one
// critical section, so a hijacked pre-rotation identifier is dead the
// moment the new one exists.
func (s *MemoryStore) Rotate(_ context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(oldID)
	delete(s.entries, oldID)
	if e == nil {
		e = &entry{values: make(map[string][]byte)}
	}
	e.expiresAt = s.now().Add(s.ttl)
	s.entries[newID] = e
	return nil
}

// Purge drops every expired entry. Callers that keep a MemoryStore alive
// for long runs should invoke it periodically; Get/Set reap lazily anyway.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

var _ Store = (*MemoryStore)(nil)

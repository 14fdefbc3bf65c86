// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package session

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Well-known session keys.
const (
	// PayloadKey is the key the authenticated identity lives under.
	PayloadKey = "user_session"
)

// Payload is the identity stored in a session after login.
type Payload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// Handle is a typed view over one request's session. It is bound to the
// token presented by the client (or a freshly issued one) and talks to the
// store through the token's hash.
type Handle struct {
	store Store
	token string
	hash  string
}

// NewHandle binds a handle to an existing client token. An empty token
// yields a handle with no live session; Cycle issues a real one.
func NewHandle(store Store, token string) *Handle {
	h := &Handle{store: store, token: token}
	if token != "" {
		h.hash = HashToken(token)
	}
	return h
}

// Token returns the plaintext token to hand back to the client.
func (h *Handle) Token() string {
	return h.token
}

// Payload returns the authenticated identity, if any.
func (h *Handle) Payload(ctx context.Context) (Payload, bool, error) {
	if h.hash == "" {
		return Payload{}, false, nil
	}
	raw, ok, err := h.store.Get(ctx, h.hash, PayloadKey)
	if err != nil {
		return Payload{}, false, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session payload").
			Wrap(err)
	}
	if !ok {
		return Payload{}, false, nil
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, false, oops.Code("SESSION_DECODE_FAILED").
			With("operation", "decode session payload").
			Wrap(err)
	}
	return p, true, nil
}

// SetPayload stores the authenticated identity.
func (h *Handle) SetPayload(ctx context.Context, p Payload) error {
	if h.hash == "" {
		return ErrNoSession
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").
			With("operation", "encode session payload").
			Wrap(err)
	}
	if err := h.store.Set(ctx, h.hash, PayloadKey, raw); err != nil {
		return oops.Code("SESSION_SET_FAILED").
			With("operation", "set session payload").
			Wrap(err)
	}
	return nil
}

// Cycle rotates the session identifier. Any state stored under the old
// identifier moves to the new one and the old identifier becomes invalid
// immediately. Called on every privilege change (login, logout) to defeat
// session fixation.
func (h *Handle) Cycle(ctx context.Context) error {
	token, hash, err := GenerateToken()
	if err != nil {
		return err
	}

	if h.hash != "" {
		if err := h.store.Rotate(ctx, h.hash, hash); err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").
				With("operation", "rotate session").
				Wrap(err)
		}
	}

	h.token = token
	h.hash = hash
	return nil
}

// Destroy removes all server-side state for this session.
func (h *Handle) Destroy(ctx context.Context) error {
	if h.hash == "" {
		return nil
	}
	if err := h.store.Delete(ctx, h.hash); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	h.token = ""
	h.hash = ""
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

// Package flash carries a single user-visible notification across exactly
// one redirect, as a tamper-evident signed cookie. No session is required,
// which matters for the one flow that needs a flash most: a failed login
// before any session exists.
package flash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/samber/oops"
)

// CookieName is the cookie the signed message travels in.
const CookieName = "error_flash"

// Level classifies a message for presentation.
type Level string

// Message levels.
const (
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Message is a one-shot notification.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// envelope is the wire form: the message plus its authentication tag.
type envelope struct {
	Message Message `json:"message"`
	Tag     string  `json:"tag"`
}

// Key is the process-wide MAC secret, loaded once at startup and never
// rotated during a process lifetime. Compromising it lets an attacker forge
// flash text but grants no session access.
type Key []byte

// NewKey validates and wraps a MAC secret.
func NewKey(secret []byte) (Key, error) {
	if len(secret) < 32 {
		return nil, oops.Code("FLASH_KEY_TOO_SHORT").
			With("length", len(secret)).
			Errorf("flash MAC key must be at least 32 bytes")
	}
	return Key(secret), nil
}

// tag computes the hex HMAC-SHA256 over the message. Level is bound into
// the tag so an error cannot be replayed as a success.
func (k Key) tag(m Message) string {
	mac := hmac.New(sha256.New, k)
	mac.Write([]byte(string(m.Level)))
	mac.Write([]byte{0})
	mac.Write([]byte(m.Text))
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks the envelope's tag in constant time.
func (k Key) verify(e envelope) bool {
	want, err := hex.DecodeString(e.Tag)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, k)
	mac.Write([]byte(string(e.Message.Level)))
	mac.Write([]byte{0})
	mac.Write([]byte(e.Message.Text))
	return hmac.Equal(mac.Sum(nil), want)
}

// Set attaches msg to the response as a signed, URL-encoded JSON cookie.
func Set(w http.ResponseWriter, key Key, msg Message) error {
	raw, err := json.Marshal(envelope{Message: msg, Tag: key.tag(msg)})
	if err != nil {
		return oops.Code("FLASH_ENCODE_FAILED").
			With("operation", "encode flash envelope").
			Wrap(err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(string(raw)),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Take reads the flash cookie, clears it unconditionally, and returns the
// message if its tag verifies. A missing cookie is (nil, false). A tampered
// or undecodable cookie is discarded with a warning and reported via the
// second return; the user never sees it and the request proceeds as if no
// flash existed.
func Take(w http.ResponseWriter, r *http.Request, key Key, logger *slog.Logger) (*Message, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, false
	}

	// Single delivery: the cookie dies on first read, valid or not.
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	decoded, err := url.QueryUnescape(c.Value)
	if err != nil {
		logger.Warn("flash cookie is not URL-encoded", "error", err)
		return nil, true
	}

	var e envelope
	if err := json.Unmarshal([]byte(decoded), &e); err != nil {
		logger.Warn("flash cookie is not valid JSON", "error", err)
		return nil, true
	}

	if !key.verify(e) {
		logger.Warn("flash cookie failed tag verification")
		return nil, true
	}

	return &e.Message, false
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials is returned when an email/password pair does not
// match a stored account. Unknown email and wrong password are deliberately
// indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid email or password")

// DuplicateFieldError reports a uniqueness violation on a single user field.
// Field is the user-facing field name ("email" or "username").
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s is already taken", e.Field)
}

// IsDuplicateField returns the violated field name if err wraps a
// DuplicateFieldError.
func IsDuplicateField(err error) (string, bool) {
	var dup *DuplicateFieldError
	if errors.As(err, &dup) {
		return dup.Field, true
	}
	return "", false
}

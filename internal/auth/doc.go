// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

// Package auth provides authentication primitives for Taskweave.
//
// # Domain Types
//
// User instances should be created with NewUser, which validates the email
// and username and stamps a fresh ID. Direct struct initialization bypasses
// validation and may create invalid state. Repository implementations
// receive pre-validated values from the constructor.
//
// # Services
//
// Service coordinates credential verification (Authenticate) and account
// creation (Register) over a UserRepository and a password hasher. The
// hasher is expected to be a HashPool so the argon2id KDF runs off the
// request path on a bounded set of workers.
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package auth is the account and session core.
//
// # Components
//
//   - PasswordHasher (BcryptHasher, Argon2idHasher) - one-way password hashing
//   - ResetTokens - single-use password reset tokens, stored as SHA-256 digests
//   - SessionTokens - signed, time-bound session tokens (HS256 JWT)
//   - UserStore - persistence contract for User records
//   - Gate - Register, Login, Logout, ForgotPassword, ResetPassword, Authorize
//
// The Gate never touches storage directly; it goes through the injected
// UserStore. Passwords are hashed explicitly by the Gate before a User is
// created or saved, so a store only ever sees hashes.
//
// # Errors
//
// Gate operations fail with oops errors whose code identifies a Kind (see
// KindOf). Anything outside the taxonomy is KindInternal and must not be
// shown to clients verbatim (see PublicMessage).
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes = 32             // 32 bytes = 64 hex chars
	ResetTokenTTL   = 12 * time.Hour // fixed, not configurable
)

// ResetTokens issues and verifies single-use password reset tokens. Only the
// SHA-256 digest of a token is ever meant to be stored.
type ResetTokens struct {
	entropy io.Reader
}

// NewResetTokens creates a ResetTokens backed by crypto/rand.
func NewResetTokens() *ResetTokens {
	return &ResetTokens{entropy: rand.Reader}
}

// Issue creates a random token. The caller hands raw to the user exactly once
// and persists hash and expiresAt.
func (r *ResetTokens) Issue(now time.Time) (raw, hash string, expiresAt time.Time, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err = io.ReadFull(r.entropy, buf); err != nil {
		return "", "", time.Time{}, oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashResetToken(raw), now.Add(ResetTokenTTL), nil
}

// Verify reports whether raw matches storedHash and has not expired at now.
// Missing values fail closed.
func (r *ResetTokens) Verify(raw, storedHash string, storedExpiresAt *time.Time, now time.Time) bool {
	if raw == "" || storedHash == "" || storedExpiresAt == nil {
		return false
	}
	computed := HashResetToken(raw)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		return false
	}
	return now.Before(*storedExpiresAt)
}

// HashResetToken returns the hex SHA-256 digest of a raw reset token.
// A fast unsalted hash is enough here because the token carries 256 bits of entropy.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/pkg/errutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fakeClock is a settable clock for token expiry tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newSessionTokens(t *testing.T, clock *fakeClock) *auth.SessionTokens {
	t.Helper()
	tokens, err := auth.NewSessionTokens(auth.SessionConfig{
		Secret: testSecret,
		TTL:    time.Hour,
		Now:    clock.Now,
	})
	require.NoError(t, err)
	return tokens
}

func TestNewSessionTokens_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  auth.SessionConfig
	}{
		{name: "short secret", cfg: auth.SessionConfig{Secret: []byte("short"), TTL: time.Hour}},
		{name: "missing secret", cfg: auth.SessionConfig{TTL: time.Hour}},
		{name: "zero ttl", cfg: auth.SessionConfig{Secret: testSecret}},
		{name: "negative ttl", cfg: auth.SessionConfig{Secret: testSecret, TTL: -time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := auth.NewSessionTokens(tt.cfg)
			assert.Nil(t, tokens)
			errutil.AssertErrorCode(t, err, "SESSION_CONFIG_INVALID")
		})
	}
}

func TestSessionTokens_RoundTrip(t *testing.T) {
	clock := &fakeClock{now: fixedNow}
	tokens := newSessionTokens(t, clock)
	userID := ulid.Make()

	token, expiresAt, err := tokens.Issue(userID)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Hour), expiresAt)
	assert.Equal(t, time.Hour, tokens.TTL())

	t.Run("verifies immediately", func(t *testing.T) {
		got, err := tokens.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("verifies just before expiry", func(t *testing.T) {
		c := &fakeClock{now: fixedNow.Add(time.Hour - time.Second)}
		got, err := newSessionTokens(t, c).Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("expired once ttl elapses", func(t *testing.T) {
		c := &fakeClock{now: fixedNow}
		c.Advance(time.Hour)
		_, err := newSessionTokens(t, c).Verify(token)
		errutil.AssertErrorCode(t, err, auth.CodeTokenExpired)
	})
}

func TestSessionTokens_VerifyRejects(t *testing.T) {
	clock := &fakeClock{now: fixedNow}
	tokens := newSessionTokens(t, clock)
	userID := ulid.Make()
	valid, _, err := tokens.Issue(userID)
	require.NoError(t, err)

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	baseClaims := jwt.RegisteredClaims{
		Issuer:    auth.DefaultSessionIssuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(fixedNow),
		ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
	}

	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	wrongIssuer := baseClaims
	wrongIssuer.Issuer = "someone-else"
	badSubject := baseClaims
	badSubject.Subject = "not-a-ulid"
	noExpiry := baseClaims
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{name: "empty", token: "", code: auth.CodeTokenMalformed},
		{name: "logged out placeholder", token: "loggedout", code: auth.CodeTokenMalformed},
		{name: "garbage segments", token: "a.b.c", code: auth.CodeTokenMalformed},
		{name: "tampered signature", token: tampered, code: auth.CodeTokenInvalid},
		{name: "other secret", token: sign(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), baseClaims), code: auth.CodeTokenInvalid},
		{name: "other algorithm", token: sign(t, jwt.SigningMethodHS512, testSecret, baseClaims), code: auth.CodeTokenInvalid},
		{name: "unsigned", token: sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, baseClaims), code: auth.CodeTokenInvalid},
		{name: "wrong issuer", token: sign(t, jwt.SigningMethodHS256, testSecret, wrongIssuer), code: auth.CodeTokenInvalid},
		{name: "subject is not a user id", token: sign(t, jwt.SigningMethodHS256, testSecret, badSubject), code: auth.CodeTokenInvalid},
		{name: "missing expiry", token: sign(t, jwt.SigningMethodHS256, testSecret, noExpiry), code: auth.CodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tokens.Verify(tt.token)
			errutil.AssertErrorCode(t, err, tt.code)
			assert.Equal(t, ulid.ULID{}, got)
		})
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token settings.
const (
	SessionCookieName     = "jwt"
	DefaultSessionTTL     = 24 * time.Hour
	DefaultSessionIssuer  = "accountd"
	MinSessionSecretBytes = 32
	loggedOutValue        = "loggedout"
)

// SessionConfig configures SessionTokens.
type SessionConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// SessionTokens issues and verifies stateless HS256 session tokens.
// There is no revocation list: a token stays valid until it expires.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewSessionTokens validates cfg and creates SessionTokens.
func NewSessionTokens(cfg SessionConfig) (*SessionTokens, error) {
	if len(cfg.Secret) < MinSessionSecretBytes {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("secret_bytes", len(cfg.Secret)).
			Errorf("session secret must be at least %d bytes", MinSessionSecretBytes)
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("ttl", cfg.TTL.String()).
			Errorf("session ttl must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultSessionIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &SessionTokens{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// TTL returns the lifetime of issued tokens.
func (s *SessionTokens) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID that expires after the configured TTL.
func (s *SessionTokens) Issue(userID ulid.ULID) (token string, expiresAt time.Time, err error) {
	now := s.now()
	expiresAt = now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        ulid.Make().String(),
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_SIGN_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature and expiry of token and returns its user id.
// Failures carry CodeTokenMalformed, CodeTokenExpired or CodeTokenInvalid.
func (s *SessionTokens) Verify(token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code(CodeTokenMalformed).Errorf("session token is empty")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ulid.ULID{}, oops.Code(CodeTokenMalformed).Errorf("session token is malformed")
	case errors.Is(err, jwt.ErrTokenExpired):
		return ulid.ULID{}, oops.Code(CodeTokenExpired).Errorf("session token has expired")
	default:
		return ulid.ULID{}, oops.Code(CodeTokenInvalid).With("reason", err.Error()).Errorf("session token is invalid")
	}

	userID, err := ulid.ParseStrict(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeTokenInvalid).Errorf("session token subject is invalid")
	}
	return userID, nil
}

// SessionCredential tells the transport how to store the session token on
// the client. It maps onto an httpOnly cookie.
type SessionCredential struct {
	Name      string
	Value     string
	ExpiresAt time.Time
	// MaxAge is the client-side lifetime. Zero or negative means the
	// credential is already expired and must replace whatever the client holds.
	MaxAge   time.Duration
	HTTPOnly bool
}

// Expired reports whether the credential clears the client session.
func (c SessionCredential) Expired() bool {
	return c.MaxAge <= 0
}

func newSessionCredential(token string, expiresAt time.Time, ttl time.Duration) SessionCredential {
	return SessionCredential{
		Name:      SessionCookieName,
		Value:     token,
		ExpiresAt: expiresAt,
		MaxAge:    ttl,
		HTTPOnly:  true,
	}
}

func expiredSessionCredential(now time.Time) SessionCredential {
	return SessionCredential{
		Name:      SessionCookieName,
		Value:     loggedOutValue,
		ExpiresAt: now.Add(-time.Second),
		MaxAge:    0,
		HTTPOnly:  true,
	}
}

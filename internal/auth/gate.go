// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/accountd/accountd/pkg/errutil"
)

var tracer = otel.Tracer("accountd/auth")

// dummyPassword is hashed once and verified against when a login names an
// unknown email, so that path costs as much as a real verification.
//
//nolint:gosec // G101: not a credential, never matches a stored hash.
const dummyPassword = "accountd-login-timing-equalizer"

// Recorder receives operation outcomes. observability.Metrics implements it.
type Recorder interface {
	// ObserveOperation counts one gate operation. result is "ok" or an error Kind.
	ObserveOperation(op, result string)
	// ObserveHash records how long a password hash took.
	ObserveHash(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string) {}
func (nopRecorder) ObserveHash(time.Duration)       {}

// RegisterInput carries the fields submitted at registration.
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	// Photo is a reference to an already stored avatar, or empty.
	Photo string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User       *User
	Credential SessionCredential
}

// ResetRequest is returned by ForgotPassword. Token is the raw reset token;
// it is not stored anywhere and must be delivered to the user by the caller.
type ResetRequest struct {
	UserID    ulid.ULID
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Gate orchestrates registration, login, logout, password reset and
// request authorization. It keeps no per-request state.
type Gate struct {
	users     UserStore
	hasher    PasswordHasher
	sessions  *SessionTokens
	resets    *ResetTokens
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time
	dummyHash func() string
}

// GateOption customises a Gate.
type GateOption func(*Gate) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) error {
		if logger == nil {
			return oops.Code("AUTH_GATE_INVALID").Errorf("logger is required")
		}
		g.logger = logger
		return nil
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) error {
		if now == nil {
			return oops.Code("AUTH_GATE_INVALID").Errorf("clock is required")
		}
		g.now = now
		return nil
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) GateOption {
	return func(g *Gate) error {
		if r == nil {
			return oops.Code("AUTH_GATE_INVALID").Errorf("recorder is required")
		}
		g.recorder = r
		return nil
	}
}

// NewGate creates a Gate. All collaborators are required.
func NewGate(users UserStore, hasher PasswordHasher, sessions *SessionTokens, resets *ResetTokens, opts ...GateOption) (*Gate, error) {
	switch {
	case users == nil:
		return nil, oops.Code("AUTH_GATE_INVALID").Errorf("user store is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_GATE_INVALID").Errorf("password hasher is required")
	case sessions == nil:
		return nil, oops.Code("AUTH_GATE_INVALID").Errorf("session tokens are required")
	case resets == nil:
		return nil, oops.Code("AUTH_GATE_INVALID").Errorf("reset tokens are required")
	}

	g := &Gate{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		resets:   resets,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.dummyHash = sync.OnceValue(func() string {
		h, err := hasher.Hash(dummyPassword)
		if err != nil {
			return ""
		}
		return h
	})
	return g, nil
}

// Register creates a new user. The password is hashed here, before the
// store sees the record.
func (g *Gate) Register(ctx context.Context, in RegisterInput) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer func() { g.finish(span, "register", err) }()

	if in.Password != in.ConfirmPassword {
		return nil, passwordMismatch()
	}

	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := g.hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	now := g.now()
	user = &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Photo:        in.Photo,
		Role:         RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := g.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, oops.Code(CodeDuplicateEmail).
				With("email", email).
				Errorf("email address is already registered")
		case errors.Is(err, ErrInvalidRecord):
			return nil, oops.Code(CodeValidation).Errorf("user record was rejected by the store")
		default:
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "create user").
				With("email", email).
				Wrap(err)
		}
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	g.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// Login checks email and password and issues a session credential. Unknown
// email, wrong password and inactive account all fail the same way.
func (g *Gate) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer func() { g.finish(span, "login", err) }()

	user, lookupErr := g.users.FindByEmail(ctx, NormalizeEmail(email))
	exists := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	targetHash := g.dummyHash()
	if exists {
		targetHash = user.PasswordHash
	}

	// Verification always runs so unknown emails are not distinguishable by timing.
	valid, verifyErr := g.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !exists || !valid || !user.Active {
		return nil, invalidCredentials()
	}

	if g.hasher.NeedsUpgrade(user.PasswordHash) {
		g.upgradeHash(ctx, user, password)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return g.StartSession(user)
}

// StartSession issues a session credential for a user the caller has
// already authenticated, such as one just registered or one that just
// reset their password. Inactive users get CodeInvalidCredentials.
func (g *Gate) StartSession(user *User) (*LoginResult, error) {
	if user == nil {
		return nil, oops.Code("AUTH_SESSION_FAILED").Errorf("user is required")
	}
	if !user.Active {
		return nil, invalidCredentials()
	}
	token, expiresAt, err := g.sessions.Issue(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_FAILED").
			With("operation", "issue session token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return &LoginResult{
		User:       user,
		Credential: newSessionCredential(token, expiresAt, g.sessions.TTL()),
	}, nil
}

// Logout returns a credential that overwrites the client's session with an
// already expired value. Tokens are stateless, so a copy of the old token
// remains valid until its own expiry.
func (g *Gate) Logout() SessionCredential {
	g.recorder.ObserveOperation("logout", "ok")
	return expiredSessionCredential(g.now())
}

// ForgotPassword issues a reset token for the user with email and stores
// its digest on the user, replacing any earlier pending token.
func (g *Gate) ForgotPassword(ctx context.Context, email string) (req *ResetRequest, err error) {
	ctx, span := tracer.Start(ctx, "auth.ForgotPassword")
	defer func() { g.finish(span, "forgot_password", err) }()

	email = NormalizeEmail(email)
	user, err := g.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}
	// Inactive accounts cannot sign in, so they are not offered a reset.
	if err != nil || !user.Active {
		return nil, oops.Code(CodeUserNotFound).Errorf("there is no user with that email address")
	}

	now := g.now()
	raw, hash, expiresAt, err := g.resets.Issue(now)
	if err != nil {
		return nil, oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
			With("operation", "issue reset token").
			Wrap(err)
	}

	user.setResetToken(hash, expiresAt)
	user.UpdatedAt = now
	if err := g.users.Save(ctx, user); err != nil {
		return nil, oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
			With("operation", "save reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &ResetRequest{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     raw,
		ExpiresAt: expiresAt,
	}, nil
}

// ResetPassword sets a new password for the user holding raw, then clears
// the reset token so it cannot be used again.
func (g *Gate) ResetPassword(ctx context.Context, raw, newPassword, confirmPassword string) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.ResetPassword")
	defer func() { g.finish(span, "reset_password", err) }()

	if newPassword != confirmPassword {
		return nil, passwordMismatch()
	}
	if raw == "" {
		return nil, invalidResetToken()
	}

	user, err = g.users.FindByResetTokenHash(ctx, HashResetToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidResetToken()
		}
		return nil, oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}

	var storedHash string
	if user.PasswordResetTokenHash != nil {
		storedHash = *user.PasswordResetTokenHash
	}
	now := g.now()
	if !user.Active || !g.resets.Verify(raw, storedHash, user.PasswordResetExpiresAt, now) {
		return nil, invalidResetToken()
	}

	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}
	hash, err := g.hash(newPassword)
	if err != nil {
		return nil, oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	user.PasswordHash = hash
	user.clearResetToken()
	user.UpdatedAt = now
	if err := g.users.Save(ctx, user); err != nil {
		return nil, oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "save user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	g.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return user, nil
}

// Authorize resolves a session credential to its user. Any token failure,
// a deleted user or an inactive user yields CodeUnauthenticated.
func (g *Gate) Authorize(ctx context.Context, credential string) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.Authorize")
	defer func() { g.finish(span, "authorize", err) }()

	userID, err := g.sessions.Verify(credential)
	if err != nil {
		return nil, unauthenticated(errutil.Code(err))
	}

	user, err = g.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthenticated("user no longer exists")
		}
		return nil, oops.Code("AUTH_AUTHORIZE_FAILED").
			With("operation", "find user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !user.Active {
		return nil, unauthenticated("user is inactive")
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return user, nil
}

// User loads a user by id for an already authorized caller. A missing
// user yields CodeUserNotFound.
func (g *Gate) User(ctx context.Context, id ulid.ULID) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.User")
	defer func() { g.finish(span, "get_user", err) }()

	user, err = g.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).Errorf("there is no user with that id")
		}
		return nil, oops.Code("AUTH_GET_USER_FAILED").
			With("operation", "find user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// upgradeHash rehashes the password with current settings. Login succeeds
// even when this fails.
func (g *Gate) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := g.hash(password)
	if err != nil {
		errutil.LogWarnContext(ctx, g.logger, "password rehash failed", err)
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = g.now()
	if err := g.users.Save(ctx, user); err != nil {
		errutil.LogWarnContext(ctx, g.logger, "failed to save upgraded password hash", err)
	}
}

func (g *Gate) hash(password string) (string, error) {
	start := time.Now()
	h, err := g.hasher.Hash(password)
	g.recorder.ObserveHash(time.Since(start))
	return h, err //nolint:wrapcheck // callers wrap with operation context
}

func (g *Gate) finish(span trace.Span, op string, err error) {
	result := "ok"
	if err != nil {
		kind := KindOf(err)
		result = string(kind)
		span.SetAttributes(attribute.String("auth.error_kind", result))
		if kind == KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	g.recorder.ObserveOperation(op, result)
	span.End()
}

func passwordMismatch() error {
	return oops.Code(CodePasswordMismatch).Errorf("passwords do not match")
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("incorrect email or password")
}

func invalidResetToken() error {
	return oops.Code(CodeResetTokenInvalid).Errorf("token is invalid or has expired")
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).
		With("reason", reason).
		Errorf("you are not logged in, please log in to get access")
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/mocks"
	"github.com/accountd/accountd/pkg/errutil"
)

type gateFixture struct {
	gate     *auth.Gate
	store    *mocks.MockUserStore
	hasher   *mocks.MockPasswordHasher
	sessions *auth.SessionTokens
	clock    *fakeClock
}

func newGateFixture(t *testing.T, opts ...auth.GateOption) *gateFixture {
	t.Helper()
	clock := &fakeClock{now: fixedNow}
	store := mocks.NewMockUserStore(t)
	hasher := mocks.NewMockPasswordHasher(t)
	sessions := newSessionTokens(t, clock)
	opts = append([]auth.GateOption{auth.WithClock(clock.Now)}, opts...)
	gate, err := auth.NewGate(store, hasher, sessions, auth.NewResetTokens(), opts...)
	require.NoError(t, err)
	return &gateFixture{gate: gate, store: store, hasher: hasher, sessions: sessions, clock: clock}
}

func existingUser() *auth.User {
	return &auth.User{
		ID:           ulid.Make(),
		Name:         "Alice",
		Email:        "a@x.com",
		PasswordHash: "stored-hash",
		Role:         auth.RoleUser,
		Active:       true,
		CreatedAt:    fixedNow.Add(-24 * time.Hour),
		UpdatedAt:    fixedNow.Add(-24 * time.Hour),
	}
}

func TestNewGate_NilDependencies(t *testing.T) {
	clock := &fakeClock{now: fixedNow}
	sessions := newSessionTokens(t, clock)
	resets := auth.NewResetTokens()

	tests := []struct {
		name        string
		store       auth.UserStore
		hasher      auth.PasswordHasher
		sessions    *auth.SessionTokens
		resets      *auth.ResetTokens
		opts        []auth.GateOption
		expectError string
	}{
		{name: "nil store", hasher: mocks.NewMockPasswordHasher(t), sessions: sessions, resets: resets, expectError: "user store is required"},
		{name: "nil hasher", store: mocks.NewMockUserStore(t), sessions: sessions, resets: resets, expectError: "password hasher is required"},
		{name: "nil sessions", store: mocks.NewMockUserStore(t), hasher: mocks.NewMockPasswordHasher(t), resets: resets, expectError: "session tokens are required"},
		{name: "nil resets", store: mocks.NewMockUserStore(t), hasher: mocks.NewMockPasswordHasher(t), sessions: sessions, expectError: "reset tokens are required"},
		{
			name: "nil logger", store: mocks.NewMockUserStore(t), hasher: mocks.NewMockPasswordHasher(t),
			sessions: sessions, resets: resets, opts: []auth.GateOption{auth.WithLogger(nil)}, expectError: "logger",
		},
		{
			name: "nil clock", store: mocks.NewMockUserStore(t), hasher: mocks.NewMockPasswordHasher(t),
			sessions: sessions, resets: resets, opts: []auth.GateOption{auth.WithClock(nil)}, expectError: "clock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, err := auth.NewGate(tt.store, tt.hasher, tt.sessions, tt.resets, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, gate)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "AUTH_GATE_INVALID")
		})
	}
}

func TestGate_Register(t *testing.T) {
	ctx := context.Background()
	valid := auth.RegisterInput{
		Name:            "Alice",
		Email:           "A@X.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Photo:           "user-avatar.jpeg",
	}

	t.Run("creates user with hashed password", func(t *testing.T) {
		f := newGateFixture(t)
		f.hasher.On("Hash", "secret1").Return("hashed-secret1", nil)
		f.store.On("Create", mock.Anything, mock.MatchedBy(func(u *auth.User) bool {
			return u.PasswordHash == "hashed-secret1" && u.Email == "a@x.com"
		})).Return(nil)

		user, err := f.gate.Register(ctx, valid)
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.Name)
		assert.Equal(t, "a@x.com", user.Email)
		assert.Equal(t, "hashed-secret1", user.PasswordHash)
		assert.Equal(t, "user-avatar.jpeg", user.Photo)
		assert.Equal(t, auth.RoleUser, user.Role)
		assert.True(t, user.Active)
		assert.Nil(t, user.PasswordResetTokenHash)
		assert.Equal(t, fixedNow, user.CreatedAt)
		assert.NotEqual(t, ulid.ULID{}, user.ID)
	})

	t.Run("mismatched confirmation never reaches the store", func(t *testing.T) {
		f := newGateFixture(t)
		in := valid
		in.ConfirmPassword = "secret2"

		user, err := f.gate.Register(ctx, in)
		assert.Nil(t, user)
		errutil.AssertErrorCode(t, err, auth.CodePasswordMismatch)
		assert.Equal(t, auth.KindPasswordMismatch, auth.KindOf(err))
		f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		f.hasher.AssertNotCalled(t, "Hash", mock.Anything)
	})

	validationCases := []struct {
		name  string
		mut   func(*auth.RegisterInput)
		field string
	}{
		{name: "empty name", mut: func(in *auth.RegisterInput) { in.Name = " " }, field: "name"},
		{name: "bad email", mut: func(in *auth.RegisterInput) { in.Email = "nope" }, field: "email"},
		{name: "short password", mut: func(in *auth.RegisterInput) { in.Password, in.ConfirmPassword = "abc", "abc" }, field: "password"},
	}
	for _, tc := range validationCases {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			f := newGateFixture(t)
			in := valid
			tc.mut(&in)

			_, err := f.gate.Register(ctx, in)
			errutil.AssertErrorCode(t, err, auth.CodeValidation)
			errutil.AssertErrorContext(t, err, "field", tc.field)
			f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		f := newGateFixture(t)
		f.hasher.On("Hash", "secret1").Return("hashed", nil)
		f.store.On("Create", mock.Anything, mock.Anything).
			Return(oops.Code("USER_EMAIL_TAKEN").Wrap(auth.ErrDuplicateEmail))

		_, err := f.gate.Register(ctx, valid)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
		assert.Equal(t, auth.KindDuplicateEmail, auth.KindOf(err))
	})

	t.Run("store constraint rejection", func(t *testing.T) {
		f := newGateFixture(t)
		f.hasher.On("Hash", "secret1").Return("hashed", nil)
		f.store.On("Create", mock.Anything, mock.Anything).
			Return(oops.Code("USER_CREATE_FAILED").Wrap(auth.ErrInvalidRecord))

		_, err := f.gate.Register(ctx, valid)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newGateFixture(t)
		f.hasher.On("Hash", "secret1").Return("hashed", nil)
		f.store.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		_, err := f.gate.Register(ctx, valid)
		require.Error(t, err)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		assert.Equal(t, "something went wrong", auth.PublicMessage(err))
	})

	t.Run("hash failure is internal", func(t *testing.T) {
		f := newGateFixture(t)
		f.hasher.On("Hash", "secret1").Return("", oops.Code("AUTH_HASH_FAILED").Errorf("boom"))

		_, err := f.gate.Register(ctx, valid)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestGate_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("issues session credential", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)
		f.hasher.On("Verify", "secret1", "stored-hash").Return(true, nil)
		f.hasher.On("NeedsUpgrade", "stored-hash").Return(false)

		result, err := f.gate.Login(ctx, " A@x.com ", "secret1")
		require.NoError(t, err)
		assert.Equal(t, user.ID, result.User.ID)

		cred := result.Credential
		assert.Equal(t, "jwt", cred.Name)
		assert.True(t, cred.HTTPOnly)
		assert.Equal(t, time.Hour, cred.MaxAge)
		assert.Equal(t, fixedNow.Add(time.Hour), cred.ExpiresAt)
		assert.False(t, cred.Expired())

		id, err := f.sessions.Verify(cred.Value)
		require.NoError(t, err)
		assert.Equal(t, user.ID, id)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(existingUser(), nil)
		f.hasher.On("Verify", "wrong", "stored-hash").Return(false, nil)

		result, err := f.gate.Login(ctx, "a@x.com", "wrong")
		assert.Nil(t, result)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("unknown email still verifies against a dummy hash", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "ghost@x.com").
			Return(nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound))
		f.hasher.On("Hash", mock.AnythingOfType("string")).Return("dummy-hash", nil).Once()
		f.hasher.On("Verify", "secret1", "dummy-hash").Return(false, nil)

		_, err := f.gate.Login(ctx, "ghost@x.com", "secret1")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("unknown email and wrong password read the same", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "ghost@x.com").Return(nil, auth.ErrNotFound)
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(existingUser(), nil)
		f.hasher.On("Hash", mock.AnythingOfType("string")).Return("dummy-hash", nil).Once()
		f.hasher.On("Verify", "secret1", "dummy-hash").Return(false, nil)
		f.hasher.On("Verify", "secret1", "stored-hash").Return(false, nil)

		_, unknownErr := f.gate.Login(ctx, "ghost@x.com", "secret1")
		_, wrongErr := f.gate.Login(ctx, "a@x.com", "secret1")
		assert.Equal(t, auth.PublicMessage(unknownErr), auth.PublicMessage(wrongErr))
		assert.Equal(t, auth.KindOf(unknownErr), auth.KindOf(wrongErr))
	})

	t.Run("inactive account", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		user.Active = false
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)
		f.hasher.On("Verify", "secret1", "stored-hash").Return(true, nil)

		_, err := f.gate.Login(ctx, "a@x.com", "secret1")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(nil, errors.New("connection reset"))

		_, err := f.gate.Login(ctx, "a@x.com", "secret1")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		f.hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("corrupt stored hash is internal", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(existingUser(), nil)
		f.hasher.On("Verify", "secret1", "stored-hash").Return(false, oops.Code("AUTH_INVALID_HASH").Errorf("bad"))

		_, err := f.gate.Login(ctx, "a@x.com", "secret1")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})

	t.Run("upgrades weak hash", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)
		f.hasher.On("Verify", "secret1", "stored-hash").Return(true, nil)
		f.hasher.On("NeedsUpgrade", "stored-hash").Return(true)
		f.hasher.On("Hash", "secret1").Return("stronger-hash", nil)
		f.store.On("Save", mock.Anything, mock.MatchedBy(func(u *auth.User) bool {
			return u.PasswordHash == "stronger-hash"
		})).Return(nil)

		_, err := f.gate.Login(ctx, "a@x.com", "secret1")
		require.NoError(t, err)
	})

	t.Run("failed upgrade does not fail login", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(existingUser(), nil)
		f.hasher.On("Verify", "secret1", "stored-hash").Return(true, nil)
		f.hasher.On("NeedsUpgrade", "stored-hash").Return(true)
		f.hasher.On("Hash", "secret1").Return("stronger-hash", nil)
		f.store.On("Save", mock.Anything, mock.Anything).Return(errors.New("read only"))

		result, err := f.gate.Login(ctx, "a@x.com", "secret1")
		require.NoError(t, err)
		assert.NotEmpty(t, result.Credential.Value)
	})
}

func TestGate_Logout(t *testing.T) {
	f := newGateFixture(t)

	cred := f.gate.Logout()
	assert.Equal(t, "jwt", cred.Name)
	assert.True(t, cred.HTTPOnly)
	assert.True(t, cred.Expired())
	assert.True(t, cred.ExpiresAt.Before(fixedNow))

	_, err := f.sessions.Verify(cred.Value)
	require.Error(t, err, "the logout value must not verify as a session")
}

func TestGate_StartSession(t *testing.T) {
	f := newGateFixture(t)
	user := existingUser()

	result, err := f.gate.StartSession(user)
	require.NoError(t, err)
	assert.Same(t, user, result.User)
	assert.Equal(t, "jwt", result.Credential.Name)
	assert.Equal(t, time.Hour, result.Credential.MaxAge)
	assert.Equal(t, fixedNow.Add(time.Hour), result.Credential.ExpiresAt)

	id, err := f.sessions.Verify(result.Credential.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, err = f.gate.StartSession(nil)
	errutil.AssertErrorCode(t, err, "AUTH_SESSION_FAILED")
	f.store.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)

	user.Active = false
	result, err = f.gate.StartSession(user)
	assert.Nil(t, result)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
}

func TestGate_User(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		f.store.On("FindByID", mock.Anything, user.ID).Return(user, nil)

		got, err := f.gate.User(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("missing", func(t *testing.T) {
		f := newGateFixture(t)
		id := ulid.Make()
		f.store.On("FindByID", mock.Anything, id).Return(nil, oops.Wrap(auth.ErrNotFound))

		_, err := f.gate.User(ctx, id)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
		assert.Equal(t, auth.KindUserNotFound, auth.KindOf(err))
	})

	t.Run("store failure", func(t *testing.T) {
		f := newGateFixture(t)
		id := ulid.Make()
		f.store.On("FindByID", mock.Anything, id).Return(nil, errors.New("timeout"))

		_, err := f.gate.User(ctx, id)
		errutil.AssertErrorCode(t, err, "AUTH_GET_USER_FAILED")
		errutil.AssertErrorContext(t, err, "user_id", id.String())
	})
}

func TestGate_ForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("stores token digest and returns raw token", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		var saved *auth.User
		f.store.On("Save", mock.Anything, mock.AnythingOfType("*auth.User")).
			Run(func(args mock.Arguments) { saved = args.Get(1).(*auth.User) }).
			Return(nil)

		req, err := f.gate.ForgotPassword(ctx, "A@x.com")
		require.NoError(t, err)
		assert.Len(t, req.Token, 64)
		assert.Equal(t, user.ID, req.UserID)
		assert.Equal(t, fixedNow.Add(12*time.Hour), req.ExpiresAt)

		require.NotNil(t, saved)
		require.NotNil(t, saved.PasswordResetTokenHash)
		assert.Equal(t, auth.HashResetToken(req.Token), *saved.PasswordResetTokenHash)
		assert.NotEqual(t, req.Token, *saved.PasswordResetTokenHash)
		require.NotNil(t, saved.PasswordResetExpiresAt)
		assert.Equal(t, req.ExpiresAt, *saved.PasswordResetExpiresAt)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "ghost@x.com").Return(nil, auth.ErrNotFound)

		req, err := f.gate.ForgotPassword(ctx, "ghost@x.com")
		assert.Nil(t, req)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
	})

	t.Run("inactive user is reported as unknown", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		user.Active = false
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		req, err := f.gate.ForgotPassword(ctx, "a@x.com")
		assert.Nil(t, req)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("save failure is internal", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(existingUser(), nil)
		f.store.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := f.gate.ForgotPassword(ctx, "a@x.com")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})
}

func TestGate_ResetPassword(t *testing.T) {
	ctx := context.Background()
	raw := "aa11bb22cc33dd44ee55ff66aa11bb22cc33dd44ee55ff66aa11bb22cc33dd44"
	withToken := func(expiresAt time.Time) *auth.User {
		u := existingUser()
		h := auth.HashResetToken(raw)
		u.PasswordResetTokenHash = &h
		u.PasswordResetExpiresAt = &expiresAt
		return u
	}

	t.Run("sets new hash and clears token", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByResetTokenHash", mock.Anything, auth.HashResetToken(raw)).
			Return(withToken(fixedNow.Add(time.Hour)), nil)
		f.hasher.On("Hash", "newpass1").Return("new-hash", nil)
		f.store.On("Save", mock.Anything, mock.MatchedBy(func(u *auth.User) bool {
			return u.PasswordHash == "new-hash" && u.PasswordResetTokenHash == nil && u.PasswordResetExpiresAt == nil
		})).Return(nil)

		user, err := f.gate.ResetPassword(ctx, raw, "newpass1", "newpass1")
		require.NoError(t, err)
		assert.Equal(t, "new-hash", user.PasswordHash)
		assert.Equal(t, fixedNow, user.UpdatedAt)
	})

	t.Run("mismatched confirmation never reaches the store", func(t *testing.T) {
		f := newGateFixture(t)

		_, err := f.gate.ResetPassword(ctx, raw, "newpass1", "newpass2")
		errutil.AssertErrorCode(t, err, auth.CodePasswordMismatch)
		f.store.AssertNotCalled(t, "FindByResetTokenHash", mock.Anything, mock.Anything)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByResetTokenHash", mock.Anything, mock.Anything).Return(nil, auth.ErrNotFound)

		_, err := f.gate.ResetPassword(ctx, raw, "newpass1", "newpass1")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
		assert.Equal(t, auth.KindInvalidOrExpiredToken, auth.KindOf(err))
	})

	t.Run("empty token", func(t *testing.T) {
		f := newGateFixture(t)

		_, err := f.gate.ResetPassword(ctx, "", "newpass1", "newpass1")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByResetTokenHash", mock.Anything, auth.HashResetToken(raw)).
			Return(withToken(fixedNow.Add(-time.Second)), nil)

		_, err := f.gate.ResetPassword(ctx, raw, "newpass1", "newpass1")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("inactive user", func(t *testing.T) {
		f := newGateFixture(t)
		user := withToken(fixedNow.Add(time.Hour))
		user.Active = false
		f.store.On("FindByResetTokenHash", mock.Anything, auth.HashResetToken(raw)).Return(user, nil)

		_, err := f.gate.ResetPassword(ctx, raw, "newpass1", "newpass1")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
		f.hasher.AssertNotCalled(t, "Hash", mock.Anything)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("short password", func(t *testing.T) {
		f := newGateFixture(t)
		f.store.On("FindByResetTokenHash", mock.Anything, auth.HashResetToken(raw)).
			Return(withToken(fixedNow.Add(time.Hour)), nil)

		_, err := f.gate.ResetPassword(ctx, raw, "abc", "abc")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestGate_Authorize(t *testing.T) {
	ctx := context.Background()

	issue := func(t *testing.T, f *gateFixture, id ulid.ULID) string {
		t.Helper()
		token, _, err := f.sessions.Issue(id)
		require.NoError(t, err)
		return token
	}

	t.Run("returns the user", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		f.store.On("FindByID", mock.Anything, user.ID).Return(user, nil)

		got, err := f.gate.Authorize(ctx, issue(t, f, user.ID))
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	tokenFailures := []struct {
		name       string
		credential func(t *testing.T, f *gateFixture) string
		reason     string
	}{
		{name: "missing credential", credential: func(*testing.T, *gateFixture) string { return "" }, reason: auth.CodeTokenMalformed},
		{name: "logged out", credential: func(*testing.T, *gateFixture) string { return "loggedout" }, reason: auth.CodeTokenMalformed},
		{
			name: "expired",
			credential: func(t *testing.T, f *gateFixture) string {
				token := issue(t, f, ulid.Make())
				f.clock.Advance(2 * time.Hour)
				return token
			},
			reason: auth.CodeTokenExpired,
		},
	}
	for _, tc := range tokenFailures {
		t.Run(tc.name, func(t *testing.T) {
			f := newGateFixture(t)

			_, err := f.gate.Authorize(ctx, tc.credential(t, f))
			errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
			errutil.AssertErrorContext(t, err, "reason", tc.reason)
			f.store.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		})
	}

	t.Run("deleted user", func(t *testing.T) {
		f := newGateFixture(t)
		id := ulid.Make()
		f.store.On("FindByID", mock.Anything, id).Return(nil, auth.ErrNotFound)

		_, err := f.gate.Authorize(ctx, issue(t, f, id))
		errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
	})

	t.Run("inactive user", func(t *testing.T) {
		f := newGateFixture(t)
		user := existingUser()
		user.Active = false
		f.store.On("FindByID", mock.Anything, user.ID).Return(user, nil)

		_, err := f.gate.Authorize(ctx, issue(t, f, user.ID))
		errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newGateFixture(t)
		id := ulid.Make()
		f.store.On("FindByID", mock.Anything, id).Return(nil, errors.New("timeout"))

		_, err := f.gate.Authorize(ctx, issue(t, f, id))
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})
}

func TestGate_RecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	recorder := mocks.NewMockRecorder(t)
	f := newGateFixture(t, auth.WithRecorder(recorder))

	recorder.On("ObserveOperation", "register", "PasswordMismatch").Once()
	recorder.On("ObserveOperation", "logout", "ok").Once()
	recorder.On("ObserveOperation", "authorize", "Unauthenticated").Once()

	_, _ = f.gate.Register(ctx, auth.RegisterInput{Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "other"})
	f.gate.Logout()
	_, _ = f.gate.Authorize(ctx, "")
}

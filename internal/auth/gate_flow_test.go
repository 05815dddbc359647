// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/memory"
	"github.com/accountd/accountd/pkg/errutil"
)

func newMemoryGate(t *testing.T, clock *fakeClock) (*auth.Gate, *memory.UserStore) {
	t.Helper()
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	store := memory.NewUserStore()
	gate, err := auth.NewGate(store, hasher, newSessionTokens(t, clock), auth.NewResetTokens(),
		auth.WithClock(clock.Now))
	require.NoError(t, err)
	return gate, store
}

func TestGate_AccountLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	gate, store := newMemoryGate(t, clock)

	registered, err := gate.Register(ctx, auth.RegisterInput{
		Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", registered.PasswordHash)

	login, err := gate.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, login.User.ID)

	me, err := gate.Authorize(ctx, login.Credential.Value)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", me.Email)

	_, err = gate.Login(ctx, "a@x.com", "wrong")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	req, err := gate.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)

	stored, err := store.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetTokenHash)
	assert.NotEqual(t, req.Token, *stored.PasswordResetTokenHash, "raw reset token must not be stored")

	clock.Advance(time.Minute)
	_, err = gate.ResetPassword(ctx, req.Token, "newpass1", "newpass1")
	require.NoError(t, err)

	_, err = gate.Login(ctx, "a@x.com", "secret1")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	_, err = gate.Login(ctx, "a@x.com", "newpass1")
	require.NoError(t, err)

	_, err = gate.ResetPassword(ctx, req.Token, "another1", "another1")
	errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
}

func TestGate_LoginAfterHasherChangeUpgradesHash(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	store := memory.NewUserStore()

	argon, err := auth.NewArgon2idHasherWithParams(cheapArgon2)
	require.NoError(t, err)
	before, err := auth.NewGate(store, argon, newSessionTokens(t, clock), auth.NewResetTokens(),
		auth.WithClock(clock.Now))
	require.NoError(t, err)

	registered, err := before.Register(ctx, auth.RegisterInput{
		Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(registered.PasswordHash, "$argon2id$"))

	bh, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	after, err := auth.NewGate(store, bh, newSessionTokens(t, clock), auth.NewResetTokens(),
		auth.WithClock(clock.Now))
	require.NoError(t, err)

	_, err = after.Login(ctx, "a@x.com", "wrong1")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	login, err := after.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, login.User.ID)

	stored, err := store.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2a$"), "hash %q was not rehashed", stored.PasswordHash)

	_, err = after.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
}

func TestGate_InactiveUserCannotResetPassword(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	gate, store := newMemoryGate(t, clock)

	user, err := gate.Register(ctx, auth.RegisterInput{
		Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	req, err := gate.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)

	stored, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	stored.Active = false
	require.NoError(t, store.Save(ctx, stored))

	_, err = gate.ForgotPassword(ctx, "a@x.com")
	errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)

	_, err = gate.ResetPassword(ctx, req.Token, "newpass1", "newpass1")
	errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)

	_, err = gate.StartSession(stored)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
}

func TestGate_ResetTokenExpiresAfterTwelveHours(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	gate, _ := newMemoryGate(t, clock)

	_, err := gate.Register(ctx, auth.RegisterInput{
		Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)

	req, err := gate.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)

	clock.Advance(12 * time.Hour)
	_, err = gate.ResetPassword(ctx, req.Token, "newpass1", "newpass1")
	errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)

	_, err = gate.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err, "old password still works after a failed reset")
}

func TestGate_SecondForgotPasswordReplacesFirst(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	gate, _ := newMemoryGate(t, clock)

	_, err := gate.Register(ctx, auth.RegisterInput{
		Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)

	first, err := gate.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)
	second, err := gate.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, err = gate.ResetPassword(ctx, first.Token, "newpass1", "newpass1")
	errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)

	_, err = gate.ResetPassword(ctx, second.Token, "newpass1", "newpass1")
	require.NoError(t, err)
}

func TestGate_ConcurrentDuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: fixedNow}
	gate, store := newMemoryGate(t, clock)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = gate.Register(ctx, auth.RegisterInput{
				Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
			})
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if auth.KindOf(err) == auth.KindDuplicateEmail {
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, dup)
	assert.Equal(t, 1, store.Len())
}

func TestGate_LogsFailedHashUpgrade(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newGateFixture(t, auth.WithLogger(logger))

	f.store.On("FindByEmail", mock.Anything, "a@x.com").Return(existingUser(), nil)
	f.hasher.On("Verify", "secret1", "stored-hash").Return(true, nil)
	f.hasher.On("NeedsUpgrade", "stored-hash").Return(true)
	f.hasher.On("Hash", "secret1").Return("stronger-hash", nil)
	f.store.On("Save", mock.Anything, mock.Anything).Return(errors.New("read only"))

	_, err := f.gate.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "failed to save upgraded password hash")
	assert.Contains(t, out, `"level":"WARN"`)
	assert.NotContains(t, out, "secret1")
}

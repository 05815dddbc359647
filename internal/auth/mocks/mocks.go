// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/accountd/accountd/internal/auth"
)

// TestingT is the subset of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserStore is a mock auth.UserStore.
type MockUserStore struct {
	mock.Mock
}

var _ auth.UserStore = (*MockUserStore)(nil)

// NewMockUserStore creates a MockUserStore that asserts its expectations on cleanup.
func NewMockUserStore(t TestingT) *MockUserStore {
	m := &MockUserStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func userResult(args mock.Arguments) (*auth.User, error) {
	var u *auth.User
	if v := args.Get(0); v != nil {
		u = v.(*auth.User)
	}
	return u, args.Error(1)
}

// FindByEmail implements auth.UserStore.
func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return userResult(m.Called(ctx, email))
}

// FindByID implements auth.UserStore.
func (m *MockUserStore) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return userResult(m.Called(ctx, id))
}

// FindByResetTokenHash implements auth.UserStore.
func (m *MockUserStore) FindByResetTokenHash(ctx context.Context, hash string) (*auth.User, error) {
	return userResult(m.Called(ctx, hash))
}

// Create implements auth.UserStore.
func (m *MockUserStore) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// Save implements auth.UserStore.
func (m *MockUserStore) Save(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher creates a MockPasswordHasher that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockRecorder is a mock auth.Recorder.
type MockRecorder struct {
	mock.Mock
}

var _ auth.Recorder = (*MockRecorder)(nil)

// NewMockRecorder creates a MockRecorder that asserts its expectations on cleanup.
func NewMockRecorder(t TestingT) *MockRecorder {
	m := &MockRecorder{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// ObserveOperation implements auth.Recorder.
func (m *MockRecorder) ObserveOperation(op, result string) {
	m.Called(op, result)
}

// ObserveHash implements auth.Recorder.
func (m *MockRecorder) ObserveHash(d time.Duration) {
	m.Called(d)
}

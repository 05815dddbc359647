// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package memory provides an in-process auth.UserStore for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// UserStore keeps users in maps guarded by a mutex. Records are copied in
// and out so callers never share memory with the store.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]auth.User
	byEmail map[string]ulid.ULID
	byReset map[string]ulid.ULID
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[ulid.ULID]auth.User),
		byEmail: make(map[string]ulid.ULID),
		byReset: make(map[string]ulid.ULID),
	}
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// FindByEmail retrieves a user by email (case-insensitive).
func (s *UserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return s.copyOf(id), nil
}

// FindByID retrieves a user by ID.
func (s *UserStore) FindByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byID[id]; !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return s.copyOf(id), nil
}

// FindByResetTokenHash retrieves the user holding a reset token digest.
func (s *UserStore) FindByResetTokenHash(_ context.Context, hash string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReset[hash]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return s.copyOf(id), nil
}

// Create stores a new user.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	if err := user.Validate(); err != nil {
		return oops.Code("USER_CREATE_FAILED").With("email", user.Email).Wrapf(auth.ErrInvalidRecord, "%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email := auth.NormalizeEmail(user.Email)
	if _, taken := s.byEmail[email]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrDuplicateEmail)
	}
	if _, exists := s.byID[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Wrap(auth.ErrInvalidRecord)
	}
	s.put(user)
	return nil
}

// Save overwrites an existing user.
func (s *UserStore) Save(_ context.Context, user *auth.User) error {
	if err := user.Validate(); err != nil {
		return oops.Code("USER_SAVE_FAILED").With("id", user.ID.String()).Wrapf(auth.ErrInvalidRecord, "%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[user.ID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	email := auth.NormalizeEmail(user.Email)
	if owner, taken := s.byEmail[email]; taken && owner != user.ID {
		return oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrDuplicateEmail)
	}

	delete(s.byEmail, auth.NormalizeEmail(old.Email))
	if old.PasswordResetTokenHash != nil {
		delete(s.byReset, *old.PasswordResetTokenHash)
	}
	s.put(user)
	return nil
}

// put indexes a copy of user. Callers hold the write lock.
func (s *UserStore) put(user *auth.User) {
	u := cloneUser(user)
	u.Email = auth.NormalizeEmail(u.Email)
	s.byID[u.ID] = *u
	s.byEmail[u.Email] = u.ID
	if u.PasswordResetTokenHash != nil {
		s.byReset[*u.PasswordResetTokenHash] = u.ID
	}
}

// copyOf returns a detached copy. Callers hold at least the read lock.
func (s *UserStore) copyOf(id ulid.ULID) *auth.User {
	u := s.byID[id]
	return cloneUser(&u)
}

func cloneUser(user *auth.User) *auth.User {
	u := *user
	if user.PasswordResetTokenHash != nil {
		h := *user.PasswordResetTokenHash
		u.PasswordResetTokenHash = &h
	}
	if user.PasswordResetExpiresAt != nil {
		t := *user.PasswordResetExpiresAt
		u.PasswordResetExpiresAt = &t
	}
	return &u
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// UserStore persists User records. It is the only component that writes
// users; uniqueness of email is its responsibility.
//
// Lookups that match nothing return an error wrapping ErrNotFound.
type UserStore interface {
	// FindByEmail retrieves a user by email (case-insensitive).
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID retrieves a user by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// FindByResetTokenHash retrieves the user holding the given reset token digest.
	FindByResetTokenHash(ctx context.Context, hash string) (*User, error)

	// Create stores a new user. Fails with ErrDuplicateEmail when the email
	// is taken and ErrInvalidRecord when a constraint rejects the record.
	Create(ctx context.Context, user *User) error

	// Save overwrites an existing user. Fails with ErrNotFound when the user
	// does not exist and ErrInvalidRecord when a constraint rejects the record.
	Save(ctx context.Context, user *User) error
}

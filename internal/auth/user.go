// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field constraints.
const (
	MinNameLength     = 1
	MaxNameLength     = 50
	MaxEmailLength    = 254
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

// Role is the access level of a user.
type Role string

// Roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an account record. PasswordHash is always a hash; raw passwords
// never live on a User.
type User struct {
	ID                     ulid.ULID
	Name                   string
	Email                  string
	PasswordHash           string
	Photo                  string
	Role                   Role
	Active                 bool
	PasswordResetTokenHash *string
	PasswordResetExpiresAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// setResetToken records a pending reset, replacing any earlier one.
func (u *User) setResetToken(hash string, expiresAt time.Time) {
	u.PasswordResetTokenHash = &hash
	u.PasswordResetExpiresAt = &expiresAt
}

func (u *User) clearResetToken() {
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
}

// Validate checks the stored fields of u.
func (u *User) Validate() error {
	if err := ValidateName(u.Name); err != nil {
		return err
	}
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if !u.Role.Valid() {
		return validationError("role", "role must be either user or admin")
	}
	if u.PasswordHash == "" {
		return validationError("password", "password is required")
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateName checks the display name length in characters.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < MinNameLength || n > MaxNameLength {
		return validationError("name", "name must be between 1 and 50 characters")
	}
	return nil
}

// ValidateEmail checks that email is a bare address (no display name).
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return validationError("email", "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email", "please provide a valid email")
	}
	// Require a dotted domain, so "a@localhost" is rejected.
	domain := email[strings.LastIndex(email, "@")+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return validationError("email", "please provide a valid email")
	}
	return nil
}

// ValidatePassword checks a raw password before it is hashed.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return validationError("password", "password must be between 6 and 128 characters")
	}
	return nil
}

func validationError(field, msg string) error {
	return oops.Code(CodeValidation).With("field", field).Errorf("%s", msg)
}

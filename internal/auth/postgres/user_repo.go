// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package postgres implements auth.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// emailUniqueIndex is the case-insensitive unique index on users.email.
const emailUniqueIndex = "users_email_lower_key"

const userColumns = `id, name, email, password_hash, photo, role, active,
	password_reset_token, password_reset_expires, created_at, updated_at`

// Querier is the subset of *pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserStore using PostgreSQL.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// FindByResetTokenHash retrieves the user holding a pending reset token
// with the given digest. Expiry is checked by the caller.
func (r *UserRepository) FindByResetTokenHash(ctx context.Context, hash string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE password_reset_token = $1`, hash)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_RESET_TOKEN_FAILED").
			With("operation", "get user by reset token").
			Wrap(err)
	}
	return user, nil
}

// Create inserts a new user. A taken email yields auth.ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Photo,
		string(user.Role),
		user.Active,
		user.PasswordResetTokenHash,
		user.PasswordResetExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(classify(err))
	}
	return nil
}

// Save updates every mutable field of an existing user.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			name = $2,
			email = $3,
			password_hash = $4,
			photo = $5,
			role = $6,
			active = $7,
			password_reset_token = $8,
			password_reset_expires = $9,
			updated_at = $10
		WHERE id = $1
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Photo,
		string(user.Role),
		user.Active,
		user.PasswordResetTokenHash,
		user.PasswordResetExpiresAt,
		user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(classify(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// classify maps constraint violations onto the auth sentinels, keeping the
// driver error in the chain.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		if pgErr.ConstraintName == emailUniqueIndex {
			return errors.Join(auth.ErrDuplicateEmail, err)
		}
		return errors.Join(auth.ErrInvalidRecord, err)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.StringDataRightTruncationDataException:
		return errors.Join(auth.ErrInvalidRecord, err)
	}
	return err
}

// scanUser scans a single row into a User. pgx.ErrNoRows is returned
// unwrapped for callers to handle.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr     string
		user      auth.User
		role      string
		resetHash *string
		resetExp  *time.Time
	)
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Photo,
		&role,
		&user.Active,
		&resetHash,
		&resetExp,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("USER_SCAN_FAILED").With("operation", "scan user").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	user.ID = id
	user.Role = auth.Role(role)
	user.PasswordResetTokenHash = resetHash
	user.PasswordResetExpiresAt = resetExp
	return &user, nil
}

var _ auth.UserStore = (*UserRepository)(nil)

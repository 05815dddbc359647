// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"errors"

	"github.com/accountd/accountd/pkg/errutil"
)

// Store-level sentinels. UserStore implementations wrap these so the gate can
// classify failures without knowing the backend.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrInvalidRecord is returned when the store rejects a record constraint.
	ErrInvalidRecord = errors.New("invalid record")
)

// Error codes for the failures a caller can act on.
const (
	CodePasswordMismatch   = "AUTH_PASSWORD_MISMATCH"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeValidation         = "AUTH_VALIDATION_FAILED"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeResetTokenInvalid  = "AUTH_RESET_TOKEN_INVALID"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenMalformed     = "TOKEN_MALFORMED"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
)

// Kind classifies an error for the response layer.
type Kind string

// Error kinds.
const (
	KindPasswordMismatch      Kind = "PasswordMismatch"
	KindDuplicateEmail        Kind = "DuplicateEmail"
	KindValidation            Kind = "ValidationError"
	KindInvalidCredentials    Kind = "InvalidCredentials"
	KindUserNotFound          Kind = "UserNotFound"
	KindInvalidOrExpiredToken Kind = "InvalidOrExpiredToken"
	KindInvalidToken          Kind = "InvalidToken"
	KindExpired               Kind = "Expired"
	KindMalformed             Kind = "Malformed"
	KindUnauthenticated       Kind = "Unauthenticated"
	KindInternal              Kind = "Internal"
)

var codeKinds = map[string]Kind{
	CodePasswordMismatch:   KindPasswordMismatch,
	CodeDuplicateEmail:     KindDuplicateEmail,
	CodeValidation:         KindValidation,
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeUserNotFound:       KindUserNotFound,
	CodeResetTokenInvalid:  KindInvalidOrExpiredToken,
	CodeTokenInvalid:       KindInvalidToken,
	CodeTokenExpired:       KindExpired,
	CodeTokenMalformed:     KindMalformed,
	CodeUnauthenticated:    KindUnauthenticated,
}

// internalMessage replaces the message of any error outside the taxonomy.
const internalMessage = "something went wrong"

// KindOf returns the kind of err. Errors without a known code are KindInternal.
func KindOf(err error) Kind {
	if kind, ok := codeKinds[errutil.Code(err)]; ok {
		return kind
	}
	return KindInternal
}

// PublicMessage returns a message for err that is safe to show to the client.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindInternal {
		return internalMessage
	}
	return err.Error()
}

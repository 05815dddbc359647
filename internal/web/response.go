// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/avatar"
	"github.com/accountd/accountd/pkg/errutil"
)

// Kinds the web layer adds to auth.Kind.
const (
	KindForbidden  auth.Kind = "Forbidden"
	KindBadRequest auth.Kind = "BadRequest"
)

var kindStatus = map[auth.Kind]int{
	auth.KindPasswordMismatch:      http.StatusBadRequest,
	auth.KindDuplicateEmail:        http.StatusConflict,
	auth.KindValidation:            http.StatusBadRequest,
	auth.KindInvalidCredentials:    http.StatusUnauthorized,
	auth.KindUserNotFound:          http.StatusNotFound,
	auth.KindInvalidOrExpiredToken: http.StatusBadRequest,
	auth.KindInvalidToken:          http.StatusUnauthorized,
	auth.KindExpired:               http.StatusUnauthorized,
	auth.KindMalformed:             http.StatusUnauthorized,
	auth.KindUnauthenticated:       http.StatusUnauthorized,
	KindForbidden:                  http.StatusForbidden,
	KindBadRequest:                 http.StatusBadRequest,
}

type failureBody struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type successBody struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type userView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Photo     string    `json:"photo,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func userEnvelope(u *auth.User) successBody {
	return successBody{
		Status: "success",
		Data: map[string]any{"user": userView{
			ID:        u.ID.String(),
			Name:      u.Name,
			Email:     u.Email,
			Photo:     u.Photo,
			Role:      string(u.Role),
			CreatedAt: u.CreatedAt,
		}},
	}
}

// classify returns the kind, status and client message for err.
func classify(err error) (auth.Kind, int, string) {
	if msg := avatar.PublicMessage(err); msg != "" {
		return auth.KindValidation, http.StatusBadRequest, msg
	}
	switch errutil.Code(err) {
	case CodeForbidden:
		return KindForbidden, http.StatusForbidden, err.Error()
	case CodeBadRequest:
		return KindBadRequest, http.StatusBadRequest, err.Error()
	}
	kind := auth.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return kind, status, auth.PublicMessage(err)
}

// fail renders err as a JSON failure. Internal errors are logged and their
// detail withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind, status, msg := classify(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), s.logger.With("request_id", RequestIDFromContext(r.Context())),
			"request failed", err)
	}
	writeJSON(w, status, failureBody{Status: "fail", Kind: string(kind), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

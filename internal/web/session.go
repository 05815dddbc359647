// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package web

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// Codes the web layer adds to the auth taxonomy.
const (
	CodeForbidden  = "AUTH_FORBIDDEN"
	CodeBadRequest = "WEB_BAD_REQUEST"
)

// UserHandlerFunc handles a request for an authorized user.
type UserHandlerFunc func(w http.ResponseWriter, r *http.Request, user *auth.User)

// sessionCookie maps a gate credential onto the jwt cookie.
func (s *Server) sessionCookie(cred auth.SessionCredential) *http.Cookie {
	c := &http.Cookie{
		Name:     cred.Name,
		Value:    cred.Value,
		Path:     "/",
		Expires:  cred.ExpiresAt,
		HttpOnly: cred.HTTPOnly,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if cred.Expired() {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(cred.MaxAge.Seconds())
	}
	return c
}

// credentials returns the session tokens presented with r: the jwt cookie
// first, then an Authorization bearer header.
func credentials(r *http.Request) []string {
	var tokens []string
	if c, err := r.Cookie(auth.SessionCookieName); err == nil && c.Value != "" {
		tokens = append(tokens, c.Value)
	}
	const bearer = "Bearer "
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearer) {
		if token := strings.TrimSpace(h[len(bearer):]); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// authorize returns the user for the first presented token that verifies.
// A stale cookie does not hide a valid bearer header. With no valid token
// the first failure is returned.
func (s *Server) authorize(r *http.Request) (*auth.User, error) {
	tokens := credentials(r)
	if len(tokens) == 0 {
		tokens = []string{""}
	}
	var firstErr error
	for _, token := range tokens {
		user, err := s.gate.Authorize(r.Context(), token)
		if err == nil {
			return user, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// RequireUser authorizes the request and passes the user to next.
func (s *Server) RequireUser(next UserHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next(w, r, user)
	})
}

// RequireAdmin rejects users without the admin role.
func (s *Server) RequireAdmin(next UserHandlerFunc) UserHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, user *auth.User) {
		if !user.IsAdmin() {
			s.fail(w, r, oops.Code(CodeForbidden).
				With("user_id", user.ID.String()).
				Errorf("you do not have permission to perform this action"))
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user *auth.User) {
	writeJSON(w, http.StatusOK, userEnvelope(user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ *auth.User) {
	id, err := ulid.ParseStrict(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, oops.Code(auth.CodeUserNotFound).Errorf("there is no user with that id"))
		return
	}
	user, err := s.gate.User(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope(user))
}

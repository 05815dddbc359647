// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/pkg/errutil"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 1 << 20

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func badRequest(msg string) error {
	return oops.Code(CodeBadRequest).Errorf("%s", msg)
}

// decodeJSON reads a JSON body of at most MaxBodyBytes into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body is too large")
		}
		return badRequest("request body must be a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, photo, err := s.readRegistration(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if photo != nil {
		defer photo.Close() //nolint:errcheck // read-only upload

		key, err := s.avatars.Process(ctx, photo.contentType, photo)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		in.Photo = key
	}

	user, err := s.gate.Register(ctx, in)
	if err != nil {
		s.discardAvatar(ctx, in.Photo)
		s.fail(w, r, err)
		return
	}

	session, err := s.gate.StartSession(user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, s.sessionCookie(session.Credential))
	writeJSON(w, http.StatusCreated, userEnvelope(user))
}

type upload struct {
	multipart.File
	contentType string
}

// readRegistration accepts a JSON body or a multipart form with an optional
// photo file.
func (s *Server) readRegistration(w http.ResponseWriter, r *http.Request) (auth.RegisterInput, *upload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		var req registerRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			return auth.RegisterInput{}, nil, err
		}
		return auth.RegisterInput{
			Name:            req.Name,
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
		}, nil, nil
	}

	limit := s.opts.MaxBodyBytes
	if s.avatars != nil {
		limit += s.avatars.MaxBytes()
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return auth.RegisterInput{}, nil, badRequest("request body is too large")
		}
		return auth.RegisterInput{}, nil, badRequest("request body must be a valid multipart form")
	}

	in := auth.RegisterInput{
		Name:            r.FormValue("name"),
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirmPassword"),
	}

	file, header, err := r.FormFile("photo")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil, nil
	case err != nil:
		return auth.RegisterInput{}, nil, badRequest("photo could not be read")
	case s.avatars == nil:
		file.Close() //nolint:errcheck,gosec // read-only upload
		return auth.RegisterInput{}, nil, badRequest("photo uploads are disabled")
	}
	return in, &upload{File: file, contentType: header.Header.Get("Content-Type")}, nil
}

// discardAvatar removes a stored photo whose registration failed.
func (s *Server) discardAvatar(ctx context.Context, key string) {
	if key == "" || s.avatars == nil {
		return
	}
	if err := s.avatars.Discard(ctx, key); err != nil {
		errutil.LogWarnContext(ctx, s.logger, "failed to discard avatar", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.gate.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, s.sessionCookie(result.Credential))
	writeJSON(w, http.StatusOK, userEnvelope(result.User))
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, s.sessionCookie(s.gate.Logout()))
	writeJSON(w, http.StatusOK, successBody{Status: "success"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	reset, err := s.gate.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{
		Status: "success",
		Data: map[string]any{
			"resetURL":  s.resetURL(r, reset.Token),
			"expiresAt": reset.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// resetURL points at the reset route on the public URL, or on the scheme
// and host the request arrived with.
func (s *Server) resetURL(r *http.Request, token string) string {
	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/resetPassword/" + url.PathEscape(token)
}

func (s *Server) handleResetForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, successBody{
		Status: "success",
		Data:   map[string]any{"token": r.PathValue("token")},
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.gate.ResetPassword(r.Context(), r.PathValue("token"), req.Password, req.ConfirmPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := s.gate.StartSession(user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, s.sessionCookie(session.Credential))
	writeJSON(w, http.StatusOK, userEnvelope(user))
}

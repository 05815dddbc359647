// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package web exposes the auth gate as a JSON HTTP API. Sessions travel in
// the jwt cookie; protected handlers receive the authorized user as an
// argument.
package web

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/avatar"
)

// DefaultMaxBodyBytes limits JSON request bodies.
const DefaultMaxBodyBytes = 1 << 20

// RequestRecorder receives one observation per HTTP request.
// observability.Metrics implements it.
type RequestRecorder interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, int, time.Duration) {}

// Options configures a Server.
type Options struct {
	// PublicURL is the externally visible base URL used for reset links.
	// When empty it is derived from the request.
	PublicURL string
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// MaxBodyBytes limits JSON request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Server routes HTTP requests to the auth gate.
type Server struct {
	gate     *auth.Gate
	avatars  *avatar.Processor
	opts     Options
	logger   *slog.Logger
	recorder RequestRecorder
}

// Option customises a Server.
type Option func(*Server) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return oops.Code("WEB_SERVER_INVALID").Errorf("logger is required")
		}
		s.logger = logger
		return nil
	}
}

// WithRecorder sets the request metrics recorder.
func WithRecorder(r RequestRecorder) Option {
	return func(s *Server) error {
		if r == nil {
			return oops.Code("WEB_SERVER_INVALID").Errorf("recorder is required")
		}
		s.recorder = r
		return nil
	}
}

// WithAvatars enables photo uploads on registration.
func WithAvatars(p *avatar.Processor) Option {
	return func(s *Server) error {
		if p == nil {
			return oops.Code("WEB_SERVER_INVALID").Errorf("avatar processor is required")
		}
		s.avatars = p
		return nil
	}
}

// NewServer creates a Server around gate.
func NewServer(gate *auth.Gate, opts Options, options ...Option) (*Server, error) {
	if gate == nil {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("auth gate is required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")

	s := &Server{
		gate:     gate,
		opts:     opts,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler returns the API routes wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("POST /forgotPassword", s.handleForgotPassword)
	mux.HandleFunc("GET /resetPassword/{token}", s.handleResetForm)
	mux.HandleFunc("PATCH /resetPassword/{token}", s.handleResetPassword)

	mux.Handle("GET /index", s.RequireUser(s.handleMe))
	mux.Handle("GET /me", s.RequireUser(s.handleMe))
	mux.Handle("GET /users/{id}", s.RequireUser(s.RequireAdmin(s.handleGetUser)))

	return requestID(s.logRequests(securityHeaders(mux)))
}

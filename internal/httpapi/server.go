// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

// Package httpapi binds the auth service to a JSON REST API served by fasthttp.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/samber/oops"
	"github.com/valyala/fasthttp"

	"github.com/kitchenspark/kitchenspark/internal/auth"
)

// AuthService is the set of auth operations exposed over HTTP.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.AuthResult, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.AuthResult, error)
	GetProfile(ctx context.Context, token string) (*auth.Account, error)
	UpdateProfile(ctx context.Context, token string, update auth.ProfileUpdate) (*auth.Account, error)
	ChangePassword(ctx context.Context, token string, change auth.PasswordChange) error
	Logout(ctx context.Context, token string) error
	VerifyToken(ctx context.Context, token string) (*auth.Account, error)
	RecentActivity(ctx context.Context, token string, limit int) ([]*auth.Activity, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// DefaultRequestTimeout bounds the context handed to the auth service.
const DefaultRequestTimeout = 10 * time.Second

// Config holds the HTTP server settings.
type Config struct {
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server serves the REST API.
type Server struct {
	svc     AuthService
	health  HealthChecker
	logger  *slog.Logger
	cfg     Config
	httpSrv *fasthttp.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for access and error logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthChecker sets the dependency probed by GET /healthz.
func WithHealthChecker(h HealthChecker) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithConfig sets timeouts. Zero values keep the defaults.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// NewServer creates a Server for svc.
func NewServer(svc AuthService, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("HTTP_INVALID_DEPENDENCY").Errorf("auth service is required")
	}
	s := &Server{
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("HTTP_INVALID_DEPENDENCY").Errorf("logger cannot be nil")
	}
	if s.cfg.RequestTimeout <= 0 {
		s.cfg.RequestTimeout = DefaultRequestTimeout
	}

	s.httpSrv = &fasthttp.Server{
		Handler:               s.Handler(),
		Name:                  "kitchenspark",
		ReadTimeout:           s.cfg.ReadTimeout,
		WriteTimeout:          s.cfg.WriteTimeout,
		NoDefaultServerHeader: true,
		Logger:                fasthttpLogger{s.logger},
	}
	return s, nil
}

// Handler returns the routed request handler wrapped in the middleware chain.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api/auth")
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)
	api.GET("/profile", s.handleGetProfile)
	api.PUT("/profile", s.handleUpdateProfile)
	api.POST("/change-password", s.handleChangePassword)
	api.POST("/logout", s.handleLogout)
	api.POST("/verify-token", s.handleVerifyToken)
	api.GET("/activity", s.handleActivity)

	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusNotFound, errorBody{Error: "Not found", Code: "HTTP_NOT_FOUND"})
	}
	r.MethodNotAllowed = func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusMethodNotAllowed, errorBody{Error: "Method not allowed", Code: "HTTP_METHOD_NOT_ALLOWED"})
	}

	return s.withRequestID(s.withRecover(s.withAccessLog(r.Handler)))
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("api server listening", "addr", ln.Addr().String())
	if err := s.httpSrv.Serve(ln); err != nil {
		return oops.Code("HTTP_SERVE_FAILED").With("addr", ln.Addr().String()).Wrap(err)
	}
	return nil
}

// ListenAndServe listens on addr and serves until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.ShutdownWithContext(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// fasthttpLogger routes fasthttp's internal messages through slog.
type fasthttpLogger struct {
	logger *slog.Logger
}

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.logger.Warn("fasthttp", "message", fmt.Sprintf(format, args...))
}

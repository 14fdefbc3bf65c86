// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

// Package web is the HTTP surface: routing, the access guard, and the
// login/registration/logout handlers.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/taskweave/taskweave/internal/auth"
	"github.com/taskweave/taskweave/internal/flash"
	"github.com/taskweave/taskweave/internal/observability"
	"github.com/taskweave/taskweave/internal/session"
)

// Server wires the authentication core to gin. All collaborators are
// injected; nothing here reaches for process-wide state.
type Server struct {
	addr          string
	secureCookies bool

	authService *auth.Service
	sessions    session.Store
	flashKey    flash.Key
	metrics     *observability.Metrics
	logger      *slog.Logger

	httpServer *http.Server
}

// Options configures a Server.
type Options struct {
	Addr          string
	SecureCookies bool
	AuthService   *auth.Service
	Sessions      session.Store
	FlashKey      flash.Key
	Metrics       *observability.Metrics // optional
	Logger        *slog.Logger           // optional, defaults to slog.Default
}

// NewServer creates a Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Addr == "" {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("listen address is required")
	}
	if opts.AuthService == nil {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("auth service is required")
	}
	if opts.Sessions == nil {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("session store is required")
	}
	if len(opts.FlashKey) == 0 {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("flash key is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:          opts.Addr,
		secureCookies: opts.SecureCookies,
		authService:   opts.AuthService,
		sessions:      opts.Sessions,
		flashKey:      opts.FlashKey,
		metrics:       opts.Metrics,
		logger:        logger,
	}, nil
}

// Handler builds the gin engine with all routes and middleware attached.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(s.resolveSession())
	engine.SetHTMLTemplate(pageTemplates())

	engine.GET("/", s.handleHome)

	users := engine.Group("/users")
	{
		users.GET("/register", s.handleRegisterPage)
		users.POST("/register", s.handleRegister)
		users.GET("/login", s.handleLoginPage)
		users.POST("/login", s.handleLogin)
		users.POST("/logout", s.requireAuth(), s.handleLogout)
	}

	protected := engine.Group("/todo")
	protected.Use(s.requireAuth())
	{
		protected.GET("", s.handleTodoHome)
	}

	return engine
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Info("web server started", "addr", s.addr)

	select {
	case err := <-errCh:
		return oops.Code("WEB_SERVER_FAILED").With("addr", s.addr).Wrap(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return oops.Code("WEB_SERVER_SHUTDOWN_FAILED").Wrap(err)
	}

	s.logger.Info("web server stopped")
	return nil
}

// setSessionCookie points the client at the handle's current token.
func (s *Server) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, maxAge, "/", "", s.secureCookies, true)
}

// clearSessionCookie drops the session cookie.
func (s *Server) clearSessionCookie(c *gin.Context) {
	s.setSessionCookie(c, "", -1)
}

// Metric helpers tolerate a nil metrics sink (metrics address disabled).

func (s *Server) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Server) recordRegistration(result string) {
	if s.metrics != nil {
		s.metrics.RegistrationsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Server) recordFlashDiscarded() {
	if s.metrics != nil {
		s.metrics.FlashDiscarded.Inc()
	}
}

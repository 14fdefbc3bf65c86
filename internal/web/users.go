// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskweave/taskweave/internal/auth"
	"github.com/taskweave/taskweave/internal/flash"
	"github.com/taskweave/taskweave/internal/observability"
	"github.com/taskweave/taskweave/internal/session"
	"github.com/taskweave/taskweave/pkg/errutil"
)

// incorrectCredentials is the one user-visible authentication failure
// message. Unknown email and wrong password read identically.
const incorrectCredentials = "Incorrect Credentials"

type registerForm struct {
	Username string `form:"username"`
	Email    string `form:"email"`
	Password string `form:"password"`
}

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

func (s *Server) handleRegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register", nil)
}

// handleRegister creates an account. Uniqueness violations come back as a
// 422 naming the offending field(s); everything else internal is an opaque
// 500.
func (s *Server) handleRegister(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form"})
		return
	}

	_, err := s.authService.Register(c.Request.Context(), form.Username, form.Email, form.Password)
	if err != nil {
		if field, ok := auth.IsDuplicateField(err); ok {
			s.recordRegistration(observability.ResultRejected)
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"errors": gin.H{field: []string{field + " is already taken"}},
			})
			return
		}
		if field, reason, ok := validationField(err); ok {
			s.recordRegistration(observability.ResultRejected)
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"errors": gin.H{field: []string{reason}},
			})
			return
		}
		s.recordRegistration(observability.ResultError)
		errutil.LogError(s.logger, "registration failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return
	}

	s.recordRegistration(observability.ResultSuccess)
	c.Redirect(http.StatusSeeOther, LoginPath)
}

// validationField maps the service's validation failures onto the field
// they concern, mirroring the duplicate-field shape.
func validationField(err error) (field, reason string, ok bool) {
	if errors.Is(err, auth.ErrEmptyPassword) {
		return "password", "password cannot be empty", true
	}
	var oopsLike interface{ Code() any }
	if errors.As(err, &oopsLike) {
		switch oopsLike.Code() {
		case "AUTH_INVALID_USERNAME":
			return "username", err.Error(), true
		case "AUTH_INVALID_EMAIL":
			return "email", err.Error(), true
		}
	}
	return "", "", false
}

// handleLoginPage renders the login form with any pending flash error.
// Reading the flash consumes it: a refresh shows a clean page.
func (s *Server) handleLoginPage(c *gin.Context) {
	msg, discarded := flash.Take(c.Writer, c.Request, s.flashKey, s.logger)
	if discarded {
		s.recordFlashDiscarded()
	}

	errorText := ""
	if msg != nil && msg.Level == flash.LevelError {
		errorText = msg.Text
	}
	c.HTML(http.StatusOK, "login", gin.H{"Error": errorText})
}

// handleLogin verifies credentials. Success rotates the session identifier
// before any identity is stored, so a pre-login cookie is worthless
// afterwards.
func (s *Server) handleLogin(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form"})
		return
	}

	ctx := c.Request.Context()

	user, err := s.authService.Authenticate(ctx, form.Email, form.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.recordLogin(observability.ResultRejected)
			s.logger.Debug("login rejected", logAttrs(c)...)
			if flashErr := flash.Set(c.Writer, s.flashKey, flash.Message{
				Level: flash.LevelError,
				Text:  incorrectCredentials,
			}); flashErr != nil {
				errutil.LogError(s.logger, "failed to set flash", flashErr)
			}
			c.Redirect(http.StatusSeeOther, LoginPath)
			return
		}
		s.recordLogin(observability.ResultError)
		errutil.LogError(s.logger, "login failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return
	}

	handle := sessionHandle(c)
	if err := handle.Cycle(ctx); err != nil {
		s.recordLogin(observability.ResultError)
		errutil.LogError(s.logger, "session rotation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return
	}
	if err := handle.SetPayload(ctx, session.Payload{
		UserID:   user.ID,
		Username: user.Username,
	}); err != nil {
		s.recordLogin(observability.ResultError)
		errutil.LogError(s.logger, "session write failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return
	}

	s.setSessionCookie(c, handle.Token(), 0)
	s.recordLogin(observability.ResultSuccess)
	s.logger.Info("login succeeded", append(logAttrs(c), "user_id", user.ID.String())...)
	c.Redirect(http.StatusSeeOther, "/todo")
}

// handleLogout destroys the session and drops the cookie.
func (s *Server) handleLogout(c *gin.Context) {
	handle := sessionHandle(c)
	if err := handle.Destroy(c.Request.Context()); err != nil {
		errutil.LogError(s.logger, "session destroy failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return
	}

	s.clearSessionCookie(c)
	c.Redirect(http.StatusSeeOther, "/")
}

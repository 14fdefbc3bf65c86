// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/taskweave/taskweave/internal/session"
	"github.com/taskweave/taskweave/pkg/errutil"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "taskweave_session"

// Gin context keys. Private: handlers go through the typed accessors.
const (
	ctxKeyHandle  = "taskweave.session_handle"
	ctxKeyPayload = "taskweave.session_payload"
	ctxKeyReqID   = "taskweave.request_id"
)

// LoginPath is where unauthenticated requests get sent.
const LoginPath = "/users/login"

// requestLogger stamps a ULID request id on the context and logs one line
// per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := ulid.Make().String()
		c.Set(ctxKeyReqID, reqID)
		c.Writer.Header().Set("Taskweave-Request-Id", reqID)

		c.Next()

		s.logger.Info("request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// resolveSession binds a session handle to the request and resolves the
// authenticated payload once. Handlers and later middleware use the typed
// accessors instead of poking the session store again.
func (s *Server) resolveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if cookie, err := c.Cookie(SessionCookieName); err == nil {
			token = cookie
		}

		handle := session.NewHandle(s.sessions, token)
		c.Set(ctxKeyHandle, handle)

		payload, ok, err := handle.Payload(c.Request.Context())
		if err != nil {
			// A broken session backend is an internal failure, never a
			// silent logout.
			errutil.LogError(s.logger, "session backend failure", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if ok {
			c.Set(ctxKeyPayload, payload)
		}

		c.Next()
	}
}

// requireAuth rejects requests that carry no authenticated session with a
// redirect to the login page. It always completes before the wrapped
// handler runs, so no protected handler ever executes unauthenticated.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.Redirect(http.StatusSeeOther, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated identity resolved by the session
// middleware, if any.
func CurrentUser(c *gin.Context) (session.Payload, bool) {
	v, ok := c.Get(ctxKeyPayload)
	if !ok {
		return session.Payload{}, false
	}
	payload, ok := v.(session.Payload)
	return payload, ok
}

// sessionHandle returns the handle bound by resolveSession.
func sessionHandle(c *gin.Context) *session.Handle {
	v, ok := c.Get(ctxKeyHandle)
	if !ok {
		return nil
	}
	handle, _ := v.(*session.Handle)
	return handle
}

// requestID returns the ULID assigned by requestLogger.
func requestID(c *gin.Context) string {
	v, ok := c.Get(ctxKeyReqID)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// logAttrs is the base attribute set for handler-level log lines.
func logAttrs(c *gin.Context) []any {
	return []any{slog.String("request_id", requestID(c))}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tourbook/tourbook/internal/auth"
)

const accountKey = "account"

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != auth.LogoutCarrierValue {
		return cookie
	}
	return ""
}

// protect rejects requests without a valid session and stores the account
// view for later handlers.
func (h *Handler) protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.svc.Validate(c.Request.Context(), sessionToken(c))
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Set(accountKey, view)
		c.Next()
	}
}

// restrictTo admits only accounts holding one of roles. It must run after
// protect.
func (h *Handler) restrictTo(roles ...auth.Role) gin.HandlerFunc {
	allowed := auth.NewRoleSet(roles...)
	return func(c *gin.Context) {
		view, ok := currentAccount(c)
		if !ok || !allowed.Allows(view.Role) {
			h.respondError(c, forbidden())
			return
		}
		c.Next()
	}
}

func currentAccount(c *gin.Context) (auth.AccountView, bool) {
	v, ok := c.Get(accountKey)
	if !ok {
		return auth.AccountView{}, false
	}
	view, ok := v.(auth.AccountView)
	return view, ok
}

// accessLog writes one slog record per request. Paths are logged without
// the query string and reset tokens are masked.
func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", maskedPath(c),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if view, ok := currentAccount(c); ok {
			attrs = append(attrs, "account_id", view.ID)
		}
		if len(c.Errors) > 0 {
			h.logger.ErrorContext(c.Request.Context(), "request failed", append(attrs, "errors", c.Errors.String())...)
			return
		}
		h.logger.InfoContext(c.Request.Context(), "request completed", attrs...)
	}
}

func maskedPath(c *gin.Context) string {
	if c.Param("token") != "" {
		return strings.Replace(c.FullPath(), ":token", "<redacted>", 1)
	}
	return c.Request.URL.Path
}

// countRequests reports each request to the recorder by route template.
func (h *Handler) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if h.recorder == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		h.recorder.HTTPRequest(c.Request.Method, route, c.Writer.Status())
	}
}

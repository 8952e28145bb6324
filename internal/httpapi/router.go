// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package httpapi exposes account authentication over HTTP under
// /api/v1/users. Sessions travel as a bearer token or in the jwt cookie.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tourbook/tourbook/internal/auth"
)

// CookieName is the session carrier cookie.
const CookieName = "jwt"

// AuthService is the account operations the API serves.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	Logout() auth.Carrier
	ChangePassword(ctx context.Context, accountID ulid.ULID, currentPassword string, in auth.PasswordInput) (*auth.Result, error)
	RequestPasswordReset(ctx context.Context, email string) (*auth.ResetRequest, error)
	ConsumeReset(ctx context.Context, rawToken string, in auth.PasswordInput) (*auth.Result, error)
	Validate(ctx context.Context, token string) (auth.AccountView, error)
	Account(ctx context.Context, id ulid.ULID) (auth.AccountView, error)
	Deactivate(ctx context.Context, id ulid.ULID) error
	UpdateProfile(ctx context.Context, id ulid.ULID, in auth.ProfileInput) (auth.AccountView, error)
	Delete(ctx context.Context, id ulid.ULID) error
}

// RequestRecorder counts served requests.
type RequestRecorder interface {
	HTTPRequest(method, route string, status int)
}

// Options configures a Handler.
type Options struct {
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
	Logger       *slog.Logger
	Recorder     RequestRecorder
}

// Handler serves the account API.
type Handler struct {
	svc          AuthService
	logger       *slog.Logger
	recorder     RequestRecorder
	cookieSecure bool
}

// NewHandler creates a Handler over svc.
func NewHandler(svc AuthService, opts Options) (*Handler, error) {
	if svc == nil {
		return nil, oops.Code("HTTPAPI_CONFIG").Errorf("auth service is required")
	}
	h := &Handler{
		svc:          svc,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		cookieSecure: opts.CookieSecure,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// Router builds the gin engine with every route and middleware installed.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog(), h.countRequests())

	users := r.Group("/api/v1/users")
	users.POST("/signup", h.signup)
	users.POST("/login", h.login)
	users.GET("/logout", h.logout)
	users.POST("/forgotPassword", h.forgotPassword)
	users.PATCH("/resetPassword/:token", h.resetPassword)

	protected := users.Group("", h.protect())
	protected.PATCH("/changePassword", h.changePassword)
	protected.GET("/me", h.me)
	protected.PATCH("/updateMe", h.updateMe)
	protected.DELETE("/deactivateMe", h.deactivateMe)
	protected.DELETE("/deleteMe", h.deleteMe)

	admin := protected.Group("", h.restrictTo(auth.RoleAdmin))
	admin.GET("/:id", h.accountByID)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "fail",
			"message": "Can't find " + c.Request.URL.Path + " on this server!",
		})
	})
	return r
}

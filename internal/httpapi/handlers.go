// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tourbook/tourbook/internal/auth"
)

// resetSentMessage is returned for every forgotPassword request so callers
// cannot probe which emails are registered.
const resetSentMessage = "Token sent to email!"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// changePasswordRequest accepts the current password as oldPassword or
// passwordCurrent; oldPassword wins when both are sent.
type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (r changePasswordRequest) current() string {
	if r.OldPassword != "" {
		return r.OldPassword
	}
	return r.PasswordCurrent
}

func (h *Handler) signup(c *gin.Context) {
	var in auth.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, badRequest(err))
		return
	}
	res, err := h.svc.Signup(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.sendSession(c, http.StatusCreated, res)
}

func (h *Handler) login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, badRequest(err))
		return
	}
	if in.Email == "" || in.Password == "" {
		h.respondError(c, oops.Code(auth.CodeValidationFailed).
			With("field", "email").
			Errorf("Please provide email and password!"))
		return
	}
	res, err := h.svc.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.sendSession(c, http.StatusOK, res)
}

func (h *Handler) logout(c *gin.Context) {
	h.setCarrier(c, h.svc.Logout())
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var in forgotPasswordRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, badRequest(err))
		return
	}
	req, err := h.svc.RequestPasswordReset(c.Request.Context(), in.Email)
	switch {
	case err == nil:
		if !req.Delivered {
			h.logger.WarnContext(c.Request.Context(), "password reset issued but not delivered",
				"account_id", req.AccountID.String())
		}
	case auth.ErrorCode(err) == auth.CodeNotFound:
		h.logger.InfoContext(c.Request.Context(), "password reset requested for unknown email")
	default:
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": resetSentMessage})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var in auth.PasswordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, badRequest(err))
		return
	}
	res, err := h.svc.ConsumeReset(c.Request.Context(), c.Param("token"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.sendSession(c, http.StatusOK, res)
}

func (h *Handler) changePassword(c *gin.Context) {
	id, err := h.currentAccountID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var in changePasswordRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, badRequest(err))
		return
	}
	res, err := h.svc.ChangePassword(c.Request.Context(), id, in.current(), auth.PasswordInput{
		Password:        in.Password,
		PasswordConfirm: in.PasswordConfirm,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.sendSession(c, http.StatusOK, res)
}

func (h *Handler) me(c *gin.Context) {
	id, err := h.currentAccountID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.svc.Account(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"user": view}})
}

func (h *Handler) deactivateMe(c *gin.Context) {
	id, err := h.currentAccountID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.svc.Deactivate(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.setCarrier(c, h.svc.Logout())
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateMe(c *gin.Context) {
	id, err := h.currentAccountID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var in auth.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, badRequest(err))
		return
	}
	view, err := h.svc.UpdateProfile(c.Request.Context(), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"user": view}})
}

func (h *Handler) deleteMe(c *gin.Context) {
	id, err := h.currentAccountID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.setCarrier(c, h.svc.Logout())
	c.Status(http.StatusNoContent)
}

func (h *Handler) accountByID(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, oops.Code(auth.CodeNotFound).With("id", c.Param("id")).Wrap(err))
		return
	}
	view, err := h.svc.Account(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"user": view}})
}

func (h *Handler) currentAccountID(c *gin.Context) (ulid.ULID, error) {
	view, ok := currentAccount(c)
	if !ok {
		return ulid.ULID{}, oops.Code(auth.CodeTokenMalformed).Errorf("no authenticated account")
	}
	id, err := ulid.Parse(view.ID)
	if err != nil {
		return ulid.ULID{}, oops.Code("HTTPAPI_ACCOUNT_ID").With("id", view.ID).Wrap(err)
	}
	return id, nil
}

func (h *Handler) sendSession(c *gin.Context, status int, res *auth.Result) {
	if res == nil {
		h.respondError(c, oops.Code("HTTPAPI_NO_SESSION").Errorf("service returned no session"))
		return
	}
	h.setCarrier(c, res.Carrier)
	c.JSON(status, gin.H{
		"status": "success",
		"token":  res.Token,
		"data":   gin.H{"user": res.Account},
	})
}

func (h *Handler) setCarrier(c *gin.Context, carrier auth.Carrier) {
	maxAge := int(time.Until(carrier.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    carrier.Value,
		Path:     "/",
		Expires:  carrier.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/pkg/errutil"
)

// CodeForbidden is returned when an authenticated account lacks the role a
// route requires.
const CodeForbidden = "AUTH_FORBIDDEN"

// CodeBadRequest is returned for bodies that are not valid JSON.
const CodeBadRequest = "HTTP_BAD_REQUEST"

// StatusFor maps an error code to the HTTP status it is reported with.
func StatusFor(code string) int {
	switch code {
	case auth.CodeInvalidCredentials,
		auth.CodeIncorrectPassword,
		auth.CodeStalePassword,
		auth.CodeTokenMalformed,
		auth.CodeTokenSignature,
		auth.CodeTokenExpired:
		return http.StatusUnauthorized
	case auth.CodeAccountLocked, CodeForbidden:
		return http.StatusForbidden
	case auth.CodeNotFound:
		return http.StatusNotFound
	case auth.CodeValidationFailed, auth.CodeResetTokenInvalid, CodeBadRequest:
		return http.StatusBadRequest
	case auth.CodeEmailTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessages replaces internal error text for codes whose message may
// carry wrapped causes.
var publicMessages = map[string]string{
	auth.CodeInvalidCredentials: "Incorrect email or password",
	auth.CodeIncorrectPassword:  "Your current password is wrong.",
	auth.CodeStalePassword:      "User recently changed password! Please log in again.",
	auth.CodeTokenMalformed:     "You are not logged in! Please log in to get access.",
	auth.CodeTokenSignature:     "Invalid token. Please log in again!",
	auth.CodeTokenExpired:       "Your token has expired! Please log in again.",
	auth.CodeNotFound:           "No account found.",
	auth.CodeResetTokenInvalid:  "Token is invalid or has expired",
	auth.CodeEmailTaken:         "Email address is already registered.",
	CodeForbidden:               "You do not have permission to perform this action",
	CodeBadRequest:              "Invalid request body.",
}

const internalMessage = "Something went very wrong!"

// respondError writes err as a JSend fail or error body.
func (h *Handler) respondError(c *gin.Context, err error) {
	code := auth.ErrorCode(err)
	status := StatusFor(code)

	if status >= http.StatusInternalServerError {
		errutil.LogError(h.logger, "request failed", err,
			"method", c.Request.Method,
			"route", c.FullPath())
		_ = c.Error(err) //nolint:errcheck // recorded for the access log
		c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": internalMessage})
		return
	}

	msg, ok := publicMessages[code]
	if !ok {
		msg = err.Error()
	}
	body := gin.H{"status": "fail", "message": msg}
	if code != "" {
		body["code"] = code
	}
	if code == auth.CodeValidationFailed {
		if oopsErr, isOops := oops.AsOops(err); isOops {
			if field, hasField := oopsErr.Context()["field"]; hasField {
				body["field"] = field
			}
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func forbidden() error {
	return oops.Code(CodeForbidden).Errorf("role not permitted")
}

func badRequest(err error) error {
	return oops.Code(CodeBadRequest).Wrapf(err, "decode request body")
}

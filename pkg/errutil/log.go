// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package errutil logs and inspects oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. For oops errors the code and context are
// logged as separate attributes. attrs are appended as-is.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields, "error", err.Error())
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil && code != "" {
			fields = append(fields, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			fields = append(fields, "context", ctx)
		}
	}
	fields = append(fields, attrs...)
	logger.Error(msg, fields...)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Password length limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 20
)

// SignupInput is the data required to register an account.
type SignupInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=20"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// PasswordInput is a new password together with its confirmation.
type PasswordInput struct {
	Password        string `json:"password" validate:"required,min=8,max=20"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// ProfileInput updates an account's own details. Empty fields are left
// unchanged. Password fields are rejected.
type ProfileInput struct {
	Name            string `json:"name" validate:"omitempty,max=100"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"-"`
	PasswordConfirm string `json:"passwordConfirm" validate:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the signup input.
func (in SignupInput) Validate() error {
	return validateStruct(in)
}

// Validate checks the password input.
func (in PasswordInput) Validate() error {
	return validateStruct(in)
}

// Validate checks the profile input.
func (in ProfileInput) Validate() error {
	if in.Password != "" || in.PasswordConfirm != "" {
		return validationFailed("password",
			"this route is not for password updates, please use /changePassword")
	}
	return validateStruct(in)
}

func validateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return oops.Code(CodeValidationFailed).Wrap(err)
	}
	fe := fieldErrs[0]
	return validationFailed(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "please provide a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "eqfield":
		return "passwords are not the same"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

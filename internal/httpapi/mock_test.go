// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package httpapi_test

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/tourbook/tourbook/internal/auth"
)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) (*auth.Result, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*auth.Result)
	return res, args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	args := m.Called(ctx, email, password)
	res, _ := args.Get(0).(*auth.Result)
	return res, args.Error(1)
}

func (m *mockAuthService) Logout() auth.Carrier {
	args := m.Called()
	return args.Get(0).(auth.Carrier) //nolint:forcetypeassert // test double
}

func (m *mockAuthService) ChangePassword(ctx context.Context, id ulid.ULID, current string, in auth.PasswordInput) (*auth.Result, error) {
	args := m.Called(ctx, id, current, in)
	res, _ := args.Get(0).(*auth.Result)
	return res, args.Error(1)
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) (*auth.ResetRequest, error) {
	args := m.Called(ctx, email)
	req, _ := args.Get(0).(*auth.ResetRequest)
	return req, args.Error(1)
}

func (m *mockAuthService) ConsumeReset(ctx context.Context, rawToken string, in auth.PasswordInput) (*auth.Result, error) {
	args := m.Called(ctx, rawToken, in)
	res, _ := args.Get(0).(*auth.Result)
	return res, args.Error(1)
}

func (m *mockAuthService) Validate(ctx context.Context, token string) (auth.AccountView, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(auth.AccountView), args.Error(1) //nolint:forcetypeassert // test double
}

func (m *mockAuthService) Account(ctx context.Context, id ulid.ULID) (auth.AccountView, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(auth.AccountView), args.Error(1) //nolint:forcetypeassert // test double
}

func (m *mockAuthService) Deactivate(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAuthService) UpdateProfile(ctx context.Context, id ulid.ULID, in auth.ProfileInput) (auth.AccountView, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(auth.AccountView), args.Error(1) //nolint:forcetypeassert // test double
}

func (m *mockAuthService) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

type requestCount struct {
	method, route string
	status        int
}

type recordingCounter struct {
	mu       sync.Mutex
	requests []requestCount
}

func (r *recordingCounter) HTTPRequest(method, route string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, requestCount{method: method, route: route, status: status})
}

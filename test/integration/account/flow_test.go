// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

//go:build integration

package account_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/postgres"
	"github.com/tourbook/tourbook/internal/httpapi"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingMailer struct {
	mu      sync.Mutex
	welcome []auth.Recipient
	resets  map[string]string
}

func (m *capturingMailer) SendWelcome(_ context.Context, to auth.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcome = append(m.welcome, to)
	return nil
}

func (m *capturingMailer) SendPasswordReset(_ context.Context, to auth.Recipient, raw string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[to.Email] = raw
	return nil
}

func (m *capturingMailer) resetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets[email]
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Token   string `json:"token"`
	Data    struct {
		User auth.AccountView `json:"user"`
	} `json:"data"`
}

var _ = Describe("Account API", func() {
	var (
		ctx    context.Context
		clock  *testClock
		mailer *capturingMailer
		server *httptest.Server
	)

	call := func(method, path string, body any, token string) (int, apiResponse) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, server.URL+path, reader)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := server.Client().Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var out apiResponse
		if resp.StatusCode != http.StatusNoContent {
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		}
		return resp.StatusCode, out
	}

	signup := func(email, password string) apiResponse {
		status, res := call(http.MethodPost, "/api/v1/users/signup", map[string]string{
			"name":            "Nat Traveller",
			"email":           email,
			"password":        password,
			"passwordConfirm": password,
		}, "")
		Expect(status).To(Equal(http.StatusCreated))
		return res
	}

	BeforeEach(func() {
		ctx = context.Background()
		_, err := pool.Exec(ctx, "TRUNCATE accounts")
		Expect(err).NotTo(HaveOccurred())

		clock = &testClock{now: time.Now().UTC().Truncate(time.Second)}
		mailer = &capturingMailer{resets: map[string]string{}}

		hasher, err := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1})
		Expect(err).NotTo(HaveOccurred())
		signer, err := auth.NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), clock.Now)
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		svc, err := auth.NewService(postgres.NewAccountRepository(pool), hasher, signer,
			auth.WithClock(clock.Now),
			auth.WithMailer(mailer),
			auth.WithLogger(logger),
		)
		Expect(err).NotTo(HaveOccurred())

		handler, err := httpapi.NewHandler(svc, httpapi.Options{Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		server = httptest.NewServer(handler.Router())
	})

	AfterEach(func() {
		server.Close()
	})

	It("signs up, logs in and reads the current account", func() {
		created := signup("Nat@Example.com", "pass1234word")
		Expect(created.Token).NotTo(BeEmpty())
		Expect(created.Data.User.Email).To(Equal("nat@example.com"))
		Expect(created.Data.User.Role).To(Equal(auth.RoleUser))
		Expect(mailer.welcome).To(HaveLen(1))

		status, login := call(http.MethodPost, "/api/v1/users/login",
			map[string]string{"email": "nat@example.com", "password": "pass1234word"}, "")
		Expect(status).To(Equal(http.StatusOK))

		status, me := call(http.MethodGet, "/api/v1/users/me", nil, login.Token)
		Expect(status).To(Equal(http.StatusOK))
		Expect(me.Data.User.ID).To(Equal(created.Data.User.ID))

		var hash string
		Expect(pool.QueryRow(ctx, "SELECT password_hash FROM accounts WHERE email = $1", "nat@example.com").
			Scan(&hash)).To(Succeed())
		Expect(hash).To(HavePrefix("$argon2id$"))
		Expect(hash).NotTo(ContainSubstring("pass1234word"))
	})

	It("rejects a second signup with the same email", func() {
		signup("nat@example.com", "pass1234word")
		status, res := call(http.MethodPost, "/api/v1/users/signup", map[string]string{
			"name": "Other", "email": "NAT@example.com", "password": "pass1234word", "passwordConfirm": "pass1234word",
		}, "")
		Expect(status).To(Equal(http.StatusConflict))
		Expect(res.Code).To(Equal(auth.CodeEmailTaken))
	})

	It("locks the account after repeated failures", func() {
		signup("nat@example.com", "pass1234word")
		wrong := map[string]string{"email": "nat@example.com", "password": "wrongpass1"}

		for i := 0; i < auth.DefaultMaxLoginAttempts; i++ {
			status, res := call(http.MethodPost, "/api/v1/users/login", wrong, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(res.Message).To(Equal("Incorrect email or password"))
		}

		status, res := call(http.MethodPost, "/api/v1/users/login",
			map[string]string{"email": "nat@example.com", "password": "pass1234word"}, "")
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(res.Code).To(Equal(auth.CodeAccountLocked))

		var failed int
		var lockedUntil *time.Time
		Expect(pool.QueryRow(ctx, "SELECT failed_login_count, locked_until FROM accounts WHERE email = $1",
			"nat@example.com").Scan(&failed, &lockedUntil)).To(Succeed())
		Expect(failed).To(Equal(auth.DefaultMaxLoginAttempts))
		Expect(lockedUntil).NotTo(BeNil())

		clock.Advance(auth.LockoutWindow + time.Second)
		status, _ = call(http.MethodPost, "/api/v1/users/login",
			map[string]string{"email": "nat@example.com", "password": "pass1234word"}, "")
		Expect(status).To(Equal(http.StatusOK))
	})

	It("resets a forgotten password and retires older sessions", func() {
		created := signup("nat@example.com", "pass1234word")

		status, res := call(http.MethodPost, "/api/v1/users/forgotPassword",
			map[string]string{"email": "nat@example.com"}, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(res.Message).To(Equal("Token sent to email!"))
		raw := mailer.resetToken("nat@example.com")
		Expect(raw).NotTo(BeEmpty())

		var stored string
		Expect(pool.QueryRow(ctx, "SELECT password_reset_token_hash FROM accounts WHERE email = $1",
			"nat@example.com").Scan(&stored)).To(Succeed())
		Expect(stored).NotTo(Equal(raw))

		clock.Advance(5 * time.Second)
		status, reset := call(http.MethodPatch, "/api/v1/users/resetPassword/"+raw,
			map[string]string{"password": "newpass5678", "passwordConfirm": "newpass5678"}, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(reset.Token).NotTo(BeEmpty())

		status, stale := call(http.MethodGet, "/api/v1/users/me", nil, created.Token)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(stale.Code).To(Equal(auth.CodeStalePassword))

		status, _ = call(http.MethodGet, "/api/v1/users/me", nil, reset.Token)
		Expect(status).To(Equal(http.StatusOK))

		status, again := call(http.MethodPatch, "/api/v1/users/resetPassword/"+raw,
			map[string]string{"password": "another999", "passwordConfirm": "another999"}, "")
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(again.Code).To(Equal(auth.CodeResetTokenInvalid))
	})

	It("does not reveal whether an email is registered", func() {
		status, res := call(http.MethodPost, "/api/v1/users/forgotPassword",
			map[string]string{"email": "ghost@example.com"}, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(res.Message).To(Equal("Token sent to email!"))
		Expect(mailer.resetToken("ghost@example.com")).To(BeEmpty())
	})

	It("expires reset tokens after ten minutes", func() {
		signup("nat@example.com", "pass1234word")
		call(http.MethodPost, "/api/v1/users/forgotPassword", map[string]string{"email": "nat@example.com"}, "")
		raw := mailer.resetToken("nat@example.com")

		clock.Advance(11 * time.Minute)
		status, res := call(http.MethodPatch, "/api/v1/users/resetPassword/"+raw,
			map[string]string{"password": "newpass5678", "passwordConfirm": "newpass5678"}, "")
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(res.Code).To(Equal(auth.CodeResetTokenInvalid))
	})

	It("hides deactivated accounts from login", func() {
		created := signup("nat@example.com", "pass1234word")

		status, _ := call(http.MethodDelete, "/api/v1/users/deactivateMe", nil, created.Token)
		Expect(status).To(Equal(http.StatusNoContent))

		status, _ = call(http.MethodPost, "/api/v1/users/login",
			map[string]string{"email": "nat@example.com", "password": "pass1234word"}, "")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("updates the profile but refuses password changes there", func() {
		signup("taken@example.com", "pass1234word")
		created := signup("nat@example.com", "pass1234word")

		status, res := call(http.MethodPatch, "/api/v1/users/updateMe",
			map[string]string{"name": "Nat Wanderer", "email": "Wander@Example.com"}, created.Token)
		Expect(status).To(Equal(http.StatusOK))
		Expect(res.Data.User.Name).To(Equal("Nat Wanderer"))
		Expect(res.Data.User.Email).To(Equal("wander@example.com"))

		status, res = call(http.MethodPatch, "/api/v1/users/updateMe",
			map[string]string{"password": "newpass5678"}, created.Token)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(res.Code).To(Equal(auth.CodeValidationFailed))

		status, res = call(http.MethodPatch, "/api/v1/users/updateMe",
			map[string]string{"email": "taken@example.com"}, created.Token)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(res.Code).To(Equal(auth.CodeEmailTaken))
	})

	It("deletes the account and frees its email", func() {
		created := signup("nat@example.com", "pass1234word")

		status, _ := call(http.MethodDelete, "/api/v1/users/deleteMe", nil, created.Token)
		Expect(status).To(Equal(http.StatusNoContent))

		var count int
		Expect(pool.QueryRow(ctx, "SELECT count(*) FROM accounts WHERE email = $1", "nat@example.com").
			Scan(&count)).To(Succeed())
		Expect(count).To(BeZero())

		status, _ = call(http.MethodGet, "/api/v1/users/me", nil, created.Token)
		Expect(status).To(Equal(http.StatusNotFound))

		signup("nat@example.com", "pass1234word")
	})
})

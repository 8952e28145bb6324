// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tourbook/tourbook/internal/auth"
)

// fastParams keeps argon2id cheap in tests.
var fastParams = auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1}

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 53, 500_000_000, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memAccounts is an in-memory AccountRepository with copy-on-read semantics.
type memAccounts struct {
	mu       sync.Mutex
	byID     map[ulid.ULID]auth.Account
	saveErr  error
	saves    int
	findErr  error
	createFn func(*auth.Account) error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: make(map[ulid.ULID]auth.Account)}
}

func (m *memAccounts) Create(_ context.Context, a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFn != nil {
		if err := m.createFn(a); err != nil {
			return err
		}
	}
	for _, existing := range m.byID {
		if existing.Email == a.Email {
			return auth.ErrEmailTaken
		}
	}
	m.byID[a.ID] = *a
	return nil
}

func (m *memAccounts) FindActiveByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, a := range m.byID {
		if a.Email == email && a.Active {
			found := a
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memAccounts) FindActiveByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	a, ok := m.byID[id]
	if !ok || !a.Active {
		return nil, auth.ErrNotFound
	}
	return &a, nil
}

func (m *memAccounts) FindByResetTokenHash(_ context.Context, hash string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Active && a.PasswordResetTokenHash != nil && *a.PasswordResetTokenHash == hash {
			found := a
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memAccounts) Save(_ context.Context, a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.byID[a.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, existing := range m.byID {
		if id != a.ID && existing.Email == a.Email {
			return auth.ErrEmailTaken
		}
	}
	m.byID[a.ID] = *a
	return nil
}

func (m *memAccounts) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memAccounts) has(id ulid.ULID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

func (m *memAccounts) get(t *testing.T, id ulid.ULID) auth.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	require.True(t, ok, "account %s not stored", id)
	return a
}

func (m *memAccounts) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// mockMailer records deliveries with testify/mock.
type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendWelcome(ctx context.Context, to auth.Recipient) error {
	return m.Called(ctx, to).Error(0)
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, to auth.Recipient, rawToken string, expiresAt time.Time) error {
	return m.Called(ctx, to, rawToken, expiresAt).Error(0)
}

// countingRecorder tallies Recorder calls.
type countingRecorder struct {
	mu          sync.Mutex
	logins      map[string]int
	lockouts    int
	resets      map[string]int
	validations map[string]int
	deliveries  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		logins:      map[string]int{},
		resets:      map[string]int{},
		validations: map[string]int{},
		deliveries:  map[string]int{},
	}
}

func (r *countingRecorder) LoginAttempt(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins[o]++
}

func (r *countingRecorder) AccountLocked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockouts++
}

func (r *countingRecorder) PasswordReset(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[s]++
}

func (r *countingRecorder) SessionValidation(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validations[o]++
}

func (r *countingRecorder) DeliveryFailure(k string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[k]++
}

type fixture struct {
	svc      *auth.Service
	repo     *memAccounts
	clock    *fakeClock
	hasher   *auth.Argon2idHasher
	recorder *countingRecorder
}

func newFixture(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()
	clock := newFakeClock()
	repo := newMemAccounts()
	hasher, err := auth.NewArgon2idHasher(fastParams)
	require.NoError(t, err)
	signer, err := auth.NewTokenSigner(testKey, clock.Now)
	require.NoError(t, err)
	recorder := newCountingRecorder()

	all := append([]auth.Option{auth.WithClock(clock.Now), auth.WithRecorder(recorder)}, opts...)
	svc, err := auth.NewService(repo, hasher, signer, all...)
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, clock: clock, hasher: hasher, recorder: recorder}
}

// seed stores an active account with the given password.
func (f *fixture) seed(t *testing.T, email, password string) *auth.Account {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	account, err := auth.NewAccount("Test User", email, hash, auth.RoleUser, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), account))
	return account
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/postgres"
)

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.AccountRepository
		now  time.Time
	)

	newAccount := func(email string) *auth.Account {
		a, err := auth.NewAccount("Integration User", email, "$argon2id$hash", auth.RoleUser, now)
		Expect(err).NotTo(HaveOccurred())
		return a
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewAccountRepository(testPool)
		now = time.Now().UTC().Truncate(time.Microsecond)
		_, err := testPool.Exec(ctx, `DELETE FROM accounts`)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Create", func() {
		It("stores an account that can be found by email and id", func() {
			a := newAccount("create@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())

			byEmail, err := repo.FindActiveByEmail(ctx, "CREATE@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(a.ID))
			Expect(byEmail.MaxLoginAttempts).To(Equal(auth.DefaultMaxLoginAttempts))
			Expect(byEmail.PasswordChangedAt).To(BeNil())

			byID, err := repo.FindActiveByID(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("create@example.com"))
			Expect(byID.CreatedAt.Equal(now)).To(BeTrue())
		})

		It("rejects a duplicate email regardless of case", func() {
			Expect(repo.Create(ctx, newAccount("dup@example.com"))).To(Succeed())

			dup := newAccount("dup@example.com")
			dup.Email = "DUP@example.com"
			err := repo.Create(ctx, dup)
			Expect(err).To(MatchError(auth.ErrEmailTaken))
		})
	})

	Describe("Save", func() {
		It("persists lockout, password and reset fields", func() {
			a := newAccount("save@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())

			until := now.Add(auth.LockoutWindow)
			a.FailedLoginCount = 5
			a.LockedUntil = &until
			a.SetPassword("$argon2id$new", now)
			a.SetResetToken("reset-hash", now.Add(auth.ResetTokenWindow))
			Expect(repo.Save(ctx, a)).To(Succeed())

			stored, err := repo.FindByResetTokenHash(ctx, "reset-hash")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedLoginCount).To(Equal(5))
			Expect(stored.LockedUntil.Equal(until)).To(BeTrue())
			Expect(stored.PasswordHash).To(Equal("$argon2id$new"))
			Expect(stored.PasswordChangedAt.Equal(now.Add(-auth.PasswordChangeSkew))).To(BeTrue())

			stored.ClearResetToken()
			Expect(repo.Save(ctx, stored)).To(Succeed())
			_, err = repo.FindByResetTokenHash(ctx, "reset-hash")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("reports a missing account", func() {
			err := repo.Save(ctx, newAccount("ghost@example.com"))
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("rejects an email owned by another account", func() {
			Expect(repo.Create(ctx, newAccount("owner@example.com"))).To(Succeed())
			a := newAccount("mover@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())

			a.Email = "owner@example.com"
			Expect(repo.Save(ctx, a)).To(MatchError(auth.ErrEmailTaken))
		})
	})

	Describe("Delete", func() {
		It("removes the row and frees the email", func() {
			a := newAccount("gone@example.com")
			Expect(repo.Create(ctx, a)).To(Succeed())

			Expect(repo.Delete(ctx, a.ID)).To(Succeed())
			_, err := repo.FindActiveByID(ctx, a.ID)
			Expect(err).To(MatchError(auth.ErrNotFound))
			Expect(repo.Delete(ctx, a.ID)).To(MatchError(auth.ErrNotFound))
			Expect(repo.Create(ctx, newAccount("gone@example.com"))).To(Succeed())
		})
	})

	Describe("inactive accounts", func() {
		It("are excluded from every lookup", func() {
			a := newAccount("inactive@example.com")
			a.SetResetToken("inactive-hash", now.Add(time.Minute))
			Expect(repo.Create(ctx, a)).To(Succeed())

			a.Active = false
			Expect(repo.Save(ctx, a)).To(Succeed())

			_, err := repo.FindActiveByEmail(ctx, "inactive@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
			_, err = repo.FindActiveByID(ctx, a.ID)
			Expect(err).To(MatchError(auth.ErrNotFound))
			_, err = repo.FindByResetTokenHash(ctx, "inactive-hash")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})
})

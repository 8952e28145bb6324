// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

//go:build integration

package cli_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const seedAccounts = `accounts:
  - name: Ada Admin
    email: ada@example.com
    role: admin
    password: pass1234word
  - name: Gus Guide
    email: gus@example.com
    role: guide
    password: pass5678word
`

var _ = Describe("CLI", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		out, err := tourbook(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate failed: %s", out)
		_, err = env.pool.Exec(ctx, "TRUNCATE accounts")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("migrate", func() {
		It("reports every migration as applied", func() {
			out, err := tourbook(ctx, "migrate", "status")
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("[x] 000001_create_accounts"))
			Expect(out).To(ContainSubstring("[x] 000002_account_password_reset"))
			Expect(out).NotTo(ContainSubstring("[ ]"))
		})
	})

	Describe("seed", func() {
		var file string

		BeforeEach(func() {
			file = filepath.Join(GinkgoT().TempDir(), "accounts.yaml")
			Expect(os.WriteFile(file, []byte(seedAccounts), 0o600)).To(Succeed())
		})

		It("creates the listed accounts with hashed passwords", func() {
			out, err := tourbook(ctx, "seed", "--file", file)
			Expect(err).NotTo(HaveOccurred(), "seed failed: %s", out)
			Expect(out).To(ContainSubstring("Seed complete: 2 created, 0 skipped"))

			var role, hash string
			Expect(env.pool.QueryRow(ctx, "SELECT role, password_hash FROM accounts WHERE email = $1",
				"ada@example.com").Scan(&role, &hash)).To(Succeed())
			Expect(role).To(Equal("admin"))
			Expect(hash).To(HavePrefix("$argon2id$"))
		})

		It("is idempotent", func() {
			out, err := tourbook(ctx, "seed", "--file", file)
			Expect(err).NotTo(HaveOccurred(), out)

			out, err = tourbook(ctx, "seed", "--file", file)
			Expect(err).NotTo(HaveOccurred(), out)
			Expect(out).To(ContainSubstring("Seed complete: 0 created, 2 skipped"))

			var count int
			Expect(env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(2))
		})
	})
})

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/postgres"
	"github.com/tourbook/tourbook/internal/logging"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedFile is the on-disk format of a seed file.
type seedFile struct {
	Accounts []seedAccount `yaml:"accounts"`
}

// seedAccount describes one account to create. Exactly one of Password and
// PasswordHash must be set.
type seedAccount struct {
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Photo        string `yaml:"photo"`
	Active       *bool  `yaml:"active"`
}

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// seedResult counts what a seed run did.
type seedResult struct {
	created int
	skipped int
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	return newSeedCmd(nil)
}

func newSeedCmd(deps *Deps) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create accounts from a seed file",
		Long: `Creates the accounts listed in a YAML seed file. Accounts whose email is
already registered are skipped, so the command can be run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg, deps)
		},
	}

	cmd.Flags().StringVarP(&cfg.file, "file", "f", "", "seed file path (YAML)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	_ = cmd.MarkFlagRequired("file") //nolint:errcheck // flag is defined above

	return cmd
}

func runSeed(cmd *cobra.Command, sc *seedConfig, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database url is required")
	}

	f, err := os.Open(sc.file)
	if err != nil {
		return oops.Code("SEED_READ_FAILED").With("file", sc.file).Wrap(err)
	}
	defer f.Close() //nolint:errcheck // read-only
	accounts, err := parseSeedFile(f)
	if err != nil {
		return oops.With("file", sc.file).Wrap(err)
	}

	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Argon2.Params())
	if err != nil {
		return err
	}

	logger := logging.Setup(version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

	ctx, cancel := context.WithTimeout(cmd.Context(), sc.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	db, err := deps.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	res, err := seedAccounts(ctx, postgres.NewAccountRepository(db), hasher, accounts, time.Now())
	if err != nil {
		return err
	}
	cmd.Printf("Seed complete: %d created, %d skipped\n", res.created, res.skipped)
	return nil
}

// parseSeedFile decodes a seed file, rejecting unknown keys.
func parseSeedFile(r io.Reader) ([]seedAccount, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sf seedFile
	if err := dec.Decode(&sf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, oops.Code("SEED_INVALID").Wrapf(err, "parse seed file")
	}
	return sf.Accounts, nil
}

// accountCreator is the part of the repository seeding needs.
type accountCreator interface {
	Create(ctx context.Context, a *auth.Account) error
}

// seedAccounts creates each account, skipping those whose email exists.
func seedAccounts(ctx context.Context, repo accountCreator, hasher auth.PasswordHasher, accounts []seedAccount, now time.Time) (seedResult, error) {
	var res seedResult
	for i, sa := range accounts {
		a, err := sa.toAccount(hasher, now)
		if err != nil {
			return res, oops.With("index", i).With("email", sa.Email).Wrap(err)
		}
		if err := repo.Create(ctx, a); err != nil {
			if errors.Is(err, auth.ErrEmailTaken) {
				res.skipped++
				continue
			}
			return res, oops.Code("SEED_FAILED").With("index", i).With("email", a.Email).Wrap(err)
		}
		res.created++
	}
	return res, nil
}

func (sa seedAccount) toAccount(hasher auth.PasswordHasher, now time.Time) (*auth.Account, error) {
	role, err := auth.ParseRole(sa.Role)
	if err != nil {
		return nil, err
	}

	var hash string
	switch {
	case sa.Password != "" && sa.PasswordHash != "":
		return nil, oops.Code("SEED_INVALID").Errorf("set either password or password_hash, not both")
	case sa.PasswordHash != "":
		if !auth.IsSupportedDigest(sa.PasswordHash) {
			return nil, oops.Code("SEED_INVALID").Errorf("password_hash must be an argon2id or bcrypt digest")
		}
		hash = sa.PasswordHash
	case sa.Password != "":
		if hash, err = hasher.Hash(sa.Password); err != nil {
			return nil, err
		}
	default:
		return nil, oops.Code("SEED_INVALID").Errorf("password or password_hash is required")
	}

	a, err := auth.NewAccount(sa.Name, sa.Email, hash, role, now)
	if err != nil {
		return nil, err
	}
	if photo := strings.TrimSpace(sa.Photo); photo != "" {
		a.Photo = photo
	}
	if sa.Active != nil {
		a.Active = *sa.Active
	}
	return a, nil
}

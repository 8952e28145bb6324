// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tourbook/tourbook/internal/config"
	"github.com/tourbook/tourbook/internal/xdg"
)

// NewRootCmd creates the root command for the Tourbook CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tourbook",
		Short: "Tourbook account service",
		Long: `Tourbook serves account signup, login, password reset and session
validation for the tour-booking backend.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (YAML, default $XDG_CONFIG_HOME/tourbook/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newSeedCmd(deps))

	return cmd
}

// loadConfig reads configuration for cmd from its --config file (or the
// user's XDG config file), the environment and any flags set on the command
// line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	if path == "" {
		if path, err = xdg.FindConfig(); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}
	return config.Load(path, cmd.Flags())
}

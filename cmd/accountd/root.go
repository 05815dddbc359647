// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - user accounts and sessions",
		Long: `accountd is a user account service: registration, login with signed
session tokens, password reset links and protected routes.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default: $XDG_CONFIG_HOME/accountd/config.yaml if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

// resolveConfigFile returns --config, or the XDG config file when the flag
// is unset and that file exists.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ConfigFile()
}

// loadConfig reads the resolved config file and applies the flags of cmd
// that were set explicitly.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	return config.Load(resolveConfigFile(), flags) //nolint:wrapcheck // config errors carry codes
}

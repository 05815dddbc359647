// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/accountd/accountd/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a config file against the schema and the runtime rules",
		Long: `Check a config file against the JSON Schema and then the rules serve
applies at startup. FILE defaults to the --config path, then the XDG
config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigFile()
			if len(args) == 1 {
				path = args[0]
			}
			return runConfigValidate(cmd, path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
			}
			cmd.Print(string(out))
			return nil
		},
	})

	return cmd
}

func runConfigValidate(cmd *cobra.Command, path string) error {
	if path == "" {
		return oops.Code("CONFIG_INVALID").Errorf("no config file given: pass FILE or --config")
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := config.ValidateYAML(data); err != nil {
		return err //nolint:wrapcheck // config errors carry codes
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		return err //nolint:wrapcheck // config errors carry codes
	}
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // config errors carry codes
	}
	cmd.Printf("%s is valid\n", path)
	return nil
}

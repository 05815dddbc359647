// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// migratorFactory is swapped in tests.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err //nolint:wrapcheck // store errors carry codes
	}
	return m, nil
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back or inspect the PostgreSQL schema. The database URL
comes from --database-url, database.url in the config file or DATABASE_URL.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default: $"+config.EnvDatabaseURL+")")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err //nolint:wrapcheck // store errors carry codes
				}
				cmd.Println("Migrations applied")
				return printVersion(cmd, m)
			})
		},
	})

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-1)
				}
				if err != nil {
					return err //nolint:wrapcheck // store errors carry codes
				}
				cmd.Println("Rollback complete")
				return printVersion(cmd, m)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error { return printVersion(cmd, m) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				status, err := m.Status()
				if err != nil {
					return err //nolint:wrapcheck // store errors carry codes
				}
				cmd.Print(formatMigrationStatus(status))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations (clears the dirty flag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // store errors carry codes
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// getDatabaseURL resolves the database URL from flags, the config file and
// the environment, in that order of precedence.
func getDatabaseURL(flags *pflag.FlagSet) (string, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database URL is required: set --database-url, database.url or %s", config.EnvDatabaseURL)
	}
	return cfg.Database.URL, nil
}

func withMigrator(cmd *cobra.Command, fn func(Migrator) error) error {
	url, err := getDatabaseURL(cmd.Flags())
	if err != nil {
		return err
	}
	m, err := migratorFactory(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry codes
	}
	if version == 0 {
		cmd.Println("Schema version: none")
		return nil
	}
	line := fmt.Sprintf("Schema version: %d", version)
	if name, err := store.MigrationName(version); err == nil && name != "" {
		line += " (" + name + ")"
	}
	if dirty {
		line += " [dirty]"
	}
	cmd.Println(line)
	return nil
}

func formatMigrationStatus(s *store.MigrationStatus) string {
	var b strings.Builder
	for _, v := range s.Applied {
		name, _ := store.MigrationName(v)
		marker := "applied"
		if s.Dirty && v == s.Version {
			marker = "dirty"
		}
		fmt.Fprintf(&b, "[%s] %s\n", marker, name)
	}
	for _, v := range s.Pending {
		name, _ := store.MigrationName(v)
		fmt.Fprintf(&b, "[pending] %s\n", name)
	}
	return b.String()
}

// parseForceVersion reads a leading integer from s. Trailing characters
// after the digits are ignored.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer, got %q", s)
	}
	return version, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/kitchenspark/kitchenspark/internal/config"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithDeps(nil)
}

func newMigrateCmdWithDeps(deps *CommonDeps) *cobra.Command {
	if deps == nil {
		deps = &CommonDeps{}
	}
	deps.applyDefaults()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply or revert the embedded PostgreSQL schema migrations.
Without a subcommand, all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, deps, "up", func(m Migrator) error { return m.Up() })
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, deps, "up", func(m Migrator) error { return m.Up() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, deps, "down", func(m Migrator) error { return m.Down() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrationStatus(cmd, deps)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use after
fixing a migration that failed halfway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return runMigration(cmd, deps, "force", func(m Migrator) error { return m.Force(version) })
		},
	})

	return cmd
}

// getDatabaseURL returns the configured database URL.
func getDatabaseURL(cfg *config.Config) (string, error) {
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database.url is required (set --database-url or KITCHENSPARK_DATABASE__URL)")
	}
	return cfg.Database.URL, nil
}

// parseForceVersion parses a version argument. Negative versions are
// rejected by the migrator itself.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return version, nil
}

func openMigrator(cmd *cobra.Command, deps *CommonDeps) (Migrator, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	url, err := getDatabaseURL(cfg)
	if err != nil {
		return nil, err
	}
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	return migrator, nil
}

func runMigration(cmd *cobra.Command, deps *CommonDeps, direction string, apply func(Migrator) error) (err error) {
	migrator, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	cmd.Printf("Running migrations (%s)...\n", direction)
	if err := apply(migrator); err != nil {
		return oops.Code("MIGRATION_FAILED").With("direction", direction).Wrap(err)
	}

	status, err := migrator.Status()
	if err != nil {
		return oops.With("operation", "read migration status").Wrap(err)
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", status.Version)
	return nil
}

func runMigrationStatus(cmd *cobra.Command, deps *CommonDeps) (err error) {
	migrator, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	status, err := migrator.Status()
	if err != nil {
		return oops.With("operation", "read migration status").Wrap(err)
	}

	if status.Version == 0 {
		cmd.Println("Version: none")
	} else {
		cmd.Printf("Version: %d (%s)\n", status.Version, status.Name)
	}
	if status.Dirty {
		cmd.Println("State:   dirty (run 'migrate force' after fixing the failed migration)")
	}
	if len(status.Pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	pending := make([]string, 0, len(status.Pending))
	for _, v := range status.Pending {
		pending = append(pending, fmt.Sprintf("%d", v))
	}
	cmd.Printf("Pending: %s\n", strings.Join(pending, ", "))
	return nil
}

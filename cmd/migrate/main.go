package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/flicky/storefront-api/internal/config"
	"github.com/flicky/storefront-api/internal/logger"
	"github.com/flicky/storefront-api/internal/migration"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbURL string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the storefront database schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "database-url", "", "pgx5:// database URL (defaults to the DB_* environment)")

	// withMigrator opens a migrator for the duration of one subcommand.
	withMigrator := func(fn func(m *migration.Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.Log.Level, Format: "console"})
			defer log.Sync() //nolint:errcheck

			url := dbURL
			if url == "" {
				url = cfg.DB.MigrateURL()
			}
			m, err := migration.New(url, log)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(m, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
				return m.Down()
			}),
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations, or roll back when N is negative",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("steps must be an integer: %w", err)
				}
				return m.Steps(n)
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *migration.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("version must be an integer: %w", err)
				}
				return m.Force(v)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty: %t)\n", v, dirty)
				return nil
			}),
		},
	)
	return root
}

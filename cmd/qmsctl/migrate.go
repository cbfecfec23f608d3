package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qms-workers/internal/common/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the workflow warehouse schema",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, func(pg *database.PostgresClient) (*database.MigrationStatus, error) {
				return database.MigrateUp(pg.DB)
			})
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			return runMigration(cmd, func(pg *database.PostgresClient) (*database.MigrationStatus, error) {
				return database.MigrateDown(pg.DB, steps)
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	return cmd
}

func runMigration(cmd *cobra.Command, run func(*database.PostgresClient) (*database.MigrationStatus, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Ping(cmd.Context()); err != nil {
		return err
	}

	status, err := run(pg)
	if err != nil {
		return err
	}

	state := "unchanged"
	if status.Changed {
		state = "migrated"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d (dirty: %t)\n", state, status.Version, status.Dirty)
	return nil
}

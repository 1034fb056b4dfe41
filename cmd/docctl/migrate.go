package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medocs-backend/internal/bootstrap"
	"medocs-backend/internal/shared/storage/db"
)

func migrateCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			conn, err := db.Connect(cmd.Context(), cfg.DatabaseURL, db.DefaultOptions(db.ProfileCLI).Override(bootstrap.PoolOverrides(cfg)))
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.RunMigrations(cmd.Context(), conn); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			version, err := db.MigrationVersion(cmd.Context(), conn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			conn, err := db.Connect(cmd.Context(), cfg.DatabaseURL, db.DefaultOptions(db.ProfileCLI).Override(bootstrap.PoolOverrides(cfg)))
			if err != nil {
				return err
			}
			defer conn.Close()
			return db.MigrationStatus(cmd.Context(), conn)
		},
	})

	return cmd
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/quarantine-scanner/internal/bootstrap"
	"github.com/target/quarantine-scanner/internal/migrate"
)

const defaultMigrationTimeout = 5 * time.Minute

func newMigrateCmd(app *appContext) *cobra.Command {
	var (
		timeout time.Duration
		status  bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply scan ledger migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: app.Config.Postgres, Logger: app.Logger})
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer closeQuietly(app, "database", db)

			if status {
				pending, err := migrate.Pending(ctx, db)
				if err != nil {
					return err
				}
				if app.JSON {
					return writeJSON(app.Out, map[string]any{"pending": pending})
				}
				if len(pending) == 0 {
					return writePlain(app.Out, "schema is up to date\n")
				}
				for _, v := range pending {
					if err := writePlain(app.Out, "pending: %s\n", v); err != nil {
						return err
					}
				}
				return nil
			}

			return bootstrap.RunMigrations(ctx, db, app.Logger)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	cmd.Flags().BoolVar(&status, "status", false, "list pending migrations without applying them")
	return cmd
}

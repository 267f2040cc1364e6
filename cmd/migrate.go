package cmd

import (
	"context"
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/stokaro/ptah/migration/migrator"

	"academic-blog-api/config"
	"academic-blog-api/migrations"
)

func NewMigrateCommand() *cobra.Command {
	up := func(ctx context.Context, m *migrator.Migrator, _ *cobra.Command) error { return m.MigrateUp(ctx) }
	down := func(ctx context.Context, m *migrator.Migrator, _ *cobra.Command) error { return m.MigrateDown(ctx) }
	status := func(ctx context.Context, m *migrator.Migrator, cmd *cobra.Command) error {
		st, err := m.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", st.CurrentVersion)
		if !st.HasPendingChanges {
			fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pending: %v\n", st.PendingMigrations)
		return nil
	}

	// Bare "migrate" applies everything pending, like "migrate up".
	migrateCmd := newMigrateSubcommand("migrate [up|down|status]", "Manage the database schema", up)
	migrateCmd.AddCommand(newMigrateSubcommand("up", "Apply all pending migrations", up))
	migrateCmd.AddCommand(newMigrateSubcommand("down", "Revert the most recent migration", down))
	migrateCmd.AddCommand(newMigrateSubcommand("status", "Show the current schema version", status))
	return migrateCmd
}

type migrateFunc func(ctx context.Context, m *migrator.Migrator, cmd *cobra.Command) error

func newMigrateSubcommand(use, short string, run migrateFunc) *cobra.Command {
	flags := map[string]cobraflags.Flag{envFileFlag: newEnvFileFlag()}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, config.KeyDatabaseURL)
			if err != nil {
				return err
			}
			m, conn, err := migrations.Connect(cfg.DatabaseURL, newLogger(cfg.LogLevel))
			if err != nil {
				return err
			}
			defer conn.Close()

			return run(cmd.Context(), m, cmd)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required
tables and indexes for the application to function properly.`,
		RunE: runMigrate,
	}

	// Flags
	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	dbPath := cfg.Database.Path

	slog.Info("Starting database migration",
		"database", dbPath,
		"status_only", status)

	// Create storage instance
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if status {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		pending, err := store.PendingMigrations(ctx)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(pending))
		for _, m := range pending {
			rows = append(rows, []string{fmt.Sprint(m.Version), m.Description})
		}
		fmt.Fprintln(out, cli.FormatTitle("Database Migration Status"))
		fmt.Fprintf(out, "Database: %s\nCurrent version: %d\nLatest version: %d\n",
			dbPath, current, storage.ExpectedSchemaVersion)
		if len(rows) == 0 {
			fmt.Fprintln(out, cli.FormatSuccess("Schema is up to date"))
			return nil
		}
		fmt.Fprintln(out, cli.RenderTable([]string{"VERSION", "PENDING MIGRATION"}, rows))
		return nil
	}

	slog.Info("Running database migrations...", "database", dbPath)

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess("Database migrations completed successfully!"))
	return nil
}

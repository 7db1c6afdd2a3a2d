package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import CSV exports as one batch",
		Long: `Parse, validate and persist one or more CSV exports as a single import batch.

Each file is matched to a schema by its name (sessions, events, conversions,
campaigns, benchmarks). Either every row is stored or none is.

Examples:
  tally import exports/*.csv
  tally import sessions_daily.csv conversions_daily.csv --user marketing
  tally import exports/*.csv --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("user", "", "importing user (default: import.user)")
	cmd.Flags().Bool("dry-run", false, "parse, validate and compute metrics without writing")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	paths, err := expandInputs(args)
	if err != nil {
		return err
	}

	cfg, store, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if user == "" {
		user = cfg.Import.User
	}

	metrics := telemetry.New()
	dispatcher := newDispatcher(cfg, metrics)
	defer shutdownDispatcher(dispatcher)

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Import", "The batch was rolled back; nothing was stored.")

	slog.Debug("importing files", "files", paths, "user", user, "dry_run", dryRun)
	result, err := newIngestService(cfg, store, dispatcher, metrics).ImportFiles(ctx, user, paths, dryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	return printResult(cmd.OutOrStdout(), result, dryRun)
}

package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull data from an external analytics provider",
	}
	cmd.AddCommand(syncGA4Cmd())
	return cmd
}

func syncGA4Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ga4",
		Short: "Import a date range from Google Analytics 4",
		Long: `Fetch daily sessions, events and key-event conversions for the configured
GA4 property and import them as one batch.

Requires ga4.property_id and Google credentials (see 'tally auth google').`,
		RunE: runSyncGA4,
	}

	yesterday := time.Now().AddDate(0, 0, -1).Format(model.DateLayout)
	weekAgo := time.Now().AddDate(0, 0, -7).Format(model.DateLayout)
	cmd.Flags().String("start", weekAgo, "first day (YYYY-MM-DD)")
	cmd.Flags().String("end", yesterday, "last day (YYYY-MM-DD)")
	cmd.Flags().String("user", "", "importing user (default: import.user)")

	return cmd
}

func runSyncGA4(cmd *cobra.Command, _ []string) error {
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")
	user, _ := cmd.Flags().GetString("user")

	start, err := parseDay("start", startFlag)
	if err != nil {
		return err
	}
	end, err := parseDay("end", endFlag)
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

	client, err := newGA4Client(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	metrics := telemetry.New()
	dispatcher := newDispatcher(cfg, metrics)
	defer shutdownDispatcher(dispatcher)

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Sync", "No batch was stored; rerun the sync.")

	result, err := newIngestService(cfg, store, dispatcher, metrics).Sync(ctx, user, client, start, end)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return printResult(cmd.OutOrStdout(), result, false)
}

package main

import (
	"log/slog"

	"github.com/Veraticus/tally/internal/ga4"
	"github.com/Veraticus/tally/internal/ingest"
	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/Veraticus/tally/internal/server"
	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve imports, analytics, export and verification over HTTP, with Prometheus
metrics on /metrics. GA4 sync is enabled when ga4.property_id is configured.`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default: server.addr)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, store, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	metrics := telemetry.New()
	dispatcher := newDispatcher(cfg, metrics)
	defer shutdownDispatcher(dispatcher)

	var fetcher ingest.Fetcher
	if cfg.GA4.PropertyID != "" {
		var client *ga4.Client
		client, err = newGA4Client(ctx, cfg)
		if err != nil {
			return err
		}
		fetcher = client
	}

	srv := server.New(server.Config{
		Store:       store,
		Ingest:      newIngestService(cfg, store, dispatcher, metrics),
		Analyzer:    newAnalyzer(cfg, store),
		Checker:     reconcile.NewChecker(store, metrics, slog.Default()),
		Fetcher:     fetcher,
		Metrics:     metrics,
		Logger:      slog.Default(),
		DefaultUser: cfg.Import.User,
	})
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/export"
	"github.com/Veraticus/tally/internal/sheets"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <import-id>",
		Short: "Export an import's analytics as JSON, CSV or a Google Sheet",
		Long: `Export the metrics, trends and breakdowns of one import.

Examples:
  tally export 3f1c... --format csv --out report.csv
  tally export 3f1c... --format sheets`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}
	cmd.Flags().String("format", "json", "output format (json, csv, sheets)")
	cmd.Flags().StringP("out", "o", "", "write to this file instead of stdout")
	cmd.Flags().Int("window", 0, "trend window in days (default: analytics.trend_window_days)")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	formatFlag, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")
	window, _ := cmd.Flags().GetInt("window")

	format, err := export.ParseFormat(formatFlag)
	if err != nil {
		return common.NewUserError(err.Error(), err)
	}
	if format == export.FormatSheets && out != "" {
		return common.NewUserError("--out cannot be used with --format sheets", common.ErrInvalidConfig)
	}

	cfg, store, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	analyzer := newAnalyzer(cfg, store)
	if window > 0 {
		analyzer = analyzer.WithWindow(window)
	}
	report, err := analyzer.Analyze(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if format == export.FormatSheets {
		writer, err := sheets.NewWriter(cmd.Context(), cfg.SheetsWriterConfig(), slog.Default())
		if err != nil {
			return err
		}
		id, err := writer.Write(cmd.Context(), report)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
			fmt.Sprintf("Exported to https://docs.google.com/spreadsheets/d/%s", id)))
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out) //nolint:gosec // path comes from the operator
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	switch format {
	case export.FormatCSV:
		err = export.WriteCSV(w, report)
	default:
		err = export.WriteJSON(w, report)
	}
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if out != "" {
		_, err = fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess("Wrote "+out))
	}
	return err
}

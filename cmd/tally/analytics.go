package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/export"
	"github.com/Veraticus/tally/internal/model"
	"github.com/spf13/cobra"
)

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics <import-id>",
		Short: "Show metrics and trends for an import",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalytics,
	}
	cmd.Flags().Int("window", 0, "trend window in days (default: analytics.trend_window_days)")
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	window, _ := cmd.Flags().GetInt("window")
	asJSON, _ := cmd.Flags().GetBool("json")

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

	if asJSON {
		return export.WriteJSON(cmd.OutOrStdout(), report)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
	return err
}

func renderReport(report *model.AnalyticsReport) string {
	m := report.Metrics
	var b strings.Builder
	b.WriteString(cli.FormatTitle(fmt.Sprintf("Import %s (%s to %s)", report.ImportID, report.DateRange.Start, report.DateRange.End)))
	b.WriteString("\n")

	bounce := fmt.Sprintf("%.2f%%", m.BounceRate)
	if m.BounceRateEstimated {
		bounce += " (estimated)"
	}
	b.WriteString(cli.RenderTable(
		[]string{"METRIC", "VALUE"},
		[][]string{
			{"mode", string(m.Mode)},
			{"sessions", fmt.Sprint(m.TotalSessions)},
			{"users", fmt.Sprint(m.TotalUsers)},
			{"page views", fmt.Sprint(m.TotalPageViews)},
			{"conversions", fmt.Sprint(m.TotalConversions)},
			{"conversion rate", fmt.Sprintf("%.2f%%", m.ConversionRate)},
			{"bounce rate", bounce},
			{"avg session", fmt.Sprintf("%.1fs", m.AvgSessionDuration)},
			{"revenue", formatOptionalFloat(m.TotalRevenue, "%.2f")},
			{"revenue / session", formatOptionalFloat(m.RevenuePerSession, "%.2f")},
		},
	))
	b.WriteString("\n\n")

	t := report.Trends
	b.WriteString(cli.SubtitleStyle.Render(fmt.Sprintf("Trends over the last %d days", t.WindowDays)))
	b.WriteString("\n")
	b.WriteString(cli.RenderTable(
		[]string{"METRIC", "CHANGE"},
		[][]string{
			{"sessions", formatOptionalFloat(t.SessionsTrend, "%+.1f%%")},
			{"conversions", formatOptionalFloat(t.ConversionsTrend, "%+.1f%%")},
			{"revenue", formatOptionalFloat(t.RevenueTrend, "%+.1f%%")},
			{"bounce rate", formatOptionalFloat(t.BounceRateTrend, "%+.1f%%")},
		},
	))

	if len(m.BenchmarkComparison) > 0 {
		rows := make([][]string, 0, len(m.BenchmarkComparison))
		for _, bc := range m.BenchmarkComparison {
			rows = append(rows, []string{bc.Metric, fmt.Sprint(bc.Target), formatOptionalFloat(bc.Actual, "%.2f"), cli.FormatBenchmark(bc.Status)})
		}
		b.WriteString("\n\n")
		b.WriteString(cli.SubtitleStyle.Render("Benchmarks"))
		b.WriteString("\n")
		b.WriteString(cli.RenderTable([]string{"METRIC", "TARGET", "ACTUAL", "STATUS"}, rows))
	}
	return b.String()
}

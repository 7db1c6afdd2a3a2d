package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <import-id>",
		Short: "Compare an import's declared record count with the rows stored",
		Long: `Count the rows stored for an import and compare them with the count declared
when it was created. Verification only reads; a mismatch is reported, never repaired.`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}
	cmd.Flags().Bool("strict", false, "exit non-zero on a mismatch")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")

	_, store, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	checker := reconcile.NewChecker(store, telemetry.New(), nil)
	v, err := checker.Verify(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("%s: %d %s records expected, %d stored", v.ImportID, v.Expected, v.Type, v.Actual)
	if v.IsMatch {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(msg))
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(msg)); err != nil {
		return err
	}
	if strict {
		return &reconcile.MismatchError{Verification: v}
	}
	return nil
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Verify every completed import",
		RunE:  runReconcile,
	}
	cmd.Flags().Duration("since", 0, "only imports started within this duration, e.g. 168h")
	cmd.Flags().Int("limit", 0, "maximum number of imports to check (0 for all)")
	cmd.Flags().Bool("strict", false, "exit non-zero when any import mismatches")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	strict, _ := cmd.Flags().GetBool("strict")

	_, store, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	opts := reconcile.SweepOptions{Limit: limit}
	if since > 0 {
		t := time.Now().Add(-since)
		opts.Since = &t
	}
	progress := cli.NewProgress(cmd.ErrOrStderr(), -1, "Checking imports")
	opts.Progress = progress

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Reconcile", "")

	report, err := reconcile.NewChecker(store, telemetry.New(), nil).Sweep(ctx, opts)
	_ = progress.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	summary := fmt.Sprintf("Checked %d imports, %d mismatched, %d skipped", report.Checked, len(report.Mismatches), report.Skipped)
	if len(report.Mismatches) == 0 {
		_, err = fmt.Fprintln(out, cli.FormatSuccess(summary))
		return err
	}

	rows := make([][]string, 0, len(report.Mismatches))
	for _, m := range report.Mismatches {
		rows = append(rows, []string{m.ImportID, string(m.Type), fmt.Sprint(m.Expected), fmt.Sprint(m.Actual)})
	}
	if _, err := fmt.Fprintln(out, cli.FormatWarning(summary)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, cli.RenderTable([]string{"ID", "TYPE", "EXPECTED", "STORED"}, rows)); err != nil {
		return err
	}
	if strict {
		return &reconcile.MismatchError{Verification: report.Mismatches[0]}
	}
	return nil
}

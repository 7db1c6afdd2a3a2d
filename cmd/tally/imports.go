package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/spf13/cobra"
)

func importsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "List, inspect and delete import batches",
	}
	cmd.AddCommand(importsListCmd())
	cmd.AddCommand(importsShowCmd())
	cmd.AddCommand(importsDeleteCmd())
	return cmd
}

func importsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import batches, newest first",
		RunE:  runImportsList,
	}
	cmd.Flags().Int("limit", 20, "maximum number of batches to show")
	cmd.Flags().String("status", "", "only batches in this status (pending, processing, completed, failed)")
	cmd.Flags().Duration("since", 0, "only batches started within this duration, e.g. 72h")
	return cmd
}

func runImportsList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	status, _ := cmd.Flags().GetString("status")
	since, _ := cmd.Flags().GetDuration("since")

	filter := model.BatchFilter{Limit: limit}
	if status != "" {
		filter.Status = model.ImportStatus(strings.ToUpper(status))
		if !filter.Status.IsValid() {
			return common.NewUserError(fmt.Sprintf("unknown status %q", status), common.ErrInvalidConfig)
		}
	}
	if since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}

	_, store, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	batches, err := store.ListImportBatches(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No imports found"))
		return err
	}

	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, batchRow(b))
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(batchHeaders, rows))
	return err
}

func importsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <import-id>",
		Short: "Show one import batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			batch, err := store.GetImportBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var details strings.Builder
			row := batchRow(*batch)
			for i, h := range batchHeaders {
				fmt.Fprintf(&details, "%-10s %s\n", h, row[i])
			}
			if len(batch.Metadata.Files) > 0 {
				fmt.Fprintf(&details, "%-10s %s\n", "FILES", strings.Join(batch.Metadata.Files, ", "))
			}
			for _, w := range batch.Metadata.Warnings {
				details.WriteString(cli.FormatWarning(w) + "\n")
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Import "+batch.ID, strings.TrimRight(details.String(), "\n")))
			return err
		},
	}
}

func importsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <import-id>",
		Short: "Delete an import batch and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			_, store, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !yes {
				ok, err := cli.Confirm(cmd.Context(), cli.NewNonBlockingReader(cmd.InOrStdin()), cmd.OutOrStdout(),
					fmt.Sprintf("Delete import %s and all of its records?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing deleted"))
					return err
				}
			}

			if err := store.DeleteImportBatch(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted import "+args[0]))
			return err
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	return cmd
}

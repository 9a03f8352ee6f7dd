package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gfimx/internal/baseline"
	"gfimx/internal/export"
)

func newBaselineCommand(ctx *commandContext) *cobra.Command {
	baselineCmd := &cobra.Command{
		Use:   "baseline",
		Short: "Inspect and export the baseline store",
	}
	baselineCmd.AddCommand(newBaselineListCommand(ctx))
	baselineCmd.AddCommand(newBaselineExportCommand(ctx))
	return baselineCmd
}

func newBaselineListCommand(ctx *commandContext) *cobra.Command {
	var prefix string
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List baseline records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			records = filterRecords(records, prefix, limit)
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "Baseline is empty")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.Path,
					fmt.Sprintf("%04o", r.Perms),
					fmt.Sprintf("%d:%d", r.UID, r.GID),
					shortHash(r.Hash),
					r.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Path", "Mode", "Owner", "Hash", "Updated"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
			fmt.Fprintf(out, "%s records\n", count(len(records)))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list paths with this prefix")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum records to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit records as JSON")
	return cmd
}

func filterRecords(records []baseline.Record, prefix string, limit int) []baseline.Record {
	out := records[:0]
	for _, r := range records {
		if prefix != "" && !strings.HasPrefix(r.Path, prefix) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func newBaselineExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Upload a JSON snapshot of the baseline to object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exporter, err := export.New(cfg)
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			key, err := exporter.Export(cmd.Context(), records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s records to %s/%s\n", count(len(records)), cfg.Export.Bucket, key)
			return nil
		},
	}
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/powerhouse-kz/powerhouse/internal/dataset"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the existing fact table",
		Long: `Export re-reads the fact table built by a previous build run and writes it
as CSV or XLSX, without touching the archive or recomputing any features.`,
		RunE: runExport,
	}

	cmd.Flags().StringP("format", "f", "csv", "Export format (csv, xlsx)")
	cmd.Flags().StringP("out", "o", "", "Output file path (required)")
	cmd.Flags().String("dataset", "", "Fact table database path")

	_ = cmd.MarkFlagRequired("out")

	_ = viper.BindPFlag("export.format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("export.out", cmd.Flags().Lookup("out"))

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Path flags are shared across commands; bind at run time so this
	// command's flag wins.
	_ = viper.BindPFlag("dataset.path", cmd.Flags().Lookup("dataset"))

	format := viper.GetString("export.format")
	out := viper.GetString("export.out")

	switch format {
	case "csv":
		if err := dataset.ExportCSV(ctx, datasetPath(), out); err != nil {
			return fmt.Errorf("failed to export CSV: %w", err)
		}
	case "xlsx":
		if err := dataset.ExportXLSX(ctx, datasetPath(), out); err != nil {
			return fmt.Errorf("failed to export XLSX: %w", err)
		}
	default:
		return fmt.Errorf("invalid export format: %s (expected csv or xlsx)", format)
	}

	slog.Info("Export complete", "format", format, "path", out)
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/powerhouse-kz/powerhouse/internal/archive"
	"github.com/powerhouse-kz/powerhouse/internal/dataset"
	"github.com/powerhouse-kz/powerhouse/internal/model"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show archive and fact table counts",
		RunE:  runStats,
	}

	cmd.Flags().String("archive", "", "Archive database path")
	cmd.Flags().String("dataset", "", "Fact table database path")

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Path flags are shared across commands; bind at run time so this
	// command's flag wins.
	_ = viper.BindPFlag("archive.path", cmd.Flags().Lookup("archive"))
	_ = viper.BindPFlag("dataset.path", cmd.Flags().Lookup("dataset"))

	store, err := archive.Open(archivePath())
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate archive: %w", err)
	}

	for _, kind := range model.AllKinds {
		objects, err := store.CountObjects(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to count %s objects: %w", kind, err)
		}
		pages, err := store.ListPages(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to list %s pages: %w", kind, err)
		}
		slog.Info("Archive", "kind", kind, "objects", objects, "pages", len(pages))
	}

	if _, err := os.Stat(datasetPath()); err != nil {
		slog.Info("Fact table not built yet", "path", datasetPath())
		return nil
	}

	facts, err := dataset.CountFacts(ctx, datasetPath())
	if err != nil {
		return fmt.Errorf("failed to count fact rows: %w", err)
	}
	slog.Info("Fact table", "path", datasetPath(), "rows", facts)

	return nil
}

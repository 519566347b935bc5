package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/powerhouse-kz/powerhouse/internal/archive"
	"github.com/powerhouse-kz/powerhouse/internal/eoz"
	"github.com/powerhouse-kz/powerhouse/internal/ingest"
	"github.com/powerhouse-kz/powerhouse/internal/model"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Download plans, lots and contracts into the local archive",
		Long: `Ingest walks the paginated entity listings, collects object identifiers,
and downloads every object that is not yet archived. Interrupted runs resume
from the archive: already-downloaded pages and objects are never re-fetched.`,
		RunE: runIngest,
	}

	cmd.Flags().StringSlice("kinds", []string{}, "Entity kinds to ingest (plan, lot, contract; default all)")
	cmd.Flags().String("archive", "", "Archive database path")

	_ = viper.BindPFlag("ingest.kinds", cmd.Flags().Lookup("kinds"))

	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Path flags are shared across commands; bind at run time so this
	// command's flag wins.
	_ = viper.BindPFlag("archive.path", cmd.Flags().Lookup("archive"))

	kinds, err := parseKinds(viper.GetStringSlice("ingest.kinds"))
	if err != nil {
		return err
	}

	client, err := eoz.NewClient(clientConfig())
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}
	defer client.Close()

	store, err := archive.Open(archivePath())
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate archive: %w", err)
	}

	cp, err := store.LoadCheckpoint(ctx, kinds)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	slog.Info("Starting ingestion", "kinds", kinds, "archive", archivePath())

	mgr := ingest.New(client, store, os.Stderr)
	_, reports, err := mgr.Run(ctx, kinds, cp)
	if err != nil {
		return fmt.Errorf("ingestion aborted: %w", err)
	}

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			slog.Error("Kind ingestion failed",
				"kind", r.Kind, "pages", r.Pages, "fetched", r.Fetched, "error", r.Err)
			continue
		}
		slog.Info("Kind ingested",
			"kind", r.Kind,
			"pages", r.Pages,
			"discovered", r.Discovered,
			"scheduled", r.Scheduled,
			"fetched", r.Fetched,
			"not_found", r.NotFound,
			"failed", r.Failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d kinds failed; re-run to resume", failed, len(reports))
	}

	slog.Info("Ingestion complete")
	return nil
}

func clientConfig() eoz.Config {
	cfg := eoz.DefaultConfig()
	cfg.BaseURL = viper.GetString("eoz.base_url")
	cfg.SessionCookie = viper.GetString("eoz.session_cookie")
	if v := viper.GetInt("eoz.requests_per_second"); v > 0 {
		cfg.RequestsPerSecond = v
	}
	if v := viper.GetInt("eoz.max_concurrent"); v > 0 {
		cfg.MaxConcurrent = v
	}
	if v := viper.GetInt("eoz.page_length"); v > 0 {
		cfg.PageLength = v
	}
	if v := viper.GetDuration("eoz.timeout"); v > 0 {
		cfg.Timeout = v
	}
	return cfg
}

func parseKinds(names []string) ([]model.Kind, error) {
	if len(names) == 0 {
		return model.AllKinds, nil
	}
	kinds := make([]model.Kind, 0, len(names))
	for _, name := range names {
		kind, err := model.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

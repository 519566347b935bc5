package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/powerhouse-kz/powerhouse/internal/archive"
	"github.com/powerhouse-kz/powerhouse/internal/dataset"
	"github.com/powerhouse-kz/powerhouse/internal/features"
	"github.com/powerhouse-kz/powerhouse/internal/reconcile"
)

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Reconcile the archive and build the risk fact table",
		Long: `Build reads the archived raw objects, joins contracts to lots and plans,
derives the risk indicators, and writes the fact table. The table is fully
replaced on every run, so build is safe to repeat after each ingest.`,
		RunE: runBuild,
	}

	cmd.Flags().String("archive", "", "Archive database path")
	cmd.Flags().String("dataset", "", "Fact table database path")
	cmd.Flags().String("csv", "", "Also export the fact table as CSV to this path")
	cmd.Flags().String("xlsx", "", "Also export the fact table as XLSX to this path")

	_ = viper.BindPFlag("build.csv", cmd.Flags().Lookup("csv"))
	_ = viper.BindPFlag("build.xlsx", cmd.Flags().Lookup("xlsx"))

	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
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

	slog.Info("Loading archived objects", "archive", archivePath())
	snap, err := reconcile.LoadSnapshot(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	slog.Info("Snapshot loaded",
		"plans", len(snap.Plans), "lots", len(snap.Lots), "contracts", len(snap.Contracts))

	facts, report := reconcile.Reconcile(snap)
	slog.Info("Reconciliation complete",
		"rows", report.Rows,
		"lot_primary", report.LotPrimary,
		"lot_fallback", report.LotFallback,
		"lot_missing", report.LotMissing,
		"plan_primary", report.PlanPrimary,
		"plan_fallback", report.PlanFallback,
		"plan_missing", report.PlanMissing,
		"ambiguous_keys", report.AmbiguousKeys)
	slog.Info("Join data quality",
		"null_lot_refs", report.NullLotRefs,
		"unique_customers", report.UniqueCustomers,
		"unique_providers", report.UniqueProviders,
		"avg_contract_sum", report.AvgContractSum)

	engine := features.New(featureConfig())
	facts, summary := engine.Derive(facts)
	slog.Info("Risk features derived",
		"rows", summary.Rows,
		"price_flags", summary.PriceFlags,
		"single_source", summary.SingleFlag,
		"repeated_winner", summary.RepeatFlag,
		"split_purchase", summary.SplitFlag,
		"underpaid", summary.Underpaid)
	slog.Info("Risk buckets",
		"low", summary.LowRisk, "medium", summary.MediumRisk, "high", summary.HighRisk)

	if err := dataset.WriteTable(ctx, datasetPath(), facts); err != nil {
		return fmt.Errorf("failed to write fact table: %w", err)
	}
	slog.Info("Fact table written", "path", datasetPath(), "rows", len(facts))

	if path := viper.GetString("build.csv"); path != "" {
		if err := dataset.WriteCSV(path, facts); err != nil {
			return fmt.Errorf("failed to export CSV: %w", err)
		}
		slog.Info("CSV exported", "path", path)
	}
	if path := viper.GetString("build.xlsx"); path != "" {
		if err := dataset.WriteXLSX(path, facts); err != nil {
			return fmt.Errorf("failed to export XLSX: %w", err)
		}
		slog.Info("XLSX exported", "path", path)
	}

	return nil
}

// featureConfig starts from the standard thresholds and applies any
// overrides from the config file.
func featureConfig() features.Config {
	cfg := features.DefaultConfig()
	if v := viper.GetFloat64("features.price_z_threshold"); v > 0 {
		cfg.PriceZThreshold = v
	}
	if v := viper.GetFloat64("features.split_ceiling"); v > 0 {
		cfg.SplitCeiling = v
	}
	if v := viper.GetFloat64("features.repeat_share_threshold"); v > 0 {
		cfg.RepeatShareThreshold = v
	}
	if v := viper.GetFloat64("features.underpaid_ratio"); v > 0 {
		cfg.UnderpaidRatio = v
	}
	return cfg
}

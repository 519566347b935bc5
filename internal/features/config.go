// Package features computes per-contract risk indicators over the reconciled
// fact table and combines them into a weighted risk score.
package features

import "time"

// Config holds the thresholds and weights for every risk indicator.
type Config struct {
	// MinGroupSize is the smallest title group that yields a price z-score.
	MinGroupSize int
	// PriceZThreshold converts the z-score into a boolean for the risk score.
	PriceZThreshold float64
	// SingleSourceMethod is the procurement-method code for single-source awards.
	SingleSourceMethod int64
	// RepeatMinContracts is the minimum number of contracts a customer must
	// have before the repeated-winner share is meaningful.
	RepeatMinContracts int
	// RepeatShareThreshold is the win share above which a provider is flagged.
	RepeatShareThreshold float64
	// SplitCeiling is the monetary ceiling for split-purchase candidates.
	SplitCeiling float64
	// SplitWindow is the rolling time window for split-purchase detection.
	SplitWindow time.Duration
	// SplitMinCount is the number of under-ceiling contracts that must fall
	// inside one window.
	SplitMinCount int
	// UnderpaidRatio flags contracts paid less than this fraction of the sum.
	UnderpaidRatio float64

	// Risk score weights.
	PriceWeight     float64
	SingleWeight    float64
	RepeatWeight    float64
	SplitWeight     float64
	UnderpaidWeight float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinGroupSize:         3,
		PriceZThreshold:      3.0,
		SingleSourceMethod:   6,
		RepeatMinContracts:   5,
		RepeatShareThreshold: 0.6,
		SplitCeiling:         100_000,
		SplitWindow:          30 * 24 * time.Hour,
		SplitMinCount:        3,
		UnderpaidRatio:       0.9,
		PriceWeight:          2.0,
		SingleWeight:         1.5,
		RepeatWeight:         1.5,
		SplitWeight:          1.0,
		UnderpaidWeight:      1.0,
	}
}

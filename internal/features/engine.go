package features

import (
	"log/slog"
	"sort"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// Summary reports the flag and risk distribution of one derivation run.
type Summary struct {
	Rows       int
	PriceFlags int
	SingleFlag int
	RepeatFlag int
	SplitFlag  int
	Underpaid  int
	LowRisk    int
	MediumRisk int
	HighRisk   int
}

// Engine derives risk features over a fact-table snapshot.
type Engine struct {
	cfg Config
}

// New creates a feature engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Derive computes every flag and the weighted risk score. The output has the
// same cardinality and order as the input; the input slice is not modified.
// Several flags are population-relative, so the result is deterministic only
// for the full input set.
func (e *Engine) Derive(records []model.FactRecord) ([]model.FactRecord, Summary) {
	out := make([]model.FactRecord, len(records))
	copy(out, records)

	e.derivePriceZ(out)
	e.deriveRepeatFlags(out)
	e.deriveSplitFlags(out)

	var summary Summary
	summary.Rows = len(out)

	for i := range out {
		rec := &out[i]

		rec.PriceFlag = rec.PriceZ != nil && *rec.PriceZ > e.cfg.PriceZThreshold
		rec.SingleFlag = e.isSingleSource(rec)
		rec.UnderpaidFlag = e.isUnderpaid(rec)

		rec.RiskScore = e.score(rec)

		if rec.PriceFlag {
			summary.PriceFlags++
		}
		if rec.SingleFlag {
			summary.SingleFlag++
		}
		if rec.RepeatFlag {
			summary.RepeatFlag++
		}
		if rec.SplitFlag {
			summary.SplitFlag++
		}
		if rec.UnderpaidFlag {
			summary.Underpaid++
		}

		switch {
		case rec.RiskScore < 1:
			summary.LowRisk++
		case rec.RiskScore < 3:
			summary.MediumRisk++
		default:
			summary.HighRisk++
		}
	}

	slog.Info("Feature derivation complete",
		"rows", summary.Rows,
		"price_flags", summary.PriceFlags,
		"single_flags", summary.SingleFlag,
		"repeat_flags", summary.RepeatFlag,
		"split_flags", summary.SplitFlag,
		"underpaid_flags", summary.Underpaid,
		"high_risk", summary.HighRisk)

	return out, summary
}

// score is a pure function of the row's own flags.
func (e *Engine) score(rec *model.FactRecord) float64 {
	var score float64
	if rec.PriceFlag {
		score += e.cfg.PriceWeight
	}
	if rec.SingleFlag {
		score += e.cfg.SingleWeight
	}
	if rec.RepeatFlag {
		score += e.cfg.RepeatWeight
	}
	if rec.SplitFlag {
		score += e.cfg.SplitWeight
	}
	if rec.UnderpaidFlag {
		score += e.cfg.UnderpaidWeight
	}
	return score
}

// isSingleSource checks the contract's or the matched lot's method code
// against the single-source code.
func (e *Engine) isSingleSource(rec *model.FactRecord) bool {
	if rec.Contract.MethodID != nil && *rec.Contract.MethodID == e.cfg.SingleSourceMethod {
		return true
	}
	if rec.Lot != nil && rec.Lot.MethodID != nil && *rec.Lot.MethodID == e.cfg.SingleSourceMethod {
		return true
	}
	return false
}

// isUnderpaid flags contracts paid less than the configured fraction of the
// contracted sum. Missing amounts yield false, not an error.
func (e *Engine) isUnderpaid(rec *model.FactRecord) bool {
	sum := rec.Contract.Sum
	paid := rec.Contract.PaidSum
	if sum == nil || paid == nil || *sum <= 0 {
		return false
	}
	return *paid < e.cfg.UnderpaidRatio*(*sum)
}

// derivePriceZ computes the MAD-based z-score of contract sum within each
// normalized-title group. Groups below the minimum sample size keep a nil
// score: insufficient evidence, not zero evidence.
func (e *Engine) derivePriceZ(records []model.FactRecord) {
	groups := make(map[string][]int)
	for i := range records {
		rec := &records[i]
		if rec.Lot == nil || rec.Contract.Sum == nil {
			continue
		}
		title := normalizeTitle(rec.Lot.Title)
		if title == "" {
			continue
		}
		groups[title] = append(groups[title], i)
	}

	for _, indexes := range groups {
		if len(indexes) < e.cfg.MinGroupSize {
			continue
		}

		sums := make([]float64, len(indexes))
		for j, i := range indexes {
			sums[j] = *records[i].Contract.Sum
		}

		center := median(sums)
		spread := mad(sums, center)

		for j, i := range indexes {
			z := robustZ(sums[j], center, spread)
			records[i].PriceZ = &z
		}
	}
}

// deriveRepeatFlags flags every contract of a (customer, provider) pair whose
// provider wins more than the threshold share of a customer with at least
// the minimum number of contracts.
func (e *Engine) deriveRepeatFlags(records []model.FactRecord) {
	customerTotals := make(map[string]int)
	pairCounts := make(map[[2]string]int)

	for i := range records {
		customer := records[i].Contract.CustomerBIN
		provider := records[i].Contract.ProviderBIN
		if customer == "" || provider == "" {
			continue
		}
		customerTotals[customer]++
		pairCounts[[2]string{customer, provider}]++
	}

	for i := range records {
		customer := records[i].Contract.CustomerBIN
		provider := records[i].Contract.ProviderBIN
		if customer == "" || provider == "" {
			continue
		}
		total := customerTotals[customer]
		wins := pairCounts[[2]string{customer, provider}]
		if total >= e.cfg.RepeatMinContracts && float64(wins)/float64(total) > e.cfg.RepeatShareThreshold {
			records[i].RepeatFlag = true
		}
	}
}

// deriveSplitFlags detects split purchases: within one (title, customer)
// group, at least SplitMinCount under-ceiling contracts accepted inside one
// rolling window. The window slides: every record inside any qualifying
// window is flagged, not just the first three chronologically.
func (e *Engine) deriveSplitFlags(records []model.FactRecord) {
	groups := make(map[[2]string][]int)

	for i := range records {
		rec := &records[i]
		if rec.Lot == nil || rec.Contract.Sum == nil || rec.Contract.AcceptDate == nil {
			continue
		}
		if *rec.Contract.Sum > e.cfg.SplitCeiling {
			continue
		}
		title := normalizeTitle(rec.Lot.Title)
		customer := rec.Contract.CustomerBIN
		if title == "" || customer == "" {
			continue
		}
		groups[[2]string{title, customer}] = append(groups[[2]string{title, customer}], i)
	}

	for _, indexes := range groups {
		if len(indexes) < e.cfg.SplitMinCount {
			continue
		}

		sort.Slice(indexes, func(a, b int) bool {
			return records[indexes[a]].Contract.AcceptDate.Before(*records[indexes[b]].Contract.AcceptDate)
		})

		// Two-pointer sweep: for each window start, extend while inside the
		// rolling window; qualifying windows flag all their members.
		for lo := 0; lo < len(indexes); lo++ {
			hi := lo
			start := records[indexes[lo]].Contract.AcceptDate
			for hi+1 < len(indexes) {
				next := records[indexes[hi+1]].Contract.AcceptDate
				if next.Sub(*start) > e.cfg.SplitWindow {
					break
				}
				hi++
			}
			if hi-lo+1 >= e.cfg.SplitMinCount {
				for _, i := range indexes[lo : hi+1] {
					records[i].SplitFlag = true
				}
			}
		}
	}
}

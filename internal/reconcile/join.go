package reconcile

import (
	"log/slog"
	"sort"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// Report summarizes one reconciliation run: join provenance per hop plus the
// data-quality numbers the run prints.
type Report struct {
	Rows            int
	LotPrimary      int
	LotFallback     int
	LotMissing      int
	PlanPrimary     int
	PlanFallback    int
	PlanMissing     int
	AmbiguousKeys   int
	NullLotRefs     int
	UniqueCustomers int
	UniqueProviders int
	AvgContractSum  float64
}

// joinIndex resolves an entity by primary key first, then by the fallback
// composite key, in a fixed order. A fallback key shared by more than one
// candidate resolves to nothing: picking one would be a guess.
type joinIndex[T any] struct {
	primary   map[string]*T
	fallback  map[string]*T
	ambiguous map[string]bool
}

func (idx *joinIndex[T]) resolve(primaryKey, fallbackKey string) (*T, model.JoinKind) {
	if primaryKey != "" {
		if match, ok := idx.primary[primaryKey]; ok {
			return match, model.JoinPrimary
		}
	}
	if fallbackKey != "" && !idx.ambiguous[fallbackKey] {
		if match, ok := idx.fallback[fallbackKey]; ok {
			return match, model.JoinFallback
		}
	}
	return nil, model.JoinNone
}

// addFallback registers a fallback key, demoting it to ambiguous when a
// second distinct candidate claims it.
func (idx *joinIndex[T]) addFallback(key string, candidate *T, kind string) int {
	if key == "" {
		return 0
	}
	if _, taken := idx.fallback[key]; taken {
		if !idx.ambiguous[key] {
			idx.ambiguous[key] = true
			slog.Warn("Ambiguous fallback join key, treating as no match",
				"entity", kind,
				"key", key)
			return 1
		}
		return 0
	}
	idx.fallback[key] = candidate
	return 0
}

// buildLotIndex indexes lots by identifier and by composite fallback key.
// Duplicate identifiers keep the first candidate in identifier order.
func buildLotIndex(lots []model.Lot, report *Report) *joinIndex[model.Lot] {
	sorted := make([]model.Lot, len(lots))
	copy(sorted, lots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idx := &joinIndex[model.Lot]{
		primary:   make(map[string]*model.Lot, len(sorted)),
		fallback:  make(map[string]*model.Lot),
		ambiguous: make(map[string]bool),
	}

	for i := range sorted {
		lot := &sorted[i]
		if _, dup := idx.primary[lot.ID]; dup {
			slog.Warn("Duplicate lot identifier, keeping first", "lot_id", lot.ID)
			continue
		}
		idx.primary[lot.ID] = lot

		if lot.Number != "" && lot.CustomerBIN != "" && lot.Amount != nil {
			key := model.CompositeKey(lot.Number, lot.CustomerBIN, *lot.Amount)
			report.AmbiguousKeys += idx.addFallback(key, lot, "lot")
		}
	}

	return idx
}

// buildPlanIndex indexes plans by identifier and by the customer+amount
// fallback key (plans carry no lot number).
func buildPlanIndex(plans []model.Plan, report *Report) *joinIndex[model.Plan] {
	sorted := make([]model.Plan, len(plans))
	copy(sorted, plans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idx := &joinIndex[model.Plan]{
		primary:   make(map[string]*model.Plan, len(sorted)),
		fallback:  make(map[string]*model.Plan),
		ambiguous: make(map[string]bool),
	}

	for i := range sorted {
		plan := &sorted[i]
		if _, dup := idx.primary[plan.ID]; dup {
			slog.Warn("Duplicate plan identifier, keeping first", "plan_id", plan.ID)
			continue
		}
		idx.primary[plan.ID] = plan

		if plan.CustomerBIN != "" && plan.Price != nil {
			key := model.CompositeKey("", plan.CustomerBIN, *plan.Price)
			report.AmbiguousKeys += idx.addFallback(key, plan, "plan")
		}
	}

	return idx
}

// Reconcile joins the three normalized collections into one fact record per
// contract. Pure and deterministic for a given snapshot: rows are never
// dropped for missing joins, one contract never fans out into multiple rows.
func Reconcile(snap *Snapshot) ([]model.FactRecord, Report) {
	var report Report

	lotIdx := buildLotIndex(snap.Lots, &report)
	planIdx := buildPlanIndex(snap.Plans, &report)

	contracts := make([]model.Contract, len(snap.Contracts))
	copy(contracts, snap.Contracts)
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].ID < contracts[j].ID })

	customers := make(map[string]bool)
	providers := make(map[string]bool)
	var sumTotal float64
	var sumCount int

	facts := make([]model.FactRecord, 0, len(contracts))
	for _, contract := range contracts {
		var fallbackKey string
		if contract.LotNumber != "" && contract.CustomerBIN != "" && contract.Sum != nil {
			fallbackKey = model.CompositeKey(contract.LotNumber, contract.CustomerBIN, *contract.Sum)
		}
		if contract.LotID == "" {
			report.NullLotRefs++
		}

		lot, lotJoin := lotIdx.resolve(contract.LotID, fallbackKey)

		var plan *model.Plan
		planJoin := model.JoinNone
		if lot != nil {
			var planFallback string
			if lot.CustomerBIN != "" && lot.Amount != nil {
				planFallback = model.CompositeKey("", lot.CustomerBIN, *lot.Amount)
			}
			plan, planJoin = planIdx.resolve(lot.PlanID, planFallback)
		}

		switch lotJoin {
		case model.JoinPrimary:
			report.LotPrimary++
		case model.JoinFallback:
			report.LotFallback++
		case model.JoinNone:
			report.LotMissing++
		}
		switch planJoin {
		case model.JoinPrimary:
			report.PlanPrimary++
		case model.JoinFallback:
			report.PlanFallback++
		case model.JoinNone:
			report.PlanMissing++
		}

		if contract.CustomerBIN != "" {
			customers[contract.CustomerBIN] = true
		}
		if contract.ProviderBIN != "" {
			providers[contract.ProviderBIN] = true
		}
		if contract.Sum != nil {
			sumTotal += *contract.Sum
			sumCount++
		}

		facts = append(facts, model.FactRecord{
			Contract: contract,
			Lot:      lot,
			Plan:     plan,
			LotJoin:  lotJoin,
			PlanJoin: planJoin,
		})
	}

	report.Rows = len(facts)
	report.UniqueCustomers = len(customers)
	report.UniqueProviders = len(providers)
	if sumCount > 0 {
		report.AvgContractSum = sumTotal / float64(sumCount)
	}

	slog.Info("Reconciliation complete",
		"rows", report.Rows,
		"lot_primary", report.LotPrimary,
		"lot_fallback", report.LotFallback,
		"lot_missing", report.LotMissing,
		"plan_missing", report.PlanMissing,
		"ambiguous_keys", report.AmbiguousKeys)

	return facts, report
}

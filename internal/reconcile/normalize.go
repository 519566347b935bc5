// Package reconcile turns the three archived entity collections into one
// fact table: it normalizes raw API objects into flat records and joins
// contract → lot → plan with a primary-then-fallback key resolution.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// Snapshotter is the subset of the archive store the loader depends on.
type Snapshotter interface {
	GetObjects(ctx context.Context, kind model.Kind) ([]json.RawMessage, error)
}

// Snapshot is an immutable point-in-time view of the normalized archive.
type Snapshot struct {
	Plans     []model.Plan
	Lots      []model.Lot
	Contracts []model.Contract
}

// LoadSnapshot reads and normalizes every archived object. Failure to read a
// kind at all is fatal; an individual object that does not normalize is
// skipped with a warning.
func LoadSnapshot(ctx context.Context, store Snapshotter) (*Snapshot, error) {
	snap := &Snapshot{}

	planBodies, err := store.GetObjects(ctx, model.KindPlan)
	if err != nil {
		return nil, fmt.Errorf("cannot read archived plans: %w", err)
	}
	for _, body := range planBodies {
		plan, err := NormalizePlan(body)
		if err != nil {
			slog.Warn("Skipping unreadable plan object", "error", err)
			continue
		}
		snap.Plans = append(snap.Plans, plan)
	}

	lotBodies, err := store.GetObjects(ctx, model.KindLot)
	if err != nil {
		return nil, fmt.Errorf("cannot read archived lots: %w", err)
	}
	for _, body := range lotBodies {
		lot, err := NormalizeLot(body)
		if err != nil {
			slog.Warn("Skipping unreadable lot object", "error", err)
			continue
		}
		snap.Lots = append(snap.Lots, lot)
	}

	contractBodies, err := store.GetObjects(ctx, model.KindContract)
	if err != nil {
		return nil, fmt.Errorf("cannot read archived contracts: %w", err)
	}
	for _, body := range contractBodies {
		contract, err := NormalizeContract(body)
		if err != nil {
			slog.Warn("Skipping unreadable contract object", "error", err)
			continue
		}
		snap.Contracts = append(snap.Contracts, contract)
	}

	return snap, nil
}

// Per-kind field mappings: dot paths into the raw object for each normalized
// attribute. The set of kinds is closed, so the mapping is a table, not
// dynamic dispatch.
var (
	planFields = map[string]string{
		"id":       "externalId",
		"name":     "nameRu",
		"price":    "sum",
		"method":   "methodTrade.id",
		"customer": "customerBin.biniin",
	}
	lotFields = map[string]string{
		"id":       "externalId",
		"plan":     "externalPlanId",
		"number":   "lotNumber",
		"title":    "titleRu",
		"amount":   "amount",
		"method":   "methodTrade.id",
		"customer": "customerBin.biniin",
		"start":    "startDate",
	}
	contractFields = map[string]string{
		"id":       "id",
		"lot":      "externalId",
		"number":   "lotNumber",
		"provider": "providerbin",
		"customer": "customerbin",
		"sum":      "sum",
		"paid":     "paidSum",
		"accept":   "acceptdate",
		"method":   "methodTrade.id",
	}
)

// NormalizePlan flattens a raw plan object.
func NormalizePlan(raw json.RawMessage) (model.Plan, error) {
	obj, err := decode(raw)
	if err != nil {
		return model.Plan{}, err
	}

	plan := model.Plan{
		ID:          pathString(obj, planFields["id"]),
		Name:        pathString(obj, planFields["name"]),
		CustomerBIN: pathString(obj, planFields["customer"]),
		Price:       pathFloat(obj, planFields["price"]),
		MethodID:    pathInt(obj, planFields["method"]),
	}
	if plan.ID == "" {
		return model.Plan{}, fmt.Errorf("plan object has no identifier")
	}
	return plan, nil
}

// NormalizeLot flattens a raw lot object.
func NormalizeLot(raw json.RawMessage) (model.Lot, error) {
	obj, err := decode(raw)
	if err != nil {
		return model.Lot{}, err
	}

	lot := model.Lot{
		ID:          pathString(obj, lotFields["id"]),
		PlanID:      pathString(obj, lotFields["plan"]),
		Number:      pathString(obj, lotFields["number"]),
		Title:       pathString(obj, lotFields["title"]),
		CustomerBIN: pathString(obj, lotFields["customer"]),
		Amount:      pathFloat(obj, lotFields["amount"]),
		MethodID:    pathInt(obj, lotFields["method"]),
		StartDate:   pathTime(obj, lotFields["start"]),
	}
	if lot.ID == "" {
		return model.Lot{}, fmt.Errorf("lot object has no identifier")
	}
	return lot, nil
}

// NormalizeContract flattens a raw contract (OrderDetail) object.
func NormalizeContract(raw json.RawMessage) (model.Contract, error) {
	obj, err := decode(raw)
	if err != nil {
		return model.Contract{}, err
	}

	contract := model.Contract{
		ID:          pathString(obj, contractFields["id"]),
		LotID:       pathString(obj, contractFields["lot"]),
		LotNumber:   pathString(obj, contractFields["number"]),
		ProviderBIN: pathString(obj, contractFields["provider"]),
		CustomerBIN: pathString(obj, contractFields["customer"]),
		Sum:         pathFloat(obj, contractFields["sum"]),
		PaidSum:     pathFloat(obj, contractFields["paid"]),
		AcceptDate:  pathTime(obj, contractFields["accept"]),
		MethodID:    pathInt(obj, contractFields["method"]),
	}
	if contract.ID == "" {
		return model.Contract{}, fmt.Errorf("contract object has no identifier")
	}
	return contract, nil
}

func decode(raw json.RawMessage) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("object is not a JSON object: %w", err)
	}
	return obj, nil
}

// lookupPath walks a dot-separated path through nested JSON objects.
func lookupPath(obj map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = obj
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func pathString(obj map[string]any, path string) string {
	v, ok := lookupPath(obj, path)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		// Identifiers sometimes arrive as numbers.
		return fmt.Sprintf("%.0f", s)
	default:
		return ""
	}
}

func pathFloat(obj map[string]any, path string) *float64 {
	v, ok := lookupPath(obj, path)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return &f
		}
	}
	return nil
}

func pathInt(obj map[string]any, path string) *int64 {
	f := pathFloat(obj, path)
	if f == nil {
		return nil
	}
	i := int64(math.Round(*f))
	return &i
}

// timeLayouts are the timestamp shapes the API has been observed to emit.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func pathTime(obj map[string]any, path string) *time.Time {
	v, ok := lookupPath(obj, path)
	if !ok {
		return nil
	}
	switch ts := v.(type) {
	case string:
		s := strings.TrimSpace(ts)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return &parsed
			}
		}
	case float64:
		// Epoch milliseconds.
		parsed := time.UnixMilli(int64(ts)).UTC()
		return &parsed
	}
	return nil
}

// Package dataset materializes the fact table for the external consumers:
// a queryable sqlite table plus CSV and XLSX exports. Each write fully
// replaces the previous table, so the fact table is a pure function of the
// archive snapshot and is never partially mutated.
package dataset

import (
	"time"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// TableName is the sqlite table holding the fact rows.
const TableName = "facts"

// Columns enumerates the fact-table columns in output order.
var Columns = []string{
	"contract_id",
	"lot_ref",
	"lot_number",
	"provider_bin",
	"customer_bin",
	"contract_sum",
	"paid_sum",
	"accept_date",
	"contract_method_id",
	"lot_id",
	"plan_ref",
	"lot_title",
	"lot_amount",
	"lot_method_id",
	"lot_start_date",
	"lot_customer_bin",
	"plan_id",
	"plan_price",
	"plan_method_id",
	"plan_customer_bin",
	"lot_join",
	"plan_join",
	"price_z",
	"price_flag",
	"single_flag",
	"repeat_flag",
	"split_flag",
	"underpaid_flag",
	"risk_score",
}

// rowValues flattens one fact record into column order. Missing joins and
// absent amounts become nils so every sink can render them as its own null.
func rowValues(rec *model.FactRecord) []any {
	row := make([]any, 0, len(Columns))

	c := rec.Contract
	row = append(row,
		c.ID,
		nullString(c.LotID),
		nullString(c.LotNumber),
		nullString(c.ProviderBIN),
		nullString(c.CustomerBIN),
		nullFloat(c.Sum),
		nullFloat(c.PaidSum),
		nullTime(c.AcceptDate),
		nullInt(c.MethodID),
	)

	if rec.Lot != nil {
		l := rec.Lot
		row = append(row,
			l.ID,
			nullString(l.PlanID),
			nullString(l.Title),
			nullFloat(l.Amount),
			nullInt(l.MethodID),
			nullTime(l.StartDate),
			nullString(l.CustomerBIN),
		)
	} else {
		row = append(row, nil, nil, nil, nil, nil, nil, nil)
	}

	if rec.Plan != nil {
		p := rec.Plan
		row = append(row,
			p.ID,
			nullFloat(p.Price),
			nullInt(p.MethodID),
			nullString(p.CustomerBIN),
		)
	} else {
		row = append(row, nil, nil, nil, nil)
	}

	row = append(row,
		string(rec.LotJoin),
		string(rec.PlanJoin),
		nullFloat(rec.PriceZ),
		boolInt(rec.PriceFlag),
		boolInt(rec.SingleFlag),
		boolInt(rec.RepeatFlag),
		boolInt(rec.SplitFlag),
		boolInt(rec.UnderpaidFlag),
		rec.RiskScore,
	)

	return row
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolInt(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

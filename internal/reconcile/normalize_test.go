package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlan(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "uuid-1",
		"externalId": "plan-100",
		"nameRu": "Закупка угля",
		"sum": 1500000.5,
		"methodTrade": {"id": 6, "nameRu": "Из одного источника"},
		"customerBin": {"biniin": "990140000011", "nameru": "ГУ Алматы"}
	}`)

	plan, err := NormalizePlan(raw)
	require.NoError(t, err)

	assert.Equal(t, "plan-100", plan.ID)
	assert.Equal(t, "Закупка угля", plan.Name)
	assert.Equal(t, "990140000011", plan.CustomerBIN)
	require.NotNil(t, plan.Price)
	assert.InDelta(t, 1500000.5, *plan.Price, 0.001)
	require.NotNil(t, plan.MethodID)
	assert.EqualValues(t, 6, *plan.MethodID)
}

func TestNormalizeLot(t *testing.T) {
	raw := json.RawMessage(`{
		"externalId": "lot-7",
		"externalPlanId": "plan-100",
		"lotNumber": "L-7",
		"titleRu": "Уголь каменный",
		"amount": 250000,
		"methodTrade": {"id": 2},
		"customerBin": {"biniin": "990140000011"},
		"startDate": "2024-03-15T10:30:00"
	}`)

	lot, err := NormalizeLot(raw)
	require.NoError(t, err)

	assert.Equal(t, "lot-7", lot.ID)
	assert.Equal(t, "plan-100", lot.PlanID)
	assert.Equal(t, "L-7", lot.Number)
	assert.Equal(t, "Уголь каменный", lot.Title)
	require.NotNil(t, lot.Amount)
	assert.InDelta(t, 250000, *lot.Amount, 0.001)
	require.NotNil(t, lot.StartDate)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), *lot.StartDate)
}

func TestNormalizeContract(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "contract-55",
		"externalId": "lot-7",
		"lotNumber": "L-7",
		"providerbin": "111240000099",
		"customerbin": "990140000011",
		"sum": 248000,
		"paidSum": 200000,
		"acceptdate": "2024-04-01",
		"methodTrade": {"id": 6}
	}`)

	contract, err := NormalizeContract(raw)
	require.NoError(t, err)

	assert.Equal(t, "contract-55", contract.ID)
	assert.Equal(t, "lot-7", contract.LotID)
	assert.Equal(t, "L-7", contract.LotNumber)
	assert.Equal(t, "111240000099", contract.ProviderBIN)
	assert.Equal(t, "990140000011", contract.CustomerBIN)
	require.NotNil(t, contract.Sum)
	assert.InDelta(t, 248000, *contract.Sum, 0.001)
	require.NotNil(t, contract.PaidSum)
	assert.InDelta(t, 200000, *contract.PaidSum, 0.001)
	require.NotNil(t, contract.AcceptDate)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), *contract.AcceptDate)
}

func TestNormalizeMissingFieldsAreNil(t *testing.T) {
	contract, err := NormalizeContract(json.RawMessage(`{"id":"c1"}`))
	require.NoError(t, err)

	assert.Empty(t, contract.LotID)
	assert.Nil(t, contract.Sum)
	assert.Nil(t, contract.PaidSum)
	assert.Nil(t, contract.AcceptDate)
	assert.Nil(t, contract.MethodID)
}

func TestNormalizeRejectsMissingIdentifier(t *testing.T) {
	_, err := NormalizePlan(json.RawMessage(`{"sum": 100}`))
	assert.Error(t, err)

	_, err = NormalizeLot(json.RawMessage(`{"titleRu": "x"}`))
	assert.Error(t, err)

	_, err = NormalizeContract(json.RawMessage(`{"sum": 100}`))
	assert.Error(t, err)
}

func TestNormalizeRejectsNonObject(t *testing.T) {
	_, err := NormalizePlan(json.RawMessage(`[1,2,3]`))
	assert.Error(t, err)
}

func TestLookupPath(t *testing.T) {
	obj := map[string]any{
		"a": map[string]any{
			"b": map[string]any{"c": "deep"},
		},
		"top": 5.0,
	}

	v, ok := lookupPath(obj, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, "deep", v)

	v, ok = lookupPath(obj, "top")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)

	_, ok = lookupPath(obj, "a.missing.c")
	assert.False(t, ok)

	_, ok = lookupPath(obj, "top.nested")
	assert.False(t, ok)
}

func TestPathTimeFormats(t *testing.T) {
	tests := []struct {
		value any
		want  time.Time
		name  string
	}{
		{name: "rfc3339", value: "2024-05-01T12:00:00Z", want: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{name: "no zone", value: "2024-05-01T12:00:00", want: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{name: "date only", value: "2024-05-01", want: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "epoch millis", value: float64(1714564800000), want: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pathTime(map[string]any{"d": tt.value}, "d")
			require.NotNil(t, got)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}

	assert.Nil(t, pathTime(map[string]any{"d": "not a date"}, "d"))
}

func TestPathStringFromNumber(t *testing.T) {
	obj := map[string]any{"id": float64(123456)}
	assert.Equal(t, "123456", pathString(obj, "id"))
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeKey(t *testing.T) {
	tests := []struct {
		name     string
		lotNum1  string
		bin1     string
		sum1     float64
		lotNum2  string
		bin2     string
		sum2     float64
		wantSame bool
	}{
		{
			name:    "identical inputs produce same key",
			lotNum1: "L-42", bin1: "123456789012", sum1: 50000,
			lotNum2: "L-42", bin2: "123456789012", sum2: 50000,
			wantSame: true,
		},
		{
			name:    "sums rounding to same unit produce same key",
			lotNum1: "L-42", bin1: "123456789012", sum1: 50000.2,
			lotNum2: "L-42", bin2: "123456789012", sum2: 49999.8,
			wantSame: true,
		},
		{
			name:    "different lot numbers differ",
			lotNum1: "L-42", bin1: "123456789012", sum1: 50000,
			lotNum2: "L-43", bin2: "123456789012", sum2: 50000,
			wantSame: false,
		},
		{
			name:    "different customers differ",
			lotNum1: "L-42", bin1: "123456789012", sum1: 50000,
			lotNum2: "L-42", bin2: "999999999999", sum2: 50000,
			wantSame: false,
		},
		{
			name:    "sums rounding apart differ",
			lotNum1: "L-42", bin1: "123456789012", sum1: 50000.4,
			lotNum2: "L-42", bin2: "123456789012", sum2: 50000.6,
			wantSame: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k1 := CompositeKey(tt.lotNum1, tt.bin1, tt.sum1)
			k2 := CompositeKey(tt.lotNum2, tt.bin2, tt.sum2)
			require.Len(t, k1, 16)
			if tt.wantSame {
				assert.Equal(t, k1, k2)
			} else {
				assert.NotEqual(t, k1, k2)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("tender")
	assert.Error(t, err)
}

func TestKindAPINames(t *testing.T) {
	assert.Equal(t, "Plan", KindPlan.APIName())
	assert.Equal(t, "_Lot", KindLot.APIName())
	assert.Equal(t, "OrderDetail", KindContract.APIName())
}

func TestKindListFilterIsCopy(t *testing.T) {
	f := KindLot.ListFilter()
	f["tru"] = "mutated"
	assert.Nil(t, KindLot.ListFilter()["tru"])
}

package features

import (
	"math"
	"sort"
	"strings"
)

// madScale rescales the median absolute deviation so the z-score is
// comparable to a standard-deviation z-score under normality.
const madScale = 0.6745

// median returns the median of values. The input is not modified.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// mad returns the median absolute deviation around a center.
func mad(values []float64, center float64) float64 {
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - center)
	}
	return median(deviations)
}

// robustZ computes the MAD-based z-score of one value within its group.
// Returns 0 when the group has no spread.
func robustZ(value, center, spread float64) float64 {
	if spread <= 0 {
		return 0
	}
	return madScale * (value - center) / spread
}

// normalizeTitle canonicalizes a title for grouping: lowercased, trimmed,
// inner whitespace collapsed.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

/*
estimator.go - Demand estimation over a sales-history window

PERCENTILE CONVENTION:
  P75 uses linear interpolation between ranks: for a sorted window of n
  samples the percentile sits at position 0.75*(n-1); the value is
  interpolated between the two adjacent ranks. Different conventions give
  different P75 values for the same data, so the tests pin this one down
  with literal fixtures.
*/
package demand

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BlendWeights controls how P75 and the daily average combine into the
// blended estimate. They must sum to 1.
type BlendWeights struct {
	P75     decimal.Decimal
	Average decimal.Decimal
}

// DefaultBlendWeights is the documented 0.60 / 0.40 split.
func DefaultBlendWeights() BlendWeights {
	return BlendWeights{
		P75:     decimal.NewFromFloat(0.60),
		Average: decimal.NewFromFloat(0.40),
	}
}

// Estimator builds demand profiles. It is stateless apart from the blend
// weights, so one instance can serve a whole calculation run concurrently.
type Estimator struct {
	weights BlendWeights
}

// NewEstimator creates an estimator with the given blend weights.
func NewEstimator(weights BlendWeights) *Estimator {
	return &Estimator{weights: weights}
}

// BuildProfile computes every estimate from the sales window. An empty
// window yields a zero profile flagged InsufficientData; callers must treat
// it as "no data", never as real zero demand.
func (e *Estimator) BuildProfile(productCode, storeID string, window []DailySale, unitsPerPackage decimal.Decimal) ProductDemandProfile {
	profile := ProductDemandProfile{
		ProductCode:     productCode,
		StoreID:         storeID,
		UnitsPerPackage: unitsPerPackage,
	}
	if unitsPerPackage.LessThan(decimal.NewFromInt(1)) {
		profile.UnitsPerPackage = decimal.NewFromInt(1)
	}

	if len(window) == 0 {
		profile.InsufficientData = true
		return profile
	}

	quantities := make([]decimal.Decimal, len(window))
	for i, s := range window {
		quantities[i] = s.Quantity
	}

	profile.DailyAverage = mean(quantities)
	profile.P75 = percentile75(quantities)
	profile.Top3Average = topNAverage(quantities, 3)
	profile.BlendedDemand = e.weights.P75.Mul(profile.P75).
		Add(e.weights.Average.Mul(profile.DailyAverage))

	profile.DayOfWeekAverages = dayOfWeekAverages(window)

	return profile
}

// mean is the arithmetic mean of the values.
func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(values))), 6)
}

// percentile75 returns the value at the 0.75 position of the sorted window,
// linearly interpolated between adjacent ranks.
func percentile75(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	// Position 0.75*(n-1), split into integer rank and fraction.
	pos := decimal.NewFromFloat(0.75).Mul(decimal.NewFromInt(int64(n - 1)))
	rank := pos.IntPart()
	frac := pos.Sub(decimal.NewFromInt(rank))

	lower := sorted[rank]
	if frac.IsZero() || int(rank)+1 >= n {
		return lower
	}
	upper := sorted[rank+1]
	return lower.Add(upper.Sub(lower).Mul(frac))
}

// topNAverage is the mean of the n largest values, or of the whole window
// when it holds fewer than n samples.
func topNAverage(values []decimal.Decimal, n int) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GreaterThan(sorted[j]) })

	if n > len(sorted) {
		n = len(sorted)
	}
	return mean(sorted[:n])
}

// dayOfWeekAverages groups the window by weekday and averages each group.
func dayOfWeekAverages(window []DailySale) [7]DayOfWeekAverage {
	var sums [7]decimal.Decimal
	var counts [7]int
	for i := range sums {
		sums[i] = decimal.Zero
	}

	for _, s := range window {
		d := int(s.Date.Weekday())
		sums[d] = sums[d].Add(s.Quantity)
		counts[d]++
	}

	var out [7]DayOfWeekAverage
	for d := time.Sunday; d <= time.Saturday; d++ {
		avg := decimal.Zero
		if counts[d] > 0 {
			avg = sums[d].DivRound(decimal.NewFromInt(int64(counts[d])), 6)
		}
		out[d] = DayOfWeekAverage{Average: avg, SampleCount: counts[d]}
	}
	return out
}

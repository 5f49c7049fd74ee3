package demand_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino/allocation-engine/demand"
)

// flatProfile builds a profile whose demand is the same every weekday.
func flatProfile(daily float64) *demand.ProductDemandProfile {
	p := &demand.ProductDemandProfile{
		ProductCode:     "P-1",
		StoreID:         "S-1",
		DailyAverage:    dec(daily),
		BlendedDemand:   dec(daily),
		UnitsPerPackage: dec(6),
	}
	for d := 0; d < 7; d++ {
		p.DayOfWeekAverages[d] = demand.DayOfWeekAverage{Average: dec(daily), SampleCount: 1}
	}
	return p
}

func TestSimulate_WalksStockDownAndFlagsStockout(t *testing.T) {
	// GIVEN: 10 units of effective stock, flat demand of 4 units/day
	// WHEN: simulating a 3-day horizon
	// THEN: ok, at-risk (<= 1 day left), then stockout with the deficit
	//       tracked and the displayed stock clamped at zero

	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	report := demand.Simulate(flatProfile(4), dec(10), start, 2, 1)

	require.Len(t, report.Days, 3)

	d0 := report.Days[0]
	assert.Equal(t, demand.CoverageOK, d0.Status)
	assertDecEqual(t, 10, d0.StockBefore)
	assertDecEqual(t, 6, d0.StockAfter)

	d1 := report.Days[1]
	assert.Equal(t, demand.CoverageAtRisk, d1.Status)
	assertDecEqual(t, 2, d1.StockAfter)

	d2 := report.Days[2]
	assert.Equal(t, demand.CoverageStockout, d2.Status)
	assert.True(t, d2.StockAfter.IsZero(), "displayed stock is clamped")

	assertDecEqual(t, 2, report.DeficitUnits)
	assert.Equal(t, 2, report.FirstStockoutDay)
	assertDecEqual(t, 12, report.TotalDemandUnits)
	assertDecEqual(t, 2.5, report.DaysOfCoverage)
}

func TestSimulate_UsesWeekdayProfile(t *testing.T) {
	// Mondays sell 10, everything else 2. A Monday start must draw the
	// Monday figure on day 0 and again on day 7.
	p := flatProfile(2)
	p.DayOfWeekAverages[time.Monday] = demand.DayOfWeekAverage{Average: dec(10), SampleCount: 3}

	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC) // Monday
	report := demand.Simulate(p, dec(100), start, 5, 3)

	require.Len(t, report.Days, 8)
	assertDecEqual(t, 10, report.Days[0].DemandUnits)
	assertDecEqual(t, 2, report.Days[1].DemandUnits)
	assertDecEqual(t, 10, report.Days[7].DemandUnits)
	// 10 + 6*2 + 10
	assertDecEqual(t, 32, report.TotalDemandUnits)
}

func TestSimulate_ZeroDemand_SufficientSentinel(t *testing.T) {
	// GIVEN: a zero-demand profile (no historical sales)
	// WHEN: simulating
	// THEN: every day is ok and coverage reports the unbounded sentinel,
	//       not infinity

	p := &demand.ProductDemandProfile{
		ProductCode:      "P-1",
		StoreID:          "S-1",
		UnitsPerPackage:  dec(6),
		InsufficientData: true,
	}

	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	report := demand.Simulate(p, dec(5), start, 3, 4)

	require.Len(t, report.Days, 7)
	for _, day := range report.Days {
		assert.Equal(t, demand.CoverageOK, day.Status)
	}
	assert.True(t, report.DaysOfCoverage.Equal(demand.SufficientCoverageDays))
	assert.True(t, report.TotalDemandUnits.IsZero())
	assert.Equal(t, -1, report.FirstStockoutDay)
}

func TestDaysOfCoverage_CappedAtSentinel(t *testing.T) {
	// A huge stock against tiny demand must not exceed the sentinel.
	days := demand.DaysOfCoverage(dec(100000), dec(0.01))
	assert.True(t, days.Equal(demand.SufficientCoverageDays))

	days = demand.DaysOfCoverage(dec(10), dec(4))
	assertDecEqual(t, 2.5, days)
}

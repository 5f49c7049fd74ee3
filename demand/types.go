/*
Package demand estimates per-store daily demand from recent sales history.

PURPOSE:
  Given the ordered daily sales of one product at one store, this package
  produces several demand estimates (simple average, 75th percentile, top-3
  average, a weighted blend, and a per-weekday profile) plus a day-by-day
  coverage simulation that projects when the store runs out of stock.

KEY CONCEPTS:
  - ProductDemandProfile: the full set of estimates for one (product, store)
  - DayOfWeekAverage: mean demand for one weekday, with its sample count
  - CoverageReport: the simulated horizon, one CoverageDay per calendar day

PRECISION:
  All quantities are decimal.Decimal. Demand figures feed the allocator's
  conservation invariants, so floating-point drift is not acceptable.

SEE ALSO:
  - estimator.go: how each estimate is computed
  - coverage.go: the day-level simulation
*/
package demand

import (
	"time"

	"github.com/shopspring/decimal"
)

// SufficientCoverageDays is the sentinel reported when blended demand is
// zero: the stock position is not demand-limited, and a true ratio would
// divide by zero.
var SufficientCoverageDays = decimal.NewFromInt(999)

// DailySale is one day of sales history for a (product, store) pair.
type DailySale struct {
	Date     time.Time
	Quantity decimal.Decimal
}

// DayOfWeekAverage is the mean of all historical samples falling on one
// weekday. SampleCount lets callers judge how much to trust the figure; a
// weekday with zero samples falls back to the profile's daily average.
type DayOfWeekAverage struct {
	Average     decimal.Decimal
	SampleCount int
}

// ProductDemandProfile holds every demand estimate for one (product, store).
// All values are non-negative. UnitsPerPackage is always >= 1.
type ProductDemandProfile struct {
	ProductCode string
	StoreID     string

	DailyAverage  decimal.Decimal
	P75           decimal.Decimal
	Top3Average   decimal.Decimal
	BlendedDemand decimal.Decimal

	// Indexed by time.Weekday (0 = Sunday).
	DayOfWeekAverages [7]DayOfWeekAverage

	UnitsPerPackage decimal.Decimal

	// InsufficientData marks a profile built from an empty window. All
	// estimates are zero and the UI should show "insufficient data"
	// instead of a number.
	InsufficientData bool
}

// DemandOn returns the expected demand for a calendar date, using the
// weekday average when that weekday has samples and falling back to the
// overall daily average otherwise. The fallback is deliberate: weekdays
// without history must not be interpolated from their neighbors.
func (p *ProductDemandProfile) DemandOn(date time.Time) decimal.Decimal {
	dow := p.DayOfWeekAverages[int(date.Weekday())]
	if dow.SampleCount == 0 {
		return p.DailyAverage
	}
	return dow.Average
}

// CoverageStatus classifies one simulated day.
type CoverageStatus string

const (
	// CoverageOK: the day ends with more than one day of stock left.
	CoverageOK CoverageStatus = "ok"
	// CoverageAtRisk: the day ends with one day of stock or less.
	CoverageAtRisk CoverageStatus = "at_risk"
	// CoverageStockout: demand could not be met on this day.
	CoverageStockout CoverageStatus = "stockout"
)

// CoverageDay is one simulated day of the horizon. StockAfter is clamped to
// zero for display; the running deficit is kept on the report.
type CoverageDay struct {
	DayIndex    int
	Date        time.Time
	DemandUnits decimal.Decimal
	StockBefore decimal.Decimal
	StockAfter  decimal.Decimal
	Status      CoverageStatus
}

// CoverageReport is the output of the coverage simulation.
type CoverageReport struct {
	Days []CoverageDay

	// DaysOfCoverage is effectiveStock / blendedDemand, or
	// SufficientCoverageDays when blended demand is zero.
	DaysOfCoverage decimal.Decimal

	// TotalDemandUnits is the summed demand over the whole horizon. The
	// replenishment need is derived from this figure so that the need and
	// the simulated stockout day can never disagree.
	TotalDemandUnits decimal.Decimal

	// DeficitUnits is how far below zero the stock would have gone.
	DeficitUnits decimal.Decimal

	// FirstStockoutDay is the index of the first stockout day, or -1.
	FirstStockoutDay int
}

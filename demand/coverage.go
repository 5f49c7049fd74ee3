/*
coverage.go - Day-level coverage simulation

Walks the forecast horizon one calendar day at a time, drawing that day's
demand from the weekday profile and decrementing the projected stock. The
horizon is leadTimeDays (until the order arrives) plus coverageDays (what
the order must then cover).
*/
package demand

import (
	"time"

	"github.com/shopspring/decimal"
)

// Simulate projects the stock position day by day over the horizon.
// effectiveStock is on-hand plus in-transit, in units. The first simulated
// day is startDate.
func Simulate(profile *ProductDemandProfile, effectiveStock decimal.Decimal, startDate time.Time, leadTimeDays, coverageDays int) CoverageReport {
	horizon := leadTimeDays + coverageDays
	report := CoverageReport{
		Days:             make([]CoverageDay, 0, horizon),
		TotalDemandUnits: decimal.Zero,
		DeficitUnits:     decimal.Zero,
		FirstStockoutDay: -1,
		DaysOfCoverage:   DaysOfCoverage(effectiveStock, profile.BlendedDemand),
	}

	stock := effectiveStock
	for i := 0; i < horizon; i++ {
		date := startDate.AddDate(0, 0, i)
		dayDemand := profile.DemandOn(date)
		report.TotalDemandUnits = report.TotalDemandUnits.Add(dayDemand)

		after := stock.Sub(dayDemand)
		day := CoverageDay{
			DayIndex:    i,
			Date:        date,
			DemandUnits: dayDemand,
			StockBefore: stock,
			StockAfter:  after,
			Status:      CoverageOK,
		}

		switch {
		case after.IsNegative():
			day.Status = CoverageStockout
			// Clamp for display, keep the deficit on the report.
			report.DeficitUnits = report.DeficitUnits.Add(after.Neg())
			day.StockAfter = decimal.Zero
			after = decimal.Zero
			if report.FirstStockoutDay < 0 {
				report.FirstStockoutDay = i
			}
		case dayDemand.IsPositive() && after.LessThanOrEqual(dayDemand):
			// One day of stock or less left: at risk.
			day.Status = CoverageAtRisk
		}

		report.Days = append(report.Days, day)
		stock = after
	}

	return report
}

// DaysOfCoverage is the scalar effectiveStock / blendedDemand. A zero
// blended demand means the position is not demand-limited and the 999
// sentinel is returned instead of dividing by zero.
func DaysOfCoverage(effectiveStock, blendedDemand decimal.Decimal) decimal.Decimal {
	if !blendedDemand.IsPositive() {
		return SufficientCoverageDays
	}
	days := effectiveStock.DivRound(blendedDemand, 4)
	if days.GreaterThan(SufficientCoverageDays) {
		return SufficientCoverageDays
	}
	return days
}

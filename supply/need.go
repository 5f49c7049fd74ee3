/*
need.go - Replenishment need in whole packages

neededPackages = ceil(max(0, requiredUnits - effectiveStock) / unitsPerPackage)

requiredUnits is the coverage simulation's total demand over the horizon,
so the need figure and the simulated stockout day always agree.
*/
package supply

import "github.com/shopspring/decimal"

// ComputeNeed derives the replenishment need for one (product, store) pair.
// unitsPerPackage below 1 is treated as 1.
func ComputeNeed(productCode, storeID string, requiredUnits decimal.Decimal, stock StockState) ReplenishmentNeed {
	upp := stock.UnitsPerPackage
	if upp.LessThan(decimal.NewFromInt(1)) {
		upp = decimal.NewFromInt(1)
	}

	shortfall := requiredUnits.Sub(stock.EffectiveStock())
	packages := decimal.Zero
	if shortfall.IsPositive() {
		packages = shortfall.Div(upp).Ceil()
	}

	return ReplenishmentNeed{
		ProductCode:         productCode,
		StoreID:             storeID,
		RequiredUnits:       requiredUnits,
		EffectiveStockUnits: stock.EffectiveStock(),
		NeededPackages:      packages,
	}
}

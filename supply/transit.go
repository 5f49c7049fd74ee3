/*
transit.go - Reconciliation of stock still in transit

Sums what open upstream orders still owe a store. Orders in a terminal
state contribute nothing, and an over-delivered order (arrived > ordered)
contributes zero rather than a negative quantity.
*/
package supply

import "github.com/shopspring/decimal"

// InTransitUnits returns the units still expected from the given orders:
// sum of max(0, ordered - arrived) * unitsPerPackage over non-terminal
// orders. The result is never negative.
func InTransitUnits(orders []UpstreamOrder, unitsPerPackage decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		if o.State.Terminal() {
			continue
		}
		outstanding := o.OrderedPackages.Sub(o.ArrivedPackages)
		if !outstanding.IsPositive() {
			continue
		}
		total = total.Add(outstanding.Mul(unitsPerPackage))
	}
	return total
}

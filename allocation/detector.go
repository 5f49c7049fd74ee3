/*
detector.go - Supply conflict detection

A product is in conflict when the stores' total need exceeds the CEDI's
available stock. The allocation contest only applies when more than one
destination store is selected; a single store is served directly, capped at
what the CEDI holds.
*/
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Detect aggregates the stores' needs for one product and, when the
// contest applies, runs the DPD+U allocator. Distribution records are
// always produced (ordered by store ID), conflict or not.
func Detect(productCode string, available decimal.Decimal, stores []StoreRequirement, weights Weights) SupplyConflict {
	totalNeed := decimal.Zero
	for _, s := range stores {
		totalNeed = totalNeed.Add(s.NeedPackages)
	}

	conflict := SupplyConflict{
		ProductCode:             productCode,
		AvailablePackagesAtCedi: available,
		TotalNeedPackages:       totalNeed,
		IsConflict:              totalNeed.GreaterThan(available),
		UnmetPackages:           decimal.Zero,
	}
	conflict.RequiresContest = conflict.IsConflict && len(stores) > 1

	switch {
	case conflict.RequiresContest:
		conflict.Distribution = Allocate(productCode, available, stores, weights)
	default:
		// Supply suffices, or a single store: serve each need directly,
		// capped at what remains of the CEDI's stock.
		conflict.Distribution = serveDirectly(productCode, available, stores)
	}

	allocated := decimal.Zero
	for _, r := range conflict.Distribution {
		allocated = allocated.Add(r.AlgorithmicPackages)
	}
	unmet := totalNeed.Sub(allocated)
	if unmet.IsPositive() {
		conflict.UnmetPackages = unmet
	}

	return conflict
}

func serveDirectly(productCode string, available decimal.Decimal, stores []StoreRequirement) []AllocationRecord {
	sorted := make([]StoreRequirement, len(stores))
	copy(sorted, stores)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StoreID < sorted[j].StoreID })

	records := make([]AllocationRecord, len(sorted))
	remaining := available
	for i, s := range sorted {
		qty := decimal.Min(s.NeedPackages, remaining)
		if qty.IsNegative() {
			qty = decimal.Zero
		}
		remaining = remaining.Sub(qty)
		records[i] = AllocationRecord{
			ProductCode:         productCode,
			StoreID:             s.StoreID,
			NeedPackages:        s.NeedPackages,
			AlgorithmicPackages: qty,
			FinalPackages:       qty,
		}
	}
	return records
}

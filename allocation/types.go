/*
Package allocation distributes scarce CEDI stock across stores.

PURPOSE:
  When the stores' aggregate need for a product exceeds what the
  distribution center holds, this package detects the conflict, splits the
  available packages with the DPD+U algorithm (Demand + Urgency weighted
  scores, capped at each store's need), and overlays any manual overrides
  an operator enters during conflict resolution.

INVARIANTS:
  - sum(algorithmic allocations) <= available packages at the CEDI
  - every store's allocation <= its need
  - when supply suffices, every store receives exactly its need
  - the algorithmic baseline is immutable; overrides live in a sparse
    layer on top of it, preserving the "what did the algorithm say" trail

SEE ALSO:
  - allocator.go: the capped weighted-proportional (water-filling) loop
  - detector.go: conflict detection across stores
  - override.go: the manual-override layer and its stock gate
*/
package allocation

import "github.com/shopspring/decimal"

// StoreRequirement is one store's claim on a product: how much it needs
// and the demand figures that drive its scores.
type StoreRequirement struct {
	StoreID string

	// NeedPackages is the upper bound: a store never receives more than
	// it needs.
	NeedPackages decimal.Decimal

	// BlendedDemand drives the demand score (normalized across stores).
	BlendedDemand decimal.Decimal

	// DaysOfCoverage drives the urgency score (inverse, normalized).
	// The demand package's 999 sentinel means "not demand-limited" and
	// yields zero urgency.
	DaysOfCoverage decimal.Decimal
}

// AllocationRecord is the outcome for one (product, store).
// AlgorithmicPackages is immutable once computed for a run;
// FinalPackages tracks it unless an override exists.
type AllocationRecord struct {
	ProductCode string
	StoreID     string

	NeedPackages        decimal.Decimal
	AlgorithmicPackages decimal.Decimal
	FinalPackages       decimal.Decimal
	IsOverridden        bool
}

// SupplyConflict is the per-product aggregate across the selected stores.
type SupplyConflict struct {
	ProductCode string

	AvailablePackagesAtCedi decimal.Decimal
	TotalNeedPackages       decimal.Decimal

	// IsConflict: total need exceeds available stock.
	IsConflict bool

	// RequiresContest: the conflict-resolution step applies, i.e. the
	// product is in conflict AND more than one destination store was
	// selected. A single store is simply served up to the CEDI's stock.
	RequiresContest bool

	// UnmetPackages is need the allocation could not satisfy even with
	// every store capped. Reported, not fatal; the operator resolves it.
	UnmetPackages decimal.Decimal

	Distribution []AllocationRecord
}

// InsufficientEvenAtCap reports whether allocation left unmet need.
func (c *SupplyConflict) InsufficientEvenAtCap() bool {
	return c.UnmetPackages.IsPositive()
}

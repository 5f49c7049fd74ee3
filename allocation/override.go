/*
override.go - Manual overrides over the algorithmic baseline

Overrides are a sparse map keyed by (productCode, storeID) laid over the
immutable algorithmic distribution. The baseline is never mutated, so the
"what did the algorithm say" audit trail survives any sequence of operator
edits. Each product's overrides are independent: editing one product never
affects another's distribution or its validation.
*/
package allocation

import (
	"sync"

	"github.com/shopspring/decimal"
)

type overrideKey struct {
	ProductCode string
	StoreID     string
}

// OverrideSet holds the operator's manual adjustments for one calculation
// run. Safe for concurrent use, although the workflow is single-operator.
type OverrideSet struct {
	mu        sync.RWMutex
	overrides map[overrideKey]decimal.Decimal
}

// NewOverrideSet creates an empty override layer.
func NewOverrideSet() *OverrideSet {
	return &OverrideSet{overrides: make(map[overrideKey]decimal.Decimal)}
}

// Set records an operator-entered final quantity for a (product, store)
// pair. Negative quantities are rejected at the point of entry.
func (s *OverrideSet) Set(productCode, storeID string, packages decimal.Decimal) error {
	if packages.IsNegative() {
		return ErrNegativeOverride
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey{productCode, storeID}] = packages
	return nil
}

// Clear removes an override; the pair falls back to the algorithmic value.
func (s *OverrideSet) Clear(productCode, storeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, overrideKey{productCode, storeID})
}

// Get returns the override for a pair, if any.
func (s *OverrideSet) Get(productCode, storeID string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.overrides[overrideKey{productCode, storeID}]
	return v, ok
}

// Len returns how many pairs are overridden.
func (s *OverrideSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.overrides)
}

// ApplyTo returns the conflict's distribution with overrides applied.
// The input records are not mutated; un-overridden pairs keep the
// algorithmic value.
func (s *OverrideSet) ApplyTo(conflict *SupplyConflict) []AllocationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AllocationRecord, len(conflict.Distribution))
	for i, rec := range conflict.Distribution {
		rec.FinalPackages = rec.AlgorithmicPackages
		rec.IsOverridden = false
		if v, ok := s.overrides[overrideKey{rec.ProductCode, rec.StoreID}]; ok {
			rec.FinalPackages = v
			rec.IsOverridden = true
		}
		out[i] = rec
	}
	return out
}

// Excess returns sum(finalPackages) - availablePackagesAtCedi for the
// product; positive means the operator has over-committed the CEDI.
func (s *OverrideSet) Excess(conflict *SupplyConflict) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range s.ApplyTo(conflict) {
		total = total.Add(rec.FinalPackages)
	}
	return total.Sub(conflict.AvailablePackagesAtCedi)
}

// Validate is the hard gate before the workflow may advance past conflict
// resolution: every conflicted product's final total must fit the CEDI's
// stock. The first violation is returned as an OverrideExceedsStockError.
func (s *OverrideSet) Validate(conflicts []SupplyConflict) error {
	for i := range conflicts {
		c := &conflicts[i]
		excess := s.Excess(c)
		if excess.IsPositive() {
			return &OverrideExceedsStockError{
				ProductCode:    c.ProductCode,
				Available:      c.AvailablePackagesAtCedi,
				TotalFinal:     c.AvailablePackagesAtCedi.Add(excess),
				ExcessPackages: excess,
			}
		}
	}
	return nil
}

package allocation_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino/allocation-engine/allocation"
	"github.com/andino/allocation-engine/demand"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// req builds a store requirement. Coverage days drive urgency: fewer days,
// more urgent.
func req(storeID string, need, blended, coverageDays float64) allocation.StoreRequirement {
	return allocation.StoreRequirement{
		StoreID:        storeID,
		NeedPackages:   dec(need),
		BlendedDemand:  dec(blended),
		DaysOfCoverage: dec(coverageDays),
	}
}

func sumAlgorithmic(records []allocation.AllocationRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.AlgorithmicPackages)
	}
	return total
}

func byStore(records []allocation.AllocationRecord) map[string]allocation.AllocationRecord {
	out := make(map[string]allocation.AllocationRecord, len(records))
	for _, r := range records {
		out[r.StoreID] = r
	}
	return out
}

func assertInvariants(t *testing.T, available decimal.Decimal, records []allocation.AllocationRecord) {
	t.Helper()
	assert.True(t, sumAlgorithmic(records).LessThanOrEqual(available),
		"sum %v exceeds available %v", sumAlgorithmic(records), available)
	for _, r := range records {
		assert.True(t, r.AlgorithmicPackages.LessThanOrEqual(r.NeedPackages),
			"store %s allocated %v above need %v", r.StoreID, r.AlgorithmicPackages, r.NeedPackages)
		assert.False(t, r.AlgorithmicPackages.IsNegative())
	}
}

// =============================================================================
// SHORTAGE SCENARIOS
// =============================================================================

func TestAllocate_ThreeStores_WeightedSplitWithOneCap(t *testing.T) {
	// GIVEN: needs 100/60/40 (total 200), 150 available, demand scores
	//        0.5/0.3/0.2 and urgency scores 0.2/0.3/0.5 under 0.6/0.4
	//        weights -> combined 0.38/0.30/0.32
	// WHEN: allocating
	// THEN: uncapped tentative ~57/45/48; C's 48 exceeds its need of 40,
	//       so C caps there and the freed 8 redistribute across A and B
	//       by their scores (110 * 0.38/0.68 ~ 61.5 and ~48.5)

	// Blended demand 0.5/0.3/0.2 normalizes to itself. Coverage days of
	// 5, 10/3 and 2 invert to raw urgency 0.2/0.3/0.5.
	stores := []allocation.StoreRequirement{
		{StoreID: "A", NeedPackages: dec(100), BlendedDemand: dec(0.5), DaysOfCoverage: dec(5)},
		{StoreID: "B", NeedPackages: dec(60), BlendedDemand: dec(0.3), DaysOfCoverage: decimal.NewFromInt(10).Div(decimal.NewFromInt(3))},
		{StoreID: "C", NeedPackages: dec(40), BlendedDemand: dec(0.2), DaysOfCoverage: dec(2)},
	}

	records := allocation.Allocate("P-1", dec(150), stores, allocation.DefaultWeights())
	require.Len(t, records, 3)
	assertInvariants(t, dec(150), records)

	m := byStore(records)
	tolerance := dec(0.2)
	assert.True(t, dec(40).Equal(m["C"].AlgorithmicPackages),
		"C caps at its need, got %v", m["C"].AlgorithmicPackages)
	assert.True(t, m["A"].AlgorithmicPackages.Sub(dec(61.5)).Abs().LessThanOrEqual(tolerance),
		"A got %v, want ~61.5", m["A"].AlgorithmicPackages)
	assert.True(t, m["B"].AlgorithmicPackages.Sub(dec(48.5)).Abs().LessThanOrEqual(tolerance),
		"B got %v, want ~48.5", m["B"].AlgorithmicPackages)
	assert.True(t, dec(150).Equal(sumAlgorithmic(records)),
		"everything distributes when need exceeds supply, got %v", sumAlgorithmic(records))
}

func TestAllocate_CapCascades(t *testing.T) {
	// GIVEN: same scores but store A only needs 50
	// WHEN: allocating 150
	// THEN: A caps at 50 and the freed 100 redistributes across B and C;
	//       B and C sum to exactly 100 and neither exceeds its need

	stores := []allocation.StoreRequirement{
		{StoreID: "A", NeedPackages: dec(50), BlendedDemand: dec(0.5), DaysOfCoverage: dec(5)},
		{StoreID: "B", NeedPackages: dec(60), BlendedDemand: dec(0.3), DaysOfCoverage: decimal.NewFromInt(10).Div(decimal.NewFromInt(3))},
		{StoreID: "C", NeedPackages: dec(40), BlendedDemand: dec(0.2), DaysOfCoverage: dec(2)},
	}

	records := allocation.Allocate("P-1", dec(150), stores, allocation.DefaultWeights())
	assertInvariants(t, dec(150), records)

	m := byStore(records)
	assert.True(t, dec(50).Equal(m["A"].AlgorithmicPackages), "A must cap at its need, got %v", m["A"].AlgorithmicPackages)

	bc := m["B"].AlgorithmicPackages.Add(m["C"].AlgorithmicPackages)
	assert.True(t, dec(100).Equal(bc), "B+C must take the remaining 100, got %v", bc)
}

func TestAllocate_SupplySuffices_EveryStoreGetsExactNeed(t *testing.T) {
	// No artificial scarcity: total need 90 <= 120 available.
	stores := []allocation.StoreRequirement{
		req("A", 50, 10, 2),
		req("B", 30, 1, 50),
		req("C", 10, 0.5, 100),
	}

	records := allocation.Allocate("P-1", dec(120), stores, allocation.DefaultWeights())
	for _, r := range records {
		assert.True(t, r.AlgorithmicPackages.Equal(r.NeedPackages),
			"store %s: got %v, need %v", r.StoreID, r.AlgorithmicPackages, r.NeedPackages)
	}
}

func TestAllocate_ZeroScores_EqualDivisionCappedAtNeed(t *testing.T) {
	// GIVEN: no historical demand anywhere (all scores zero)
	// WHEN: allocating 30 across needs 20/20/5
	// THEN: equal division, still capped: C takes 5, A and B split the rest

	stores := []allocation.StoreRequirement{
		req("A", 20, 0, 999),
		req("B", 20, 0, 999),
		req("C", 5, 0, 999),
	}

	records := allocation.Allocate("P-1", dec(30), stores, allocation.DefaultWeights())
	assertInvariants(t, dec(30), records)

	m := byStore(records)
	assert.True(t, dec(5).Equal(m["C"].AlgorithmicPackages), "C caps at 5, got %v", m["C"].AlgorithmicPackages)
	ab := m["A"].AlgorithmicPackages.Add(m["B"].AlgorithmicPackages)
	assert.True(t, dec(25).Equal(ab), "A+B take the remaining 25, got %v", ab)
	assert.True(t, dec(12.5).Equal(m["A"].AlgorithmicPackages), "equal split, got %v", m["A"].AlgorithmicPackages)
}

func TestAllocate_ZeroDemandStore_ScoresZeroWithoutDividingByZero(t *testing.T) {
	// A store with no sales history: blended 0, coverage at the 999
	// sentinel. Its scores are zero and the others contest the stock.
	stores := []allocation.StoreRequirement{
		req("A", 40, 6, 3),
		req("B", 40, 0, 999),
	}

	records := allocation.Allocate("P-1", dec(50), stores, allocation.DefaultWeights())
	assertInvariants(t, dec(50), records)

	m := byStore(records)
	assert.True(t, dec(40).Equal(m["A"].AlgorithmicPackages), "A got %v", m["A"].AlgorithmicPackages)
	// B has zero score but positive need; the pot left after A caps goes
	// to it through the zero-score fallback.
	assert.True(t, dec(10).Equal(m["B"].AlgorithmicPackages), "B got %v", m["B"].AlgorithmicPackages)
}

func TestAllocate_ZeroCoverage_MaximalUrgency(t *testing.T) {
	// Two stores, same demand; the one already at zero days of coverage
	// must receive strictly more.
	stores := []allocation.StoreRequirement{
		req("A", 50, 5, 0),
		req("B", 50, 5, 10),
	}

	records := allocation.Allocate("P-1", dec(60), stores, allocation.DefaultWeights())
	assertInvariants(t, dec(60), records)

	m := byStore(records)
	assert.True(t, m["A"].AlgorithmicPackages.GreaterThan(m["B"].AlgorithmicPackages),
		"zero-coverage store must win: A %v vs B %v", m["A"].AlgorithmicPackages, m["B"].AlgorithmicPackages)
}

// =============================================================================
// DETERMINISM AND GRANULARITY
// =============================================================================

func TestAllocate_Idempotent(t *testing.T) {
	stores := []allocation.StoreRequirement{
		req("S-03", 33, 2.7, 4.5),
		req("S-01", 18, 1.3, 1.2),
		req("S-02", 27, 4.1, 7.8),
		req("S-04", 9, 0.9, 0.4),
	}

	first := allocation.Allocate("P-1", dec(55), stores, allocation.DefaultWeights())
	for i := 0; i < 10; i++ {
		// Shuffle-ish: reverse the input order; output must not change.
		reversed := make([]allocation.StoreRequirement, len(stores))
		for j, s := range stores {
			reversed[len(stores)-1-j] = s
		}
		again := allocation.Allocate("P-1", dec(55), reversed, allocation.DefaultWeights())
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].StoreID, again[j].StoreID)
			assert.True(t, first[j].AlgorithmicPackages.Equal(again[j].AlgorithmicPackages),
				"run %d store %s: %v != %v", i, first[j].StoreID,
				first[j].AlgorithmicPackages, again[j].AlgorithmicPackages)
		}
	}
}

func TestAllocate_RoundedToTenths(t *testing.T) {
	stores := []allocation.StoreRequirement{
		req("A", 10, 1, 3),
		req("B", 10, 1, 7),
		req("C", 10, 1, 11),
	}

	records := allocation.Allocate("P-1", dec(10), stores, allocation.DefaultWeights())
	assertInvariants(t, dec(10), records)
	for _, r := range records {
		assert.True(t, r.AlgorithmicPackages.Equal(r.AlgorithmicPackages.Round(1)),
			"store %s allocation %v not at tenth-of-package granularity", r.StoreID, r.AlgorithmicPackages)
	}
}

func TestAllocate_UrgencySentinelCarriesNoUrgency(t *testing.T) {
	// A store at the "sufficient" sentinel competes on demand only.
	sentinel := demand.SufficientCoverageDays
	stores := []allocation.StoreRequirement{
		{StoreID: "A", NeedPackages: dec(20), BlendedDemand: dec(3), DaysOfCoverage: sentinel},
		{StoreID: "B", NeedPackages: dec(20), BlendedDemand: dec(3), DaysOfCoverage: dec(1)},
	}

	records := allocation.Allocate("P-1", dec(20), stores, allocation.DefaultWeights())
	m := byStore(records)
	assert.True(t, m["B"].AlgorithmicPackages.GreaterThan(m["A"].AlgorithmicPackages))
}

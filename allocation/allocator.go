/*
allocator.go - DPD+U capped weighted-proportional allocation

ALGORITHM (water-filling):
  1. Score every store: combined = weightDemand*demandScore +
     weightUrgency*urgencyScore, both scores normalized across the
     contested stores.
  2. Tentatively split the remaining pot proportionally to the combined
     scores.
  3. Any store whose tentative share meets or exceeds its remaining need is
     capped at its need and leaves the contest; its excess returns to the
     pot.
  4. Repeat until no store is capped in a pass, then the tentative shares
     are final.

  Caps cascade: satisfying one store changes the proportional base for the
  rest, so this is a fixed-point loop over the still-contested stores, not
  a single closed-form division.

DETERMINISM:
  Stores are sorted by ID before every pass and the last contested store
  absorbs division and rounding residue, so identical inputs always produce
  identical allocations.
*/
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/andino/allocation-engine/demand"
)

// granularity: allocations are expressed in tenths of a package.
const granularityPlaces = 1

// minCoverageDays floors the urgency inverse so a store with zero days of
// coverage gets maximal, finite urgency.
var minCoverageDays = decimal.NewFromFloat(0.1)

// Weights is the demand/urgency split for the combined score. The pair
// must sum to 1; the documented default is 0.60 / 0.40.
type Weights struct {
	Demand  decimal.Decimal
	Urgency decimal.Decimal
}

// DefaultWeights returns the documented 0.60 / 0.40 split.
func DefaultWeights() Weights {
	return Weights{
		Demand:  decimal.NewFromFloat(0.60),
		Urgency: decimal.NewFromFloat(0.40),
	}
}

// Allocate distributes available packages across the stores, capped at each
// store's need. The returned records are ordered by store ID and satisfy
// sum(alloc) <= available and alloc[i] <= need[i].
func Allocate(productCode string, available decimal.Decimal, stores []StoreRequirement, weights Weights) []AllocationRecord {
	reqs := make([]StoreRequirement, len(stores))
	copy(reqs, stores)
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].StoreID < reqs[j].StoreID })

	scores := combinedScores(reqs, weights)

	alloc := make(map[string]decimal.Decimal, len(reqs))
	contested := make([]int, 0, len(reqs))
	for i, r := range reqs {
		alloc[r.StoreID] = decimal.Zero
		if r.NeedPackages.IsPositive() {
			contested = append(contested, i)
		}
	}

	pot := available
	for len(contested) > 0 && pot.IsPositive() {
		sumScore := decimal.Zero
		for _, i := range contested {
			sumScore = sumScore.Add(scores[i])
		}

		// All-zero scores (no historical demand anywhere): fall back to
		// an equal split, still capped at each store's need.
		weightOf := func(i int) decimal.Decimal { return scores[i] }
		if !sumScore.IsPositive() {
			weightOf = func(int) decimal.Decimal { return decimal.NewFromInt(1) }
			sumScore = decimal.NewFromInt(int64(len(contested)))
		}

		// Tentative proportional shares; the last contested store takes
		// the division residue so the shares sum to the pot exactly.
		tentative := make(map[int]decimal.Decimal, len(contested))
		assigned := decimal.Zero
		for n, i := range contested {
			var share decimal.Decimal
			if n == len(contested)-1 {
				share = pot.Sub(assigned)
				if share.IsNegative() {
					share = decimal.Zero
				}
			} else {
				share = pot.Mul(weightOf(i)).Div(sumScore)
				assigned = assigned.Add(share)
			}
			tentative[i] = share
		}

		// Cap stores whose share covers their need; they leave the
		// contest and their excess stays in the pot.
		next := contested[:0]
		capped := false
		for _, i := range contested {
			need := reqs[i].NeedPackages
			if tentative[i].GreaterThanOrEqual(need) {
				alloc[reqs[i].StoreID] = need
				pot = pot.Sub(need)
				capped = true
			} else {
				next = append(next, i)
			}
		}
		contested = next

		if !capped {
			// Fixed point: no share exceeds its need, shares are final.
			for _, i := range contested {
				alloc[reqs[i].StoreID] = tentative[i]
			}
			pot = decimal.Zero
			contested = nil
		}
	}

	return roundDistribution(productCode, available, reqs, alloc)
}

// combinedScores normalizes demand and urgency across the stores and mixes
// them with the configured weights.
func combinedScores(reqs []StoreRequirement, weights Weights) []decimal.Decimal {
	demandTotal := decimal.Zero
	urgencyRaw := make([]decimal.Decimal, len(reqs))
	urgencyTotal := decimal.Zero

	for i, r := range reqs {
		demandTotal = demandTotal.Add(r.BlendedDemand)

		// Urgency is the inverse of remaining coverage. The sentinel
		// ("not demand-limited") carries no urgency at all; zero days of
		// coverage is floored to keep the inverse finite.
		u := decimal.Zero
		if r.BlendedDemand.IsPositive() && r.DaysOfCoverage.LessThan(demand.SufficientCoverageDays) {
			days := r.DaysOfCoverage
			if days.LessThan(minCoverageDays) {
				days = minCoverageDays
			}
			u = decimal.NewFromInt(1).Div(days)
		}
		urgencyRaw[i] = u
		urgencyTotal = urgencyTotal.Add(u)
	}

	scores := make([]decimal.Decimal, len(reqs))
	for i, r := range reqs {
		d := decimal.Zero
		if demandTotal.IsPositive() {
			d = r.BlendedDemand.Div(demandTotal)
		}
		u := decimal.Zero
		if urgencyTotal.IsPositive() {
			u = urgencyRaw[i].Div(urgencyTotal)
		}
		scores[i] = weights.Demand.Mul(d).Add(weights.Urgency.Mul(u))
	}
	return scores
}

// roundDistribution rounds each allocation down to the package granularity
// and hands the rounding remainder to the last store that can still take
// it, keeping sum(alloc) <= available and alloc <= need.
func roundDistribution(productCode string, available decimal.Decimal, reqs []StoreRequirement, alloc map[string]decimal.Decimal) []AllocationRecord {
	records := make([]AllocationRecord, len(reqs))
	preRound := decimal.Zero
	postRound := decimal.Zero

	for i, r := range reqs {
		raw := alloc[r.StoreID]
		rounded := raw.RoundFloor(granularityPlaces)
		preRound = preRound.Add(raw)
		postRound = postRound.Add(rounded)
		records[i] = AllocationRecord{
			ProductCode:         productCode,
			StoreID:             r.StoreID,
			NeedPackages:        r.NeedPackages,
			AlgorithmicPackages: rounded,
			FinalPackages:       rounded,
		}
	}

	// Flooring only sheds quantity, so the remainder is non-negative.
	// Give it back, at granularity, to the last store with headroom.
	remainder := preRound.Sub(postRound).RoundFloor(granularityPlaces)
	for i := len(records) - 1; i >= 0 && remainder.IsPositive(); i-- {
		headroom := records[i].NeedPackages.Sub(records[i].AlgorithmicPackages)
		if !headroom.IsPositive() {
			continue
		}
		add := decimal.Min(remainder, headroom)
		records[i].AlgorithmicPackages = records[i].AlgorithmicPackages.Add(add)
		records[i].FinalPackages = records[i].AlgorithmicPackages
		remainder = remainder.Sub(add)
	}

	return records
}

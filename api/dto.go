/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Every quantity crosses the wire as a decimal string ("6.2", "30"),
  never as a float. Clients render them; they do not do arithmetic.

SEE ALSO:
  - handlers.go: Uses these types
  - workflow/types.go: The domain model behind them
*/
package api

import (
	"time"

	"github.com/andino/allocation-engine/allocation"
	"github.com/andino/allocation-engine/workflow"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RunDTO is the wizard session as clients see it.
type RunDTO struct {
	ID           string   `json:"id"`
	State        string   `json:"state"`
	CediID       string   `json:"cedi_id,omitempty"`
	StoreIDs     []string `json:"store_ids,omitempty"`
	RunID        string   `json:"run_id,omitempty"`
	ComputedAt   string   `json:"computed_at,omitempty"`
	ElapsedMs    int64    `json:"elapsed_ms,omitempty"`
	HasConflicts bool     `json:"has_conflicts"`
}

// SelectRequest sets the source CEDI and destination stores.
type SelectRequest struct {
	CediID   string   `json:"cedi_id"`
	StoreIDs []string `json:"store_ids"`
}

// OverrideRequest carries one manual allocation value in packages.
type OverrideRequest struct {
	Packages string `json:"packages"`
}

// ProductDTO is a catalog entry.
type ProductDTO struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	UnitsPerPackage string `json:"units_per_package"`
	PriorityClass   string `json:"priority_class,omitempty"`
}

// StoreDTO is a destination store.
type StoreDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CediDTO is a central distribution center.
type CediDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PairDTO is the computed state of one (store, product) pair.
type PairDTO struct {
	StoreID          string `json:"store_id"`
	ProductCode      string `json:"product_code"`
	BlendedDemand    string `json:"blended_demand"`
	DailyAverage     string `json:"daily_average"`
	P75              string `json:"p75"`
	OnHandUnits      string `json:"on_hand_units"`
	InTransitUnits   string `json:"in_transit_units"`
	DaysOfCoverage   string `json:"days_of_coverage"`
	TotalDemandUnits string `json:"total_demand_units"`
	NeededPackages   string `json:"needed_packages"`
	FirstStockoutDay int    `json:"first_stockout_day"`
	InputMissing     bool   `json:"input_missing"`
	MissingReason    string `json:"missing_reason,omitempty"`
}

// AllocationDTO is one store's slice of a product's distribution.
type AllocationDTO struct {
	StoreID             string `json:"store_id"`
	NeedPackages        string `json:"need_packages"`
	AlgorithmicPackages string `json:"algorithmic_packages"`
	FinalPackages       string `json:"final_packages"`
	IsOverridden        bool   `json:"is_overridden"`
}

// ConflictDTO is one product's supply situation with the current
// override overlay applied.
type ConflictDTO struct {
	ProductCode       string          `json:"product_code"`
	AvailablePackages string          `json:"available_packages"`
	TotalNeedPackages string          `json:"total_need_packages"`
	IsConflict        bool            `json:"is_conflict"`
	RequiresContest   bool            `json:"requires_contest"`
	UnmetPackages     string          `json:"unmet_packages"`
	ExcessPackages    string          `json:"excess_packages"`
	Distribution      []AllocationDTO `json:"distribution"`
}

// OrderLineDTO is one line of a draft order.
type OrderLineDTO struct {
	ProductCode   string `json:"product_code"`
	Packages      string `json:"packages"`
	Units         string `json:"units"`
	WasOverridden bool   `json:"was_overridden"`
}

// OrderDTO is one store's draft order.
type OrderDTO struct {
	ID        string         `json:"id,omitempty"`
	RunID     string         `json:"run_id"`
	CediID    string         `json:"cedi_id"`
	StoreID   string         `json:"store_id"`
	CreatedAt string         `json:"created_at"`
	Lines     []OrderLineDTO `json:"lines"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPairDTO(p workflow.PairResult) PairDTO {
	return PairDTO{
		StoreID:          p.StoreID,
		ProductCode:      p.ProductCode,
		BlendedDemand:    p.Profile.BlendedDemand.String(),
		DailyAverage:     p.Profile.DailyAverage.String(),
		P75:              p.Profile.P75.String(),
		OnHandUnits:      p.Stock.OnHandUnits.String(),
		InTransitUnits:   p.Stock.InTransitUnits.String(),
		DaysOfCoverage:   p.Coverage.DaysOfCoverage.String(),
		TotalDemandUnits: p.Coverage.TotalDemandUnits.String(),
		NeededPackages:   p.Need.NeededPackages.String(),
		FirstStockoutDay: p.Coverage.FirstStockoutDay,
		InputMissing:     p.InputMissing,
		MissingReason:    p.MissingReason,
	}
}

func toAllocationDTOs(records []allocation.AllocationRecord) []AllocationDTO {
	dtos := make([]AllocationDTO, len(records))
	for i, rec := range records {
		dtos[i] = AllocationDTO{
			StoreID:             rec.StoreID,
			NeedPackages:        rec.NeedPackages.String(),
			AlgorithmicPackages: rec.AlgorithmicPackages.String(),
			FinalPackages:       rec.FinalPackages.String(),
			IsOverridden:        rec.IsOverridden,
		}
	}
	return dtos
}

func toOrderDTO(o workflow.DraftOrder) OrderDTO {
	lines := make([]OrderLineDTO, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = OrderLineDTO{
			ProductCode:   l.ProductCode,
			Packages:      l.Packages.String(),
			Units:         l.Units.String(),
			WasOverridden: l.WasOverridden,
		}
	}
	return OrderDTO{
		ID:        o.ID,
		RunID:     o.RunID,
		CediID:    o.CediID,
		StoreID:   o.StoreID,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		Lines:     lines,
	}
}

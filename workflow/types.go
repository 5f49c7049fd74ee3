/*
Package workflow sequences a distribution run from store selection to
materialized draft orders.

PURPOSE:
  One calculation run is a single wizard session: the operator picks a
  source CEDI and destination stores, the engine computes demand, transit,
  needs and allocations for every (store, product) pair, the operator
  resolves conflicts (with manual overrides), reviews, and confirms. Only
  the confirm step persists anything.

COLLABORATORS:
  Catalog, sales history, open orders and the draft-order writer are
  consumed through the interfaces below; store/sqlite and store/memory
  provide implementations.
*/
package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andino/allocation-engine/allocation"
	"github.com/andino/allocation-engine/demand"
	"github.com/andino/allocation-engine/supply"
)

// Product is a catalog entry. PriorityClass (ABC/XYZ) is consumed as an
// input here, never computed.
type Product struct {
	Code            string
	Name            string
	UnitsPerPackage decimal.Decimal
	PriorityClass   string
}

// Store is a destination store.
type Store struct {
	ID   string
	Name string
}

// Cedi is a central distribution center.
type Cedi struct {
	ID   string
	Name string
}

// Catalog exposes the product/store/CEDI master data and stock levels.
type Catalog interface {
	Products(ctx context.Context) ([]Product, error)
	Stores(ctx context.Context) ([]Store, error)
	Cedis(ctx context.Context) ([]Cedi, error)

	// CediAvailability returns available packages per product code.
	CediAvailability(ctx context.Context, cediID string) (map[string]decimal.Decimal, error)

	// StoreStock returns the stock position for one pair; ok is false
	// when the store carries no record for the product.
	StoreStock(ctx context.Context, storeID, productCode string) (supply.StockState, bool, error)
}

// SalesHistory returns the ordered daily sales window for one pair.
type SalesHistory interface {
	DailySales(ctx context.Context, storeID, productCode string, lookbackDays int) ([]demand.DailySale, error)
}

// OpenOrders returns the still-open upstream orders for one pair.
type OpenOrders interface {
	OpenOrders(ctx context.Context, storeID, productCode string) ([]supply.UpstreamOrder, error)
}

// DraftOrderLine is one finalized line of a store's draft order.
type DraftOrderLine struct {
	ProductCode   string
	Packages      decimal.Decimal
	Units         decimal.Decimal
	WasOverridden bool
}

// DraftOrder is the materialized output for one store. Writing it is
// atomic per store: either the whole order lands or none of it.
type DraftOrder struct {
	ID        string
	RunID     string
	CediID    string
	StoreID   string
	CreatedAt time.Time
	Lines     []DraftOrderLine
}

// OrderWriter persists draft orders and the run audit trail.
type OrderWriter interface {
	SaveDraftOrder(ctx context.Context, order DraftOrder) error
	SaveRunAudit(ctx context.Context, audit RunAudit) error
}

// RunAudit records one calculation run's outcome for later inspection.
type RunAudit struct {
	RunID       string
	CediID      string
	StoreIDs    []string
	StartedAt   time.Time
	CompletedAt time.Time
	Outcome     string
	Error       string
}

// RunConfig is the read-only configuration snapshot for one run.
type RunConfig struct {
	Weights      allocation.Weights
	BlendWeights demand.BlendWeights

	LookbackDays int
	CoverageDays int
	LeadTimeDays int

	// CalcTimeout bounds the whole fan-out; on expiry the partial result
	// is discarded and the workflow stays in Select.
	CalcTimeout time.Duration

	// Parallelism caps concurrent pair computations (0 = sensible default).
	Parallelism int
}

// PairResult is the computed state of one (store, product) pair.
type PairResult struct {
	StoreID     string
	ProductCode string

	Profile  demand.ProductDemandProfile
	Stock    supply.StockState
	Coverage demand.CoverageReport
	Need     supply.ReplenishmentNeed

	// InputMissing marks pairs lacking sales history or stock records.
	// The pair stays in the result with a zero profile; the batch is
	// never aborted for it.
	InputMissing  bool
	MissingReason string
}

// CalculationResult is the full output of one run's computation. It is
// produced whole or not at all; there is no partial-commit state.
type CalculationResult struct {
	RunID      string
	CediID     string
	StoreIDs   []string
	ComputedAt time.Time
	Elapsed    time.Duration

	// Pairs ordered by (store, product).
	Pairs []PairResult

	// Conflicts ordered by product code; one entry per product with any
	// positive need across the selected stores.
	Conflicts []allocation.SupplyConflict
}

// ConflictFor returns the conflict entry for a product, or nil.
func (r *CalculationResult) ConflictFor(productCode string) *allocation.SupplyConflict {
	for i := range r.Conflicts {
		if r.Conflicts[i].ProductCode == productCode {
			return &r.Conflicts[i]
		}
	}
	return nil
}

// HasContestedConflict reports whether any product requires the
// conflict-resolution step.
func (r *CalculationResult) HasContestedConflict() bool {
	for i := range r.Conflicts {
		if r.Conflicts[i].RequiresContest {
			return true
		}
	}
	return false
}

// ContestedConflicts returns the conflicts that need operator resolution.
func (r *CalculationResult) ContestedConflicts() []allocation.SupplyConflict {
	var out []allocation.SupplyConflict
	for _, c := range r.Conflicts {
		if c.RequiresContest {
			out = append(out, c)
		}
	}
	return out
}

// seed.go - Demo dataset for local runs. Two CEDIs, three stores, a small
// catalog, 30 days of history and a couple of in-flight orders. Quantities
// are chosen so that at least one product is contested on the default
// configuration.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andino/allocation-engine/demand"
	"github.com/andino/allocation-engine/supply"
	"github.com/andino/allocation-engine/workflow"
)

// SeedDemo wipes the database and loads the demo dataset.
func (s *Store) SeedDemo(ctx context.Context) error {
	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("reset before seed: %w", err)
	}

	cedis := []workflow.Cedi{
		{ID: "CEDI-NORTE", Name: "CEDI Norte"},
		{ID: "CEDI-SUR", Name: "CEDI Sur"},
	}
	stores := []workflow.Store{
		{ID: "T-001", Name: "Tienda Centro"},
		{ID: "T-002", Name: "Tienda Mercado"},
		{ID: "T-003", Name: "Tienda Estación"},
	}
	products := []workflow.Product{
		{Code: "ARR-1K", Name: "Arroz 1kg", UnitsPerPackage: decimal.NewFromInt(10), PriorityClass: "AX"},
		{Code: "FRI-900", Name: "Frijol 900g", UnitsPerPackage: decimal.NewFromInt(12), PriorityClass: "AY"},
		{Code: "ACE-1L", Name: "Aceite 1L", UnitsPerPackage: decimal.NewFromInt(6), PriorityClass: "BX"},
		{Code: "SAL-500", Name: "Sal 500g", UnitsPerPackage: decimal.NewFromInt(24), PriorityClass: "CZ"},
	}

	for _, c := range cedis {
		if err := s.UpsertCedi(ctx, c); err != nil {
			return err
		}
	}
	for _, st := range stores {
		if err := s.UpsertStore(ctx, st); err != nil {
			return err
		}
	}
	for _, p := range products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}

	// ARR-1K is deliberately scarce at CEDI Norte.
	cediStock := map[string]map[string]int64{
		"CEDI-NORTE": {"ARR-1K": 20, "FRI-900": 300, "ACE-1L": 150, "SAL-500": 80},
		"CEDI-SUR":   {"ARR-1K": 400, "FRI-900": 250, "ACE-1L": 90, "SAL-500": 60},
	}
	for cediID, byProduct := range cediStock {
		for code, qty := range byProduct {
			if err := s.UpsertCediStock(ctx, cediID, code, decimal.NewFromInt(qty)); err != nil {
				return err
			}
		}
	}

	// Base daily demand in units per store, with a weekend bump.
	baseDemand := map[string]map[string]float64{
		"T-001": {"ARR-1K": 42, "FRI-900": 30, "ACE-1L": 12, "SAL-500": 8},
		"T-002": {"ARR-1K": 35, "FRI-900": 18, "ACE-1L": 20, "SAL-500": 5},
		"T-003": {"ARR-1K": 18, "FRI-900": 25, "ACE-1L": 7, "SAL-500": 11},
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for storeID, byProduct := range baseDemand {
		for code, base := range byProduct {
			for i := 30; i >= 1; i-- {
				day := today.AddDate(0, 0, -i)
				qty := base
				switch day.Weekday() {
				case time.Saturday:
					qty *= 1.5
				case time.Sunday:
					qty *= 1.3
				}
				sale := demand.DailySale{Date: day, Quantity: decimal.NewFromFloat(qty)}
				if err := s.RecordDailySale(ctx, storeID, code, sale); err != nil {
					return err
				}
			}
		}
	}

	storeStock := map[string]map[string]int64{
		"T-001": {"ARR-1K": 30, "FRI-900": 120, "ACE-1L": 48, "SAL-500": 96},
		"T-002": {"ARR-1K": 55, "FRI-900": 60, "ACE-1L": 10, "SAL-500": 40},
		"T-003": {"ARR-1K": 12, "FRI-900": 200, "ACE-1L": 35, "SAL-500": 150},
	}
	for storeID, byProduct := range storeStock {
		for code, units := range byProduct {
			if err := s.UpsertStoreStock(ctx, storeID, code, decimal.NewFromInt(units)); err != nil {
				return err
			}
		}
	}

	orders := []supply.UpstreamOrder{
		{OrderID: "PO-1001", StoreID: "T-001", ProductCode: "FRI-900",
			OrderedPackages: decimal.NewFromInt(5), ArrivedPackages: decimal.NewFromInt(2),
			State: supply.OrderShipped},
		{OrderID: "PO-1002", StoreID: "T-002", ProductCode: "ACE-1L",
			OrderedPackages: decimal.NewFromInt(8), ArrivedPackages: decimal.Zero,
			State: supply.OrderApproved},
		{OrderID: "PO-1003", StoreID: "T-003", ProductCode: "ARR-1K",
			OrderedPackages: decimal.NewFromInt(3), ArrivedPackages: decimal.NewFromInt(3),
			State: supply.OrderReceived},
	}
	for _, o := range orders {
		if err := s.UpsertOpenOrder(ctx, o); err != nil {
			return err
		}
	}

	return nil
}

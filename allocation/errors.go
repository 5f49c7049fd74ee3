// errors.go - Sentinel and structured errors for the allocation layer.
// Callers match with errors.Is / errors.As; nothing here is fatal to a
// calculation run.
package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrOverrideExceedsStock is returned when the final per-store values
	// for a product would exceed the CEDI's available stock. The workflow
	// must not advance while this holds; values are never silently
	// clamped.
	ErrOverrideExceedsStock = errors.New("override exceeds available stock")

	// ErrNegativeOverride is returned for an operator-entered quantity
	// below zero.
	ErrNegativeOverride = errors.New("override quantity is negative")

	// ErrUnknownAllocation is returned when an override targets a
	// (product, store) pair the calculation did not produce.
	ErrUnknownAllocation = errors.New("no allocation for product/store")
)

// OverrideExceedsStockError reports by how much a product's final
// distribution exceeds the available stock.
type OverrideExceedsStockError struct {
	ProductCode    string
	Available      decimal.Decimal
	TotalFinal     decimal.Decimal
	ExcessPackages decimal.Decimal
}

func (e *OverrideExceedsStockError) Error() string {
	return fmt.Sprintf("product %s: final distribution %s exceeds available %s by %s packages",
		e.ProductCode, e.TotalFinal, e.Available, e.ExcessPackages)
}

func (e *OverrideExceedsStockError) Unwrap() error {
	return ErrOverrideExceedsStock
}

/*
Package supply models a store's stock position against the central
distribution center (CEDI): what is on hand, what is still on a truck, and
how many packages the store needs to order to cover the forecast horizon.
*/
package supply

import "github.com/shopspring/decimal"

// OrderLifecycle is the state of an open upstream order.
type OrderLifecycle string

const (
	OrderRequested OrderLifecycle = "requested"
	OrderApproved  OrderLifecycle = "approved"
	OrderShipped   OrderLifecycle = "shipped"
	OrderReceived  OrderLifecycle = "received"
	OrderCancelled OrderLifecycle = "cancelled"
)

// Terminal reports whether the order can no longer deliver stock.
func (l OrderLifecycle) Terminal() bool {
	return l == OrderReceived || l == OrderCancelled
}

// UpstreamOrder is an order a store placed against the CEDI that may still
// be in flight. Quantities are in packages.
type UpstreamOrder struct {
	OrderID         string
	ProductCode     string
	StoreID         string
	OrderedPackages decimal.Decimal
	ArrivedPackages decimal.Decimal
	State           OrderLifecycle
}

// StockState is the stock position of one (product, store) pair. Units,
// not packages; UnitsPerPackage converts between the two.
type StockState struct {
	ProductCode     string
	StoreID         string
	OnHandUnits     decimal.Decimal
	InTransitUnits  decimal.Decimal
	UnitsPerPackage decimal.Decimal
}

// EffectiveStock is what the store can count on: on hand plus in transit.
func (s StockState) EffectiveStock() decimal.Decimal {
	return s.OnHandUnits.Add(s.InTransitUnits)
}

// ReplenishmentNeed is how many packages a store must receive to cover the
// horizon. NeededPackages is always >= 0 and a whole number of packages.
type ReplenishmentNeed struct {
	ProductCode         string
	StoreID             string
	RequiredUnits       decimal.Decimal
	EffectiveStockUnits decimal.Decimal
	NeededPackages      decimal.Decimal
}

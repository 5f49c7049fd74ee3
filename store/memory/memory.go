/*
Package memory is an in-memory implementation of the workflow data
interfaces. It backs tests and demo runs; store/sqlite is the durable
counterpart.
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/andino/allocation-engine/demand"
	"github.com/andino/allocation-engine/supply"
	"github.com/andino/allocation-engine/workflow"
)

type pairKey struct {
	storeID     string
	productCode string
}

// Store holds every dataset a run consumes, plus what it produces.
type Store struct {
	mu sync.RWMutex

	products []workflow.Product
	stores   []workflow.Store
	cedis    []workflow.Cedi

	cediStock  map[string]map[string]decimal.Decimal // cediID -> product -> packages
	storeStock map[pairKey]supply.StockState
	sales      map[pairKey][]demand.DailySale
	openOrders map[pairKey][]supply.UpstreamOrder

	orders []workflow.DraftOrder
	audits []workflow.RunAudit
}

// New returns an empty store; seed it with the Add/Set methods.
func New() *Store {
	return &Store{
		cediStock:  make(map[string]map[string]decimal.Decimal),
		storeStock: make(map[pairKey]supply.StockState),
		sales:      make(map[pairKey][]demand.DailySale),
		openOrders: make(map[pairKey][]supply.UpstreamOrder),
	}
}

// ===== Seeding =====

func (s *Store) AddProduct(p workflow.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
}

func (s *Store) AddStore(st workflow.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores = append(s.stores, st)
}

func (s *Store) AddCedi(c workflow.Cedi) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cedis = append(s.cedis, c)
}

// SetCediStock sets the available packages of one product at one CEDI.
func (s *Store) SetCediStock(cediID, productCode string, packages decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.cediStock[cediID]
	if m == nil {
		m = make(map[string]decimal.Decimal)
		s.cediStock[cediID] = m
	}
	m[productCode] = packages
}

func (s *Store) SetStoreStock(stock supply.StockState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeStock[pairKey{stock.StoreID, stock.ProductCode}] = stock
}

func (s *Store) SetSales(storeID, productCode string, window []demand.DailySale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[pairKey{storeID, productCode}] = window
}

func (s *Store) AddOpenOrder(storeID, productCode string, order supply.UpstreamOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{storeID, productCode}
	s.openOrders[k] = append(s.openOrders[k], order)
}

// ===== workflow.Catalog =====

func (s *Store) Products(ctx context.Context) ([]workflow.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]workflow.Product(nil), s.products...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) Stores(ctx context.Context) ([]workflow.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]workflow.Store(nil), s.stores...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Cedis(ctx context.Context) ([]workflow.Cedi, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]workflow.Cedi(nil), s.cedis...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CediAvailability(ctx context.Context, cediID string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.cediStock[cediID]))
	for code, qty := range s.cediStock[cediID] {
		out[code] = qty
	}
	return out, nil
}

func (s *Store) StoreStock(ctx context.Context, storeID, productCode string) (supply.StockState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stock, ok := s.storeStock[pairKey{storeID, productCode}]
	return stock, ok, nil
}

// ===== workflow.SalesHistory =====

func (s *Store) DailySales(ctx context.Context, storeID, productCode string, lookbackDays int) ([]demand.DailySale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := s.sales[pairKey{storeID, productCode}]
	if len(window) > lookbackDays {
		window = window[len(window)-lookbackDays:]
	}
	return append([]demand.DailySale(nil), window...), nil
}

// ===== workflow.OpenOrders =====

func (s *Store) OpenOrders(ctx context.Context, storeID, productCode string) ([]supply.UpstreamOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]supply.UpstreamOrder(nil), s.openOrders[pairKey{storeID, productCode}]...), nil
}

// ===== workflow.OrderWriter =====

func (s *Store) SaveDraftOrder(ctx context.Context, order workflow.DraftOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, order)
	return nil
}

func (s *Store) SaveRunAudit(ctx context.Context, audit workflow.RunAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, audit)
	return nil
}

// SavedOrders returns the persisted draft orders, oldest first.
func (s *Store) SavedOrders() []workflow.DraftOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]workflow.DraftOrder(nil), s.orders...)
}

// SavedAudits returns the persisted run audits, oldest first.
func (s *Store) SavedAudits() []workflow.RunAudit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]workflow.RunAudit(nil), s.audits...)
}

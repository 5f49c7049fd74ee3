/*
Package sqlite provides the SQLite-backed implementation of the workflow
storage interfaces.

PURPOSE:
  Implements workflow.Catalog, workflow.SalesHistory, workflow.OpenOrders
  and workflow.OrderWriter on a single SQLite file. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  stores, cedis, products:  Master data
  cedi_stock:               Available packages per (cedi, product)
  store_stock:              On-hand units per (store, product)
  daily_sales:              One row per (store, product, day)
  open_orders:              Upstream orders with their lifecycle state
  draft_orders/_lines:      Confirmed output of a run
  run_audits:               One row per completed or failed run

PRECISION:
  All quantities are stored as decimal strings, never as REAL. They feed
  the allocator's conservation invariants, and floats would drift.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode for better crash
  recovery and non-blocking readers.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - workflow/types.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/andino/allocation-engine/demand"
	"github.com/andino/allocation-engine/supply"
	"github.com/andino/allocation-engine/workflow"
)

const dayFormat = "2006-01-02"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cedis (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		units_per_package TEXT NOT NULL,
		priority_class TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS cedi_stock (
		cedi_id TEXT NOT NULL,
		product_code TEXT NOT NULL,
		available_packages TEXT NOT NULL,
		PRIMARY KEY (cedi_id, product_code)
	);

	CREATE TABLE IF NOT EXISTS store_stock (
		store_id TEXT NOT NULL,
		product_code TEXT NOT NULL,
		on_hand_units TEXT NOT NULL,
		PRIMARY KEY (store_id, product_code)
	);

	CREATE TABLE IF NOT EXISTS daily_sales (
		store_id TEXT NOT NULL,
		product_code TEXT NOT NULL,
		sale_date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		PRIMARY KEY (store_id, product_code, sale_date)
	);

	-- Hot path: the lookback window for every pair of every run.
	CREATE INDEX IF NOT EXISTS idx_daily_sales_pair_date
		ON daily_sales(store_id, product_code, sale_date DESC);

	CREATE TABLE IF NOT EXISTS open_orders (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		product_code TEXT NOT NULL,
		ordered_packages TEXT NOT NULL,
		arrived_packages TEXT NOT NULL DEFAULT '0',
		state TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_open_orders_pair
		ON open_orders(store_id, product_code, state);

	CREATE TABLE IF NOT EXISTS draft_orders (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		cedi_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_draft_orders_run
		ON draft_orders(run_id);

	CREATE TABLE IF NOT EXISTS draft_order_lines (
		order_id TEXT NOT NULL,
		product_code TEXT NOT NULL,
		packages TEXT NOT NULL,
		units TEXT NOT NULL,
		was_overridden BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (order_id, product_code)
	);

	CREATE TABLE IF NOT EXISTS run_audits (
		run_id TEXT PRIMARY KEY,
		cedi_id TEXT NOT NULL,
		store_ids_json TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG (workflow.Catalog interface)
// =============================================================================

// Products returns the full catalog ordered by code.
func (s *Store) Products(ctx context.Context) ([]workflow.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT code, name, units_per_package, priority_class FROM products ORDER BY code",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []workflow.Product
	for rows.Next() {
		var p workflow.Product
		var upp string
		if err := rows.Scan(&p.Code, &p.Name, &upp, &p.PriorityClass); err != nil {
			return nil, err
		}
		if p.UnitsPerPackage, err = parseDec(upp); err != nil {
			return nil, fmt.Errorf("product %s: %w", p.Code, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Stores returns all destination stores ordered by ID.
func (s *Store) Stores(ctx context.Context) ([]workflow.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM stores ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []workflow.Store
	for rows.Next() {
		var st workflow.Store
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

// Cedis returns all distribution centers ordered by ID.
func (s *Store) Cedis(ctx context.Context) ([]workflow.Cedi, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM cedis ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cedis []workflow.Cedi
	for rows.Next() {
		var c workflow.Cedi
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		cedis = append(cedis, c)
	}
	return cedis, rows.Err()
}

// CediAvailability returns available packages per product code.
func (s *Store) CediAvailability(ctx context.Context, cediID string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT product_code, available_packages FROM cedi_stock WHERE cedi_id = ?",
		cediID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var code, qty string
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		if out[code], err = parseDec(qty); err != nil {
			return nil, fmt.Errorf("cedi stock %s/%s: %w", cediID, code, err)
		}
	}
	return out, rows.Err()
}

// StoreStock returns the stock position for one pair; ok is false when
// the store carries no record for the product.
func (s *Store) StoreStock(ctx context.Context, storeID, productCode string) (supply.StockState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var onHand, upp string
	err := s.db.QueryRowContext(ctx, `
		SELECT ss.on_hand_units, p.units_per_package
		FROM store_stock ss
		JOIN products p ON p.code = ss.product_code
		WHERE ss.store_id = ? AND ss.product_code = ?`,
		storeID, productCode,
	).Scan(&onHand, &upp)

	if err == sql.ErrNoRows {
		return supply.StockState{}, false, nil
	}
	if err != nil {
		return supply.StockState{}, false, err
	}

	stock := supply.StockState{ProductCode: productCode, StoreID: storeID}
	if stock.OnHandUnits, err = parseDec(onHand); err != nil {
		return supply.StockState{}, false, fmt.Errorf("store stock %s/%s: %w", storeID, productCode, err)
	}
	if stock.UnitsPerPackage, err = parseDec(upp); err != nil {
		return supply.StockState{}, false, fmt.Errorf("product %s: %w", productCode, err)
	}
	return stock, true, nil
}

// =============================================================================
// SALES HISTORY (workflow.SalesHistory interface)
// =============================================================================

// DailySales returns the most recent lookbackDays of history for one
// pair, oldest first.
func (s *Store) DailySales(ctx context.Context, storeID, productCode string, lookbackDays int) ([]demand.DailySale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest N rows, then reversed so callers see chronological order.
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_date, quantity
		FROM daily_sales
		WHERE store_id = ? AND product_code = ?
		ORDER BY sale_date DESC
		LIMIT ?`,
		storeID, productCode, lookbackDays,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var window []demand.DailySale
	for rows.Next() {
		var dateStr, qty string
		if err := rows.Scan(&dateStr, &qty); err != nil {
			return nil, err
		}
		var sale demand.DailySale
		if sale.Date, err = time.Parse(dayFormat, dateStr); err != nil {
			return nil, fmt.Errorf("sale date %q: %w", dateStr, err)
		}
		if sale.Quantity, err = parseDec(qty); err != nil {
			return nil, fmt.Errorf("sale %s/%s on %s: %w", storeID, productCode, dateStr, err)
		}
		window = append(window, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	return window, nil
}

// =============================================================================
// OPEN ORDERS (workflow.OpenOrders interface)
// =============================================================================

// OpenOrders returns the non-terminal upstream orders for one pair.
func (s *Store) OpenOrders(ctx context.Context, storeID, productCode string) ([]supply.UpstreamOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ordered_packages, arrived_packages, state
		FROM open_orders
		WHERE store_id = ? AND product_code = ?
		  AND state NOT IN (?, ?)
		ORDER BY id`,
		storeID, productCode,
		string(supply.OrderReceived), string(supply.OrderCancelled),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []supply.UpstreamOrder
	for rows.Next() {
		o := supply.UpstreamOrder{StoreID: storeID, ProductCode: productCode}
		var ordered, arrived, state string
		if err := rows.Scan(&o.OrderID, &ordered, &arrived, &state); err != nil {
			return nil, err
		}
		o.State = supply.OrderLifecycle(state)
		if o.OrderedPackages, err = parseDec(ordered); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
		if o.ArrivedPackages, err = parseDec(arrived); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// =============================================================================
// ORDER WRITER (workflow.OrderWriter interface)
// =============================================================================

// SaveDraftOrder persists one store's order with all its lines in a
// single transaction.
func (s *Store) SaveDraftOrder(ctx context.Context, order workflow.DraftOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO draft_orders (id, run_id, cedi_id, store_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.RunID, order.CediID, order.StoreID,
		order.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert draft order: %w", err)
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO draft_order_lines (order_id, product_code, packages, units, was_overridden)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, line.ProductCode,
			line.Packages.String(), line.Units.String(), line.WasOverridden,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order line %s: %w", line.ProductCode, err)
		}
	}

	return tx.Commit()
}

// SaveRunAudit records a run's outcome. Re-saving the same run replaces
// the earlier row.
func (s *Store) SaveRunAudit(ctx context.Context, audit workflow.RunAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	storeIDs, _ := json.Marshal(audit.StoreIDs)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_audits (run_id, cedi_id, store_ids_json, started_at, completed_at, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			completed_at = excluded.completed_at,
			outcome = excluded.outcome,
			error = excluded.error`,
		audit.RunID, audit.CediID, string(storeIDs),
		audit.StartedAt.UTC().Format(time.RFC3339),
		audit.CompletedAt.UTC().Format(time.RFC3339),
		audit.Outcome, nullString(audit.Error),
	)
	return err
}

// =============================================================================
// READ-BACK QUERIES
// =============================================================================

// OrdersByRun returns the draft orders saved for one run, lines included.
func (s *Store) OrdersByRun(ctx context.Context, runID string) ([]workflow.DraftOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, cedi_id, store_id, created_at
		FROM draft_orders
		WHERE run_id = ?
		ORDER BY store_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []workflow.DraftOrder
	for rows.Next() {
		var o workflow.DraftOrder
		var createdAt string
		if err := rows.Scan(&o.ID, &o.RunID, &o.CediID, &o.StoreID, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].Lines, err = s.orderLines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) orderLines(ctx context.Context, orderID string) ([]workflow.DraftOrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_code, packages, units, was_overridden
		FROM draft_order_lines
		WHERE order_id = ?
		ORDER BY product_code`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []workflow.DraftOrderLine
	for rows.Next() {
		var l workflow.DraftOrderLine
		var packages, units string
		if err := rows.Scan(&l.ProductCode, &packages, &units, &l.WasOverridden); err != nil {
			return nil, err
		}
		if l.Packages, err = parseDec(packages); err != nil {
			return nil, fmt.Errorf("order %s line %s: %w", orderID, l.ProductCode, err)
		}
		if l.Units, err = parseDec(units); err != nil {
			return nil, fmt.Errorf("order %s line %s: %w", orderID, l.ProductCode, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// AuditsByOutcome returns run audits, newest first; empty outcome means
// all.
func (s *Store) AuditsByOutcome(ctx context.Context, outcome string) ([]workflow.RunAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT run_id, cedi_id, store_ids_json, started_at, completed_at, outcome, error
		FROM run_audits`
	var args []any
	if outcome != "" {
		query += " WHERE outcome = ?"
		args = append(args, outcome)
	}
	query += " ORDER BY completed_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []workflow.RunAudit
	for rows.Next() {
		var a workflow.RunAudit
		var storeIDs, startedAt, completedAt string
		var errStr sql.NullString
		if err := rows.Scan(&a.RunID, &a.CediID, &storeIDs, &startedAt, &completedAt, &a.Outcome, &errStr); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(storeIDs), &a.StoreIDs)
		a.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		a.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		a.Error = errStr.String
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// =============================================================================
// UPSERTS (master data and inputs)
// =============================================================================

// UpsertProduct inserts or updates a catalog entry.
func (s *Store) UpsertProduct(ctx context.Context, p workflow.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (code, name, units_per_package, priority_class)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			units_per_package = excluded.units_per_package,
			priority_class = excluded.priority_class`,
		p.Code, p.Name, p.UnitsPerPackage.String(), p.PriorityClass,
	)
	return err
}

// UpsertStore inserts or updates a store.
func (s *Store) UpsertStore(ctx context.Context, st workflow.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		st.ID, st.Name,
	)
	return err
}

// UpsertCedi inserts or updates a distribution center.
func (s *Store) UpsertCedi(ctx context.Context, c workflow.Cedi) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cedis (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		c.ID, c.Name,
	)
	return err
}

// UpsertCediStock sets the available packages of one product at one CEDI.
func (s *Store) UpsertCediStock(ctx context.Context, cediID, productCode string, packages decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cedi_stock (cedi_id, product_code, available_packages)
		VALUES (?, ?, ?)
		ON CONFLICT(cedi_id, product_code) DO UPDATE SET
			available_packages = excluded.available_packages`,
		cediID, productCode, packages.String(),
	)
	return err
}

// UpsertStoreStock sets the on-hand units of one product at one store.
func (s *Store) UpsertStoreStock(ctx context.Context, storeID, productCode string, onHandUnits decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_stock (store_id, product_code, on_hand_units)
		VALUES (?, ?, ?)
		ON CONFLICT(store_id, product_code) DO UPDATE SET
			on_hand_units = excluded.on_hand_units`,
		storeID, productCode, onHandUnits.String(),
	)
	return err
}

// RecordDailySale sets one day of history; re-recording a day replaces it.
func (s *Store) RecordDailySale(ctx context.Context, storeID, productCode string, sale demand.DailySale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_sales (store_id, product_code, sale_date, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_id, product_code, sale_date) DO UPDATE SET
			quantity = excluded.quantity`,
		storeID, productCode, sale.Date.Format(dayFormat), sale.Quantity.String(),
	)
	return err
}

// UpsertOpenOrder inserts or updates an upstream order.
func (s *Store) UpsertOpenOrder(ctx context.Context, o supply.UpstreamOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO open_orders (id, store_id, product_code, ordered_packages, arrived_packages, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ordered_packages = excluded.ordered_packages,
			arrived_packages = excluded.arrived_packages,
			state = excluded.state`,
		o.OrderID, o.StoreID, o.ProductCode,
		o.OrderedPackages.String(), o.ArrivedPackages.String(), string(o.State),
	)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"draft_order_lines", "draft_orders", "run_audits",
		"open_orders", "daily_sales", "store_stock", "cedi_stock",
		"products", "stores", "cedis",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

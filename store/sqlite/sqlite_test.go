package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino/allocation-engine/demand"
	"github.com/andino/allocation-engine/store/sqlite"
	"github.com/andino/allocation-engine/supply"
	"github.com/andino/allocation-engine/workflow"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_MasterDataRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCedi(ctx, workflow.Cedi{ID: "C-1", Name: "Central"}))
	require.NoError(t, s.UpsertStore(ctx, workflow.Store{ID: "S-1", Name: "North"}))
	require.NoError(t, s.UpsertProduct(ctx, workflow.Product{
		Code: "P-1", Name: "Rice", UnitsPerPackage: dec(10), PriorityClass: "AX",
	}))

	products, err := s.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Rice", products[0].Name)
	assert.True(t, dec(10).Equal(products[0].UnitsPerPackage))

	// Upserting again replaces, never duplicates.
	require.NoError(t, s.UpsertProduct(ctx, workflow.Product{
		Code: "P-1", Name: "Rice 1kg", UnitsPerPackage: dec(12), PriorityClass: "AX",
	}))
	products, err = s.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Rice 1kg", products[0].Name)
	assert.True(t, dec(12).Equal(products[0].UnitsPerPackage))

	stores, err := s.Stores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)

	cedis, err := s.Cedis(ctx)
	require.NoError(t, err)
	assert.Len(t, cedis, 1)
}

func TestStore_CediAvailability(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCediStock(ctx, "C-1", "P-1", dec(20)))
	require.NoError(t, s.UpsertCediStock(ctx, "C-1", "P-2", dec(0.5)))
	require.NoError(t, s.UpsertCediStock(ctx, "C-2", "P-1", dec(99)))

	avail, err := s.CediAvailability(ctx, "C-1")
	require.NoError(t, err)
	require.Len(t, avail, 2, "other CEDIs stay out of the map")
	assert.True(t, dec(20).Equal(avail["P-1"]))
	assert.True(t, dec(0.5).Equal(avail["P-2"]), "fractional packages survive the round trip")
}

func TestStore_StoreStock_MissingRecordNotAnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProduct(ctx, workflow.Product{
		Code: "P-1", Name: "Rice", UnitsPerPackage: dec(6),
	}))
	require.NoError(t, s.UpsertStoreStock(ctx, "S-1", "P-1", dec(42)))

	stock, ok, err := s.StoreStock(ctx, "S-1", "P-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, dec(42).Equal(stock.OnHandUnits))
	assert.True(t, dec(6).Equal(stock.UnitsPerPackage), "units per package joined from the catalog")

	_, ok, err = s.StoreStock(ctx, "S-2", "P-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DailySales_WindowedChronological(t *testing.T) {
	// GIVEN: 10 recorded days
	// WHEN: asking for a 7-day lookback
	// THEN: the 7 most recent days come back oldest first

	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		sale := demand.DailySale{Date: base.AddDate(0, 0, i), Quantity: decimal.NewFromInt(int64(i))}
		require.NoError(t, s.RecordDailySale(ctx, "S-1", "P-1", sale))
	}

	window, err := s.DailySales(ctx, "S-1", "P-1", 7)
	require.NoError(t, err)
	require.Len(t, window, 7)
	assert.True(t, window[0].Date.Equal(base.AddDate(0, 0, 3)), "oldest kept day")
	assert.True(t, window[6].Date.Equal(base.AddDate(0, 0, 9)), "newest day last")
	assert.True(t, decimal.NewFromInt(3).Equal(window[0].Quantity))
}

func TestStore_OpenOrders_TerminalStatesExcluded(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seed := []supply.UpstreamOrder{
		{OrderID: "O-1", StoreID: "S-1", ProductCode: "P-1",
			OrderedPackages: dec(5), ArrivedPackages: dec(2), State: supply.OrderShipped},
		{OrderID: "O-2", StoreID: "S-1", ProductCode: "P-1",
			OrderedPackages: dec(3), ArrivedPackages: dec(3), State: supply.OrderReceived},
		{OrderID: "O-3", StoreID: "S-1", ProductCode: "P-1",
			OrderedPackages: dec(4), ArrivedPackages: decimal.Zero, State: supply.OrderCancelled},
		{OrderID: "O-4", StoreID: "S-2", ProductCode: "P-1",
			OrderedPackages: dec(9), ArrivedPackages: decimal.Zero, State: supply.OrderRequested},
	}
	for _, o := range seed {
		require.NoError(t, s.UpsertOpenOrder(ctx, o))
	}

	orders, err := s.OpenOrders(ctx, "S-1", "P-1")
	require.NoError(t, err)
	require.Len(t, orders, 1, "received and cancelled stay out; other stores too")
	assert.Equal(t, "O-1", orders[0].OrderID)
	assert.Equal(t, supply.OrderShipped, orders[0].State)
}

func TestStore_DraftOrder_AtomicRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	order := workflow.DraftOrder{
		ID: "DO-1", RunID: "R-1", CediID: "C-1", StoreID: "S-1",
		CreatedAt: time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC),
		Lines: []workflow.DraftOrderLine{
			{ProductCode: "P-1", Packages: dec(6.2), Units: dec(62), WasOverridden: false},
			{ProductCode: "P-2", Packages: dec(5), Units: dec(30), WasOverridden: true},
		},
	}
	require.NoError(t, s.SaveDraftOrder(ctx, order))

	saved, err := s.OrdersByRun(ctx, "R-1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Len(t, saved[0].Lines, 2)
	assert.True(t, dec(6.2).Equal(saved[0].Lines[0].Packages))
	assert.True(t, dec(62).Equal(saved[0].Lines[0].Units))
	assert.True(t, saved[0].Lines[1].WasOverridden)

	other, err := s.OrdersByRun(ctx, "R-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_RunAudit_UpsertAndFilter(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)

	audit := workflow.RunAudit{
		RunID: "R-1", CediID: "C-1", StoreIDs: []string{"S-1", "S-2"},
		StartedAt: now, CompletedAt: now.Add(2 * time.Second), Outcome: "failed",
		Error: "disk full",
	}
	require.NoError(t, s.SaveRunAudit(ctx, audit))

	// A retry of the same run replaces the earlier row.
	audit.Outcome = "saved"
	audit.Error = ""
	require.NoError(t, s.SaveRunAudit(ctx, audit))

	saved, err := s.AuditsByOutcome(ctx, "saved")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, []string{"S-1", "S-2"}, saved[0].StoreIDs)
	assert.Empty(t, saved[0].Error)

	failed, err := s.AuditsByOutcome(ctx, "failed")
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestSeedDemo_ProducesARunnableDataset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedDemo(ctx))

	products, err := s.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 4)

	avail, err := s.CediAvailability(ctx, "CEDI-NORTE")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(avail["ARR-1K"]), "the contested product is scarce")

	window, err := s.DailySales(ctx, "T-001", "ARR-1K", 30)
	require.NoError(t, err)
	assert.Len(t, window, 30)

	// Seeding twice must not duplicate anything.
	require.NoError(t, s.SeedDemo(ctx))
	products, err = s.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 4)
}

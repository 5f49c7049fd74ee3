/*
runner.go - Parallel calculation across all (store, product) pairs

Each pair's calculation is a pure function of its inputs (sales window,
stock, open orders, configuration), so every pair fans out in parallel
with no ordering requirement. The run either yields a complete result set
or nothing: a timeout or a hard lookup failure discards everything.

Missing inputs for a single pair are not failures; the pair is kept with a
zero profile and an InputMissing flag so the caller can show "insufficient
data" instead of a wrong number.
*/
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andino/allocation-engine/allocation"
	"github.com/andino/allocation-engine/demand"
	"github.com/andino/allocation-engine/supply"
)

const defaultParallelism = 8

// Runner computes a full CalculationResult for a CEDI and store selection.
type Runner struct {
	catalog Catalog
	sales   SalesHistory
	orders  OpenOrders
	config  RunConfig
	log     *zap.Logger

	estimator *demand.Estimator
	clock     func() time.Time
}

// NewRunner wires a runner with its collaborators. A nil logger is
// replaced with a no-op one.
func NewRunner(catalog Catalog, sales SalesHistory, orders OpenOrders, config RunConfig, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		catalog:   catalog,
		sales:     sales,
		orders:    orders,
		config:    config,
		log:       log,
		estimator: demand.NewEstimator(config.BlendWeights),
		clock:     time.Now,
	}
}

// Calculate runs the whole pipeline: demand estimation and transit
// reconciliation per pair, then conflict detection and allocation per
// product. The config's CalcTimeout bounds the call.
func (r *Runner) Calculate(ctx context.Context, cediID string, storeIDs []string) (*CalculationResult, error) {
	started := r.clock()

	if r.config.CalcTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.CalcTimeout)
		defer cancel()
	}

	availability, err := r.catalog.CediAvailability(ctx, cediID)
	if err != nil {
		return nil, r.runErr(fmt.Errorf("cedi availability for %s: %w", cediID, err))
	}

	products, err := r.catalog.Products(ctx)
	if err != nil {
		return nil, r.runErr(fmt.Errorf("product catalog: %w", err))
	}

	sortedStores := append([]string(nil), storeIDs...)
	sort.Strings(sortedStores)

	// Fan out one goroutine per (store, product) pair. Pairs are pure
	// and independent; the only shared state is the result slice guard.
	var (
		mu    sync.Mutex
		pairs = make([]PairResult, 0, len(sortedStores)*len(products))
	)

	g, gctx := errgroup.WithContext(ctx)
	parallelism := r.config.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	g.SetLimit(parallelism)

	for _, storeID := range sortedStores {
		for _, product := range products {
			storeID, product := storeID, product
			g.Go(func() error {
				pair, err := r.computePair(gctx, storeID, product)
				if err != nil {
					return err
				}
				mu.Lock()
				pairs = append(pairs, pair)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		// The partial result is discarded, never reused.
		return nil, r.runErr(err)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].StoreID != pairs[j].StoreID {
			return pairs[i].StoreID < pairs[j].StoreID
		}
		return pairs[i].ProductCode < pairs[j].ProductCode
	})

	result := &CalculationResult{
		RunID:      uuid.NewString(),
		CediID:     cediID,
		StoreIDs:   sortedStores,
		ComputedAt: started,
		Pairs:      pairs,
		Conflicts:  r.detectConflicts(availability, pairs),
		Elapsed:    r.clock().Sub(started),
	}

	r.log.Info("calculation completed",
		zap.String("run_id", result.RunID),
		zap.String("cedi_id", cediID),
		zap.Int("stores", len(sortedStores)),
		zap.Int("products", len(products)),
		zap.Int("conflicts", len(result.ContestedConflicts())),
		zap.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

// computePair builds the demand profile, reconciles transit, simulates
// coverage and derives the replenishment need for one pair.
func (r *Runner) computePair(ctx context.Context, storeID string, product Product) (PairResult, error) {
	if err := ctx.Err(); err != nil {
		return PairResult{}, err
	}

	pair := PairResult{StoreID: storeID, ProductCode: product.Code}

	stock, ok, err := r.catalog.StoreStock(ctx, storeID, product.Code)
	if err != nil {
		return PairResult{}, fmt.Errorf("stock for %s/%s: %w", storeID, product.Code, err)
	}
	if !ok {
		pair.InputMissing = true
		pair.MissingReason = "no stock record"
		stock = supply.StockState{
			ProductCode:     product.Code,
			StoreID:         storeID,
			UnitsPerPackage: product.UnitsPerPackage,
		}
	}

	window, err := r.sales.DailySales(ctx, storeID, product.Code, r.config.LookbackDays)
	if err != nil {
		return PairResult{}, fmt.Errorf("sales for %s/%s: %w", storeID, product.Code, err)
	}

	profile := r.estimator.BuildProfile(product.Code, storeID, window, product.UnitsPerPackage)
	if profile.InsufficientData {
		pair.InputMissing = true
		if pair.MissingReason != "" {
			pair.MissingReason += "; "
		}
		pair.MissingReason += "no sales history"
	}

	open, err := r.orders.OpenOrders(ctx, storeID, product.Code)
	if err != nil {
		return PairResult{}, fmt.Errorf("open orders for %s/%s: %w", storeID, product.Code, err)
	}
	stock.InTransitUnits = supply.InTransitUnits(open, profile.UnitsPerPackage)

	coverage := demand.Simulate(&profile, stock.EffectiveStock(), r.clock(),
		r.config.LeadTimeDays, r.config.CoverageDays)

	pair.Profile = profile
	pair.Stock = stock
	pair.Coverage = coverage
	pair.Need = supply.ComputeNeed(product.Code, storeID, coverage.TotalDemandUnits, stock)

	return pair, nil
}

// detectConflicts aggregates the pairs per product and runs conflict
// detection for every product with any positive need.
func (r *Runner) detectConflicts(availability map[string]decimal.Decimal, pairs []PairResult) []allocation.SupplyConflict {
	byProduct := make(map[string][]allocation.StoreRequirement)
	for _, p := range pairs {
		if !p.Need.NeededPackages.IsPositive() {
			continue
		}
		byProduct[p.ProductCode] = append(byProduct[p.ProductCode], allocation.StoreRequirement{
			StoreID:        p.StoreID,
			NeedPackages:   p.Need.NeededPackages,
			BlendedDemand:  p.Profile.BlendedDemand,
			DaysOfCoverage: p.Coverage.DaysOfCoverage,
		})
	}

	codes := make([]string, 0, len(byProduct))
	for code := range byProduct {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	conflicts := make([]allocation.SupplyConflict, 0, len(codes))
	for _, code := range codes {
		available := availability[code]
		conflicts = append(conflicts, allocation.Detect(code, available, byProduct[code], r.config.Weights))
	}
	return conflicts
}

// runErr maps context expiry onto the timeout error kind.
func (r *Runner) runErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		r.log.Warn("calculation timed out; reduce the store selection and retry")
		return fmt.Errorf("%w: %v", ErrCalculationTimeout, err)
	}
	return err
}

/*
session.go - One operator's pass through the distribution wizard

PURPOSE:
  The session owns the wizard state, the immutable calculation result and
  the manual override overlay. All mutation funnels through Advance/Back
  so the legal-transition rules live in exactly one place.

  Nothing is persisted until the Confirm step advances; every earlier
  step is discardable by going Back to Select.
*/
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andino/allocation-engine/allocation"
)

// Session is a single wizard run. Safe for concurrent use; every API
// handler touching the run goes through the same session.
type Session struct {
	mu sync.Mutex

	runner *Runner
	writer OrderWriter
	log    *zap.Logger
	clock  func() time.Time

	state        State
	cediID       string
	storeIDs     []string
	startedAt    time.Time
	hadConflicts bool

	result    *CalculationResult
	overrides *allocation.OverrideSet
}

// NewSession starts a wizard in the Select state.
func NewSession(runner *Runner, writer OrderWriter, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		runner:    runner,
		writer:    writer,
		log:       log,
		clock:     time.Now,
		state:     StateSelect,
		overrides: allocation.NewOverrideSet(),
	}
}

// State returns the current wizard step.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selection returns the chosen CEDI and store IDs.
func (s *Session) Selection() (string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cediID, append([]string(nil), s.storeIDs...)
}

// Select records the source CEDI and destination stores. Only legal while
// the wizard is still on the selection step.
func (s *Session) Select(cediID string, storeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSelect {
		return &TransitionError{From: s.state, Op: "select"}
	}
	if cediID == "" || len(storeIDs) == 0 {
		return ErrNoSelection
	}
	s.cediID = cediID
	s.storeIDs = append([]string(nil), storeIDs...)
	return nil
}

// Advance moves one step forward. Each step's gate runs here: Select
// triggers the calculation, Conflicts and Review validate overrides
// against CEDI stock, Confirm materializes the draft orders.
func (s *Session) Advance(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSelect:
		return s.advanceFromSelect(ctx)

	case StateConflicts:
		// Gate: contested products must fit within CEDI stock.
		if err := s.overrides.Validate(s.result.ContestedConflicts()); err != nil {
			return s.state, err
		}
		s.state = StateReview
		return s.state, nil

	case StateReview:
		// Review edits may touch uncontested products too; gate on all.
		if err := s.overrides.Validate(s.result.Conflicts); err != nil {
			return s.state, err
		}
		s.state = StateConfirm
		return s.state, nil

	case StateConfirm:
		return s.materialize(ctx)

	default:
		return s.state, &TransitionError{From: s.state, Op: "advance"}
	}
}

func (s *Session) advanceFromSelect(ctx context.Context) (State, error) {
	if s.cediID == "" || len(s.storeIDs) == 0 {
		return s.state, ErrNoSelection
	}

	s.startedAt = s.clock()
	result, err := s.runner.Calculate(ctx, s.cediID, s.storeIDs)
	if err != nil {
		// The wizard stays on Select; the operator adjusts and retries.
		return s.state, err
	}

	s.result = result
	s.overrides = allocation.NewOverrideSet()
	s.hadConflicts = result.HasContestedConflict()
	if s.hadConflicts {
		s.state = StateConflicts
	} else {
		s.state = StateReview
	}
	return s.state, nil
}

// Back moves one step backward. Returning to Select discards the
// calculation and every override.
func (s *Session) Back() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := backTarget(s.state, s.hadConflicts)
	if !ok {
		return s.state, &TransitionError{From: s.state, Op: "go back"}
	}
	if target == StateSelect {
		s.result = nil
		s.overrides = allocation.NewOverrideSet()
		s.hadConflicts = false
	}
	s.state = target
	return s.state, nil
}

// Result returns the immutable calculation output.
func (s *Session) Result() (*CalculationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, ErrNotCalculated
	}
	return s.result, nil
}

// SetOverride replaces the algorithmic allocation for one pair. The pair
// must exist in the run's distribution; unknown pairs are rejected rather
// than silently created.
func (s *Session) SetOverride(productCode, storeID string, packages decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConflicts && s.state != StateReview {
		return &TransitionError{From: s.state, Op: "override"}
	}
	if !s.knownAllocation(productCode, storeID) {
		return fmt.Errorf("%w: %s/%s", allocation.ErrUnknownAllocation, productCode, storeID)
	}
	return s.overrides.Set(productCode, storeID, packages)
}

// ClearOverride reverts one pair to its algorithmic value.
func (s *Session) ClearOverride(productCode, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConflicts && s.state != StateReview {
		return &TransitionError{From: s.state, Op: "override"}
	}
	s.overrides.Clear(productCode, storeID)
	return nil
}

// FinalDistribution returns the effective records for one product with
// overrides applied. The stored result is never mutated.
func (s *Session) FinalDistribution(productCode string) ([]allocation.AllocationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return nil, ErrNotCalculated
	}
	conflict := s.result.ConflictFor(productCode)
	if conflict == nil {
		return nil, fmt.Errorf("%w: %s", allocation.ErrUnknownAllocation, productCode)
	}
	return s.overrides.ApplyTo(conflict), nil
}

// Excess returns the override overshoot for one product (positive means
// the final distribution over-commits the CEDI).
func (s *Session) Excess(productCode string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return decimal.Zero, ErrNotCalculated
	}
	conflict := s.result.ConflictFor(productCode)
	if conflict == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", allocation.ErrUnknownAllocation, productCode)
	}
	return s.overrides.Excess(conflict), nil
}

// Orders builds the per-store draft orders from the final distribution.
// Usable for the review display and for materialization.
func (s *Session) Orders() ([]DraftOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, ErrNotCalculated
	}
	return s.buildOrders(), nil
}

func (s *Session) knownAllocation(productCode, storeID string) bool {
	if s.result == nil {
		return false
	}
	conflict := s.result.ConflictFor(productCode)
	if conflict == nil {
		return false
	}
	for _, rec := range conflict.Distribution {
		if rec.StoreID == storeID {
			return true
		}
	}
	return false
}

// buildOrders groups the final allocation records per store. Stores whose
// every line rounds to zero produce no order. Callers hold s.mu.
func (s *Session) buildOrders() []DraftOrder {
	upp := make(map[string]decimal.Decimal, len(s.result.Pairs))
	for _, p := range s.result.Pairs {
		upp[p.ProductCode] = p.Profile.UnitsPerPackage
	}

	linesByStore := make(map[string][]DraftOrderLine)
	for i := range s.result.Conflicts {
		conflict := &s.result.Conflicts[i]
		for _, rec := range s.overrides.ApplyTo(conflict) {
			if !rec.FinalPackages.IsPositive() {
				continue
			}
			units := rec.FinalPackages.Mul(upp[rec.ProductCode])
			linesByStore[rec.StoreID] = append(linesByStore[rec.StoreID], DraftOrderLine{
				ProductCode:   rec.ProductCode,
				Packages:      rec.FinalPackages,
				Units:         units,
				WasOverridden: rec.IsOverridden,
			})
		}
	}

	now := s.clock()
	orders := make([]DraftOrder, 0, len(linesByStore))
	for _, storeID := range s.result.StoreIDs {
		lines := linesByStore[storeID]
		if len(lines) == 0 {
			continue
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductCode < lines[j].ProductCode })
		orders = append(orders, DraftOrder{
			ID:        uuid.NewString(),
			RunID:     s.result.RunID,
			CediID:    s.result.CediID,
			StoreID:   storeID,
			CreatedAt: now,
			Lines:     lines,
		})
	}
	return orders
}

// materialize persists one draft order per store. Each store's order is
// atomic; a failure flips the run to Failed and nothing after the failing
// store is written. Callers hold s.mu.
func (s *Session) materialize(ctx context.Context) (State, error) {
	// Final gate: overrides may not over-commit the CEDI.
	if err := s.overrides.Validate(s.result.Conflicts); err != nil {
		return s.state, err
	}

	orders := s.buildOrders()
	audit := RunAudit{
		RunID:     s.result.RunID,
		CediID:    s.result.CediID,
		StoreIDs:  s.result.StoreIDs,
		StartedAt: s.startedAt,
	}

	for _, order := range orders {
		if err := s.writer.SaveDraftOrder(ctx, order); err != nil {
			s.state = StateFailed
			s.log.Error("draft order save failed",
				zap.String("run_id", s.result.RunID),
				zap.String("store_id", order.StoreID),
				zap.Error(err),
			)
			audit.CompletedAt = s.clock()
			audit.Outcome = "failed"
			audit.Error = err.Error()
			if auditErr := s.writer.SaveRunAudit(ctx, audit); auditErr != nil {
				s.log.Error("run audit save failed", zap.Error(auditErr))
			}
			return s.state, fmt.Errorf("save draft order for store %s: %w", order.StoreID, err)
		}
	}

	s.state = StateSaved
	audit.CompletedAt = s.clock()
	audit.Outcome = "saved"
	if err := s.writer.SaveRunAudit(ctx, audit); err != nil {
		s.log.Error("run audit save failed", zap.Error(err))
	}

	s.log.Info("run saved",
		zap.String("run_id", s.result.RunID),
		zap.Int("orders", len(orders)),
	)
	return s.state, nil
}

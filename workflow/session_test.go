package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino/allocation-engine/allocation"
	"github.com/andino/allocation-engine/store/memory"
	"github.com/andino/allocation-engine/workflow"
)

// failingWriter rejects every draft order.
type failingWriter struct {
	*memory.Store
}

func (w *failingWriter) SaveDraftOrder(ctx context.Context, order workflow.DraftOrder) error {
	return errors.New("disk full")
}

func newSession(mem *memory.Store) *workflow.Session {
	runner := workflow.NewRunner(mem, mem, mem, testConfig(), nil)
	return workflow.NewSession(runner, mem, nil)
}

func TestSession_FullContestedRun(t *testing.T) {
	// GIVEN: a contested product
	// WHEN: walking Select -> Conflicts -> Review -> Confirm -> Saved
	// THEN: each gate holds and the confirmed orders land in the store

	mem := seedShortage(8)
	s := newSession(mem)
	ctx := context.Background()

	// Advancing before selecting anything is rejected.
	_, err := s.Advance(ctx)
	assert.ErrorIs(t, err, workflow.ErrNoSelection)

	require.NoError(t, s.Select("CEDI-1", []string{"S-A", "S-B"}))
	state, err := s.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateConflicts, state)

	// Overrides target only pairs the run actually produced.
	err = s.SetOverride("P-1", "S-Z", dec(1))
	assert.ErrorIs(t, err, allocation.ErrUnknownAllocation)
	err = s.SetOverride("P-9", "S-A", dec(1))
	assert.ErrorIs(t, err, allocation.ErrUnknownAllocation)

	// An over-committing override can be entered but not advanced past.
	require.NoError(t, s.SetOverride("P-1", "S-A", dec(100)))
	state, err = s.Advance(ctx)
	assert.ErrorIs(t, err, allocation.ErrOverrideExceedsStock)
	assert.Equal(t, workflow.StateConflicts, state, "gate holds the wizard in place")

	excess, err := s.Excess("P-1")
	require.NoError(t, err)
	assert.True(t, excess.IsPositive())

	require.NoError(t, s.SetOverride("P-1", "S-A", dec(5)))
	state, err = s.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReview, state)

	state, err = s.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateConfirm, state)

	state, err = s.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSaved, state)
	assert.True(t, state.Terminal())

	// Saved orders: S-A carries the manual 5 packages of 6 units.
	orders := mem.SavedOrders()
	require.NotEmpty(t, orders)
	var lineA *workflow.DraftOrderLine
	for _, o := range orders {
		assert.Equal(t, "CEDI-1", o.CediID)
		for i, line := range o.Lines {
			if o.StoreID == "S-A" && line.ProductCode == "P-1" {
				lineA = &o.Lines[i]
			}
		}
	}
	require.NotNil(t, lineA)
	assert.True(t, dec(5).Equal(lineA.Packages))
	assert.True(t, dec(30).Equal(lineA.Units))
	assert.True(t, lineA.WasOverridden)

	audits := mem.SavedAudits()
	require.Len(t, audits, 1)
	assert.Equal(t, "saved", audits[0].Outcome)

	// Terminal states accept nothing further.
	_, err = s.Advance(ctx)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = s.Back()
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestSession_NoConflict_SkipsConflictStep(t *testing.T) {
	mem := seedShortage(100)
	s := newSession(mem)
	ctx := context.Background()

	require.NoError(t, s.Select("CEDI-1", []string{"S-A", "S-B"}))
	state, err := s.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReview, state)

	// Back from Review goes straight to Select when nothing was contested,
	// and discards the calculation.
	state, err = s.Back()
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSelect, state)
	_, err = s.Result()
	assert.ErrorIs(t, err, workflow.ErrNotCalculated)
}

func TestSession_BackFromReview_ReturnsToConflicts(t *testing.T) {
	mem := seedShortage(8)
	s := newSession(mem)
	ctx := context.Background()

	require.NoError(t, s.Select("CEDI-1", []string{"S-A", "S-B"}))
	_, err := s.Advance(ctx)
	require.NoError(t, err)
	_, err = s.Advance(ctx)
	require.NoError(t, err)
	require.Equal(t, workflow.StateReview, s.State())

	state, err := s.Back()
	require.NoError(t, err)
	assert.Equal(t, workflow.StateConflicts, state)

	// The calculation survives a step back that stays inside the run.
	result, err := s.Result()
	require.NoError(t, err)
	assert.NotEmpty(t, result.Pairs)
}

func TestSession_ConfirmFailure_TerminalFailedWithAudit(t *testing.T) {
	mem := seedShortage(100)
	runner := workflow.NewRunner(mem, mem, mem, testConfig(), nil)
	writer := &failingWriter{Store: mem}
	s := workflow.NewSession(runner, writer, nil)
	ctx := context.Background()

	require.NoError(t, s.Select("CEDI-1", []string{"S-A", "S-B"}))
	_, err := s.Advance(ctx) // -> review
	require.NoError(t, err)
	_, err = s.Advance(ctx) // -> confirm
	require.NoError(t, err)

	state, err := s.Advance(ctx)
	require.Error(t, err)
	assert.Equal(t, workflow.StateFailed, state)
	assert.True(t, state.Terminal())

	audits := mem.SavedAudits()
	require.Len(t, audits, 1)
	assert.Equal(t, "failed", audits[0].Outcome)
	assert.Contains(t, audits[0].Error, "disk full")
}

func TestSession_OverrideOutsideEditableStates_Rejected(t *testing.T) {
	mem := seedShortage(8)
	s := newSession(mem)

	err := s.SetOverride("P-1", "S-A", dec(1))
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition, "no overrides before calculating")
}

func TestSession_ClearOverride_RestoresAlgorithmicValue(t *testing.T) {
	mem := seedShortage(8)
	s := newSession(mem)
	ctx := context.Background()

	require.NoError(t, s.Select("CEDI-1", []string{"S-A", "S-B"}))
	_, err := s.Advance(ctx)
	require.NoError(t, err)

	baseline, err := s.FinalDistribution("P-1")
	require.NoError(t, err)

	require.NoError(t, s.SetOverride("P-1", "S-A", dec(1)))
	require.NoError(t, s.ClearOverride("P-1", "S-A"))

	restored, err := s.FinalDistribution("P-1")
	require.NoError(t, err)
	for i := range restored {
		assert.True(t, baseline[i].AlgorithmicPackages.Equal(restored[i].FinalPackages))
		assert.False(t, restored[i].IsOverridden)
	}

	total := decimal.Zero
	for _, rec := range restored {
		total = total.Add(rec.FinalPackages)
	}
	assert.True(t, dec(8).Equal(total))
}

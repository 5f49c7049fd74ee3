// state.go - The wizard's finite state machine.
//
// Transitions are strictly forward/backward. Conflicts is skipped when no
// product is contested; Saved and Failed are terminal.
package workflow

// State is one step of the distribution wizard.
type State string

const (
	// StateSelect: choose source CEDI and destination stores.
	StateSelect State = "select"
	// StateConflicts: resolve contested products (only entered when a
	// product is in conflict and more than one store is selected).
	StateConflicts State = "conflicts"
	// StateReview: per-store editable line items; always entered.
	StateReview State = "review"
	// StateConfirm: final summary; advancing materializes the orders.
	StateConfirm State = "confirm"
	// StateSaved: draft orders persisted. Terminal.
	StateSaved State = "saved"
	// StateFailed: materialization failed. Terminal.
	StateFailed State = "failed"
)

// Terminal reports whether the wizard is finished.
func (s State) Terminal() bool {
	return s == StateSaved || s == StateFailed
}

// backTarget returns the state one step back, given whether the run had
// contested conflicts. ok is false when Back is not allowed.
func backTarget(s State, hadConflicts bool) (State, bool) {
	switch s {
	case StateConflicts:
		return StateSelect, true
	case StateReview:
		if hadConflicts {
			return StateConflicts, true
		}
		return StateSelect, true
	case StateConfirm:
		return StateReview, true
	default:
		return s, false
	}
}

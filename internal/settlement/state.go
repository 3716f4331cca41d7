package settlement

// State is a step of the settlement state machine.
type State string

const (
	StateStart            State = "start"
	StateAtomicityChecked State = "atomicity_checked"
	StateDisbursed        State = "disbursed"
	StateProfitComputed   State = "profit_computed"
	StateThresholdPassed  State = "threshold_passed"
	StateRepaid           State = "repaid"
	StateProfitPaid       State = "profit_paid"
	StateCommitted        State = "committed"
	StateAborted          State = "aborted"
)

var forward = map[State]State{
	StateStart:            StateAtomicityChecked,
	StateAtomicityChecked: StateDisbursed,
	StateDisbursed:        StateProfitComputed,
	StateProfitComputed:   StateThresholdPassed,
	StateThresholdPassed:  StateRepaid,
	StateRepaid:           StateProfitPaid,
	StateProfitPaid:       StateCommitted,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

// CanTransition reports whether the machine may move from s to next.
// Every non-terminal state may abort; otherwise only the single forward step is allowed.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateAborted {
		return true
	}
	return forward[s] == next
}

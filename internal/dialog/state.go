package dialog

// State is the lifecycle position of a confirmation dialog.
type State string

const (
	StateIdle       State = "idle"
	StateParsing    State = "parsing"
	StateConfirming State = "confirming"
	StateClarifying State = "clarifying"
	StateRefining   State = "refining"
	StateApproved   State = "approved"
	StateCancelled  State = "cancelled"
)

// transitions is the adjacency table of the dialog. Anything not listed is illegal.
var transitions = map[State][]State{
	StateIdle:       {StateParsing},
	StateParsing:    {StateConfirming, StateClarifying, StateCancelled},
	StateConfirming: {StateClarifying, StateRefining, StateApproved, StateCancelled},
	StateClarifying: {StateConfirming, StateRefining, StateApproved, StateCancelled},
	StateRefining:   {StateConfirming, StateClarifying, StateApproved, StateCancelled},
	StateApproved:   {StateIdle},
	StateCancelled:  {StateIdle},
}

// Valid reports whether s is one of the known dialog states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Active reports whether the dialog is in a state that accepts answers and edits.
func (s State) Active() bool {
	switch s {
	case StateConfirming, StateClarifying, StateRefining:
		return true
	default:
		return false
	}
}

// Terminal reports whether s ends a dialog.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateCancelled
}

func (s State) String() string { return string(s) }

// StateMachine tracks the current dialog state and an audit trail of every
// state visited. The history is never consulted for control decisions.
type StateMachine struct {
	current State
	history []State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		history: []State{StateIdle},
	}
}

func (m *StateMachine) State() State {
	return m.current
}

// History returns a copy of the visited states, oldest first.
func (m *StateMachine) History() []State {
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// CanTransition reports whether moving to target is allowed from the current state.
func (m *StateMachine) CanTransition(target State) bool {
	for _, next := range transitions[m.current] {
		if next == target {
			return true
		}
	}
	return false
}

// Transition moves to target and returns true, or returns false and leaves
// the machine untouched when the move is illegal.
func (m *StateMachine) Transition(target State) bool {
	if !m.CanTransition(target) {
		return false
	}
	m.current = target
	m.history = append(m.history, target)
	return true
}

// Reset returns the machine to idle with a single-entry history.
func (m *StateMachine) Reset() {
	m.current = StateIdle
	m.history = []State{StateIdle}
}

func restoreStateMachine(current State, history []State) *StateMachine {
	m := &StateMachine{current: current}
	if len(history) == 0 {
		m.history = []State{current}
		return m
	}
	m.history = make([]State, len(history))
	copy(m.history, history)
	return m
}

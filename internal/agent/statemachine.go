// Package agent implements the task-execution control loop: the phase state
// machine and the executor that drives plan, act, validate and recover
// cycles against an LLM and a tool runtime.
package agent

import "fmt"

// State is one phase of a task execution. Init is the only start state;
// Done and Failed are terminal and accept no further transitions.
type State string

const (
	StateInit       State = "init"
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateValidating State = "validating"
	StateRecovering State = "recovering"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// IsTerminal reports whether the state accepts no further transitions.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Event is a signal that requests a phase transition.
type Event string

const (
	EventStartSession     Event = "start_session"
	EventPlanReady        Event = "plan_ready"
	EventToolsComplete    Event = "tools_complete"
	EventValidationPassed Event = "validation_passed"
	EventValidationFailed Event = "validation_failed"
	EventResolved         Event = "resolved"
	EventUnresolvable     Event = "unresolvable"
	EventAbort            Event = "abort"
)

// TransitionError reports an event that is not legal in the current state.
// The machine state is left unchanged when it is returned.
type TransitionError struct {
	Event Event
	From  State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: event %s in state %s", e.Event, e.From)
}

// transitions is the legal transition table. Abort is handled separately
// because it applies from every non-terminal state.
var transitions = map[State]map[Event]State{
	StateInit:       {EventStartSession: StatePlanning},
	StatePlanning:   {EventPlanReady: StateExecuting},
	StateExecuting:  {EventToolsComplete: StateValidating},
	StateValidating: {EventValidationPassed: StateDone, EventValidationFailed: StateRecovering},
	StateRecovering: {EventResolved: StatePlanning, EventUnresolvable: StateFailed},
}

// Machine enforces which phase transitions are legal. It does not decide
// when to move; that judgment comes from the convergence, validation and
// recovery components. One machine per task execution, not safe for
// concurrent use.
type Machine struct {
	state State
}

// NewMachine returns a machine in the Init state.
func NewMachine() *Machine {
	return &Machine{state: StateInit}
}

// State returns the current phase. Read-only; safe to query at any time
// from the execution's own goroutine.
func (m *Machine) State() State { return m.state }

// Transition applies an event. Illegal events return a *TransitionError
// carrying the rejected event and the current state, which is left
// unchanged. Terminal states reject every event, including Abort.
func (m *Machine) Transition(event Event) (State, error) {
	if m.state.IsTerminal() {
		return m.state, &TransitionError{Event: event, From: m.state}
	}

	if event == EventAbort {
		m.state = StateFailed
		return m.state, nil
	}

	next, ok := transitions[m.state][event]
	if !ok {
		return m.state, &TransitionError{Event: event, From: m.state}
	}
	m.state = next
	return m.state, nil
}

// Package upload assembles, signs and broadcasts the transaction chains
// that carry files onto the chain.
package upload

import (
	"fmt"
	"sync"
)

// Phase is the signing lifecycle of a session.
type Phase string

const (
	// PhasePendingSign means the transaction at Index awaits signature.
	PhasePendingSign Phase = "pending_sign"
	// PhaseAllSigned means the whole chain is signed and broadcastable.
	PhaseAllSigned Phase = "all_signed"
	// PhaseFailed means a build or signing step failed; the session
	// cannot proceed.
	PhaseFailed Phase = "failed"
)

// State pairs a phase with the index of the transaction awaiting
// signature. Index is meaningful only while signing is pending.
type State struct {
	Phase Phase
	Index int
}

func (s State) String() string {
	if s.Phase == PhasePendingSign {
		return fmt.Sprintf("%s(%d)", s.Phase, s.Index)
	}
	return string(s.Phase)
}

// TransitionError reports a disallowed state transition.
type TransitionError struct {
	From   State
	To     State
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid signing transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// validTransitions defines which phase transitions are allowed. Signing
// only ever walks forward; both end phases are terminal.
var validTransitions = map[Phase]map[Phase]bool{
	PhasePendingSign: {
		PhasePendingSign: true, // next transaction in the chain
		PhaseAllSigned:   true, // last transaction signed
		PhaseFailed:      true, // build or signature failed
	},
	PhaseAllSigned: {},
	PhaseFailed:    {},
}

// Machine walks a session through its signing states, one transaction at
// a time and strictly in chain order.
type Machine struct {
	mu    sync.Mutex
	state State
	total int
}

// NewMachine starts at the first pending transaction of a chain with
// total transactions.
func NewMachine(total int) *Machine {
	return &Machine{
		state: State{Phase: PhasePendingSign, Index: 0},
		total: total,
	}
}

// State returns the current signing state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Total returns the number of transactions the machine walks through.
func (m *Machine) Total() int { return m.total }

// Advance records that the pending transaction was signed and moves to
// the next one, or to AllSigned after the last.
func (m *Machine) Advance() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := State{Phase: PhasePendingSign, Index: m.state.Index + 1}
	if next.Index >= m.total {
		next = State{Phase: PhaseAllSigned}
	}
	if err := m.checkTransition(next); err != nil {
		return m.state, err
	}
	m.state = next
	return m.state, nil
}

// Fail moves the machine into its failed end state.
func (m *Machine) Fail() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := State{Phase: PhaseFailed}
	if err := m.checkTransition(next); err != nil {
		return m.state, err
	}
	m.state = next
	return m.state, nil
}

func (m *Machine) checkTransition(to State) error {
	targets, ok := validTransitions[m.state.Phase]
	if !ok || !targets[to.Phase] {
		return &TransitionError{From: m.state, To: to, Reason: "phase not reachable"}
	}
	if to.Phase == PhasePendingSign && to.Index != m.state.Index+1 {
		return &TransitionError{From: m.state, To: to, Reason: "signing must walk forward one transaction at a time"}
	}
	return nil
}

package upload

import (
	"errors"
	"testing"
)

func TestMachineWalksForward(t *testing.T) {
	m := NewMachine(3)
	if got := m.State(); got.Phase != PhasePendingSign || got.Index != 0 {
		t.Fatalf("expected pending_sign(0), got %s", got)
	}

	for i := 1; i < 3; i++ {
		state, err := m.Advance()
		if err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
		if state.Phase != PhasePendingSign || state.Index != i {
			t.Fatalf("expected pending_sign(%d), got %s", i, state)
		}
	}

	state, err := m.Advance()
	if err != nil {
		t.Fatalf("final advance failed: %v", err)
	}
	if state.Phase != PhaseAllSigned {
		t.Fatalf("expected all_signed, got %s", state)
	}
}

func TestMachineTerminalStatesRejectTransitions(t *testing.T) {
	m := NewMachine(1)
	if state, err := m.Advance(); err != nil || state.Phase != PhaseAllSigned {
		t.Fatalf("expected all_signed, got %s (%v)", state, err)
	}

	var tErr *TransitionError
	if _, err := m.Advance(); !errors.As(err, &tErr) {
		t.Fatalf("expected a transition error, got %v", err)
	}
	if _, err := m.Fail(); !errors.As(err, &tErr) {
		t.Fatalf("expected a transition error, got %v", err)
	}

	m = NewMachine(3)
	if _, err := m.Advance(); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if state, err := m.Fail(); err != nil || state.Phase != PhaseFailed {
		t.Fatalf("expected failed, got %s (%v)", state, err)
	}
	if _, err := m.Advance(); !errors.As(err, &tErr) {
		t.Fatalf("expected a transition error after failure, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	s := State{Phase: PhasePendingSign, Index: 4}
	if got := s.String(); got != "pending_sign(4)" {
		t.Fatalf("expected pending_sign(4), got %s", got)
	}
	if got := (State{Phase: PhaseAllSigned}).String(); got != "all_signed" {
		t.Fatalf("expected all_signed, got %s", got)
	}
}

package engine

import "testing"

func TestPawnStatePredicates(t *testing.T) {
	tests := []struct {
		pawn                         PawnState
		home, circuit, final, finish bool
	}{
		{AtHome(3), true, false, false, false},
		{OnCircuit(12), false, true, false, false},
		{OnFinalPath(4), false, false, true, false},
		{Finished(), false, false, false, true},
	}
	for _, tt := range tests {
		p := tt.pawn
		if p.IsHome() != tt.home || p.IsCircuit() != tt.circuit || p.IsFinal() != tt.final || p.IsFinished() != tt.finish {
			t.Errorf("%+v predicates wrong", p)
		}
	}
}

func TestCategoryNames(t *testing.T) {
	for c := EventNone; c <= EventChallenge; c++ {
		got, ok := ParseCategory(c.String())
		if !ok || got != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.String(), got, ok)
		}
	}
	if EventCategory(42).String() != "unknown" {
		t.Error("out-of-range category should print unknown")
	}
	if _, ok := ParseCategory("lottery"); ok {
		t.Error("ParseCategory(lottery) should fail")
	}
}

func TestPhaseNames(t *testing.T) {
	names := map[Phase]string{
		PhaseAwaitRoll:  "await_roll",
		PhaseAwaitMove:  "await_move",
		PhaseAwaitEvent: "await_event",
		PhaseTurnEnd:    "turn_end",
		PhaseFinished:   "finished",
	}
	for p, want := range names {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d) = %q, want %q", p, got, want)
		}
	}
}

func TestActionKinds(t *testing.T) {
	for _, k := range []ActionKind{ActRoll, ActMove, ActExit, ActEvent, ActCapture, ActSkip, ActNext, ActWin, ActForfeit, ActVote} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if ActionKind('q').Valid() {
		t.Error("q should be invalid")
	}
	if ActVote.String() != "v" {
		t.Errorf("ActVote = %q", ActVote.String())
	}
}

package engine

import (
	"errors"
	"testing"
)

// newTestGame seats the given colors in order with default rules.
func newTestGame(t *testing.T, colors ...Color) *GameState {
	t.Helper()
	seats := make([]Seat, len(colors))
	for i, c := range colors {
		seats[i] = Seat{Color: c}
	}
	g, err := NewGame(DefaultHouseRules(), seats)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return &g
}

// mustApply applies a and fails the test on error.
func mustApply(t *testing.T, g *GameState, a Action) Result {
	t.Helper()
	res, err := g.ApplyAction(a)
	if err != nil {
		t.Fatalf("ApplyAction(%s actor=%d pawn=%d value=%d): %v", a.Kind, a.Actor, a.Pawn, a.Value, err)
	}
	return res
}

// TestExitAndSixAgain plays a 6 out of the yard and checks the turn stays.
func TestExitAndSixAgain(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 6})
	res := mustApply(t, g, Action{Kind: ActExit, Actor: 0, Pawn: 0})
	if res.Move.Kind != MoveExit || g.Players[0].Pawns[0] != OnCircuit(0) {
		t.Fatalf("exit: move=%+v pawn=%+v", res.Move, g.Players[0].Pawns[0])
	}
	if res.Opened != EventNone {
		t.Errorf("Opened = %s, want none", res.Opened)
	}

	// Even an explicit "no extra turn" cannot cancel a six.
	res = mustApply(t, g, Action{Kind: ActNext, Actor: 0, Flag: false})
	if res.TurnTo != 0 || g.Current != 0 {
		t.Errorf("Current = %d, want 0 after a six", g.Current)
	}
	if g.Phase != PhaseAwaitRoll || g.Dice != 0 {
		t.Errorf("Phase = %s Dice = %d, want await_roll with cleared dice", g.Phase, g.Dice)
	}
	if g.Turn != 1 {
		t.Errorf("Turn = %d, want 1", g.Turn)
	}
}

func TestTurnPassesWithoutSix(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[0].Pawns[0] = OnCircuit(0)
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 1})
	mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 0})
	res := mustApply(t, g, g.NextAction())
	if res.TurnFrom != 0 || res.TurnTo != 1 {
		t.Errorf("turn %d -> %d, want 0 -> 1", res.TurnFrom, res.TurnTo)
	}
}

// TestQuizScenario walks a yellow pawn onto the first quiz cell and answers wrong.
func TestQuizScenario(t *testing.T) {
	g := newTestGame(t, Yellow, Blue, Red, Green)
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 6})
	mustApply(t, g, Action{Kind: ActExit, Actor: 0, Pawn: 0})
	mustApply(t, g, g.NextAction())

	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 4})
	res := mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 0})
	if g.Players[0].Pawns[0] != OnCircuit(4) {
		t.Fatalf("pawn = %+v, want OnCircuit(4)", g.Players[0].Pawns[0])
	}
	if res.Opened != EventQuiz || g.Phase != PhaseAwaitEvent {
		t.Fatalf("Opened = %s Phase = %s, want quiz await_event", res.Opened, g.Phase)
	}
	if g.Pending.Status != EventAwaitingResponse {
		t.Errorf("Status = %d, want awaiting response", g.Pending.Status)
	}

	quiz := GenericContent(EventQuiz)
	res = mustApply(t, g, QuizAction(0, quiz, quiz.Answer+1, 2))
	if g.Players[0].Tokens != 1 {
		t.Errorf("Tokens = %d, want 1", g.Players[0].Tokens)
	}
	if res.Event == nil || res.Event.Deltas[0] != -2 {
		t.Errorf("Event = %+v, want delta -2", res.Event)
	}
	if g.Pending.Active() || g.Phase != PhaseTurnEnd {
		t.Errorf("event still open: %+v phase %s", g.Pending, g.Phase)
	}
}

// TestLoopScenario checks a short-of-tokens pawn wraps around the circuit.
func TestLoopScenario(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[0].Pawns[0] = OnCircuit(49)
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 3})
	res := mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 0})
	if res.Move.Kind != MoveLoop || g.Players[0].Pawns[0] != OnCircuit(2) {
		t.Errorf("move = %+v pawn = %+v, want loop to OnCircuit(2)", res.Move, g.Players[0].Pawns[0])
	}
	if res.Opened != EventOpportunity {
		t.Errorf("Opened = %s, want opportunity on ring 2", res.Opened)
	}
}

// TestFinishScenario finishes yellow as the third of four players.
func TestFinishScenario(t *testing.T) {
	g := newTestGame(t, Yellow, Blue, Red, Green)
	for _, p := range []uint8{1, 2} {
		for i := range g.Players[p].Pawns {
			g.Players[p].Pawns[i] = Finished()
		}
		g.Finished[g.FinishedLen] = p
		g.FinishedLen++
	}
	g.Players[0].Pawns = [PawnsPerPlayer]PawnState{Finished(), Finished(), Finished(), OnFinalPath(3)}

	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 2})
	res := mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 3})
	if !res.PlayerFinished || !res.GameOver {
		t.Fatalf("PlayerFinished = %v GameOver = %v, want both", res.PlayerFinished, res.GameOver)
	}
	if g.Phase != PhaseFinished {
		t.Errorf("Phase = %s, want finished", g.Phase)
	}
	want := []uint8{1, 2, 0, 3}
	got := g.FinishedOrder()
	if len(got) != len(want) {
		t.Fatalf("FinishedOrder = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FinishedOrder = %v, want %v", got, want)
		}
	}
	if g.Winner != 1 {
		t.Errorf("Winner = %d, want 1", g.Winner)
	}
}

func TestTwoPlayerFinishEndsSession(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[0].Pawns = [PawnsPerPlayer]PawnState{Finished(), Finished(), Finished(), OnCircuit(49)}
	g.Players[0].Tokens = 9
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 6})
	res := mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 3})
	if res.Move.Kind != MoveFinish || !res.GameOver {
		t.Fatalf("move = %s GameOver = %v", res.Move.Kind, res.GameOver)
	}
	if g.Winner != 0 {
		t.Errorf("Winner = %d, want 0", g.Winner)
	}
	order := g.FinishedOrder()
	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("FinishedOrder = %v, want [0 1]", order)
	}
}

func TestSoloSessionEndsOnFinish(t *testing.T) {
	g := newTestGame(t, Red)
	g.Players[0].Pawns = [PawnsPerPlayer]PawnState{Finished(), Finished(), Finished(), OnFinalPath(4)}
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 1})
	res := mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 3})
	if !res.GameOver || g.Winner != 0 {
		t.Errorf("GameOver = %v Winner = %d", res.GameOver, g.Winner)
	}
}

// TestActorMismatch verifies an action from a non-turn-holder is rejected.
func TestActorMismatch(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	before := *g
	_, err := g.ApplyAction(Action{Kind: ActRoll, Actor: 1, Value: 3})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v, want ErrProtocolViolation", err)
	}
	if *g != before {
		t.Error("state changed after rejected action")
	}
}

func TestIllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *GameState)
		act   Action
	}{
		{"roll out of range", func(g *GameState) {}, Action{Kind: ActRoll, Value: 7}},
		{"roll zero", func(g *GameState) {}, Action{Kind: ActRoll, Value: 0}},
		{"move before roll", func(g *GameState) {}, Action{Kind: ActMove, Pawn: 0}},
		{"next before move", func(g *GameState) {}, Action{Kind: ActNext}},
		{"event with nothing open", func(g *GameState) {}, Action{Kind: ActEvent, Value: 1}},
		{"double roll", func(g *GameState) { g.Phase = PhaseAwaitMove; g.Dice = 3 }, Action{Kind: ActRoll, Value: 2}},
		{"exit for circuit pawn", func(g *GameState) {
			g.Players[0].Pawns[0] = OnCircuit(3)
			g.Phase = PhaseAwaitMove
			g.Dice = 6
		}, Action{Kind: ActExit, Pawn: 0}},
		{"move finished pawn", func(g *GameState) {
			g.Players[0].Pawns[0] = Finished()
			g.Phase = PhaseAwaitMove
			g.Dice = 2
		}, Action{Kind: ActMove, Pawn: 0}},
		{"win for unseated player", func(g *GameState) {}, Action{Kind: ActWin, Target: 3}},
		{"unknown kind", func(g *GameState) {}, Action{Kind: 'z'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(t, Yellow, Blue)
			tt.setup(g)
			before := *g
			_, err := g.ApplyAction(tt.act)
			if !errors.Is(err, ErrIllegalMove) {
				t.Fatalf("err = %v, want ErrIllegalMove", err)
			}
			if *g != before {
				t.Error("state changed after rejected action")
			}
		})
	}
}

// TestSessionTerminal verifies a finished session rejects further play.
func TestSessionTerminal(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	mustApply(t, g, Action{Kind: ActWin, Actor: 0, Target: 1})
	if !g.IsOver() || g.Winner != 1 {
		t.Fatalf("IsOver = %v Winner = %d", g.IsOver(), g.Winner)
	}

	_, err := g.ApplyAction(Action{Kind: ActRoll, Actor: g.Current, Value: 3})
	if !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("err = %v, want ErrSessionTerminal", err)
	}
	if !errors.Is(err, ErrIllegalMove) {
		t.Error("ErrSessionTerminal should also match ErrIllegalMove")
	}

	// A repeated win for the same player is accepted as already applied.
	if _, err := g.ApplyAction(Action{Kind: ActWin, Actor: 0, Target: 1}); err != nil {
		t.Errorf("repeated win: %v", err)
	}
	if _, err := g.ApplyAction(Action{Kind: ActWin, Actor: 0, Target: 0}); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("conflicting win: err = %v, want ErrSessionTerminal", err)
	}
}

// TestForfeitFromAnySeat verifies f is accepted regardless of the turn holder.
func TestForfeitFromAnySeat(t *testing.T) {
	g := newTestGame(t, Yellow, Blue, Red)
	mustApply(t, g, Action{Kind: ActForfeit, Actor: 2, Target: 0})
	if !g.Forfeited || g.Winner != 0 {
		t.Errorf("Forfeited = %v Winner = %d", g.Forfeited, g.Winner)
	}
	order := g.FinishedOrder()
	if len(order) != 3 || order[0] != 0 {
		t.Errorf("FinishedOrder = %v, want winner 0 first", order)
	}
}

// TestApplyValueSemantics verifies Apply leaves its input untouched.
func TestApplyValueSemantics(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	before := *g
	next, res, err := Apply(*g, Action{Kind: ActRoll, Actor: 0, Value: 5})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if *g != before {
		t.Error("Apply mutated its input")
	}
	if next.Dice != 5 || res.Dice != 5 {
		t.Errorf("next.Dice = %d res.Dice = %d, want 5", next.Dice, res.Dice)
	}

	failed, _, err := Apply(next, Action{Kind: ActRoll, Actor: 0, Value: 5})
	if err == nil {
		t.Fatal("expected error for second roll")
	}
	if failed != next {
		t.Error("failed Apply should return the input state")
	}
}

func TestSkipOnlyBeforeMoving(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 3})
	res := mustApply(t, g, Action{Kind: ActSkip, Actor: 0})
	if res.TurnTo != 1 || g.Phase != PhaseAwaitRoll {
		t.Errorf("TurnTo = %d Phase = %s", res.TurnTo, g.Phase)
	}
}

func TestLegalMoves(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	if g.LegalMoves() != nil {
		t.Error("no legal moves expected before rolling")
	}
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 4})
	if g.HasLegalMove() {
		t.Errorf("LegalMoves = %v, want none with every pawn at home", g.LegalMoves())
	}

	g = newTestGame(t, Yellow, Blue)
	g.Players[0].Pawns[2] = OnCircuit(5)
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 6})
	got := g.LegalMoves()
	if len(got) != 4 {
		t.Fatalf("LegalMoves = %v, want all four pawns", got)
	}
	if a := g.MoveActionFor(0); a.Kind != ActExit {
		t.Errorf("MoveActionFor(home) = %s, want x", a.Kind)
	}
	if a := g.MoveActionFor(2); a.Kind != ActMove {
		t.Errorf("MoveActionFor(circuit) = %s, want m", a.Kind)
	}
}

func BenchmarkApplyRollMove(b *testing.B) {
	g, _ := NewGame(DefaultHouseRules(), []Seat{{Color: Yellow}, {Color: Blue}})
	g.Players[0].Pawns[0] = OnCircuit(10)
	roll := Action{Kind: ActRoll, Actor: 0, Value: 3}
	move := Action{Kind: ActMove, Actor: 0, Pawn: 0}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := g
		_, _ = s.ApplyAction(roll)
		_, _ = s.ApplyAction(move)
	}
}

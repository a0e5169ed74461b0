package engine

import "testing"

func TestProposeMove(t *testing.T) {
	tests := []struct {
		name   string
		pawn   PawnState
		dice   uint8
		tokens int16
		kind   MoveKind
		to     PawnState
		reason StayReason
	}{
		{"home six exits", AtHome(2), 6, 0, MoveExit, OnCircuit(0), StayNone},
		{"home needs six", AtHome(0), 5, 10, MoveStay, AtHome(0), StayNeedSix},
		{"plain advance", OnCircuit(10), 4, 0, MoveAdvance, OnCircuit(14), StayNone},
		{"advance to last circuit cell", OnCircuit(45), 4, 0, MoveAdvance, OnCircuit(49), StayNone},
		{"entry denied loops", OnCircuit(49), 3, 3, MoveLoop, OnCircuit(2), StayNone},
		{"entry denied at exact threshold", OnCircuit(47), 3, 6, MoveLoop, OnCircuit(0), StayNone},
		{"entry allowed", OnCircuit(49), 3, 7, MoveEnterFinal, OnFinalPath(2), StayNone},
		{"entry at first final cell", OnCircuit(47), 3, 7, MoveEnterFinal, OnFinalPath(0), StayNone},
		{"entry straight to finish", OnCircuit(49), 6, 9, MoveFinish, Finished(), StayNone},
		{"final exact finish", OnFinalPath(3), 2, 7, MoveFinish, Finished(), StayNone},
		{"final finish ignores gate", OnFinalPath(3), 2, 0, MoveFinish, Finished(), StayNone},
		{"final overshoot", OnFinalPath(3), 3, 7, MoveStay, OnFinalPath(3), StayOvershoot},
		{"final advance", OnFinalPath(1), 2, 7, MoveFinalAdvance, OnFinalPath(3), StayNone},
		{"final gate ejects", OnFinalPath(1), 2, 4, MoveEject, OnCircuit(3), StayNone},
		{"finished stays", Finished(), 3, 7, MoveStay, Finished(), StayNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProposeMove(tt.pawn, tt.dice, tt.tokens, 7)
			if got.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.kind)
			}
			if got.To != tt.to {
				t.Errorf("To = %+v, want %+v", got.To, tt.to)
			}
			if got.From != tt.pawn {
				t.Errorf("From = %+v, want %+v", got.From, tt.pawn)
			}
			if got.Reason != tt.reason {
				t.Errorf("Reason = %d, want %d", got.Reason, tt.reason)
			}
		})
	}
}

// TestProposeMoveDeterministic verifies repeated calls agree for every input.
func TestProposeMoveDeterministic(t *testing.T) {
	for p := uint8(0); p < CircuitLength; p++ {
		for d := uint8(1); d <= DieFaces; d++ {
			for _, tok := range []int16{0, 6, 7, 12} {
				a := ProposeMove(OnCircuit(p), d, tok, 7)
				b := ProposeMove(OnCircuit(p), d, tok, 7)
				if a != b {
					t.Fatalf("pos %d dice %d tokens %d: %+v != %+v", p, d, tok, a, b)
				}
			}
		}
	}
}

// TestTokenGate verifies crossing the threshold depends only on the balance.
func TestTokenGate(t *testing.T) {
	for p := uint8(CircuitLength - DieFaces); p < CircuitLength; p++ {
		for d := uint8(1); d <= DieFaces; d++ {
			if int(p)+int(d) < CircuitLength {
				continue
			}
			for tok := int16(0); tok < 7; tok++ {
				if got := ProposeMove(OnCircuit(p), d, tok, 7); !got.To.IsCircuit() {
					t.Errorf("pos %d dice %d tokens %d: ended %+v, want circuit", p, d, tok, got.To)
				}
			}
			for _, tok := range []int16{7, 8, 20} {
				got := ProposeMove(OnCircuit(p), d, tok, 7)
				if !got.To.IsFinal() && !got.To.IsFinished() {
					t.Errorf("pos %d dice %d tokens %d: ended %+v, want final path", p, d, tok, got.To)
				}
			}
		}
	}
}

// TestProposeMoveRejectsBadPawns verifies caller errors never reach the resolver.
func TestProposeMoveRejectsBadPawns(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Dice = 3
	g.Phase = PhaseAwaitMove
	g.Players[0].Pawns[1] = Finished()

	if _, err := g.ProposeMove(0, PawnsPerPlayer); err == nil {
		t.Error("expected error for pawn index out of range")
	}
	if _, err := g.ProposeMove(0, 1); err == nil {
		t.Error("expected error for finished pawn")
	}
	if _, err := g.ProposeMove(5, 0); err == nil {
		t.Error("expected error for player out of range")
	}
}

// TestOwnPawnBlocks verifies a pawn cannot land on a cell its own color holds.
func TestOwnPawnBlocks(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[0].Pawns[0] = OnCircuit(10)
	g.Players[0].Pawns[1] = OnCircuit(12)
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 2})

	out, err := g.ProposeMove(0, 0)
	if err != nil {
		t.Fatalf("ProposeMove: %v", err)
	}
	if out.Kind != MoveStay || out.Reason != StayBlocked {
		t.Fatalf("outcome = %+v, want blocked stay", out)
	}
	for _, p := range g.LegalMoves() {
		if p == 0 {
			t.Error("blocked pawn 0 listed as legal")
		}
	}

	res := mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 0})
	if res.Move.Moved() {
		t.Error("blocked move should not move the pawn")
	}
	if g.Players[0].Pawns[0] != OnCircuit(10) {
		t.Errorf("pawn 0 = %+v, want OnCircuit(10)", g.Players[0].Pawns[0])
	}
	if g.Phase != PhaseTurnEnd {
		t.Errorf("Phase = %s, want turn_end (roll consumed)", g.Phase)
	}
}

func TestCaptureSendsPawnHome(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[0].Pawns[0] = OnCircuit(10)
	g.Players[1].Pawns[0] = OnCircuit(49) // ring 12
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 2})
	res := mustApply(t, g, Action{Kind: ActMove, Actor: 0, Pawn: 0})

	if len(res.Captures) != 1 {
		t.Fatalf("captures = %d, want 1", len(res.Captures))
	}
	c := res.Captures[0]
	if c.Player != 1 || c.Pawn != 0 || c.To != AtHome(0) {
		t.Errorf("capture = %+v, want blue pawn 0 to slot 0", c)
	}
	if g.Players[1].Pawns[0] != AtHome(0) {
		t.Errorf("blue pawn 0 = %+v, want AtHome(0)", g.Players[1].Pawns[0])
	}

	// Exclusivity: no opposing pawn remains on the landed cell.
	landed := g.PawnCoordinate(0, 0)
	for i := range g.Players[1].Pawns {
		pw := g.Players[1].Pawns[i]
		if pw.IsCircuit() && g.PawnCoordinate(1, uint8(i)) == landed {
			t.Errorf("blue pawn %d still on landed cell", i)
		}
	}

	// A replayed k for the same pawn is a no-op.
	if _, err := g.ApplyAction(Action{Kind: ActCapture, Actor: 0, Target: 1, Pawn: 0}); err != nil {
		t.Errorf("replayed capture: %v", err)
	}
}

// TestCaptureFirstFreeSlot verifies a captured pawn takes the lowest empty yard slot.
func TestCaptureFirstFreeSlot(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[1].Pawns = [PawnsPerPlayer]PawnState{OnCircuit(3), AtHome(0), OnCircuit(20), AtHome(3)}
	c := g.sendHome(1, 2)
	if c.To != AtHome(1) {
		t.Errorf("slot = %+v, want AtHome(1)", c.To)
	}
}

// TestExitCapturesOnEntryCell verifies leaving home captures an enemy on the entry cell.
func TestExitCapturesOnEntryCell(t *testing.T) {
	g := newTestGame(t, Yellow, Green)
	g.Players[1].Pawns[2] = OnCircuit(11) // green 11 is ring 0
	mustApply(t, g, Action{Kind: ActRoll, Actor: 0, Value: 6})
	res := mustApply(t, g, Action{Kind: ActExit, Actor: 0, Pawn: 0})
	if res.Move.Kind != MoveExit {
		t.Fatalf("Kind = %s, want exit", res.Move.Kind)
	}
	if len(res.Captures) != 1 || g.Players[1].Pawns[2] != AtHome(0) {
		t.Errorf("captures = %+v, green pawn 2 = %+v", res.Captures, g.Players[1].Pawns[2])
	}
}

// TestCaptureNeverOnFinalPath verifies a k against a final-path pawn is rejected.
func TestCaptureNeverOnFinalPath(t *testing.T) {
	g := newTestGame(t, Yellow, Blue)
	g.Players[1].Pawns[0] = OnFinalPath(2)
	before := *g
	if _, err := g.ApplyAction(Action{Kind: ActCapture, Actor: 0, Target: 1, Pawn: 0}); err == nil {
		t.Fatal("expected error capturing a final-path pawn")
	}
	if *g != before {
		t.Error("state changed after rejected capture")
	}
}

func TestRetreat(t *testing.T) {
	tests := []struct {
		name  string
		start uint8
		own   []uint8
		want  PawnState
	}{
		{"two cells back", 11, nil, OnCircuit(9)},
		{"clamped at entry", 1, nil, OnCircuit(0)},
		{"shortened by own pawn", 11, []uint8{9}, OnCircuit(10)},
		{"fully blocked", 11, []uint8{9, 10}, OnCircuit(11)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(t, Yellow, Blue)
			g.Players[0].Pawns[0] = OnCircuit(tt.start)
			for i, p := range tt.own {
				g.Players[0].Pawns[i+1] = OnCircuit(p)
			}
			g.retreat(0, 0, 2)
			if got := g.Players[0].Pawns[0]; got != tt.want {
				t.Errorf("pawn = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// playStep picks a seeded action for whoever has to act next.
func playStep(g *GameState, rng *RNG) Action {
	switch g.Phase {
	case PhaseAwaitRoll:
		return Action{Kind: ActRoll, Actor: g.Current, Value: rng.Roll()}
	case PhaseAwaitMove:
		moves := g.LegalMoves()
		if len(moves) == 0 {
			return Action{Kind: ActSkip, Actor: g.Current}
		}
		return g.MoveActionFor(moves[rng.Intn(len(moves))])
	case PhaseAwaitEvent:
		for i := uint8(0); i < g.NumPlayers; i++ {
			if g.AwaitingVoteFrom(i) {
				return Action{Kind: ActVote, Actor: i, Flag: rng.Intn(2) == 0}
			}
		}
		c := GenericContent(g.Pending.Category)
		ok, mag := DecideEventOutcome(g.Pending, c, rng)
		if g.Pending.Category == EventQuiz {
			return QuizAction(g.Current, c, rng.Intn(len(c.Options)), mag)
		}
		return EventAction(g.Current, ok, mag, EffectNone)
	}
	return g.NextAction()
}

// TestCaptureLeavesOnePawnPerCell plays seeded four-player sessions and checks
// after every action that no circuit cell holds two pawns.
func TestCaptureLeavesOnePawnPerCell(t *testing.T) {
	captures := 0
	for seed := uint64(1); seed <= 5; seed++ {
		g := newTestGame(t, Yellow, Blue, Red, Green)
		rng := NewRNG(seed)
		for step := 0; step < 3000 && !g.IsOver(); step++ {
			res := mustApply(t, g, playStep(g, rng))
			captures += len(res.Captures)
			if res.Event != nil {
				captures += len(res.Event.Captures)
			}

			held := make(map[Coordinate]uint8)
			for p := uint8(0); p < g.NumPlayers; p++ {
				for i, pw := range g.Players[p].Pawns {
					if !pw.IsCircuit() {
						continue
					}
					c := g.PawnCoordinate(p, uint8(i))
					if other, ok := held[c]; ok {
						t.Fatalf("seed %d step %d: players %d and %d share %v", seed, step, other, p, c)
					}
					held[c] = p
				}
			}
		}
	}
	if captures == 0 {
		t.Error("seeded sessions never captured")
	}
}

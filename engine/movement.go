package engine

import "fmt"

// MoveKind classifies the result of applying a die roll to a pawn.
type MoveKind uint8

const (
	MoveStay         MoveKind = iota // roll consumed, pawn unchanged
	MoveExit                         // AtHome -> OnCircuit(0)
	MoveAdvance                      // plain forward move on the circuit
	MoveLoop                         // final-path entry denied, wrapped around the circuit
	MoveEnterFinal                   // circuit -> final path
	MoveFinalAdvance                 // forward move on the final path
	MoveEject                        // token gate re-check failed, back onto the circuit
	MoveFinish                       // reached the last final-path cell
	MoveRetreat                      // pushed back along the circuit by a challenge
)

var moveKindNames = [...]string{"stay", "exit", "advance", "loop", "enter_final", "final_advance", "eject", "finish", "retreat"}

func (k MoveKind) String() string {
	if int(k) < len(moveKindNames) {
		return moveKindNames[k]
	}
	return "unknown"
}

// StayReason explains a MoveStay outcome.
type StayReason uint8

const (
	StayNone      StayReason = iota
	StayNeedSix              // home exit requires a 6
	StayOvershoot            // final path target beyond the last cell
	StayBlocked              // an own pawn already holds the target cell
)

// MoveOutcome is the proposed transition for one pawn.
type MoveOutcome struct {
	Kind   MoveKind
	From   PawnState
	To     PawnState
	Reason StayReason
}

// Moved reports whether the pawn changes state.
func (o MoveOutcome) Moved() bool { return o.Kind != MoveStay }

func stay(p PawnState, why StayReason) MoveOutcome {
	return MoveOutcome{Kind: MoveStay, From: p, To: p, Reason: why}
}

// ProposeMove computes the outcome of moving pawn by dice with the given
// token balance and gate. It is pure: the same inputs always give the same
// outcome. Finished pawns stay put.
func ProposeMove(pawn PawnState, dice uint8, tokens, gate int16) MoveOutcome {
	switch pawn.Kind {
	case PawnAtHome:
		return resolveHome(pawn, dice)
	case PawnOnCircuit:
		return resolveCircuit(pawn, dice, tokens, gate)
	case PawnOnFinalPath:
		return resolveFinal(pawn, dice, tokens, gate)
	default:
		return stay(pawn, StayNone)
	}
}

// resolveHome only lets a 6 bring the pawn onto its entry cell.
func resolveHome(p PawnState, dice uint8) MoveOutcome {
	if dice != DieFaces {
		return stay(p, StayNeedSix)
	}
	return MoveOutcome{Kind: MoveExit, From: p, To: OnCircuit(0)}
}

// resolveCircuit moves along the shared loop. Crossing the threshold enters
// the final path when tokens suffice, otherwise the pawn keeps looping and
// still spends the whole roll.
func resolveCircuit(p PawnState, dice uint8, tokens, gate int16) MoveOutcome {
	target := int(p.Pos) + int(dice)
	if target < CircuitLength {
		return MoveOutcome{Kind: MoveAdvance, From: p, To: OnCircuit(uint8(target))}
	}
	if tokens < gate {
		return MoveOutcome{Kind: MoveLoop, From: p, To: OnCircuit(uint8(target % CircuitLength))}
	}
	idx := target - CircuitLength
	if idx == FinishIndex {
		return MoveOutcome{Kind: MoveFinish, From: p, To: Finished()}
	}
	return MoveOutcome{Kind: MoveEnterFinal, From: p, To: OnFinalPath(uint8(idx))}
}

// resolveFinal moves along the private stretch. Landing exactly on the last
// cell finishes; overshooting wastes the roll. Any other step re-checks the
// token gate against the current balance and ejects the pawn onto the
// circuit, counted from the entry cell, when it fails.
func resolveFinal(p PawnState, dice uint8, tokens, gate int16) MoveOutcome {
	target := int(p.Pos) + int(dice)
	switch {
	case target == FinishIndex:
		return MoveOutcome{Kind: MoveFinish, From: p, To: Finished()}
	case target > FinishIndex:
		return stay(p, StayOvershoot)
	case tokens < gate:
		return MoveOutcome{Kind: MoveEject, From: p, To: OnCircuit(uint8(target % CircuitLength))}
	default:
		return MoveOutcome{Kind: MoveFinalAdvance, From: p, To: OnFinalPath(uint8(target))}
	}
}

// Capture records an opposing pawn sent home by a landing.
type Capture struct {
	Player uint8
	Pawn   uint8
	From   PawnState
	To     PawnState
}

// ProposeMove validates the pawn reference and applies the per-seat rules on
// top of the pure proposal: a pawn may not land on a circuit cell already
// held by another pawn of its own color. The current dice value is used.
func (g *GameState) ProposeMove(player, pawn uint8) (MoveOutcome, error) {
	if player >= g.NumPlayers {
		return MoveOutcome{}, fmt.Errorf("%w: player %d out of range", ErrIllegalMove, player)
	}
	if pawn >= PawnsPerPlayer {
		return MoveOutcome{}, fmt.Errorf("%w: pawn %d out of range", ErrIllegalMove, pawn)
	}
	p := &g.Players[player]
	cur := p.Pawns[pawn]
	if cur.IsFinished() {
		return MoveOutcome{}, fmt.Errorf("%w: pawn %d already finished", ErrIllegalMove, pawn)
	}
	if g.Dice == 0 {
		return MoveOutcome{}, fmt.Errorf("%w: no dice rolled", ErrIllegalMove)
	}

	out := ProposeMove(cur, g.Dice, p.Tokens, g.Rules.gate())
	if out.To.IsCircuit() && g.ownPawnAt(player, pawn, out.To.Pos) {
		return stay(cur, StayBlocked), nil
	}
	return out, nil
}

// ownPawnAt reports whether a pawn of player other than skip sits on circuit
// position pos.
func (g *GameState) ownPawnAt(player, skip, pos uint8) bool {
	for i, pw := range g.Players[player].Pawns {
		if uint8(i) != skip && pw.IsCircuit() && pw.Pos == pos {
			return true
		}
	}
	return false
}

// firstFreeSlot returns the lowest yard slot of player not held by a home pawn.
func (g *GameState) firstFreeSlot(player uint8) uint8 {
	var taken [PawnsPerPlayer]bool
	for _, pw := range g.Players[player].Pawns {
		if pw.IsHome() && pw.Pos < PawnsPerPlayer {
			taken[pw.Pos] = true
		}
	}
	for s := uint8(0); s < PawnsPerPlayer; s++ {
		if !taken[s] {
			return s
		}
	}
	return 0
}

// sendHome moves an opposing pawn back to its yard.
func (g *GameState) sendHome(player, pawn uint8) Capture {
	c := Capture{Player: player, Pawn: pawn, From: g.Players[player].Pawns[pawn]}
	c.To = AtHome(g.firstFreeSlot(player))
	g.Players[player].Pawns[pawn] = c.To
	return c
}

// captureAt sends every opposing circuit pawn on coord home. There are no
// safe cells.
func (g *GameState) captureAt(mover uint8, coord Coordinate) []Capture {
	var caps []Capture
	for q := uint8(0); q < g.NumPlayers; q++ {
		if q == mover {
			continue
		}
		color := g.Players[q].Color
		for i, pw := range g.Players[q].Pawns {
			if pw.IsCircuit() && CircuitCoordinate(color, pw.Pos) == coord {
				caps = append(caps, g.sendHome(q, uint8(i)))
			}
		}
	}
	return caps
}

// applyMove commits an outcome for player's pawn and resolves captures.
func (g *GameState) applyMove(player, pawn uint8, out MoveOutcome) []Capture {
	if !out.Moved() {
		return nil
	}
	g.Players[player].Pawns[pawn] = out.To
	if out.To.IsCircuit() {
		return g.captureAt(player, CircuitCoordinate(g.Players[player].Color, out.To.Pos))
	}
	return nil
}

// retreat pushes a circuit pawn back by up to steps cells, never behind the
// entry cell and never onto an own pawn. The landing captures like any
// other circuit move.
func (g *GameState) retreat(player, pawn, steps uint8) (MoveOutcome, []Capture) {
	cur := g.Players[player].Pawns[pawn]
	if !cur.IsCircuit() || steps == 0 {
		return stay(cur, StayNone), nil
	}
	target := int(cur.Pos) - int(steps)
	if target < 0 {
		target = 0
	}
	for target < int(cur.Pos) && g.ownPawnAt(player, pawn, uint8(target)) {
		target++
	}
	if target == int(cur.Pos) {
		return stay(cur, StayBlocked), nil
	}
	out := MoveOutcome{Kind: MoveRetreat, From: cur, To: OnCircuit(uint8(target))}
	return out, g.applyMove(player, pawn, out)
}

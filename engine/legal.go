package engine

// CanRoll reports whether player may roll now: it must be their turn, no
// event may be open and the session must still be running.
func (g *GameState) CanRoll(player uint8) bool {
	return g.Phase == PhaseAwaitRoll && player == g.Current
}

// LegalMoves returns the pawn indices of the current player whose proposed
// move actually changes the pawn. Zero heap allocation beyond the result.
func (g *GameState) LegalMoves() []uint8 {
	if g.Phase != PhaseAwaitMove {
		return nil
	}
	var moves []uint8
	for i := uint8(0); i < PawnsPerPlayer; i++ {
		if g.Players[g.Current].Pawns[i].IsFinished() {
			continue
		}
		out, err := g.ProposeMove(g.Current, i)
		if err == nil && out.Moved() {
			moves = append(moves, i)
		}
	}
	return moves
}

// HasLegalMove reports whether the current player can move any pawn.
func (g *GameState) HasLegalMove() bool { return len(g.LegalMoves()) > 0 }

// MoveActionFor builds the m or x action for the current player's pawn.
func (g *GameState) MoveActionFor(pawn uint8) Action {
	kind := ActMove
	if pawn < PawnsPerPlayer && g.Players[g.Current].Pawns[pawn].IsHome() {
		kind = ActExit
	}
	return Action{Kind: kind, Actor: g.Current, Pawn: pawn}
}

// NextAction returns the n action closing the current turn, requesting an
// extra turn when one is earned.
func (g *GameState) NextAction() Action {
	return Action{Kind: ActNext, Actor: g.Current, Flag: g.earnsExtraTurn(false)}
}

// AwaitingVoteFrom reports whether player still owes a ballot on the open duel.
func (g *GameState) AwaitingVoteFrom(player uint8) bool {
	if g.Phase != PhaseAwaitEvent || !g.Pending.IsDuelVote() {
		return false
	}
	slot := g.Pending.voterSlot(player)
	return slot >= 0 && g.Pending.Votes[slot] == VoteNone
}

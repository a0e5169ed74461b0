package engine

import "fmt"

// roll records the dice value decided by the turn holder.
func (g *GameState) roll(value uint8) error {
	if g.Phase != PhaseAwaitRoll {
		return fmt.Errorf("%w: cannot roll in phase %s", ErrIllegalMove, g.Phase)
	}
	if value < 1 || value > DieFaces {
		return fmt.Errorf("%w: dice value %d out of range", ErrIllegalMove, value)
	}
	g.Dice = value
	g.Phase = PhaseAwaitMove
	return nil
}

// earnsExtraTurn reports whether the current player keeps the turn: a six
// or an event effect, unless that player has just finished.
func (g *GameState) earnsExtraTurn(requested bool) bool {
	if g.inFinishedOrder(g.Current) {
		return false
	}
	return requested || g.Dice == DieFaces || g.ExtraTurn
}

// advanceTurn ends the current turn and selects who rolls next.
func (g *GameState) advanceTurn(extra bool) (from, to uint8) {
	from = g.Current
	g.Turn++
	g.Dice = 0
	g.ExtraTurn = false
	g.Pending = noEvent()
	g.Phase = PhaseAwaitRoll
	if !extra {
		g.Current = g.nextEligible(from)
	}
	return from, g.Current
}

// nextEligible walks the turn order cyclically from `from`, skipping
// finished players and consuming skip-next marks. If nobody else is
// eligible the turn returns to `from`.
func (g *GameState) nextEligible(from uint8) uint8 {
	n := g.NumPlayers
	idx := from
	for steps := 0; steps < 2*int(n)+1; steps++ {
		idx = (idx + 1) % n
		if g.inFinishedOrder(idx) {
			continue
		}
		if g.Players[idx].SkipNext {
			g.Players[idx].SkipNext = false
			continue
		}
		return idx
	}
	return from
}

// NextEligible previews nextEligible without consuming skip marks.
func (g *GameState) NextEligible() uint8 {
	c := *g
	return c.nextEligible(g.Current)
}

// noteFinish appends player to the finished order when their last pawn is
// home, and ends the session once only one player is left racing.
func (g *GameState) noteFinish(player uint8) (playerDone, gameOver bool) {
	if g.inFinishedOrder(player) || !g.HasFinished(player) {
		return false, false
	}
	g.Finished[g.FinishedLen] = player
	g.FinishedLen++

	need := g.NumPlayers - 1
	if g.NumPlayers == 1 {
		need = 1
	}
	if g.FinishedLen >= need {
		g.endSession()
		return true, true
	}
	return true, false
}

// endSession ranks any remaining players after the finishers in turn order
// and closes the session.
func (g *GameState) endSession() {
	for i := uint8(0); i < g.NumPlayers; i++ {
		idx := (g.Current + i) % g.NumPlayers
		if !g.inFinishedOrder(idx) {
			g.Finished[g.FinishedLen] = idx
			g.FinishedLen++
		}
	}
	g.Winner = int8(g.Finished[0])
	g.Phase = PhaseFinished
	g.Dice = 0
	g.Pending = noEvent()
}

// forceWin ends the session with winner ranked first, followed by players
// who already finished, then the rest in turn order.
func (g *GameState) forceWin(winner uint8) {
	var order [MaxPlayers]uint8
	n := uint8(0)
	order[n] = winner
	n++
	for i := uint8(0); i < g.FinishedLen; i++ {
		if g.Finished[i] != winner {
			order[n] = g.Finished[i]
			n++
		}
	}
	g.Finished = order
	g.FinishedLen = n
	g.endSession()
}

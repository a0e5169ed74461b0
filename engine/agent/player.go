// Package agent implements the scripted computer opponent: move choice,
// duel ballots and quiz answers for seats flagged as computer-driven.
package agent

import (
	engine "github.com/enaribe/startup-ludo/engine"
)

// Player is the decision policy for one computer seat. It is a flat value
// and holds no reference to the game; every choice reads the state passed in.
type Player struct {
	Seat     uint8
	Policy   Policy
	Accuracy uint8 // percent of quizzes answered correctly
}

// New returns a computer player for seat.
func New(seat uint8, policy Policy) Player {
	return Player{Seat: seat, Policy: policy, Accuracy: 60}
}

// ChooseMove returns the m or x action for the current roll, or an s action
// when no pawn can move. The first-legal policy takes the lowest legal pawn
// index, which on a 6 with every pawn at home is the only exit.
func (p Player) ChooseMove(g *engine.GameState) engine.Action {
	moves := g.LegalMoves()
	if len(moves) == 0 {
		return engine.Action{Kind: engine.ActSkip, Actor: g.Current}
	}
	if p.Policy == PolicyFirstLegal || len(moves) == 1 {
		return g.MoveActionFor(moves[0])
	}

	best, bestScore := moves[0], -1<<30
	for _, pawn := range moves {
		if s := p.score(g, pawn); s > bestScore {
			best, bestScore = pawn, s
		}
	}
	return g.MoveActionFor(best)
}

// score evaluates a move by applying it to a copy of the state.
func (p Player) score(g *engine.GameState, pawn uint8) int {
	before := Progress(g.Players[g.Current].Pawns[pawn])
	next, res, err := engine.Apply(*g, g.MoveActionFor(pawn))
	if err != nil {
		return -1 << 30
	}
	s := Progress(next.Players[g.Current].Pawns[pawn]) - before
	for _, c := range res.Captures {
		s += 200 + Progress(c.From)
	}
	switch res.Move.Kind {
	case engine.MoveFinish:
		s += 1000
	case engine.MoveEnterFinal:
		s += 300
	case engine.MoveExit:
		s += 150
	case engine.MoveLoop, engine.MoveEject:
		s -= 50
	}
	switch res.Opened {
	case engine.EventChallenge:
		s -= 30
	case engine.EventFunding, engine.EventOpportunity:
		s += 20
	case engine.EventQuiz:
		s += 10
	}
	return s
}

// ChooseVote returns the ballot this seat casts on the open duel. The greedy
// policy refuses when a win would carry either duelist to the token gate.
func (p Player) ChooseVote(g *engine.GameState) bool {
	if p.Policy == PolicyFirstLegal {
		return true
	}
	gate := g.Rules.TokenGate
	if gate == 0 {
		gate = engine.DefaultHouseRules().TokenGate
	}
	ev := g.Pending
	if g.Players[ev.Player].Tokens+2 >= gate {
		return false
	}
	if ev.Rival >= 0 && g.Players[ev.Rival].Tokens+2 >= gate {
		return false
	}
	return true
}

// ChooseAnswer picks a quiz option, correct with probability Accuracy%.
func (p Player) ChooseAnswer(c engine.Content, rng *engine.RNG) int {
	if len(c.Options) == 0 {
		return 0
	}
	if rng.Intn(100) < int(p.Accuracy) || len(c.Options) == 1 {
		return c.Answer
	}
	return (c.Answer + 1 + rng.Intn(len(c.Options)-1)) % len(c.Options)
}

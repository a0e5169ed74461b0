package engine

import "fmt"

// PlayerCheckpoint is one seat inside a Checkpoint.
type PlayerCheckpoint struct {
	Color    Color
	Tokens   int16
	Pawns    [PawnsPerPlayer]PawnState
	Computer bool
	SkipNext bool
}

// Checkpoint is a turn-boundary snapshot that lets a reconnecting peer
// resynchronise without replaying history. Dice and open events are not
// part of it: restoring always resumes at the current player's roll.
type Checkpoint struct {
	Turn          uint16
	Current       uint8
	Players       []PlayerCheckpoint
	FinishedOrder []uint8
	Over          bool
	Winner        int8
	Forfeited     bool
	Rules         HouseRules
	Hash          uint64
}

// Checkpoint captures the resumable parts of the state.
func (g *GameState) Checkpoint() Checkpoint {
	cp := Checkpoint{
		Turn:          g.Turn,
		Current:       g.Current,
		Players:       make([]PlayerCheckpoint, g.NumPlayers),
		FinishedOrder: g.FinishedOrder(),
		Over:          g.IsOver(),
		Winner:        g.Winner,
		Forfeited:     g.Forfeited,
		Rules:         g.Rules,
		Hash:          g.StateHash(),
	}
	for i := uint8(0); i < g.NumPlayers; i++ {
		p := &g.Players[i]
		cp.Players[i] = PlayerCheckpoint{
			Color:    p.Color,
			Tokens:   p.Tokens,
			Pawns:    p.Pawns,
			Computer: p.Computer,
			SkipNext: p.SkipNext,
		}
	}
	return cp
}

// FromCheckpoint rebuilds a GameState. The hash is verified when non-zero.
func FromCheckpoint(cp Checkpoint) (GameState, error) {
	seats := make([]Seat, len(cp.Players))
	for i, p := range cp.Players {
		seats[i] = Seat{Color: p.Color, Computer: p.Computer}
	}
	g, err := NewGame(cp.Rules, seats)
	if err != nil {
		return GameState{}, err
	}
	if int(cp.Current) >= len(cp.Players) {
		return GameState{}, fmt.Errorf("%w: checkpoint current player %d out of range", ErrIllegalMove, cp.Current)
	}
	if len(cp.FinishedOrder) > len(cp.Players) {
		return GameState{}, fmt.Errorf("%w: checkpoint finished order too long", ErrIllegalMove)
	}
	for i, p := range cp.Players {
		g.Players[i].Tokens = p.Tokens
		g.Players[i].Pawns = p.Pawns
		g.Players[i].SkipNext = p.SkipNext
	}
	g.Turn = cp.Turn
	g.Current = cp.Current
	for _, idx := range cp.FinishedOrder {
		if int(idx) >= len(cp.Players) {
			return GameState{}, fmt.Errorf("%w: checkpoint finished player %d out of range", ErrIllegalMove, idx)
		}
		g.Finished[g.FinishedLen] = idx
		g.FinishedLen++
	}
	g.Forfeited = cp.Forfeited
	if cp.Over {
		g.Phase = PhaseFinished
		g.Winner = cp.Winner
	}
	if cp.Hash != 0 && g.StateHash() != cp.Hash {
		return GameState{}, fmt.Errorf("%w: checkpoint hash mismatch", ErrProtocolViolation)
	}
	return g, nil
}

// StateHash returns a 64-bit FNV-1a hash over the checkpointed fields. Two
// peers that applied the same log agree on it at every turn boundary.
func (g *GameState) StateHash() uint64 {
	h := uint64(14695981039346656037) // FNV-1a offset basis
	const prime = uint64(1099511628211)
	mix := func(v uint64) {
		h ^= v
		h *= prime
	}

	mix(uint64(g.NumPlayers))
	for i := uint8(0); i < g.NumPlayers; i++ {
		p := &g.Players[i]
		mix(uint64(p.Color))
		mix(uint64(uint16(p.Tokens)))
		for _, pw := range p.Pawns {
			mix(uint64(pw.Kind)<<8 | uint64(pw.Pos))
		}
		if p.SkipNext {
			mix(1)
		}
	}
	mix(uint64(g.Turn) << 16)
	mix(uint64(g.Current) << 32)
	for i := uint8(0); i < g.FinishedLen; i++ {
		mix(uint64(g.Finished[i]) << 40)
	}
	if g.IsOver() {
		mix(uint64(uint8(g.Winner)) << 48)
	}
	return h
}

// Replay rebuilds a session from its action log. It stops at the first
// rejected action and reports its index.
func Replay(rules HouseRules, seats []Seat, log []Action) (GameState, error) {
	g, err := NewGame(rules, seats)
	if err != nil {
		return g, err
	}
	for i, a := range log {
		if _, err := g.ApplyAction(a); err != nil {
			return g, fmt.Errorf("replay action %d (%s): %w", i, a.Kind, err)
		}
	}
	return g, nil
}

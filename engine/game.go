// Package engine implements the Startup Ludo rules: a four-color race track
// where tokens earned from landed-cell events gate entry to each color's
// final path.
//
// The engine is a deterministic state transducer. All randomness (dice,
// content draws, event magnitudes) is decided by the acting peer and handed
// in as Action values, so every peer that applies the same action log ends
// in the same GameState. Nothing here sleeps, logs or allocates timers.
package engine

import "fmt"

// PlayerState holds one seat's pawns and token balance.
type PlayerState struct {
	Color    Color
	Tokens   int16
	Pawns    [PawnsPerPlayer]PawnState
	Computer bool
	SkipNext bool // consumed the next time the turn would pass to this seat
}

// GameState holds the complete, self-contained state of a session.
// It is a flat value type (no pointers, no slices): assignment is a deep copy.
type GameState struct {
	Players    [MaxPlayers]PlayerState
	NumPlayers uint8
	Current    uint8  // index into Players of the turn holder
	Dice       uint8  // 0 until rolled this turn
	Turn       uint16 // incremented on every turn advance
	Phase      Phase
	Pending    PendingEvent
	ExtraTurn  bool // granted by an event effect this turn

	// Finished lists player indices in the order their last pawn finished.
	// Once the session ends it holds the full ranking.
	Finished    [MaxPlayers]uint8
	FinishedLen uint8
	Winner      int8 // -1 until the session ends
	Forfeited   bool

	Rules HouseRules
}

// Seat describes one player at game creation.
type Seat struct {
	Color    Color
	Computer bool
}

// NewGame creates a session for 1–4 seats in turn order. Every pawn starts
// at home in the slot matching its index.
func NewGame(rules HouseRules, seats []Seat) (GameState, error) {
	var g GameState
	if len(seats) == 0 || len(seats) > MaxPlayers {
		return g, fmt.Errorf("%w: need 1 to %d seats, got %d", ErrIllegalMove, MaxPlayers, len(seats))
	}
	var used [NumColors]bool
	for i, s := range seats {
		if !s.Color.Valid() {
			return g, fmt.Errorf("%w: seat %d has invalid color %d", ErrIllegalMove, i, s.Color)
		}
		if used[s.Color] {
			return g, fmt.Errorf("%w: color %s seated twice", ErrIllegalMove, s.Color)
		}
		used[s.Color] = true

		p := &g.Players[i]
		p.Color = s.Color
		p.Computer = s.Computer
		p.Tokens = rules.StartingTokens
		for j := uint8(0); j < PawnsPerPlayer; j++ {
			p.Pawns[j] = AtHome(j)
		}
	}
	g.NumPlayers = uint8(len(seats))
	g.Rules = rules
	g.Winner = -1
	g.Phase = PhaseAwaitRoll
	g.Pending = noEvent()
	return g, nil
}

// ---------------------------------------------------------------------------
// Query methods
// ---------------------------------------------------------------------------

// IsOver returns true when the session has finished.
func (g *GameState) IsOver() bool { return g.Phase == PhaseFinished }

// SeatOf returns the player index seated with color c.
func (g *GameState) SeatOf(c Color) (uint8, bool) {
	for i := uint8(0); i < g.NumPlayers; i++ {
		if g.Players[i].Color == c {
			return i, true
		}
	}
	return 0, false
}

// PawnCoordinate returns the board cell of a player's pawn.
func (g *GameState) PawnCoordinate(player, pawn uint8) Coordinate {
	p := &g.Players[player]
	return CoordinateOf(p.Color, p.Pawns[pawn])
}

// HasFinished reports whether every pawn of player has finished.
func (g *GameState) HasFinished(player uint8) bool {
	for _, pw := range g.Players[player].Pawns {
		if !pw.IsFinished() {
			return false
		}
	}
	return true
}

// inFinishedOrder reports whether player already appears in Finished.
func (g *GameState) inFinishedOrder(player uint8) bool {
	for i := uint8(0); i < g.FinishedLen; i++ {
		if g.Finished[i] == player {
			return true
		}
	}
	return false
}

// FinishedOrder returns a copy of the finished ranking so far.
func (g *GameState) FinishedOrder() []uint8 {
	out := make([]uint8, g.FinishedLen)
	copy(out, g.Finished[:g.FinishedLen])
	return out
}

// FinishedPawns counts the player's finished pawns.
func (g *GameState) FinishedPawns(player uint8) int {
	n := 0
	for _, pw := range g.Players[player].Pawns {
		if pw.IsFinished() {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Snapshot Undo (Save / Restore)
// ---------------------------------------------------------------------------

// Snapshot is a complete value-copy of GameState.
type Snapshot GameState

// Save returns a snapshot of the current game state.
func (g *GameState) Save() Snapshot { return Snapshot(*g) }

// Restore replaces the game state with the given snapshot.
func (g *GameState) Restore(s Snapshot) { *g = GameState(s) }

package engine

// Standing is one player's line in the session ranking.
type Standing struct {
	Player        uint8
	Color         Color
	Place         uint8 // 1-based
	Tokens        int16
	FinishedPawns uint8
}

// raceScore orders unfinished players: finished pawns first, then total
// distance covered, then tokens.
func (g *GameState) raceScore(p uint8) (uint8, int, int16) {
	var done uint8
	dist := 0
	for _, pw := range g.Players[p].Pawns {
		switch pw.Kind {
		case PawnFinished:
			done++
		case PawnOnCircuit:
			dist += int(pw.Pos) + 1
		case PawnOnFinalPath:
			dist += CircuitLength + int(pw.Pos) + 1
		}
	}
	return done, dist, g.Players[p].Tokens
}

// ahead reports whether a ranks before b among unfinished players. Ties keep
// seat order.
func (g *GameState) ahead(a, b uint8) bool {
	da, xa, ta := g.raceScore(a)
	db, xb, tb := g.raceScore(b)
	switch {
	case da != db:
		return da > db
	case xa != xb:
		return xa > xb
	case ta != tb:
		return ta > tb
	}
	return a < b
}

// Standings ranks every seated player. Players in the finished order come
// first in that order; the rest follow by race progress. Once the session is
// over the finished order covers every seat.
func (g *GameState) Standings() []Standing {
	out := make([]Standing, 0, g.NumPlayers)
	for i := uint8(0); i < g.FinishedLen; i++ {
		out = append(out, g.standing(g.Finished[i]))
	}

	var rest [MaxPlayers]uint8
	n := 0
	for p := uint8(0); p < g.NumPlayers; p++ {
		if !g.inFinishedOrder(p) {
			rest[n] = p
			n++
		}
	}
	// insertion sort over at most four seats
	for i := 1; i < n; i++ {
		for j := i; j > 0 && g.ahead(rest[j], rest[j-1]); j-- {
			rest[j], rest[j-1] = rest[j-1], rest[j]
		}
	}
	for i := 0; i < n; i++ {
		out = append(out, g.standing(rest[i]))
	}

	for i := range out {
		out[i].Place = uint8(i + 1)
	}
	return out
}

func (g *GameState) standing(p uint8) Standing {
	return Standing{
		Player:        p,
		Color:         g.Players[p].Color,
		Tokens:        g.Players[p].Tokens,
		FinishedPawns: uint8(g.FinishedPawns(p)),
	}
}

package engine

import "fmt"

// eventRings lists the ring indices carrying each event category. Entry
// cells and the cells right before them carry none.
var eventRings = map[EventCategory][]uint8{
	EventOpportunity: {2, 15, 28, 41},
	EventQuiz:        {4, 17, 30, 43},
	EventFunding:     {7, 20, 33, 46},
	EventDuel:        {9, 22, 35, 48},
	EventChallenge:   {11, 24, 37, 47},
}

// eventByCoord is the static Event Distribution Map.
var eventByCoord = buildEventMap()

func buildEventMap() map[Coordinate]EventCategory {
	m := make(map[Coordinate]EventCategory, CircuitLength)
	for cat, rings := range eventRings {
		for _, r := range rings {
			m[circuitCells[r]] = cat
		}
	}
	return m
}

// EventAt returns the category of the cell at c, EventNone when the cell
// carries no event or is off the circuit.
func EventAt(c Coordinate) EventCategory {
	return eventByCoord[c]
}

// ---------------------------------------------------------------------------
// Duel pairings
// ---------------------------------------------------------------------------

// RivalOf returns the fixed duel opponent of c: yellow↔red, blue↔green.
func RivalOf(c Color) Color {
	switch c {
	case Yellow:
		return Red
	case Red:
		return Yellow
	case Blue:
		return Green
	default:
		return Blue
	}
}

// VoterColors returns the two colors that judge a duel triggered by c.
func VoterColors(c Color) [2]Color {
	if c == Yellow || c == Red {
		return [2]Color{Blue, Green}
	}
	return [2]Color{Yellow, Red}
}

// ---------------------------------------------------------------------------
// Pending event
// ---------------------------------------------------------------------------

// PendingEvent tracks one landed-cell event from detection to resolution.
type PendingEvent struct {
	Category EventCategory
	Status   EventStatus
	Player   uint8 // triggering player
	Pawn     uint8 // triggering pawn
	Rival    int8  // duel opponent seat, -1 when absent
	Voters   [2]int8
	Votes    [2]Vote
}

func noEvent() PendingEvent {
	return PendingEvent{Rival: -1, Voters: [2]int8{-1, -1}}
}

// Active reports whether an event is open.
func (e *PendingEvent) Active() bool { return e.Status != EventIdle }

// IsDuelVote reports whether the event is a duel decided by votes.
func (e *PendingEvent) IsDuelVote() bool {
	return e.Category == EventDuel && e.Status != EventAutoResolved
}

// voterSlot returns which ballot belongs to player, or -1.
func (e *PendingEvent) voterSlot(player uint8) int {
	for i, v := range e.Voters {
		if v >= 0 && uint8(v) == player {
			return i
		}
	}
	return -1
}

// votesComplete reports whether every seated voter has voted.
func (e *PendingEvent) votesComplete() bool {
	for i, v := range e.Voters {
		if v >= 0 && e.Votes[i] == VoteNone {
			return false
		}
	}
	return true
}

// DuelVerdict summarises the ballots: +1 all accepted, -1 all refused, 0 split.
func (e *PendingEvent) DuelVerdict() int {
	accept, refuse := 0, 0
	for i, v := range e.Voters {
		if v < 0 {
			continue
		}
		switch e.Votes[i] {
		case VoteAccept:
			accept++
		case VoteRefuse:
			refuse++
		}
	}
	switch {
	case refuse == 0 && accept > 0:
		return 1
	case accept == 0 && refuse > 0:
		return -1
	default:
		return 0
	}
}

// detectEvent opens an event for a pawn that landed on a circuit cell. A
// roll of 6 never triggers an event.
func (g *GameState) detectEvent(player, pawn uint8) EventCategory {
	if g.Dice == DieFaces {
		return EventNone
	}
	pw := g.Players[player].Pawns[pawn]
	if !pw.IsCircuit() {
		return EventNone
	}
	cat := EventAt(g.PawnCoordinate(player, pawn))
	if cat == EventNone {
		return EventNone
	}

	ev := noEvent()
	ev.Category = cat
	ev.Player = player
	ev.Pawn = pawn
	switch cat {
	case EventQuiz:
		ev.Status = EventAwaitingResponse
	case EventDuel:
		ev.Status = g.openDuel(&ev)
	default:
		ev.Status = EventAutoResolved
	}
	g.Pending = ev
	return cat
}

// openDuel fills the rival and voter seats. Without a seated rival, or with
// no seated voter, the duel degrades to an auto-resolved single-player event.
func (g *GameState) openDuel(ev *PendingEvent) EventStatus {
	color := g.Players[ev.Player].Color
	rival, ok := g.SeatOf(RivalOf(color))
	if !ok {
		return EventAutoResolved
	}
	ev.Rival = int8(rival)
	seated := 0
	for i, vc := range VoterColors(color) {
		if seat, ok := g.SeatOf(vc); ok {
			ev.Voters[i] = int8(seat)
			seated++
		}
	}
	if seated == 0 {
		ev.Rival = -1
		return EventAutoResolved
	}
	return EventAwaitingResponse
}

// castVote records a duel ballot.
func (g *GameState) castVote(voter uint8, accept bool) error {
	ev := &g.Pending
	if !ev.IsDuelVote() {
		return fmt.Errorf("%w: no duel awaiting votes", ErrIllegalMove)
	}
	slot := ev.voterSlot(voter)
	if slot < 0 {
		return fmt.Errorf("%w: player %d is not a voter for this duel", ErrProtocolViolation, voter)
	}
	if ev.Votes[slot] != VoteNone {
		return fmt.Errorf("%w: player %d already voted", ErrIllegalMove, voter)
	}
	if accept {
		ev.Votes[slot] = VoteAccept
	} else {
		ev.Votes[slot] = VoteRefuse
	}
	if ev.votesComplete() {
		ev.Status = EventVotesComplete
	}
	return nil
}

// addTokens applies a token delta, clamping at zero when the rules say so.
func (g *GameState) addTokens(player uint8, delta int16) int16 {
	p := &g.Players[player]
	before := p.Tokens
	p.Tokens += delta
	if g.Rules.ClampTokens && p.Tokens < 0 {
		p.Tokens = 0
	}
	return p.Tokens - before
}

// EventResolution is what closing an event changed.
type EventResolution struct {
	Category EventCategory
	Deltas   [MaxPlayers]int16
	Retreat  MoveOutcome
	Captures []Capture
	Effect   EventEffect
}

// resolveEvent applies an event outcome: success flag and magnitude decided
// by the acting peer. Duels take their sign from the recorded ballots.
func (g *GameState) resolveEvent(success bool, magnitude uint8, effect EventEffect) (EventResolution, error) {
	ev := g.Pending
	if !ev.Active() {
		return EventResolution{}, fmt.Errorf("%w: no event open", ErrIllegalMove)
	}
	if ev.Status == EventAwaitingResponse && ev.Category == EventDuel {
		return EventResolution{}, fmt.Errorf("%w: duel still awaiting votes", ErrIllegalMove)
	}

	res := EventResolution{Category: ev.Category, Effect: effect}
	mag := int16(magnitude)
	signed := mag
	if !success {
		signed = -mag
	}

	if ev.Category == EventDuel && ev.Status == EventVotesComplete {
		verdict := int16(ev.DuelVerdict())
		res.Deltas[ev.Player] = g.addTokens(ev.Player, verdict*mag)
		res.Deltas[ev.Rival] = g.addTokens(uint8(ev.Rival), verdict*mag)
	} else {
		res.Deltas[ev.Player] = g.addTokens(ev.Player, signed)
	}

	if ev.Category == EventChallenge {
		res.Retreat, res.Captures = g.retreat(ev.Player, ev.Pawn, g.Rules.ChallengeRetreat)
	}

	switch effect {
	case EffectExtraTurn:
		g.ExtraTurn = true
	case EffectSkipNext:
		g.Players[ev.Player].SkipNext = true
	}

	g.Pending = noEvent()
	return res, nil
}

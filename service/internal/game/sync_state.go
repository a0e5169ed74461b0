// internal/game/sync_state.go
package game

import (
	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/google/uuid"
)

// PawnView is one pawn as a client draws it.
type PawnView struct {
	Index uint8  `json:"index"`
	State string `json:"state"` // short form: h<slot>, c<pos>, f<idx>, F
	Row   int8   `json:"row"`
	Col   int8   `json:"col"`
	Legal bool   `json:"legal,omitempty"` // movable with the current roll, for the observing seat only
}

// PlayerView is one seat's public state.
type PlayerView struct {
	Seat          uint8      `json:"seat"`
	PlayerID      uuid.UUID  `json:"playerId"`
	Name          string     `json:"name"`
	Color         string     `json:"color"`
	Tokens        int16      `json:"tokens"`
	Pawns         []PawnView `json:"pawns"`
	FinishedPawns int        `json:"finishedPawns"`
	Computer      bool       `json:"computer"`
	Connected     bool       `json:"connected"`
	SkipNext      bool       `json:"skipNext,omitempty"`
	IsCurrentTurn bool       `json:"isCurrentTurn"`
}

// EventView is the open landed-cell event.
type EventView struct {
	Category string   `json:"category"`
	Player   uint8    `json:"player"`
	Pawn     uint8    `json:"pawn"`
	Awaiting bool     `json:"awaiting"`
	Rival    *uint8   `json:"rival,omitempty"`
	Voters   []uint8  `json:"voters,omitempty"`
	Voted    []uint8  `json:"voted,omitempty"`
	Title    string   `json:"title,omitempty"`   // only for the observing seat's own draw
	Prompt   string   `json:"prompt,omitempty"`  // only for the observing seat's own draw
	Options  []string `json:"options,omitempty"` // only for the observing seat's own draw
}

// SyncState is a full snapshot of the session for one observer.
type SyncState struct {
	GameID    uuid.UUID         `json:"gameId"`
	Turn      uint16            `json:"turn"`
	Current   uint8             `json:"current"`
	Phase     string            `json:"phase"`
	Dice      uint8             `json:"dice,omitempty"`
	Players   []PlayerView      `json:"players"`
	Pending   *EventView        `json:"pending,omitempty"`
	Finished  []uint8           `json:"finished,omitempty"`
	GameOver  bool              `json:"gameOver"`
	Winner    int8              `json:"winner"`
	Forfeited bool              `json:"forfeited,omitempty"`
	Rules     engine.HouseRules `json:"rules"`
	Hash      string            `json:"hash"`
	Seq       uint64            `json:"seq"`
}

// GetSyncState builds the snapshot for seat forSeat; -1 builds the
// spectator view.
func (s *Session) GetSyncState(forSeat int) SyncState {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.syncState(forSeat)
}

// syncState assumes the lock is held by the caller.
func (s *Session) syncState(forSeat int) SyncState {
	g := &s.state
	st := SyncState{
		GameID:    s.ID,
		Turn:      g.Turn,
		Current:   g.Current,
		Phase:     g.Phase.String(),
		Dice:      g.Dice,
		Players:   make([]PlayerView, g.NumPlayers),
		Finished:  g.FinishedOrder(),
		GameOver:  g.IsOver(),
		Winner:    g.Winner,
		Forfeited: g.Forfeited,
		Rules:     g.Rules,
		Hash:      protocol.FormatHash(g.StateHash()),
		Seq:       s.seq,
	}

	var legal [engine.PawnsPerPlayer]bool
	if forSeat >= 0 && uint8(forSeat) == g.Current {
		for _, pawn := range g.LegalMoves() {
			legal[pawn] = true
		}
	}

	for i := uint8(0); i < g.NumPlayers; i++ {
		ps := &g.Players[i]
		pv := PlayerView{
			Seat:          i,
			Color:         ps.Color.String(),
			Tokens:        ps.Tokens,
			Pawns:         make([]PawnView, engine.PawnsPerPlayer),
			FinishedPawns: g.FinishedPawns(i),
			Computer:      ps.Computer,
			SkipNext:      ps.SkipNext,
			IsCurrentTurn: i == g.Current && !g.IsOver(),
		}
		if int(i) < len(s.Players) {
			pv.PlayerID = s.Players[i].ID
			pv.Name = s.Players[i].Name
			pv.Connected = s.Players[i].Connected
		}
		for j, pw := range ps.Pawns {
			c := engine.CoordinateOf(ps.Color, pw)
			pv.Pawns[j] = PawnView{
				Index: uint8(j),
				State: protocol.FormatPawn(pw),
				Row:   c.Row,
				Col:   c.Col,
				Legal: i == g.Current && legal[j],
			}
		}
		st.Players[i] = pv
	}

	if g.Phase == engine.PhaseAwaitEvent && g.Pending.Active() {
		ev := g.Pending
		view := &EventView{
			Category: ev.Category.String(),
			Player:   ev.Player,
			Pawn:     ev.Pawn,
			Awaiting: ev.Status == engine.EventAwaitingResponse,
		}
		if ev.Rival >= 0 {
			r := uint8(ev.Rival)
			view.Rival = &r
		}
		for k, v := range ev.Voters {
			if v < 0 {
				continue
			}
			view.Voters = append(view.Voters, uint8(v))
			if ev.Votes[k] != engine.VoteNone {
				view.Voted = append(view.Voted, uint8(v))
			}
		}
		if forSeat >= 0 && uint8(forSeat) == ev.Player && s.drawn.ok {
			view.Title = s.drawn.content.Title
			view.Prompt = s.drawn.content.Prompt
			view.Options = s.drawn.content.Options
		}
		st.Pending = view
	}
	return st
}

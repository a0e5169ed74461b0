// internal/game/events.go
package game

import (
	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
)

// present turns an applied action into presentation events. pending is the
// open event as it was before the action.
// Assumes lock is held by caller.
func (s *Session) present(a engine.Action, res engine.Result, pending engine.PendingEvent, contentID string) {
	switch a.Kind {
	case engine.ActRoll:
		s.fireEvent(GameEvent{
			Type:    EventDiceRolled,
			Player:  s.eventPlayer(a.Actor),
			Payload: map[string]interface{}{"dice": a.Value},
		})

	case engine.ActMove, engine.ActExit:
		s.presentMove(a.Actor, a.Pawn, res.Move)
		s.presentCaptures(a.Actor, res.Captures)
		if res.PlayerFinished {
			s.fireEvent(GameEvent{
				Type:    EventPlayerFinished,
				Player:  s.eventPlayer(a.Actor),
				Payload: map[string]interface{}{"place": s.state.FinishedLen},
			})
		}
		if res.Opened != engine.EventNone {
			s.presentOpened(res.Opened)
		}

	case engine.ActCapture:
		s.presentCaptures(a.Actor, res.Captures)

	case engine.ActVote:
		s.fireEvent(GameEvent{
			Type:    EventVoteCast,
			Player:  s.eventPlayer(a.Actor),
			Payload: map[string]interface{}{"accept": a.Flag},
		})

	case engine.ActEvent:
		s.presentResolved(a, res, pending, contentID)

	case engine.ActSkip:
		s.fireEvent(GameEvent{Type: EventTurnSkipped, Player: s.eventPlayer(a.Actor)})
		s.presentTurn(res)

	case engine.ActNext:
		s.presentTurn(res)
	}
}

func (s *Session) presentMove(player, pawn uint8, out engine.MoveOutcome) {
	color := s.state.Players[player].Color
	to := engine.CoordinateOf(color, out.To)
	s.fireEvent(GameEvent{
		Type:   EventPawnMoved,
		Player: s.eventPlayer(player),
		Payload: map[string]interface{}{
			"pawn": pawn,
			"kind": out.Kind.String(),
			"from": protocol.FormatPawn(out.From),
			"to":   protocol.FormatPawn(out.To),
			"row":  to.Row,
			"col":  to.Col,
		},
	})
}

func (s *Session) presentCaptures(by uint8, captures []engine.Capture) {
	for _, c := range captures {
		s.fireEvent(GameEvent{
			Type:   EventPawnCaptured,
			Player: s.eventPlayer(c.Player),
			Payload: map[string]interface{}{
				"pawn": c.Pawn,
				"by":   by,
				"from": protocol.FormatPawn(c.From),
				"to":   protocol.FormatPawn(c.To),
			},
		})
	}
}

func (s *Session) presentOpened(cat engine.EventCategory) {
	ev := s.state.Pending
	payload := map[string]interface{}{
		"category": cat.String(),
		"pawn":     ev.Pawn,
		"awaiting": ev.Status == engine.EventAwaitingResponse,
	}
	if cat == engine.EventDuel && ev.Rival >= 0 {
		payload["rival"] = ev.Rival
		var voters []int8
		for _, v := range ev.Voters {
			if v >= 0 {
				voters = append(voters, v)
			}
		}
		payload["voters"] = voters
	}
	s.fireEvent(GameEvent{Type: EventCellOpened, Player: s.eventPlayer(ev.Player), Payload: payload})

	if cat != engine.EventDuel || ev.Status != engine.EventAwaitingResponse {
		return
	}
	for _, v := range ev.Voters {
		if v >= 0 && s.isLocalHuman(uint8(v)) {
			s.fireEvent(GameEvent{
				Type:   EventVoteRequested,
				Player: s.eventPlayer(uint8(v)),
				Payload: map[string]interface{}{
					"challenger": ev.Player,
					"rival":      ev.Rival,
				},
			})
		}
	}
}

func (s *Session) presentResolved(a engine.Action, res engine.Result, pending engine.PendingEvent, contentID string) {
	if res.Event == nil {
		return
	}
	ev := res.Event
	deltas := make(map[uint8]int16)
	for i := uint8(0); i < s.state.NumPlayers; i++ {
		if ev.Deltas[i] != 0 {
			deltas[i] = ev.Deltas[i]
		}
	}
	payload := map[string]interface{}{
		"category":  ev.Category.String(),
		"success":   a.Flag,
		"magnitude": a.Value,
		"deltas":    deltas,
	}
	if ev.Effect != engine.EffectNone {
		payload["effect"] = effectName(ev.Effect)
	}
	if pending.Category == engine.EventDuel && pending.Status == engine.EventVotesComplete {
		payload["verdict"] = pending.DuelVerdict()
	}
	if c, ok := s.contentFor(contentID); ok {
		payload["contentId"] = c.ID
		payload["title"] = c.Title
		payload["prompt"] = c.Prompt
	}
	s.fireEvent(GameEvent{Type: EventCellResolved, Player: s.eventPlayer(a.Actor), Payload: payload})

	if ev.Retreat.Moved() {
		s.presentMove(a.Actor, pending.Pawn, ev.Retreat)
		s.presentCaptures(a.Actor, ev.Captures)
	}
}

// contentFor resolves the card behind an event outcome: the locally drawn
// one, or a catalog lookup for remote records.
func (s *Session) contentFor(id string) (engine.Content, bool) {
	if id == "" {
		return engine.Content{}, false
	}
	if s.drawn.ok && s.drawn.content.ID == id {
		return s.drawn.content, true
	}
	if s.lookup != nil {
		return s.lookup(id)
	}
	return engine.Content{}, false
}

func (s *Session) presentTurn(res engine.Result) {
	if !res.Advanced {
		return
	}
	s.fireEvent(GameEvent{
		Type:   EventTurnChanged,
		Player: s.eventPlayer(res.TurnTo),
		Payload: map[string]interface{}{
			"turn":  s.state.Turn,
			"from":  res.TurnFrom,
			"extra": res.TurnFrom == res.TurnTo,
		},
	})
}

func effectName(e engine.EventEffect) string {
	switch e {
	case engine.EffectExtraTurn:
		return "extra_turn"
	case engine.EffectSkipNext:
		return "skip_next"
	}
	return ""
}

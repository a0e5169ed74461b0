// internal/game/lifecycle.go
package game

import (
	"fmt"
	"time"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/sirupsen/logrus"
)

// HandleDisconnect marks a seat as disconnected. When the forfeit rule is on
// and at most one connected human remains, the seat forfeits and the session
// ends. It reports whether that happened; otherwise the caller decides who
// plays the seat meanwhile.
func (s *Session) HandleDisconnect(seat uint8) (forfeited bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if int(seat) >= len(s.Players) {
		s.log.WithField("seat", seat).Warn("disconnect for unknown seat")
		return false
	}
	p := &s.Players[seat]
	if !p.Connected {
		s.log.WithField("seat", seat).Debug("seat already disconnected")
		return false
	}
	p.Connected = false
	s.log.WithField("seat", seat).Info("player disconnected")
	s.firePresence(seat, false)

	if s.ended || s.startedAt.IsZero() || !s.forfeitOnDisconnect {
		return false
	}
	if s.connectedHumans() > 1 {
		return false
	}
	if err := s.forfeit(seat, true); err != nil {
		s.log.WithError(err).Error("forfeit on disconnect rejected")
		return false
	}
	s.pump()
	return true
}

// HandleReconnect marks a seat as connected again and pushes a sync state.
func (s *Session) HandleReconnect(seat uint8) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if int(seat) >= len(s.Players) {
		s.log.WithField("seat", seat).Warn("reconnect for unknown seat")
		return
	}
	if s.Players[seat].Connected {
		s.log.WithField("seat", seat).Debug("reconnect for a seat already connected")
	}
	s.Players[seat].Connected = true
	s.log.WithField("seat", seat).Info("player reconnected")
	s.firePresence(seat, true)

	st := s.syncState(int(seat))
	s.fireEvent(GameEvent{Type: EventSyncState, Player: s.eventPlayer(seat), State: &st})
	s.pump()
}

func (s *Session) firePresence(seat uint8, connected bool) {
	s.fireEvent(GameEvent{
		Type:    EventPresence,
		Player:  s.eventPlayer(seat),
		Payload: map[string]interface{}{"connected": connected},
	})
}

// connectedHumans counts connected seats that are not computer-driven.
func (s *Session) connectedHumans() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected && !p.Computer {
			n++
		}
	}
	return n
}

// Checkpoint returns the latest turn-boundary checkpoint and the relay
// sequence it covers.
func (s *Session) Checkpoint() (engine.Checkpoint, uint64) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.boundary, s.boundarySeq
}

// Resync replaces the local state with a checkpoint taken by another peer.
// Anything decided locally for the current turn is discarded and History
// restarts from the checkpoint.
func (s *Session) Resync(cp engine.Checkpoint, seq uint64) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if len(cp.Players) != len(s.Players) {
		return fmt.Errorf("%w: checkpoint has %d seats, session has %d", engine.ErrProtocolViolation, len(cp.Players), len(s.Players))
	}
	for i, p := range cp.Players {
		if p.Color != s.Players[i].Color {
			return fmt.Errorf("%w: checkpoint seat %d is %s, session seat is %s", engine.ErrProtocolViolation, i, p.Color, s.Players[i].Color)
		}
	}
	state, err := engine.FromCheckpoint(cp)
	if err != nil {
		return err
	}

	s.stopTimers()
	s.state = state
	s.drawn = drawnEvent{}
	s.history = nil
	s.serial++
	s.seq = seq
	s.boundary = s.state.Checkpoint()
	s.boundarySeq = seq
	s.log.WithFields(logrus.Fields{"turn": cp.Turn, "seq": seq}).Info("resynchronised from checkpoint")

	st := s.syncState(-1)
	s.fireEvent(GameEvent{Type: EventSyncState, State: &st})
	if s.state.IsOver() {
		s.finish()
		return nil
	}
	s.pump()
	return nil
}

// finish reports the final standings once.
// Assumes lock is held by caller.
func (s *Session) finish() {
	if s.ended {
		return
	}
	s.ended = true
	s.stopTimers()

	res := models.GameResult{
		SessionID: s.ID,
		Forfeited: s.state.Forfeited,
		Turns:     int(s.state.Turn),
		Actions:   len(s.history),
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}
	if s.state.Winner >= 0 {
		res.Winner = s.Players[s.state.Winner].ID
	}
	for _, st := range s.state.Standings() {
		p := s.Players[st.Player]
		res.Placements = append(res.Placements, models.Placement{
			PlayerID:      p.ID,
			Name:          p.Name,
			Color:         st.Color.String(),
			Place:         int(st.Place),
			Tokens:        int(st.Tokens),
			FinishedPawns: int(st.FinishedPawns),
			Computer:      p.Computer,
		})
	}
	s.result = res

	s.log.WithFields(logrus.Fields{
		"winner":    s.state.Winner,
		"forfeited": res.Forfeited,
		"turns":     res.Turns,
	}).Info("session ended")

	s.fireEvent(GameEvent{
		Type:   EventGameEnd,
		Player: s.eventPlayer(uint8(s.state.Winner)),
		Payload: map[string]interface{}{
			"forfeited":  res.Forfeited,
			"placements": res.Placements,
		},
	})
	if s.OnGameEnd != nil {
		s.OnGameEnd(res)
	}
}

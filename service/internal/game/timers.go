// internal/game/timers.go
package game

import (
	"time"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/sirupsen/logrus"
)

// computerDelay picks the thinking pause before a computer decision.
func (s *Session) computerDelay() time.Duration {
	if s.computerDelayMax <= 0 {
		return 0
	}
	span := s.computerDelayMax - s.computerDelayMin
	if span < time.Millisecond {
		return s.computerDelayMin
	}
	return s.computerDelayMin + time.Duration(s.rng.Intn(int(span/time.Millisecond)+1))*time.Millisecond
}

// scheduleComputer dispatches a computer decision after d. The decision is
// dropped if anything was applied meanwhile or the seat changed hands.
// Assumes lock is held by caller.
func (s *Session) scheduleComputer(a engine.Action, d time.Duration) {
	if s.computerTimer != nil {
		s.computerTimer.Stop()
	}
	s.computerGen++
	gen, serial := s.computerGen, s.serial
	s.computerTimer = time.AfterFunc(d, func() {
		s.Mu.Lock()
		defer s.Mu.Unlock()
		if s.ended || s.computerGen != gen || s.serial != serial || !s.isLocalComputer(a.Actor) {
			return
		}
		s.computerTimer = nil
		if err := s.act(a); err != nil {
			s.log.WithError(err).WithField("action", a.Kind.String()).Error("computer action rejected")
			return
		}
		s.pump()
	})
}

// awaitingLocalHuman reports whether the session waits on input from a
// human seated in this process.
func (s *Session) awaitingLocalHuman() bool {
	g := &s.state
	switch g.Phase {
	case engine.PhaseAwaitRoll, engine.PhaseAwaitMove:
		return s.isLocalHuman(g.Current)
	case engine.PhaseAwaitEvent:
		ev := g.Pending
		if ev.Category == engine.EventDuel && ev.Status == engine.EventAwaitingResponse {
			for i := uint8(0); i < g.NumPlayers; i++ {
				if g.AwaitingVoteFrom(i) && s.isLocalHuman(i) {
					return true
				}
			}
			return false
		}
		return ev.Category == engine.EventQuiz && ev.Status == engine.EventAwaitingResponse && s.isLocalHuman(ev.Player)
	}
	return false
}

// armTurnTimer starts the per-turn timer when a local human owes input. It
// keeps running across the actions of one turn.
// Assumes lock is held by caller.
func (s *Session) armTurnTimer() {
	if s.turnTimeout <= 0 || s.ended || !s.awaitingLocalHuman() {
		s.stopTurnTimer()
		return
	}
	if s.turnTimer != nil && s.timerTurn == s.state.Turn {
		return
	}
	s.stopTurnTimer()
	turn := s.state.Turn
	s.timerTurn = turn
	s.turnGen++
	gen := s.turnGen
	s.turnTimer = time.AfterFunc(s.turnTimeout, func() {
		s.Mu.Lock()
		defer s.Mu.Unlock()
		if s.ended || s.turnGen != gen || s.state.Turn != turn {
			return
		}
		s.turnTimer = nil
		s.log.WithFields(logrus.Fields{"turn": turn, "seat": s.state.Current}).Info("turn timer expired")
		s.handleTimeout()
		s.pump()
	})
}

// handleTimeout resolves whatever local humans still owe with the default
// the rules allow: a skip, a wrong quiz answer or a refusing ballot.
// Assumes lock is held by caller.
func (s *Session) handleTimeout() {
	g := &s.state
	var err error
	switch g.Phase {
	case engine.PhaseAwaitRoll, engine.PhaseAwaitMove:
		if s.isLocalHuman(g.Current) {
			err = s.act(engine.Action{Kind: engine.ActSkip, Actor: g.Current})
		}
	case engine.PhaseAwaitEvent:
		ev := g.Pending
		if ev.Category == engine.EventDuel && ev.Status == engine.EventAwaitingResponse {
			for i := uint8(0); i < g.NumPlayers && err == nil; i++ {
				if g.AwaitingVoteFrom(i) && s.isLocalHuman(i) {
					err = s.act(engine.Action{Kind: engine.ActVote, Actor: i, Flag: false})
				}
			}
		} else if ev.Category == engine.EventQuiz && s.isLocalHuman(ev.Player) && s.drawn.ok {
			err = s.act(engine.QuizAction(ev.Player, s.drawn.content, -1, s.drawn.mag))
		}
	}
	if err != nil {
		s.log.WithError(err).Error("timeout default rejected")
	}
}

func (s *Session) stopTurnTimer() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
}

// stopTimers cancels every pending timer callback.
// Assumes lock is held by caller.
func (s *Session) stopTimers() {
	s.computerGen++
	s.turnGen++
	if s.computerTimer != nil {
		s.computerTimer.Stop()
		s.computerTimer = nil
	}
	s.stopTurnTimer()
}

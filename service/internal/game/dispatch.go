// internal/game/dispatch.go
package game

import (
	"fmt"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/sirupsen/logrus"
)

// dispatch is the only place the engine state changes. contentID names the
// card shown with an event outcome and only matters for presentation.
// Assumes lock is held by caller.
func (s *Session) dispatch(a engine.Action, local bool, contentID string) (engine.Result, error) {
	pending := s.state.Pending
	res, err := s.state.ApplyAction(a)
	if err != nil {
		return res, err
	}
	s.history = append(s.history, a)
	s.serial++

	rec := protocol.FromAction(a)
	rec.C = contentID
	if a.Kind == engine.ActNext || a.Kind == engine.ActSkip {
		rec.H = protocol.FormatHash(s.state.StateHash())
	}
	if local && s.SendFn != nil {
		s.SendFn(rec)
	}

	var boundary *engine.Checkpoint
	if s.state.Phase == engine.PhaseAwaitRoll || s.state.IsOver() {
		s.boundary = s.state.Checkpoint()
		boundary = &s.boundary
	}
	if s.OnApplied != nil {
		s.OnApplied(rec, boundary)
	}

	s.present(a, res, pending, contentID)
	if res.Opened != engine.EventNone && s.isLocal(a.Actor) {
		s.drawFor(res.Opened)
	}
	if a.Kind == engine.ActEvent || res.Advanced {
		s.drawn = drawnEvent{}
	}
	return res, nil
}

// act dispatches a locally decided action and the records that follow from
// it: a k per capture and a w when the move ended the session.
// Assumes lock is held by caller.
func (s *Session) act(a engine.Action) error {
	contentID := ""
	if a.Kind == engine.ActEvent && s.drawn.ok && !s.drawn.content.Generic {
		contentID = s.drawn.content.ID
	}
	res, err := s.dispatch(a, true, contentID)
	if err != nil {
		return err
	}
	if a.Kind == engine.ActMove || a.Kind == engine.ActExit || a.Kind == engine.ActEvent {
		for _, c := range res.Captures {
			k := engine.Action{Kind: engine.ActCapture, Actor: a.Actor, Target: c.Player, Pawn: c.Pawn}
			if _, err := s.dispatch(k, true, ""); err != nil {
				s.log.WithError(err).Warn("capture record rejected")
			}
		}
	}
	if res.GameOver && (a.Kind == engine.ActMove || a.Kind == engine.ActExit) && s.state.Winner >= 0 {
		w := engine.Action{Kind: engine.ActWin, Actor: a.Actor, Target: uint8(s.state.Winner)}
		if _, err := s.dispatch(w, true, ""); err != nil {
			s.log.WithError(err).Warn("win record rejected")
		}
	}
	return nil
}

// drawFor draws content for an event this process owns and decides its
// outcome up front. The outcome travels on the e record.
// Assumes lock is held by caller.
func (s *Session) drawFor(cat engine.EventCategory) {
	c, err := engine.DrawContent(s.content, cat, s.rng)
	if err != nil {
		s.log.WithError(err).Debug("using generic event content")
	}
	ev := s.state.Pending
	success, mag := engine.DecideEventOutcome(ev, c, s.rng)
	s.drawn = drawnEvent{ok: true, content: c, success: success, mag: mag, fallback: err != nil}

	if cat == engine.EventQuiz && s.isLocalHuman(ev.Player) {
		s.fireEvent(GameEvent{
			Type:   EventQuizPrompt,
			Player: s.eventPlayer(ev.Player),
			Payload: map[string]interface{}{
				"contentId": c.ID,
				"title":     c.Title,
				"prompt":    c.Prompt,
				"options":   c.Options,
				"stake":     mag,
			},
		})
	}
}

// nextLocalAction returns the next action this process owes, if any. think
// is set for computer decisions, which may be delayed.
// Assumes lock is held by caller.
func (s *Session) nextLocalAction() (a engine.Action, think, ok bool) {
	g := &s.state
	if g.IsOver() {
		return a, false, false
	}
	cur := g.Current
	switch g.Phase {
	case engine.PhaseAwaitRoll:
		if s.isLocalComputer(cur) {
			return engine.Action{Kind: engine.ActRoll, Actor: cur, Value: s.rng.Roll()}, true, true
		}
	case engine.PhaseAwaitMove:
		switch {
		case s.isLocalComputer(cur):
			return s.agents[cur].ChooseMove(g), true, true
		case s.isLocal(cur) && !g.HasLegalMove():
			return engine.Action{Kind: engine.ActSkip, Actor: cur}, false, true
		}
	case engine.PhaseAwaitEvent:
		ev := g.Pending
		if ev.Category == engine.EventDuel && ev.Status == engine.EventAwaitingResponse {
			for i := uint8(0); i < g.NumPlayers; i++ {
				if g.AwaitingVoteFrom(i) && s.isLocalComputer(i) {
					return engine.Action{Kind: engine.ActVote, Actor: i, Flag: s.agents[i].ChooseVote(g)}, true, true
				}
			}
			return a, false, false
		}
		if !s.isLocal(ev.Player) {
			return a, false, false
		}
		if !s.drawn.ok {
			// seat taken over after the event opened elsewhere
			s.drawFor(ev.Category)
		}
		if ev.Category == engine.EventQuiz && ev.Status == engine.EventAwaitingResponse {
			if s.isLocalComputer(ev.Player) {
				answer := s.agents[ev.Player].ChooseAnswer(s.drawn.content, s.rng)
				return engine.QuizAction(ev.Player, s.drawn.content, answer, s.drawn.mag), true, true
			}
			return a, false, false
		}
		return engine.EventAction(ev.Player, s.drawn.success, s.drawn.mag, s.drawn.content.Effect), false, true
	case engine.PhaseTurnEnd:
		if s.isLocal(cur) {
			return g.NextAction(), false, true
		}
	}
	return a, false, false
}

// pump dispatches every action this process owes until it has to wait for
// a human, a remote peer or a computer thinking delay.
// Assumes lock is held by caller.
func (s *Session) pump() {
	if s.startedAt.IsZero() || s.ended {
		return
	}
	for !s.state.IsOver() {
		a, think, ok := s.nextLocalAction()
		if !ok {
			break
		}
		if think {
			if d := s.computerDelay(); d > 0 {
				s.scheduleComputer(a, d)
				return
			}
		}
		if err := s.act(a); err != nil {
			s.log.WithError(err).WithField("action", a.Kind.String()).Error("local action rejected")
			break
		}
	}
	if s.state.IsOver() {
		s.finish()
		return
	}
	s.armTurnTimer()
}

// ---------------------------------------------------------------------------
// Local decisions
// ---------------------------------------------------------------------------

func (s *Session) checkHuman(seat uint8) error {
	if !s.isLocalHuman(seat) {
		return fmt.Errorf("%w: seat %d", ErrNotLocalSeat, seat)
	}
	return nil
}

// Roll draws the dice for a local human seat and returns the value.
func (s *Session) Roll(seat uint8) (uint8, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if err := s.checkHuman(seat); err != nil {
		return 0, err
	}
	if !s.state.CanRoll(seat) {
		return 0, fmt.Errorf("%w: player %d cannot roll in phase %s", engine.ErrIllegalMove, seat, s.state.Phase)
	}
	v := s.rng.Roll()
	if err := s.act(engine.Action{Kind: engine.ActRoll, Actor: seat, Value: v}); err != nil {
		return 0, err
	}
	s.pump()
	return v, nil
}

// Move moves one pawn of a local human seat by the rolled value. Pawns at
// home leave through an x record.
func (s *Session) Move(seat, pawn uint8) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if err := s.checkHuman(seat); err != nil {
		return err
	}
	kind := engine.ActMove
	if pawn < engine.PawnsPerPlayer && s.state.Players[seat].Pawns[pawn].IsHome() {
		kind = engine.ActExit
	}
	if err := s.act(engine.Action{Kind: kind, Actor: seat, Pawn: pawn}); err != nil {
		return err
	}
	s.pump()
	return nil
}

// AnswerQuiz resolves the open quiz of a local human seat.
func (s *Session) AnswerQuiz(seat uint8, option int) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if err := s.checkHuman(seat); err != nil {
		return err
	}
	ev := s.state.Pending
	if s.state.Phase != engine.PhaseAwaitEvent || ev.Category != engine.EventQuiz || ev.Player != seat || !s.drawn.ok {
		return ErrNoPendingQuiz
	}
	if err := s.act(engine.QuizAction(seat, s.drawn.content, option, s.drawn.mag)); err != nil {
		return err
	}
	s.pump()
	return nil
}

// Vote casts a local human seat's duel ballot.
func (s *Session) Vote(seat uint8, accept bool) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if err := s.checkHuman(seat); err != nil {
		return err
	}
	if err := s.act(engine.Action{Kind: engine.ActVote, Actor: seat, Flag: accept}); err != nil {
		return err
	}
	s.pump()
	return nil
}

// Forfeit ends the session on behalf of a local human seat. The best placed
// other player is named winner.
func (s *Session) Forfeit(seat uint8) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if err := s.checkHuman(seat); err != nil {
		return err
	}
	if err := s.forfeit(seat, false); err != nil {
		return err
	}
	s.pump()
	return nil
}

// forfeit emits the f record for seat. With preferConnected the winner is
// taken among connected seats first.
// Assumes lock is held by caller.
func (s *Session) forfeit(seat uint8, preferConnected bool) error {
	winner := seat
	found := false
	standings := s.state.Standings()
	if preferConnected {
		for _, st := range standings {
			if st.Player != seat && s.Players[st.Player].Connected {
				winner, found = st.Player, true
				break
			}
		}
	}
	if !found {
		for _, st := range standings {
			if st.Player != seat {
				winner = st.Player
				break
			}
		}
	}
	s.log.WithFields(logrus.Fields{"seat": seat, "winner": winner}).Info("player forfeits")
	return s.act(engine.Action{Kind: engine.ActForfeit, Actor: seat, Target: winner})
}

// ---------------------------------------------------------------------------
// Inbound records
// ---------------------------------------------------------------------------

// HandleRemote applies a record received from another peer. A sequenced
// record for a seat this process drives is the relay's echo of our own and
// only advances Seq. Unsequenced records for local seats and records the
// engine rejects are logged and dropped; the error is returned for the
// caller's accounting. A differing turn-boundary hash is reported as
// ErrDesync after the record is applied.
func (s *Session) HandleRemote(rec protocol.Record) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	err := s.applyRemote(rec, true)
	s.pump()
	return err
}

// CatchUp applies a relay backlog in order, typically right after Resync.
// Records may belong to local seats: they were decided before this process
// took the seat back.
func (s *Session) CatchUp(recs []protocol.Record) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	defer s.pump()
	for _, rec := range recs {
		if err := s.applyRemote(rec, false); err != nil {
			return fmt.Errorf("catch up at seq %d: %w", rec.N, err)
		}
	}
	return nil
}

// applyRemote validates and applies one inbound record.
// Assumes lock is held by caller.
func (s *Session) applyRemote(rec protocol.Record, checkOwner bool) error {
	if rec.N != 0 && rec.N <= s.seq {
		return nil
	}
	a, err := rec.Action()
	if err != nil {
		s.log.WithError(err).WithField("record", rec.T).Warn("dropping malformed record")
		return err
	}
	if checkOwner && s.isLocal(a.Actor) {
		if rec.N != 0 {
			// the relay echoing one of ours, already applied
			s.seq = rec.N
			return nil
		}
		err := fmt.Errorf("%w: record %s for locally driven seat %d", engine.ErrProtocolViolation, rec.T, a.Actor)
		s.log.WithError(err).Warn("dropping remote record")
		return err
	}
	if _, err := s.dispatch(a, false, rec.C); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"record": rec.T, "actor": rec.A, "seq": rec.N}).Warn("dropping remote record")
		return err
	}
	if rec.N > s.seq {
		s.seq = rec.N
		if s.state.Phase == engine.PhaseAwaitRoll || s.state.IsOver() {
			s.boundarySeq = rec.N
		}
	}
	if rec.H == "" {
		return nil
	}
	want, err := protocol.ParseHash(rec.H)
	if err != nil {
		return err
	}
	if got := s.state.StateHash(); got != want {
		s.log.WithFields(logrus.Fields{"seq": rec.N, "expected": rec.H, "actual": protocol.FormatHash(got)}).Error("state diverged from sender")
		s.fireEvent(GameEvent{
			Type: EventDesync,
			Payload: map[string]interface{}{
				"seq":      rec.N,
				"expected": rec.H,
				"actual":   protocol.FormatHash(got),
			},
		})
		return ErrDesync
	}
	return nil
}

package engine

import "fmt"

// ActionKind is the one-letter tag of a replicated action.
type ActionKind byte

const (
	ActRoll    ActionKind = 'r' // Value = dice
	ActMove    ActionKind = 'm' // Pawn
	ActExit    ActionKind = 'x' // Pawn, home exit only
	ActEvent   ActionKind = 'e' // Flag = success, Value = magnitude, Effect
	ActCapture ActionKind = 'k' // Target = captured player, Pawn
	ActSkip    ActionKind = 's'
	ActNext    ActionKind = 'n' // Flag = extra turn requested
	ActWin     ActionKind = 'w' // Target = winner
	ActForfeit ActionKind = 'f' // Target = winner
	ActVote    ActionKind = 'v' // Actor = voter, Flag = accept
)

// Valid reports whether k is a known tag.
func (k ActionKind) Valid() bool {
	switch k {
	case ActRoll, ActMove, ActExit, ActEvent, ActCapture, ActSkip, ActNext, ActWin, ActForfeit, ActVote:
		return true
	}
	return false
}

func (k ActionKind) String() string { return string(rune(k)) }

// Action is an already-decided engine transition. Applying it never
// consults randomness.
type Action struct {
	Kind   ActionKind
	Actor  uint8
	Pawn   uint8
	Value  uint8
	Target uint8
	Flag   bool
	Effect EventEffect
}

// Result describes what applying an action changed, for presentation and
// follow-up decisions.
type Result struct {
	Action   Action
	Dice     uint8
	Move     MoveOutcome
	Captures []Capture
	Opened   EventCategory // event detected by a move
	Event    *EventResolution
	Vote     Vote
	TurnFrom uint8
	TurnTo   uint8
	Advanced bool

	PlayerFinished bool
	GameOver       bool
}

// Apply is the value-style entry point: it returns the next state and leaves
// the input untouched.
func Apply(state GameState, a Action) (GameState, Result, error) {
	next := state
	res, err := next.ApplyAction(a)
	if err != nil {
		return state, Result{}, err
	}
	return next, res, nil
}

// ApplyAction applies a replicated action. On error the state is unchanged.
func (g *GameState) ApplyAction(a Action) (Result, error) {
	if g.IsOver() {
		if (a.Kind == ActWin || a.Kind == ActForfeit) && g.Winner >= 0 && uint8(g.Winner) == a.Target {
			return Result{Action: a, GameOver: true}, nil
		}
		return Result{}, fmt.Errorf("%w: action %s rejected", ErrSessionTerminal, a.Kind)
	}

	saved := g.Save()
	res, err := g.apply(a)
	if err != nil {
		g.Restore(saved)
		return Result{}, err
	}
	res.Action = a
	return res, nil
}

func (g *GameState) apply(a Action) (Result, error) {
	if a.Kind == ActForfeit {
		return g.applyEnd(a, true)
	}
	if a.Kind == ActVote {
		return g.applyVote(a)
	}
	if a.Actor != g.Current {
		return Result{}, fmt.Errorf("%w: action %s from player %d, turn holder is %d", ErrProtocolViolation, a.Kind, a.Actor, g.Current)
	}

	switch a.Kind {
	case ActRoll:
		if err := g.roll(a.Value); err != nil {
			return Result{}, err
		}
		return Result{Dice: a.Value}, nil
	case ActMove, ActExit:
		return g.applyMoveAction(a)
	case ActEvent:
		if g.Phase != PhaseAwaitEvent {
			return Result{}, fmt.Errorf("%w: no event to resolve in phase %s", ErrIllegalMove, g.Phase)
		}
		ev, err := g.resolveEvent(a.Flag, a.Value, a.Effect)
		if err != nil {
			return Result{}, err
		}
		g.Phase = PhaseTurnEnd
		res := Result{Event: &ev}
		if ev.Retreat.Moved() {
			res.Move = ev.Retreat
			res.Captures = ev.Captures
		}
		return res, nil
	case ActCapture:
		return g.applyCapture(a)
	case ActSkip:
		if g.Phase != PhaseAwaitRoll && g.Phase != PhaseAwaitMove {
			return Result{}, fmt.Errorf("%w: cannot skip in phase %s", ErrIllegalMove, g.Phase)
		}
		// a 6 still earns the next roll when no pawn could use it
		from, to := g.advanceTurn(g.Phase == PhaseAwaitMove && g.earnsExtraTurn(false))
		return Result{TurnFrom: from, TurnTo: to, Advanced: true}, nil
	case ActNext:
		if g.Phase != PhaseTurnEnd {
			return Result{}, fmt.Errorf("%w: cannot advance in phase %s", ErrIllegalMove, g.Phase)
		}
		from, to := g.advanceTurn(g.earnsExtraTurn(a.Flag))
		return Result{TurnFrom: from, TurnTo: to, Advanced: true}, nil
	case ActWin:
		return g.applyEnd(a, false)
	}
	return Result{}, fmt.Errorf("%w: unknown action %q", ErrIllegalMove, byte(a.Kind))
}

// applyMoveAction re-runs the movement rules for the chosen pawn with the
// already known dice value.
func (g *GameState) applyMoveAction(a Action) (Result, error) {
	if g.Phase != PhaseAwaitMove {
		return Result{}, fmt.Errorf("%w: cannot move in phase %s", ErrIllegalMove, g.Phase)
	}
	if a.Pawn >= PawnsPerPlayer {
		return Result{}, fmt.Errorf("%w: pawn %d out of range", ErrIllegalMove, a.Pawn)
	}
	if a.Kind == ActExit && !g.Players[a.Actor].Pawns[a.Pawn].IsHome() {
		return Result{}, fmt.Errorf("%w: pawn %d is not at home", ErrIllegalMove, a.Pawn)
	}
	out, err := g.ProposeMove(a.Actor, a.Pawn)
	if err != nil {
		return Result{}, err
	}

	res := Result{Dice: g.Dice, Move: out}
	res.Captures = g.applyMove(a.Actor, a.Pawn, out)
	g.Phase = PhaseTurnEnd

	if out.Kind == MoveFinish {
		res.PlayerFinished, res.GameOver = g.noteFinish(a.Actor)
		if res.GameOver {
			return res, nil
		}
	}
	if out.Moved() {
		if cat := g.detectEvent(a.Actor, a.Pawn); cat != EventNone {
			res.Opened = cat
			g.Phase = PhaseAwaitEvent
		}
	}
	return res, nil
}

// applyCapture forces a pawn home. Captures already happen while applying
// the move, so a replayed k is usually a no-op.
func (g *GameState) applyCapture(a Action) (Result, error) {
	if a.Target >= g.NumPlayers || a.Target == a.Actor {
		return Result{}, fmt.Errorf("%w: invalid capture target %d", ErrIllegalMove, a.Target)
	}
	if a.Pawn >= PawnsPerPlayer {
		return Result{}, fmt.Errorf("%w: pawn %d out of range", ErrIllegalMove, a.Pawn)
	}
	pw := g.Players[a.Target].Pawns[a.Pawn]
	switch {
	case pw.IsHome():
		return Result{}, nil
	case pw.IsCircuit():
		return Result{Captures: []Capture{g.sendHome(a.Target, a.Pawn)}}, nil
	default:
		return Result{}, fmt.Errorf("%w: pawn %d of player %d is not on the circuit", ErrIllegalMove, a.Pawn, a.Target)
	}
}

// applyVote records a duel ballot. Any seated voter may send one.
func (g *GameState) applyVote(a Action) (Result, error) {
	if a.Actor >= g.NumPlayers {
		return Result{}, fmt.Errorf("%w: voter %d out of range", ErrProtocolViolation, a.Actor)
	}
	if g.Phase != PhaseAwaitEvent {
		return Result{}, fmt.Errorf("%w: no duel open in phase %s", ErrIllegalMove, g.Phase)
	}
	if err := g.castVote(a.Actor, a.Flag); err != nil {
		return Result{}, err
	}
	v := VoteRefuse
	if a.Flag {
		v = VoteAccept
	}
	return Result{Vote: v}, nil
}

// applyEnd handles w and f: the session ends with Target ranked first.
func (g *GameState) applyEnd(a Action, forfeit bool) (Result, error) {
	if a.Target >= g.NumPlayers {
		return Result{}, fmt.Errorf("%w: winner %d out of range", ErrIllegalMove, a.Target)
	}
	if forfeit && a.Actor >= g.NumPlayers {
		return Result{}, fmt.Errorf("%w: forfeiting player %d out of range", ErrProtocolViolation, a.Actor)
	}
	g.forceWin(a.Target)
	g.Forfeited = forfeit
	return Result{GameOver: true}, nil
}

// internal/protocol/codec.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	engine "github.com/enaribe/startup-ludo/engine"
)

// ErrMalformed rejects a message that cannot be decoded.
var ErrMalformed = errors.New("malformed message")

// Encode wraps payload in an Envelope of type t.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("%w: empty envelope type", ErrMalformed)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload for %q", ErrMalformed, t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// DecodeEnvelope parses the outer frame without touching the payload.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return e, nil
}

// DecodePayload unmarshals the envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("%w: empty payload for type %q", ErrMalformed, env.T)
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Action records
// ---------------------------------------------------------------------------

// FromAction converts an engine action to its wire record.
func FromAction(a engine.Action) Record {
	return Record{
		T: a.Kind.String(),
		A: a.Actor,
		P: a.Pawn,
		V: a.Value,
		X: a.Target,
		F: a.Flag,
		E: uint8(a.Effect),
	}
}

// Action converts a record back to an engine action. Unknown kinds are a
// protocol violation; everything else is left for the engine to judge.
func (r Record) Action() (engine.Action, error) {
	if len(r.T) != 1 {
		return engine.Action{}, fmt.Errorf("%w: action kind %q", engine.ErrProtocolViolation, r.T)
	}
	kind := engine.ActionKind(r.T[0])
	if !kind.Valid() {
		return engine.Action{}, fmt.Errorf("%w: unknown action kind %q", engine.ErrProtocolViolation, r.T)
	}
	if r.E > uint8(engine.EffectSkipNext) {
		return engine.Action{}, fmt.Errorf("%w: unknown effect %d", engine.ErrProtocolViolation, r.E)
	}
	return engine.Action{
		Kind:   kind,
		Actor:  r.A,
		Pawn:   r.P,
		Value:  r.V,
		Target: r.X,
		Flag:   r.F,
		Effect: engine.EventEffect(r.E),
	}, nil
}

// EncodeRecord frames a record as an action envelope.
func EncodeRecord(r Record) ([]byte, error) {
	return Encode(MsgAction, r)
}

// FormatHash renders a state hash the way records and checkpoints carry it.
func FormatHash(h uint64) string {
	return strconv.FormatUint(h, 16)
}

// ParseHash is the inverse of FormatHash.
func ParseHash(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: hash %q", ErrMalformed, s)
	}
	return h, nil
}

// ---------------------------------------------------------------------------
// Checkpoints
// ---------------------------------------------------------------------------

// FormatPawn renders a pawn state in its short form.
func FormatPawn(p engine.PawnState) string {
	switch p.Kind {
	case engine.PawnAtHome:
		return "h" + strconv.Itoa(int(p.Pos))
	case engine.PawnOnCircuit:
		return "c" + strconv.Itoa(int(p.Pos))
	case engine.PawnOnFinalPath:
		return "f" + strconv.Itoa(int(p.Pos))
	default:
		return "F"
	}
}

// ParsePawn is the inverse of FormatPawn and range-checks the position.
func ParsePawn(s string) (engine.PawnState, error) {
	if s == "F" {
		return engine.Finished(), nil
	}
	if len(s) < 2 {
		return engine.PawnState{}, fmt.Errorf("%w: pawn %q", ErrMalformed, s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return engine.PawnState{}, fmt.Errorf("%w: pawn %q", ErrMalformed, s)
	}
	switch {
	case s[0] == 'h' && n < engine.PawnsPerPlayer:
		return engine.AtHome(uint8(n)), nil
	case s[0] == 'c' && n < engine.CircuitLength:
		return engine.OnCircuit(uint8(n)), nil
	case s[0] == 'f' && n < engine.FinishIndex:
		return engine.OnFinalPath(uint8(n)), nil
	}
	return engine.PawnState{}, fmt.Errorf("%w: pawn %q", ErrMalformed, s)
}

// FromRules converts house rules to their wire form.
func FromRules(r engine.HouseRules) Rules {
	return Rules{
		TokenGate:        r.TokenGate,
		StartingTokens:   r.StartingTokens,
		ClampTokens:      r.ClampTokens,
		ChallengeRetreat: r.ChallengeRetreat,
	}
}

// Engine converts wire rules back to the engine form.
func (r Rules) Engine() engine.HouseRules {
	return engine.HouseRules{
		TokenGate:        r.TokenGate,
		StartingTokens:   r.StartingTokens,
		ClampTokens:      r.ClampTokens,
		ChallengeRetreat: r.ChallengeRetreat,
	}
}

// FromCheckpoint converts an engine checkpoint to its wire form.
func FromCheckpoint(cp engine.Checkpoint, seq uint64) Checkpoint {
	out := Checkpoint{
		Seq:       seq,
		Turn:      cp.Turn,
		Current:   cp.Current,
		Players:   make([]PlayerCheckpoint, len(cp.Players)),
		Finished:  cp.FinishedOrder,
		Over:      cp.Over,
		Winner:    cp.Winner,
		Forfeited: cp.Forfeited,
		Rules:     FromRules(cp.Rules),
		Hash:      FormatHash(cp.Hash),
	}
	for i, p := range cp.Players {
		pc := PlayerCheckpoint{
			Color:    p.Color.String(),
			Tokens:   p.Tokens,
			Computer: p.Computer,
			SkipNext: p.SkipNext,
		}
		for j, pw := range p.Pawns {
			pc.Pawns[j] = FormatPawn(pw)
		}
		out.Players[i] = pc
	}
	return out
}

// Engine converts a wire checkpoint back to the engine form. The result
// still has to go through engine.FromCheckpoint, which verifies the hash.
func (c Checkpoint) Engine() (engine.Checkpoint, error) {
	hash, err := ParseHash(c.Hash)
	if err != nil {
		return engine.Checkpoint{}, err
	}
	out := engine.Checkpoint{
		Turn:          c.Turn,
		Current:       c.Current,
		Players:       make([]engine.PlayerCheckpoint, len(c.Players)),
		FinishedOrder: c.Finished,
		Over:          c.Over,
		Winner:        c.Winner,
		Forfeited:     c.Forfeited,
		Rules:         c.Rules.Engine(),
		Hash:          hash,
	}
	for i, p := range c.Players {
		color, ok := engine.ParseColor(p.Color)
		if !ok {
			return engine.Checkpoint{}, fmt.Errorf("%w: color %q", ErrMalformed, p.Color)
		}
		pc := engine.PlayerCheckpoint{
			Color:    color,
			Tokens:   p.Tokens,
			Computer: p.Computer,
			SkipNext: p.SkipNext,
		}
		for j, s := range p.Pawns {
			pw, err := ParsePawn(s)
			if err != nil {
				return engine.Checkpoint{}, err
			}
			pc.Pawns[j] = pw
		}
		out.Players[i] = pc
	}
	return out, nil
}

// EncodeCheckpoint frames a checkpoint envelope.
func EncodeCheckpoint(cp engine.Checkpoint, seq uint64) ([]byte, error) {
	return Encode(MsgCheckpoint, FromCheckpoint(cp, seq))
}

// DecodeCheckpoint parses a checkpoint payload into the engine form.
func DecodeCheckpoint(env Envelope) (engine.Checkpoint, uint64, error) {
	wire, err := DecodePayload[Checkpoint](env)
	if err != nil {
		return engine.Checkpoint{}, 0, err
	}
	cp, err := wire.Engine()
	return cp, wire.Seq, err
}

// internal/protocol/protocol.go
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope types exchanged between peers and the relay.
const (
	MsgHello      = "hello"      // peer -> relay: authenticate and join a session
	MsgWelcome    = "welcome"    // relay -> peer: seat assignment and catch-up data
	MsgAction     = "act"        // both ways: one replicated action record
	MsgCheckpoint = "checkpoint" // relay -> observers: turn-boundary snapshot
	MsgResync     = "resync"     // peer -> relay: ask for a fresh welcome with a checkpoint
	MsgPresence   = "presence"   // relay -> peers: a seat connected or dropped
	MsgStart      = "start"      // relay -> peers: every seat is taken, play begins
	MsgError      = "error"      // relay -> peer: request rejected
)

// Envelope frames every websocket message: a type tag and a raw payload.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

// Record is the compact wire form of an engine action. Zero-valued optional
// fields are omitted; the actor is always present.
type Record struct {
	T string `json:"t"`           // action kind, one letter
	A uint8  `json:"a"`           // actor seat
	P uint8  `json:"p,omitempty"` // pawn index
	V uint8  `json:"v,omitempty"` // dice value or event magnitude
	X uint8  `json:"x,omitempty"` // target seat
	F bool   `json:"f,omitempty"` // success, accept or extra-turn flag
	E uint8  `json:"e,omitempty"` // event effect
	C string `json:"c,omitempty"` // content id shown with an event outcome, presentation only

	N uint64 `json:"n,omitempty"` // sequence number assigned by the relay log
	H string `json:"h,omitempty"` // sender's state hash after applying, on turn advances
}

// Hello is the first message a peer sends after connecting.
type Hello struct {
	Token   string `json:"token"`
	LastSeq uint64 `json:"lastSeq,omitempty"` // highest record already applied, for catch-up
}

// SeatInfo describes one seat of a session.
type SeatInfo struct {
	Seat      uint8     `json:"seat"`
	Color     string    `json:"color"`
	Name      string    `json:"name,omitempty"`
	PeerID    uuid.UUID `json:"peerId,omitempty"`
	Computer  bool      `json:"cpu,omitempty"`
	Connected bool      `json:"connected"`
}

// Welcome answers a valid Hello, a resync request or a rejected record.
// When Checkpoint is set the peer restores it and replays Backlog on top;
// otherwise Backlog holds only the records after the peer's LastSeq.
type Welcome struct {
	SessionID     uuid.UUID   `json:"sessionId"`
	Seat          uint8       `json:"seat"`
	Seats         []SeatInfo  `json:"seats"`
	Rules         Rules       `json:"rules"`
	Edition       string      `json:"edition,omitempty"`
	Started       bool        `json:"started"`
	TurnTimeoutMs int64       `json:"turnTimeoutMs,omitempty"` // 0 leaves idle seats waiting
	Checkpoint    *Checkpoint `json:"checkpoint,omitempty"`
	Backlog       []Record    `json:"backlog,omitempty"`
}

// Presence announces a seat's connection change.
type Presence struct {
	Seat      uint8 `json:"seat"`
	Connected bool  `json:"connected"`
}

// ErrorMsg reports a rejected request.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PlayerCheckpoint is one seat inside a Checkpoint. Pawns use the short
// forms "h<slot>", "c<pos>", "f<idx>" and "F".
type PlayerCheckpoint struct {
	Color    string    `json:"color"`
	Tokens   int16     `json:"tokens"`
	Pawns    [4]string `json:"pawns"`
	Computer bool      `json:"cpu,omitempty"`
	SkipNext bool      `json:"skip,omitempty"`
}

// Rules is the wire form of engine.HouseRules.
type Rules struct {
	TokenGate        int16 `json:"tokenGate"`
	StartingTokens   int16 `json:"startingTokens"`
	ClampTokens      bool  `json:"clampTokens"`
	ChallengeRetreat uint8 `json:"challengeRetreat"`
}

// Checkpoint is the wire form of engine.Checkpoint. The hash is hex encoded
// so browser clients never round it through a float.
type Checkpoint struct {
	Seq       uint64             `json:"seq,omitempty"` // last record covered
	Turn      uint16             `json:"turn"`
	Current   uint8              `json:"current"`
	Players   []PlayerCheckpoint `json:"players"`
	Finished  []uint8            `json:"finished,omitempty"`
	Over      bool               `json:"over,omitempty"`
	Winner    int8               `json:"winner"`
	Forfeited bool               `json:"forfeited,omitempty"`
	Rules     Rules              `json:"rules"`
	Hash      string             `json:"hash"`
}

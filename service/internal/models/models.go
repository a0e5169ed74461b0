// internal/models/models.go
package models

import (
	"time"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/google/uuid"
)

// Player is one seat of a session as the service sees it.
type Player struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Seat      uint8        `json:"seat"`
	Color     engine.Color `json:"color"`
	Computer  bool         `json:"computer"`
	Local     bool         `json:"-"` // decisions for this seat are made in this process
	Connected bool         `json:"connected"`
}

// SessionSpec describes a session to create: its seats, rules and content edition.
type SessionSpec struct {
	ID      uuid.UUID         `json:"id"`
	Players []Player          `json:"players"`
	Rules   engine.HouseRules `json:"rules"`
	Edition string            `json:"edition,omitempty"`
	Seed    uint64            `json:"seed,omitempty"`
	Private bool              `json:"private,omitempty"`
	Created time.Time         `json:"created"`
}

// Seats converts the players to engine seats in turn order.
func (s SessionSpec) Seats() []engine.Seat {
	seats := make([]engine.Seat, len(s.Players))
	for i, p := range s.Players {
		seats[i] = engine.Seat{Color: p.Color, Computer: p.Computer}
	}
	return seats
}

// Placement is one line of a finished session's result.
type Placement struct {
	PlayerID      uuid.UUID `json:"playerId"`
	Name          string    `json:"name"`
	Color         string    `json:"color"`
	Place         int       `json:"place"`
	Tokens        int       `json:"tokens"`
	FinishedPawns int       `json:"finishedPawns"`
	Computer      bool      `json:"computer"`
}

// GameResult is reported once a session ends.
type GameResult struct {
	SessionID  uuid.UUID   `json:"sessionId"`
	Winner     uuid.UUID   `json:"winner"`
	Forfeited  bool        `json:"forfeited"`
	Turns      int         `json:"turns"`
	Actions    int         `json:"actions"`
	Placements []Placement `json:"placements"`
	StartedAt  time.Time   `json:"startedAt"`
	EndedAt    time.Time   `json:"endedAt"`
}

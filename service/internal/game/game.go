// internal/game/game.go
package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/engine/agent"
	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotLocalSeat rejects a local decision for a seat this process does not drive.
	ErrNotLocalSeat = errors.New("seat is not driven locally")

	// ErrNoPendingQuiz rejects an answer when no locally drawn quiz is open.
	ErrNoPendingQuiz = errors.New("no quiz awaiting an answer")

	// ErrDesync reports that a remote turn-boundary hash differs from ours.
	ErrDesync = errors.New("state hash mismatch")
)

// OnGameEndFunc is called once when the session finishes.
type OnGameEndFunc func(result models.GameResult)

// GameEventType represents the type of a presentation event.
type GameEventType string

const (
	EventDiceRolled     GameEventType = "dice_rolled"
	EventPawnMoved      GameEventType = "pawn_moved"
	EventPawnCaptured   GameEventType = "pawn_captured"
	EventCellOpened     GameEventType = "cell_event_opened"   // a landed cell opened an event
	EventQuizPrompt     GameEventType = "quiz_prompt"         // local seat must answer
	EventVoteRequested  GameEventType = "duel_vote_requested" // local seat must vote
	EventVoteCast       GameEventType = "duel_vote_cast"
	EventCellResolved   GameEventType = "cell_event_resolved"
	EventTurnSkipped    GameEventType = "turn_skipped"
	EventTurnChanged    GameEventType = "turn_changed"
	EventPlayerFinished GameEventType = "player_finished"
	EventPresence       GameEventType = "player_presence"
	EventSyncState      GameEventType = "sync_state"
	EventDesync         GameEventType = "desync"
	EventGameEnd        GameEventType = "game_end"
)

// EventPlayer identifies a seat within a GameEvent.
type EventPlayer struct {
	Seat  uint8     `json:"seat"`
	Color string    `json:"color"`
	ID    uuid.UUID `json:"id,omitempty"`
}

// GameEvent is what the session hands to the presentation layer.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	Player  *EventPlayer           `json:"player,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	State   *SyncState             `json:"state,omitempty"`
}

// Options configures a Session.
type Options struct {
	ID      uuid.UUID
	Rules   engine.HouseRules
	Players []models.Player // turn order; Local marks seats this process decides for

	Content engine.ContentProvider
	Lookup  func(id string) (engine.Content, bool) // resolves content named by remote records
	Seed    uint64                                 // 0 picks a time-based seed
	Policy  agent.Policy

	ComputerDelayMin    time.Duration
	ComputerDelayMax    time.Duration
	TurnTimeout         time.Duration // 0 disables the turn timer
	ForfeitOnDisconnect bool

	Logger *logrus.Logger
}

// drawnEvent is the content and outcome decided locally for the open event.
type drawnEvent struct {
	ok       bool
	content  engine.Content
	success  bool
	mag      uint8
	fallback bool
}

// Session owns one engine.GameState and is its single writer. Local
// decisions, computer players and inbound records all pass through dispatch.
type Session struct {
	ID      uuid.UUID
	Players []models.Player

	Mu sync.Mutex

	state   engine.GameState
	rng     *engine.RNG
	content engine.ContentProvider
	lookup  func(id string) (engine.Content, bool)
	agents  []agent.Player
	drawn   drawnEvent

	history []engine.Action
	serial  uint64 // bumped on every applied action
	seq     uint64 // highest relay sequence applied

	boundary    engine.Checkpoint // latest turn-boundary checkpoint
	boundarySeq uint64

	computerDelayMin    time.Duration
	computerDelayMax    time.Duration
	turnTimeout         time.Duration
	forfeitOnDisconnect bool
	computerTimer       *time.Timer
	turnTimer           *time.Timer
	timerTurn           uint16
	computerGen         uint64 // invalidates callbacks of replaced timers
	turnGen             uint64

	startedAt time.Time
	ended     bool
	result    models.GameResult

	log *logrus.Entry

	// Communication callbacks, invoked with Mu held.
	SendFn      func(rec protocol.Record) // locally decided actions, for the relay
	BroadcastFn func(ev GameEvent)        // presentation sink
	OnGameEnd   OnGameEndFunc

	// OnApplied sees every applied action in apply order. boundary is set
	// when the action left the session at a turn boundary.
	OnApplied func(rec protocol.Record, boundary *engine.Checkpoint)
}

// NewSession validates the seats and creates the engine state. Nothing is
// dispatched until Start.
func NewSession(opts Options) (*Session, error) {
	seats := make([]engine.Seat, len(opts.Players))
	for i, p := range opts.Players {
		seats[i] = engine.Seat{Color: p.Color, Computer: p.Computer}
	}
	state, err := engine.NewGame(opts.Rules, seats)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.ComputerDelayMax < opts.ComputerDelayMin {
		opts.ComputerDelayMax = opts.ComputerDelayMin
	}

	s := &Session{
		ID:                  id,
		Players:             make([]models.Player, len(opts.Players)),
		state:               state,
		rng:                 engine.NewRNG(seed),
		content:             opts.Content,
		lookup:              opts.Lookup,
		agents:              make([]agent.Player, len(opts.Players)),
		computerDelayMin:    opts.ComputerDelayMin,
		computerDelayMax:    opts.ComputerDelayMax,
		turnTimeout:         opts.TurnTimeout,
		forfeitOnDisconnect: opts.ForfeitOnDisconnect,
		log:                 logger.WithField("game_id", id.String()),
	}
	copy(s.Players, opts.Players)
	s.boundary = s.state.Checkpoint()
	for i := range s.Players {
		s.Players[i].Seat = uint8(i)
		if s.Players[i].Computer {
			s.Players[i].Connected = true
		}
		s.agents[i] = agent.New(uint8(i), opts.Policy)
	}
	return s, nil
}

// Start announces the first turn and lets local computer seats act.
func (s *Session) Start() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if !s.startedAt.IsZero() {
		s.log.Warn("Start called twice")
		return
	}
	s.startedAt = time.Now()
	s.log.WithField("players", len(s.Players)).Info("session started")
	s.fireEvent(GameEvent{
		Type:   EventTurnChanged,
		Player: s.eventPlayer(s.state.Current),
		Payload: map[string]interface{}{
			"turn": s.state.Turn,
		},
	})
	s.pump()
}

// Close stops every timer. The session can no longer progress on its own.
func (s *Session) Close() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.stopTimers()
}

// State returns a copy of the engine state.
func (s *Session) State() engine.GameState {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.state
}

// History returns a copy of every applied action, in order.
func (s *Session) History() []engine.Action {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	out := make([]engine.Action, len(s.history))
	copy(out, s.history)
	return out
}

// Seq is the highest relay sequence number applied.
func (s *Session) Seq() uint64 {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.seq
}

// Result returns the final result once the session has ended.
func (s *Session) Result() (models.GameResult, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.result, s.ended
}

// SetLocal hands a seat to or from this process. The relay uses it to take
// over a dropped seat with the computer policy and to give it back.
func (s *Session) SetLocal(seat uint8, local, computer bool) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if int(seat) >= len(s.Players) {
		return fmt.Errorf("seat %d out of range", seat)
	}
	s.Players[seat].Local = local
	s.Players[seat].Computer = computer
	s.log.WithFields(logrus.Fields{"seat": seat, "local": local, "computer": computer}).Debug("seat control changed")
	s.pump()
	return nil
}

// fireEvent hands an event to the presentation sink.
// Assumes lock is held by caller.
func (s *Session) fireEvent(ev GameEvent) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

func (s *Session) eventPlayer(seat uint8) *EventPlayer {
	if int(seat) >= len(s.Players) {
		return nil
	}
	p := s.Players[seat]
	return &EventPlayer{Seat: seat, Color: p.Color.String(), ID: p.ID}
}

func (s *Session) isLocal(seat uint8) bool {
	return int(seat) < len(s.Players) && s.Players[seat].Local
}

func (s *Session) isLocalComputer(seat uint8) bool {
	return s.isLocal(seat) && s.Players[seat].Computer
}

func (s *Session) isLocalHuman(seat uint8) bool {
	return s.isLocal(seat) && !s.Players[seat].Computer
}

// internal/transport/hub.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/engine/agent"
	"github.com/enaribe/startup-ludo/service/internal/auth"
	"github.com/enaribe/startup-ludo/service/internal/cache"
	"github.com/enaribe/startup-ludo/service/internal/content"
	"github.com/enaribe/startup-ludo/service/internal/database"
	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrBadRequest      = errors.New("bad session request")
)

// SessionStore persists session specs and results. *database.Store
// satisfies it.
type SessionStore interface {
	ResultStore
	SaveSession(ctx context.Context, spec models.SessionSpec, roomHash string) error
	LoadSession(ctx context.Context, id uuid.UUID) (models.SessionSpec, string, error)
	LoadResult(ctx context.Context, id uuid.UUID) (models.GameResult, error)
	RecentResults(ctx context.Context, limit int) ([]models.GameResult, error)
}

// Settings are the room defaults taken from configuration.
type Settings struct {
	Edition             string
	Policy              agent.Policy
	ComputerDelayMin    time.Duration
	ComputerDelayMax    time.Duration
	ReconnectGrace      time.Duration
	TurnTimeout         time.Duration
	ForfeitOnDisconnect bool
}

// Hub owns the live rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room

	actions  cache.ActionLog
	store    SessionStore // nil keeps sessions in memory only
	catalog  *content.Catalog
	auth     *auth.Authenticator
	settings Settings
	logger   *logrus.Logger
}

// NewHub creates a hub. A nil action log keeps records in memory; a nil
// store disables persistence and relay-restart recovery.
func NewHub(actions cache.ActionLog, store SessionStore, catalog *content.Catalog, a *auth.Authenticator, settings Settings, logger *logrus.Logger) *Hub {
	if actions == nil {
		actions = cache.NewMemoryLog()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]*Room),
		actions:  actions,
		store:    store,
		catalog:  catalog,
		auth:     a,
		settings: settings,
		logger:   logger,
	}
}

// SeatRequest describes one seat of a session to create.
type SeatRequest struct {
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"` // empty takes the next free color
	Computer bool   `json:"computer,omitempty"`
}

// CreateRequest is the body of a session creation.
type CreateRequest struct {
	Seats    []SeatRequest   `json:"seats" binding:"required,min=2,max=4,dive"`
	Rules    *protocol.Rules `json:"rules,omitempty"`
	Edition  string          `json:"edition,omitempty"`
	Seed     uint64          `json:"seed,omitempty"`
	Password string          `json:"password,omitempty"`
}

// SeatToken is a seat and, for human seats, the token that joins it.
type SeatToken struct {
	Seat     uint8     `json:"seat"`
	Color    string    `json:"color"`
	Name     string    `json:"name"`
	PlayerID uuid.UUID `json:"playerId"`
	Computer bool      `json:"computer,omitempty"`
	Token    string    `json:"token,omitempty"`
}

// CreateResponse lists the new session's seats with their tokens.
type CreateResponse struct {
	SessionID uuid.UUID   `json:"sessionId"`
	Seats     []SeatToken `json:"seats"`
}

// RoomSummary is a lobby line.
type RoomSummary struct {
	SessionID uuid.UUID `json:"sessionId"`
	Edition   string    `json:"edition"`
	Seats     int       `json:"seats"`
	Connected int       `json:"connected"`
	Private   bool      `json:"private"`
	Ended     bool      `json:"ended"`
	Created   time.Time `json:"created"`
}

// CreateSession builds a room from req, stores its spec and starts its loop.
func (h *Hub) CreateSession(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	spec, err := h.buildSpec(req)
	if err != nil {
		return CreateResponse{}, err
	}
	var hash string
	if req.Password != "" {
		if hash, err = auth.HashRoomPassword(req.Password); err != nil {
			return CreateResponse{}, err
		}
	}
	if h.store != nil {
		if err := h.store.SaveSession(ctx, spec, hash); err != nil {
			return CreateResponse{}, fmt.Errorf("store session: %w", err)
		}
	}
	if _, err := h.startRoom(spec, hash); err != nil {
		return CreateResponse{}, err
	}

	resp := CreateResponse{SessionID: spec.ID}
	for _, p := range spec.Players {
		st := SeatToken{Seat: p.Seat, Color: p.Color.String(), Name: p.Name, PlayerID: p.ID, Computer: p.Computer}
		if !p.Computer {
			if st.Token, err = h.auth.Issue(spec.ID, p.ID, p.Seat, p.Name); err != nil {
				return CreateResponse{}, err
			}
		}
		resp.Seats = append(resp.Seats, st)
	}
	h.logger.WithFields(logrus.Fields{"session_id": spec.ID, "seats": len(spec.Players), "edition": spec.Edition}).Info("session created")
	return resp, nil
}

func (h *Hub) buildSpec(req CreateRequest) (models.SessionSpec, error) {
	if n := len(req.Seats); n < 2 || n > engine.MaxPlayers {
		return models.SessionSpec{}, fmt.Errorf("%w: %d seats", ErrBadRequest, n)
	}
	rules := engine.DefaultHouseRules()
	if req.Rules != nil {
		rules = req.Rules.Engine()
	}
	edition := req.Edition
	if edition == "" {
		edition = h.settings.Edition
	}
	if edition == "" && h.catalog != nil {
		edition = h.catalog.DefaultEdition()
	}

	used := make(map[engine.Color]bool)
	for _, s := range req.Seats {
		if s.Color == "" {
			continue
		}
		c, ok := engine.ParseColor(s.Color)
		if !ok {
			return models.SessionSpec{}, fmt.Errorf("%w: unknown color %q", ErrBadRequest, s.Color)
		}
		if used[c] {
			return models.SessionSpec{}, fmt.Errorf("%w: color %s taken twice", ErrBadRequest, c)
		}
		used[c] = true
	}

	spec := models.SessionSpec{
		ID:      uuid.New(),
		Rules:   rules,
		Edition: edition,
		Seed:    req.Seed,
		Private: req.Password != "",
		Created: time.Now().UTC(),
	}
	next := engine.Color(0)
	for i, s := range req.Seats {
		c, ok := engine.ParseColor(s.Color)
		if !ok {
			for used[next] {
				next++
			}
			c = next
			used[c] = true
		}
		name := s.Name
		if name == "" {
			name = c.String()
		}
		spec.Players = append(spec.Players, models.Player{
			ID:       uuid.New(),
			Name:     name,
			Seat:     uint8(i),
			Color:    c,
			Computer: s.Computer,
		})
	}
	return spec, nil
}

func (h *Hub) roomOptions(spec models.SessionSpec, hash string) RoomOptions {
	opts := RoomOptions{
		Spec:                spec,
		RoomHash:            hash,
		Log:                 h.actions,
		Policy:              h.settings.Policy,
		ComputerDelayMin:    h.settings.ComputerDelayMin,
		ComputerDelayMax:    h.settings.ComputerDelayMax,
		ReconnectGrace:      h.settings.ReconnectGrace,
		TurnTimeout:         h.settings.TurnTimeout,
		ForfeitOnDisconnect: h.settings.ForfeitOnDisconnect,
		Logger:              h.logger,
	}
	if h.store != nil {
		opts.Results = h.store
	}
	if h.catalog != nil {
		opts.Content = h.catalog.Provider(spec.Edition)
		opts.Lookup = h.catalog.Lookup
	}
	return opts
}

func (h *Hub) startRoom(spec models.SessionSpec, hash string) (*Room, error) {
	r, err := NewRoom(h.roomOptions(spec, hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	r.OnEmpty = h.removeRoom
	h.mu.Lock()
	h.rooms[spec.ID] = r
	h.mu.Unlock()
	go r.Run()
	return r, nil
}

func (h *Hub) removeRoom(id uuid.UUID) {
	h.mu.Lock()
	r, ok := h.rooms[id]
	delete(h.rooms, id)
	h.mu.Unlock()
	if ok {
		h.logger.WithField("session_id", id).Info("room closed")
		go r.Stop()
	}
}

// Room returns the live room for id. A session known to the store but not
// live, such as after a relay restart, is rebuilt from its last checkpoint
// and the records logged after it.
func (h *Hub) Room(ctx context.Context, id uuid.UUID) (*Room, error) {
	h.mu.RLock()
	r, ok := h.rooms[id]
	h.mu.RUnlock()
	if ok {
		return r, nil
	}
	if h.store == nil {
		return nil, ErrSessionNotFound
	}
	return h.recoverRoom(ctx, id)
}

func (h *Hub) recoverRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	spec, hash, err := h.store.LoadSession(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := h.store.LoadResult(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: session %s is over", ErrSessionNotFound, id)
	}

	cp, found, err := h.actions.LatestCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := h.actions.Since(ctx, id, cp.Seq)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		return r, nil
	}
	r, err := NewRoom(h.roomOptions(spec, hash))
	if err != nil {
		return nil, err
	}
	r.OnEmpty = h.removeRoom
	if found || len(recs) > 0 {
		if !found {
			ecp, _ := r.Mirror().Checkpoint()
			cp = protocol.FromCheckpoint(ecp, 0)
		}
		if err := r.Restore(cp, recs); err != nil {
			r.Stop()
			return nil, fmt.Errorf("recover session %s: %w", id, err)
		}
	}
	h.rooms[id] = r
	go r.Run()
	h.logger.WithFields(logrus.Fields{"session_id": id, "records": len(recs)}).Info("session recovered")
	return r, nil
}

// JoinSeat issues a token for a human seat, checking the room password.
func (h *Hub) JoinSeat(ctx context.Context, id uuid.UUID, seat uint8, password string) (SeatToken, error) {
	r, err := h.Room(ctx, id)
	if err != nil {
		return SeatToken{}, err
	}
	if int(seat) >= len(r.Spec.Players) || r.Spec.Players[seat].Computer {
		return SeatToken{}, fmt.Errorf("%w: seat %d", ErrSeatUnavailable, seat)
	}
	if err := auth.CheckRoomPassword(r.RoomHash, password); err != nil {
		return SeatToken{}, err
	}
	p := r.Spec.Players[seat]
	tok, err := h.auth.Issue(id, p.ID, seat, p.Name)
	if err != nil {
		return SeatToken{}, err
	}
	return SeatToken{Seat: seat, Color: p.Color.String(), Name: p.Name, PlayerID: p.ID, Token: tok}, nil
}

// Attach verifies a hello token and posts the join to its room. It blocks
// until the room answered or ctx ends.
func (h *Hub) Attach(ctx context.Context, c Conn, hello protocol.Hello) (*Room, uint8, error) {
	claims, err := h.auth.Verify(hello.Token)
	if err != nil {
		return nil, 0, err
	}
	r, err := h.Room(ctx, claims.SessionID)
	if err != nil {
		return nil, 0, err
	}
	reply := make(chan JoinResult, 1)
	if !r.post(Join{Conn: c, Claims: claims, LastSeq: hello.LastSeq, Reply: reply}) {
		return nil, 0, ErrRoomClosed
	}
	select {
	case res := <-reply:
		return r, res.Seat, res.Err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// ListRooms returns the live rooms, newest first.
func (h *Hub) ListRooms() []RoomSummary {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummary{
			SessionID: r.ID,
			Edition:   r.Spec.Edition,
			Seats:     len(r.Spec.Players),
			Connected: r.NumConnected(),
			Private:   r.RoomHash != "",
			Ended:     r.Ended(),
			Created:   r.Spec.Created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out
}

// Checkpoint returns the latest turn-boundary checkpoint of a session with
// the sequence it covers, from the live room or from the action log.
func (h *Hub) Checkpoint(ctx context.Context, id uuid.UUID) (engine.Checkpoint, uint64, error) {
	h.mu.RLock()
	r, ok := h.rooms[id]
	h.mu.RUnlock()
	if ok {
		cp, seq, _ := r.Snapshot()
		return cp, seq, nil
	}
	cp, found, err := h.actions.LatestCheckpoint(ctx, id)
	if err != nil {
		return engine.Checkpoint{}, 0, err
	}
	if !found {
		return engine.Checkpoint{}, 0, ErrSessionNotFound
	}
	ecp, err := cp.Engine()
	return ecp, cp.Seq, err
}

// Result returns a finished session's result.
func (h *Hub) Result(ctx context.Context, id uuid.UUID) (models.GameResult, error) {
	h.mu.RLock()
	r, ok := h.rooms[id]
	h.mu.RUnlock()
	if ok {
		if res, over := r.Mirror().Result(); over {
			return res, nil
		}
		return models.GameResult{}, fmt.Errorf("%w: session %s still running", ErrSessionNotFound, id)
	}
	if h.store == nil {
		return models.GameResult{}, ErrSessionNotFound
	}
	res, err := h.store.LoadResult(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return res, ErrSessionNotFound
	}
	return res, err
}

// RecentResults lists stored results, newest first.
func (h *Hub) RecentResults(ctx context.Context, limit int) ([]models.GameResult, error) {
	if h.store == nil {
		return nil, nil
	}
	return h.store.RecentResults(ctx, limit)
}

// Close stops every room.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uuid.UUID]*Room)
	h.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
	}
}

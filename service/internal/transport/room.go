// internal/transport/room.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/engine/agent"
	"github.com/enaribe/startup-ludo/service/internal/cache"
	"github.com/enaribe/startup-ludo/service/internal/game"
	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrSeatUnavailable = errors.New("seat cannot be joined")
	ErrWrongSession    = errors.New("token is for another session")
	ErrRoomClosed      = errors.New("room closed")
)

const saveTimeout = 5 * time.Second

// ResultStore receives final results; *database.Store satisfies it.
type ResultStore interface {
	SaveResult(ctx context.Context, res models.GameResult) error
}

// RoomOptions configures a Room.
type RoomOptions struct {
	Spec     models.SessionSpec
	RoomHash string // bcrypt hash of the room password, empty for open rooms

	Content engine.ContentProvider
	Lookup  func(id string) (engine.Content, bool)
	Log     cache.ActionLog
	Results ResultStore // nil skips persistence

	Policy              agent.Policy
	ComputerDelayMin    time.Duration
	ComputerDelayMax    time.Duration
	ReconnectGrace      time.Duration
	TurnTimeout         time.Duration // advertised to peers
	ForfeitOnDisconnect bool

	Logger *logrus.Logger
}

// gameEnded is posted by the mirror once the session finishes.
type gameEnded struct{}

// Room relays one session. A mirror game.Session validates every record,
// plays the computer seats and any human seat whose peer dropped, and is the
// source of the sequence numbers peers see.
type Room struct {
	ID       uuid.UUID
	Spec     models.SessionSpec
	RoomHash string
	Inbox    chan any
	OnEmpty  func(id uuid.UUID) // called when the session is over and no peer is left

	mirror  *game.Session
	writer  *cache.Writer
	results ResultStore
	grace   time.Duration
	timeout time.Duration
	log     *logrus.Entry

	quit     chan struct{}
	stopOnce sync.Once

	// owned by the Run loop
	started     bool
	joined      []bool
	driven      []bool // the mirror plays this human seat
	graceGen    []uint64
	graceTimers []*time.Timer

	mu          sync.Mutex // taken inside mirror callbacks; never call the mirror while holding it
	conns       map[uint8]Conn
	seq         uint64
	boundary    engine.Checkpoint
	boundarySeq uint64
	backlog     []protocol.Record // records after the boundary
	restoring   bool
	ended       bool
}

// NewRoom builds the mirror session for opts.Spec. Nothing runs until Run.
func NewRoom(opts RoomOptions) (*Room, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	spec := opts.Spec
	players := make([]models.Player, len(spec.Players))
	for i, p := range spec.Players {
		p.Local = p.Computer
		p.Connected = p.Computer
		players[i] = p
	}
	mirror, err := game.NewSession(game.Options{
		ID:                  spec.ID,
		Rules:               spec.Rules,
		Players:             players,
		Content:             opts.Content,
		Lookup:              opts.Lookup,
		Seed:                spec.Seed,
		Policy:              opts.Policy,
		ComputerDelayMin:    opts.ComputerDelayMin,
		ComputerDelayMax:    opts.ComputerDelayMax,
		ForfeitOnDisconnect: opts.ForfeitOnDisconnect,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}

	n := len(players)
	r := &Room{
		ID:          spec.ID,
		Spec:        spec,
		RoomHash:    opts.RoomHash,
		Inbox:       make(chan any, 256),
		mirror:      mirror,
		results:     opts.Results,
		grace:       opts.ReconnectGrace,
		timeout:     opts.TurnTimeout,
		log:         logger.WithField("session_id", spec.ID.String()),
		quit:        make(chan struct{}),
		joined:      make([]bool, n),
		driven:      make([]bool, n),
		graceGen:    make([]uint64, n),
		graceTimers: make([]*time.Timer, n),
		conns:       make(map[uint8]Conn),
	}
	if opts.Log == nil {
		opts.Log = cache.NewMemoryLog()
	}
	r.writer = cache.NewWriter(opts.Log, spec.ID, r.log)
	r.boundary, r.boundarySeq = mirror.Checkpoint()

	mirror.OnApplied = r.onApplied
	mirror.OnGameEnd = r.onGameEnd
	mirror.BroadcastFn = r.onEvent
	return r, nil
}

// Stop ends the loop, the mirror's timers and the log writer.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
		r.mirror.Close()
		for _, t := range r.graceTimers {
			if t != nil {
				t.Stop()
			}
		}
		r.writer.Close()
		r.mu.Lock()
		for _, c := range r.conns {
			_ = c.Close()
		}
		r.conns = map[uint8]Conn{}
		r.mu.Unlock()
	})
}

// NumConnected returns the number of peers currently attached.
func (r *Room) NumConnected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Ended reports whether the session is over.
func (r *Room) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// Snapshot returns the latest turn-boundary checkpoint, its sequence and the
// records applied after it.
func (r *Room) Snapshot() (engine.Checkpoint, uint64, []protocol.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boundary, r.boundarySeq, append([]protocol.Record(nil), r.backlog...)
}

// Mirror exposes the relay's session for inspection.
func (r *Room) Mirror() *game.Session { return r.mirror }

// post delivers cmd to the loop unless the room stopped.
func (r *Room) post(cmd any) bool {
	select {
	case r.Inbox <- cmd:
		return true
	case <-r.quit:
		return false
	}
}

// Run processes commands until Stop.
func (r *Room) Run() {
	for {
		select {
		case <-r.quit:
			return
		case cmd := <-r.Inbox:
			r.handleCommand(cmd)
		}
	}
}

func (r *Room) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case Join:
		seat, err := r.handleJoin(c)
		if c.Reply != nil {
			c.Reply <- JoinResult{Seat: seat, Err: err}
		}
	case Inbound:
		r.handleInbound(c)
	case Leave:
		r.handleLeave(c)
	case takeover:
		r.handleTakeover(c)
	case gameEnded:
		r.checkEmpty()
	}
}

// ---------------------------------------------------------------------------
// Joining and leaving
// ---------------------------------------------------------------------------

func (r *Room) handleJoin(j Join) (uint8, error) {
	if j.Claims == nil || j.Claims.SessionID != r.ID {
		return 0, ErrWrongSession
	}
	seat := j.Claims.Seat
	if int(seat) >= len(r.Spec.Players) || r.Spec.Players[seat].Computer {
		return seat, fmt.Errorf("%w: seat %d", ErrSeatUnavailable, seat)
	}

	r.cancelGrace(seat)
	forceCheckpoint := j.LastSeq == 0 || r.driven[seat]
	if r.driven[seat] {
		r.driven[seat] = false
		if err := r.mirror.SetLocal(seat, false, false); err != nil {
			r.log.WithError(err).Error("handing seat back failed")
		}
	}

	r.mu.Lock()
	if old, ok := r.conns[seat]; ok && old != j.Conn {
		r.sendErrorLocked(old, "replaced", "seat joined from another connection")
		_ = old.Close()
	}
	r.conns[seat] = j.Conn
	err := r.sendWelcomeLocked(j.Conn, seat, j.LastSeq, forceCheckpoint)
	r.mu.Unlock()
	if err != nil {
		r.log.WithError(err).WithField("seat", seat).Warn("sending welcome failed")
	}

	r.joined[seat] = true
	r.log.WithFields(logrus.Fields{"seat": seat, "last_seq": j.LastSeq}).Info("peer joined")
	r.mirror.HandleReconnect(seat)
	r.broadcastPresence(seat, true)
	r.maybeStart()
	return seat, nil
}

// maybeStart starts play once every human seat has joined.
func (r *Room) maybeStart() {
	if r.started {
		return
	}
	for i, p := range r.Spec.Players {
		if !p.Computer && !r.joined[i] {
			return
		}
	}
	r.started = true
	r.log.Info("all seats joined, starting")
	b, err := protocol.Encode(protocol.MsgStart, struct{}{})
	if err == nil {
		r.mu.Lock()
		r.broadcastLocked(b)
		r.mu.Unlock()
	}
	r.mirror.Start()
}

func (r *Room) handleLeave(l Leave) {
	r.mu.Lock()
	c, ok := r.conns[l.Seat]
	if !ok || c != l.Conn {
		r.mu.Unlock()
		return
	}
	delete(r.conns, l.Seat)
	r.mu.Unlock()
	_ = c.Close()

	r.log.WithField("seat", l.Seat).Info("peer left")
	r.broadcastPresence(l.Seat, false)
	if r.mirror.HandleDisconnect(l.Seat) {
		return
	}
	if r.started && !r.Ended() {
		r.scheduleTakeover(l.Seat)
	}
	r.checkEmpty()
}

// scheduleTakeover lets the mirror play seat once the reconnect grace ends.
func (r *Room) scheduleTakeover(seat uint8) {
	r.cancelGrace(seat)
	gen := r.graceGen[seat]
	if r.grace <= 0 {
		r.handleTakeover(takeover{Seat: seat, Gen: gen})
		return
	}
	r.graceTimers[seat] = time.AfterFunc(r.grace, func() {
		r.post(takeover{Seat: seat, Gen: gen})
	})
}

func (r *Room) cancelGrace(seat uint8) {
	r.graceGen[seat]++
	if t := r.graceTimers[seat]; t != nil {
		t.Stop()
		r.graceTimers[seat] = nil
	}
}

func (r *Room) handleTakeover(t takeover) {
	if t.Gen != r.graceGen[t.Seat] || r.driven[t.Seat] {
		return
	}
	r.mu.Lock()
	_, connected := r.conns[t.Seat]
	r.mu.Unlock()
	if connected || r.Ended() {
		return
	}
	r.driven[t.Seat] = true
	r.log.WithField("seat", t.Seat).Info("computer takes over dropped seat")
	if err := r.mirror.SetLocal(t.Seat, true, true); err != nil {
		r.log.WithError(err).Error("takeover failed")
	}
}

// checkEmpty hands the room back to its owner once nothing is left to relay.
func (r *Room) checkEmpty() {
	if !r.Ended() || r.NumConnected() > 0 {
		return
	}
	if r.OnEmpty != nil {
		r.OnEmpty(r.ID)
	}
}

// ---------------------------------------------------------------------------
// Inbound frames
// ---------------------------------------------------------------------------

func (r *Room) handleInbound(in Inbound) {
	r.mu.Lock()
	current := r.conns[in.Seat] == in.Conn
	r.mu.Unlock()
	if !current {
		return
	}
	log := r.log.WithField("seat", in.Seat)

	env, err := protocol.DecodeEnvelope(in.Data)
	if err != nil {
		log.WithError(err).Warn("malformed frame")
		r.sendError(in.Conn, "malformed", err.Error())
		return
	}

	switch env.T {
	case protocol.MsgAction:
		rec, err := protocol.DecodePayload[protocol.Record](env)
		if err != nil {
			r.sendError(in.Conn, "malformed", err.Error())
			return
		}
		r.relay(in, rec)

	case protocol.MsgResync:
		log.Info("peer asked for resync")
		r.resync(in.Conn, in.Seat)

	default:
		r.sendError(in.Conn, "unexpected", fmt.Sprintf("message %q not accepted from peers", env.T))
	}
}

// relay validates a peer record against the mirror. Applied records reach
// every peer through onApplied; a rejected one means the sender diverged.
func (r *Room) relay(in Inbound, rec protocol.Record) {
	log := r.log.WithFields(logrus.Fields{"seat": in.Seat, "record": rec.T})
	if rec.A != in.Seat {
		log.WithField("actor", rec.A).Warn("record for a seat the peer does not hold")
		r.sendError(in.Conn, "not_your_seat", fmt.Sprintf("seat %d cannot act for seat %d", in.Seat, rec.A))
		return
	}
	if !r.started {
		r.sendError(in.Conn, "not_started", "waiting for every seat to join")
		return
	}
	rec.N = 0
	err := r.mirror.HandleRemote(rec)
	switch {
	case err == nil:
	case errors.Is(err, game.ErrDesync):
		log.Warn("peer state diverged, resyncing")
		r.resync(in.Conn, in.Seat)
	default:
		r.sendError(in.Conn, "rejected", err.Error())
		r.resync(in.Conn, in.Seat)
	}
}

func (r *Room) resync(c Conn, seat uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sendWelcomeLocked(c, seat, 0, true); err != nil {
		r.log.WithError(err).WithField("seat", seat).Warn("sending resync failed")
	}
}

// ---------------------------------------------------------------------------
// Mirror callbacks, invoked with the mirror's lock held
// ---------------------------------------------------------------------------

func (r *Room) onApplied(rec protocol.Record, boundary *engine.Checkpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.N = r.seq
	r.backlog = append(r.backlog, rec)
	if !r.restoring {
		r.writer.Record(rec)
	}
	if boundary != nil {
		r.boundary = *boundary
		r.boundarySeq = r.seq
		r.backlog = nil
		if !r.restoring {
			r.writer.Checkpoint(protocol.FromCheckpoint(r.boundary, r.boundarySeq))
		}
	}
	if r.restoring {
		return
	}
	b, err := protocol.Encode(protocol.MsgAction, rec)
	if err != nil {
		r.log.WithError(err).Error("encoding record")
		return
	}
	r.broadcastLocked(b)
}

func (r *Room) onGameEnd(res models.GameResult) {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"winner": res.Winner, "turns": res.Turns}).Info("session over")

	if r.results != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			if err := r.results.SaveResult(ctx, res); err != nil {
				r.log.WithError(err).Error("failed storing result")
			}
		}()
	}
	go r.post(gameEnded{})
}

func (r *Room) onEvent(ev game.GameEvent) {
	switch ev.Type {
	case game.EventDesync:
		r.log.WithFields(logrus.Fields(ev.Payload)).Warn("mirror saw a diverging hash")
	case game.EventPlayerFinished, game.EventCellResolved:
		r.log.WithField("event", ev.Type).Debug("session event")
	}
}

// ---------------------------------------------------------------------------
// Outgoing frames
// ---------------------------------------------------------------------------

// sendWelcomeLocked sends the seat list and what the peer needs to catch up.
// Assumes r.mu is held.
func (r *Room) sendWelcomeLocked(c Conn, seat uint8, lastSeq uint64, forceCheckpoint bool) error {
	w := protocol.Welcome{
		SessionID:     r.ID,
		Seat:          seat,
		Seats:         r.seatInfoLocked(),
		Rules:         protocol.FromRules(r.Spec.Rules),
		Edition:       r.Spec.Edition,
		Started:       r.started,
		TurnTimeoutMs: r.timeout.Milliseconds(),
	}
	if forceCheckpoint || lastSeq < r.boundarySeq {
		cp := protocol.FromCheckpoint(r.boundary, r.boundarySeq)
		w.Checkpoint = &cp
		w.Backlog = append([]protocol.Record(nil), r.backlog...)
	} else {
		for _, rec := range r.backlog {
			if rec.N > lastSeq {
				w.Backlog = append(w.Backlog, rec)
			}
		}
	}
	b, err := protocol.Encode(protocol.MsgWelcome, w)
	if err != nil {
		return err
	}
	return c.Send(b)
}

func (r *Room) seatInfoLocked() []protocol.SeatInfo {
	out := make([]protocol.SeatInfo, len(r.Spec.Players))
	for i, p := range r.Spec.Players {
		_, connected := r.conns[uint8(i)]
		out[i] = protocol.SeatInfo{
			Seat:      uint8(i),
			Color:     p.Color.String(),
			Name:      p.Name,
			PeerID:    p.ID,
			Computer:  p.Computer,
			Connected: connected || p.Computer,
		}
	}
	return out
}

func (r *Room) broadcastPresence(seat uint8, connected bool) {
	b, err := protocol.Encode(protocol.MsgPresence, protocol.Presence{Seat: seat, Connected: connected})
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(b)
}

// broadcastLocked sends b to every peer. Peers that cannot keep up are
// dropped. Assumes r.mu is held.
func (r *Room) broadcastLocked(b []byte) {
	for seat, c := range r.conns {
		if err := c.Send(b); err != nil {
			r.log.WithError(err).WithField("seat", seat).Warn("dropping peer")
			_ = c.Close()
			go r.post(Leave{Seat: seat, Conn: c})
		}
	}
}

func (r *Room) sendError(c Conn, code, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErrorLocked(c, code, msg)
}

func (r *Room) sendErrorLocked(c Conn, code, msg string) {
	b, err := protocol.Encode(protocol.MsgError, protocol.ErrorMsg{Code: code, Message: msg})
	if err != nil {
		return
	}
	_ = c.Send(b)
}

// ---------------------------------------------------------------------------
// Recovery
// ---------------------------------------------------------------------------

// Restore rebuilds the mirror from a stored checkpoint and the records after
// it, for a relay that restarted mid-session. Every human seat counts as
// dropped until its peer rejoins.
func (r *Room) Restore(cp protocol.Checkpoint, recs []protocol.Record) error {
	ecp, err := cp.Engine()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.restoring = true
	r.seq = cp.Seq
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.restoring = false
		r.mu.Unlock()
	}()

	if err := r.mirror.Resync(ecp, cp.Seq); err != nil {
		return fmt.Errorf("restore checkpoint: %w", err)
	}
	r.mu.Lock()
	r.boundary, r.boundarySeq = ecp, cp.Seq
	r.backlog = nil
	r.mu.Unlock()
	for _, rec := range recs {
		if rec.N != r.currentSeq()+1 {
			return fmt.Errorf("restore: gap before seq %d", rec.N)
		}
		rec.N = 0
		if err := r.mirror.CatchUp([]protocol.Record{rec}); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}

	r.started = true
	for i := range r.joined {
		r.joined[i] = true
	}
	r.mirror.Start()
	for i, p := range r.Spec.Players {
		if !p.Computer {
			r.mirror.HandleDisconnect(uint8(i))
			r.scheduleTakeover(uint8(i))
		}
	}
	r.log.WithField("seq", r.currentSeq()).Info("room restored")
	return nil
}

func (r *Room) currentSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

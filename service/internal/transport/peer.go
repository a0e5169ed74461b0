// internal/transport/peer.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/engine/agent"
	"github.com/enaribe/startup-ludo/service/internal/game"
	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/sirupsen/logrus"
)

var ErrNoWelcome = errors.New("relay did not welcome the peer")

// PeerOptions configures a Peer.
type PeerOptions struct {
	URL   string // websocket endpoint of the relay, e.g. ws://host/ws
	Token string

	Content engine.ContentProvider
	Lookup  func(id string) (engine.Content, bool)

	Computer         bool // the seat is played by Policy instead of a person
	Policy           agent.Policy
	ComputerDelayMin time.Duration
	ComputerDelayMax time.Duration
	TurnTimeout      time.Duration // 0 takes the relay's advertised timeout

	OnEvent func(ev game.GameEvent) // presentation sink, called with the session lock held
	Logger  *logrus.Logger
}

// Peer is a client of the relay. It holds a full replica of the session,
// decides for its own seat and applies everyone else's records.
type Peer struct {
	opts PeerOptions
	log  *logrus.Entry

	mu      sync.Mutex
	conn    *wsConn
	session *game.Session
	seat    uint8
	started bool
	unacked int // records sent for our seat the relay has not echoed yet
	lastErr *protocol.ErrorMsg

	welcomed chan struct{}
	done     chan struct{}
}

// Dial connects to the relay, says hello and waits for the welcome.
func Dial(ctx context.Context, opts PeerOptions) (*Peer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Peer{opts: opts, log: logger.WithField("component", "peer")}
	if err := p.connect(ctx, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// Reconnect dials again and asks only for the records this replica misses.
// If some of our records may never have reached the relay the replica is
// rebuilt from a checkpoint instead.
func (p *Peer) Reconnect(ctx context.Context) error {
	p.Close()
	<-p.Done()
	var last uint64
	p.mu.Lock()
	s, unacked := p.session, p.unacked
	p.mu.Unlock()
	if s != nil && unacked == 0 {
		last = s.Seq()
	}
	return p.connect(ctx, last)
}

func (p *Peer) connect(ctx context.Context, lastSeq uint64) error {
	ws, _, err := websocket.Dial(ctx, p.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	conn := newWSConn(ws)
	hello, err := protocol.Encode(protocol.MsgHello, protocol.Hello{Token: p.opts.Token, LastSeq: lastSeq})
	if err != nil {
		_ = conn.Close()
		return err
	}

	welcomed := make(chan struct{})
	done := make(chan struct{})
	p.mu.Lock()
	p.conn = conn
	p.welcomed = welcomed
	p.done = done
	p.lastErr = nil
	p.mu.Unlock()

	if err := conn.Send(hello); err != nil {
		_ = conn.Close()
		return err
	}
	go p.readLoop(conn, done)

	select {
	case <-welcomed:
		return nil
	case <-done:
		if e := p.LastError(); e != nil {
			return fmt.Errorf("%w: %s", ErrNoWelcome, e.Message)
		}
		return ErrNoWelcome
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
}

// Session is the local replica, nil until the first welcome.
func (p *Peer) Session() *game.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Seat is the seat this peer holds.
func (p *Peer) Seat() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seat
}

// LastError is the latest error the relay reported, if any.
func (p *Peer) LastError() *protocol.ErrorMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Done is closed when the connection ends.
func (p *Peer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Close drops the connection. The replica is kept for Reconnect.
func (p *Peer) Close() {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c != nil {
		_ = c.Close()
		_ = c.ws.CloseNow()
	}
}

// Shutdown closes the connection and stops the replica's timers.
func (p *Peer) Shutdown() {
	p.Close()
	if s := p.Session(); s != nil {
		s.Close()
	}
}

// FetchCheckpoint decodes a checkpoint envelope, as served by the relay's
// checkpoint endpoint, and restores the replica from it.
func (p *Peer) FetchCheckpoint(body []byte) error {
	s := p.Session()
	if s == nil {
		return ErrNoWelcome
	}
	env, err := protocol.DecodeEnvelope(body)
	if err != nil {
		return err
	}
	cp, seq, err := protocol.DecodeCheckpoint(env)
	if err != nil {
		return err
	}
	return s.Resync(cp, seq)
}

// RequestResync asks the relay for a fresh checkpoint.
func (p *Peer) RequestResync() error {
	b, err := protocol.Encode(protocol.MsgResync, struct{}{})
	if err != nil {
		return err
	}
	return p.send(b)
}

func (p *Peer) send(b []byte) error {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return errConnClosed
	}
	return c.Send(b)
}

func (p *Peer) readLoop(c *wsConn, done chan struct{}) {
	defer close(done)
	defer c.Close()
	for {
		data, err := c.read(context.Background())
		if err != nil {
			p.log.WithError(err).Debug("relay connection ended")
			return
		}
		if err := p.handle(data); err != nil {
			p.log.WithError(err).Warn("handling relay message")
		}
	}
}

func (p *Peer) handle(data []byte) error {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	switch env.T {
	case protocol.MsgWelcome:
		w, err := protocol.DecodePayload[protocol.Welcome](env)
		if err != nil {
			return err
		}
		return p.onWelcome(w)

	case protocol.MsgAction:
		rec, err := protocol.DecodePayload[protocol.Record](env)
		if err != nil {
			return err
		}
		s := p.Session()
		if s == nil {
			return ErrNoWelcome
		}
		p.noteAck(rec)
		if err := s.HandleRemote(rec); err != nil {
			p.log.WithError(err).WithField("seq", rec.N).Warn("record not applied, asking for resync")
			return p.RequestResync()
		}

	case protocol.MsgStart:
		p.start()

	case protocol.MsgPresence:
		pr, err := protocol.DecodePayload[protocol.Presence](env)
		if err != nil {
			return err
		}
		s := p.Session()
		if s == nil || pr.Seat == p.Seat() {
			return nil
		}
		if pr.Connected {
			s.HandleReconnect(pr.Seat)
		} else {
			s.HandleDisconnect(pr.Seat)
		}

	case protocol.MsgError:
		e, err := protocol.DecodePayload[protocol.ErrorMsg](env)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.lastErr = &e
		p.mu.Unlock()
		p.log.WithFields(logrus.Fields{"code": e.Code, "message": e.Message}).Warn("relay reported an error")

	default:
		p.log.WithField("type", env.T).Debug("ignoring message")
	}
	return nil
}

func (p *Peer) onWelcome(w protocol.Welcome) error {
	s := p.Session()
	if s == nil {
		var err error
		if s, err = p.buildSession(w); err != nil {
			return err
		}
	}

	if w.Checkpoint != nil {
		p.mu.Lock()
		p.unacked = 0
		p.mu.Unlock()
	} else {
		for _, rec := range w.Backlog {
			p.noteAck(rec)
		}
	}
	if err := applyWelcome(s, w); err != nil {
		p.log.WithError(err).Warn("welcome did not apply, asking for resync")
		if err := p.RequestResync(); err != nil {
			return err
		}
	}

	if w.Started {
		p.start()
	}
	p.mu.Lock()
	welcomed := p.welcomed
	p.welcomed = nil
	p.mu.Unlock()
	if welcomed != nil {
		close(welcomed)
	}
	return nil
}

// applyWelcome restores the checkpoint if one came and replays the backlog.
func applyWelcome(s *game.Session, w protocol.Welcome) error {
	switch {
	case w.Checkpoint != nil:
		cp, err := w.Checkpoint.Engine()
		if err != nil {
			return err
		}
		if err := s.Resync(cp, w.Checkpoint.Seq); err != nil {
			return err
		}
		return s.CatchUp(w.Backlog)
	case s.Seq() == 0:
		return s.CatchUp(w.Backlog)
	}
	for _, rec := range w.Backlog {
		if err := s.HandleRemote(rec); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) buildSession(w protocol.Welcome) (*game.Session, error) {
	players := make([]models.Player, len(w.Seats))
	for i, si := range w.Seats {
		c, ok := engine.ParseColor(si.Color)
		if !ok {
			return nil, fmt.Errorf("%w: seat %d has unknown color %q", engine.ErrProtocolViolation, i, si.Color)
		}
		mine := si.Seat == w.Seat
		players[i] = models.Player{
			ID:        si.PeerID,
			Name:      si.Name,
			Seat:      si.Seat,
			Color:     c,
			Computer:  si.Computer || (mine && p.opts.Computer),
			Local:     mine,
			Connected: si.Connected || mine,
		}
	}
	timeout := p.opts.TurnTimeout
	if timeout == 0 {
		timeout = time.Duration(w.TurnTimeoutMs) * time.Millisecond
	}
	s, err := game.NewSession(game.Options{
		ID:               w.SessionID,
		Rules:            w.Rules.Engine(),
		Players:          players,
		Content:          p.opts.Content,
		Lookup:           p.opts.Lookup,
		Policy:           p.opts.Policy,
		ComputerDelayMin: p.opts.ComputerDelayMin,
		ComputerDelayMax: p.opts.ComputerDelayMax,
		TurnTimeout:      timeout,
		Logger:           p.log.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.SendFn = func(rec protocol.Record) {
		b, err := protocol.Encode(protocol.MsgAction, rec)
		if err != nil {
			p.log.WithError(err).Error("encoding record")
			return
		}
		p.mu.Lock()
		p.unacked++
		p.mu.Unlock()
		if err := p.send(b); err != nil {
			p.log.WithError(err).Warn("record not sent")
		}
	}
	s.BroadcastFn = p.opts.OnEvent

	p.mu.Lock()
	p.session = s
	p.seat = w.Seat
	p.mu.Unlock()
	return s, nil
}

// noteAck counts the relay's echo of one of our records.
func (p *Peer) noteAck(rec protocol.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.N != 0 && rec.A == p.seat && p.unacked > 0 {
		p.unacked--
	}
}

func (p *Peer) start() {
	p.mu.Lock()
	if p.started || p.session == nil {
		p.mu.Unlock()
		return
	}
	p.started = true
	s := p.session
	p.mu.Unlock()
	s.Start()
}

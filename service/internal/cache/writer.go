// internal/cache/writer.go
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 2 * time.Second

type writeOp struct {
	rec *protocol.Record
	cp  *protocol.Checkpoint
}

// Writer persists one session's records in the background, in the order
// they were queued. Callers holding a game lock queue without waiting on
// the store.
type Writer struct {
	log       ActionLog
	sessionID uuid.UUID
	logger    *logrus.Entry

	mu     sync.Mutex
	queue  []writeOp
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewWriter starts the background loop for sessionID.
func NewWriter(log ActionLog, sessionID uuid.UUID, logger *logrus.Entry) *Writer {
	w := &Writer{
		log:       log,
		sessionID: sessionID,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

// Record queues rec for Append.
func (w *Writer) Record(rec protocol.Record) {
	w.push(writeOp{rec: &rec})
}

// Checkpoint queues cp for SaveCheckpoint.
func (w *Writer) Checkpoint(cp protocol.Checkpoint) {
	w.push(writeOp{cp: &cp})
}

func (w *Writer) push(op writeOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("write after close dropped")
		return
	}
	w.queue = append(w.queue, op)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close flushes what is queued and stops the loop.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for range w.wake {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		closed := w.closed
		w.mu.Unlock()

		for _, op := range batch {
			w.apply(op)
		}
		if closed {
			w.mu.Lock()
			rest := w.queue
			w.queue = nil
			w.mu.Unlock()
			for _, op := range rest {
				w.apply(op)
			}
			return
		}
	}
}

func (w *Writer) apply(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	switch {
	case op.rec != nil:
		if err := w.log.Append(ctx, w.sessionID, *op.rec); err != nil {
			w.logger.WithError(err).WithField("seq", op.rec.N).Error("failed persisting record")
		}
	case op.cp != nil:
		if err := w.log.SaveCheckpoint(ctx, w.sessionID, *op.cp); err != nil {
			w.logger.WithError(err).WithField("seq", op.cp.Seq).Error("failed persisting checkpoint")
		}
	}
}

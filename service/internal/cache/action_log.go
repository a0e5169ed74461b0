// internal/cache/action_log.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrOutOfOrder rejects an append whose sequence is not above the log's last.
var ErrOutOfOrder = errors.New("record sequence out of order")

// ActionLog stores the ordered records and the latest turn-boundary
// checkpoint of each session. Records carry their relay sequence in N.
type ActionLog interface {
	Append(ctx context.Context, sessionID uuid.UUID, rec protocol.Record) error
	Since(ctx context.Context, sessionID uuid.UUID, after uint64) ([]protocol.Record, error)
	SaveCheckpoint(ctx context.Context, sessionID uuid.UUID, cp protocol.Checkpoint) error
	LatestCheckpoint(ctx context.Context, sessionID uuid.UUID) (protocol.Checkpoint, bool, error)
	Remove(ctx context.Context, sessionID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// RedisLog keeps records in one stream per session, with the relay sequence
// as the entry id, and the checkpoint in a plain key.
type RedisLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLog returns a log on client. Keys expire ttl after the last write;
// zero keeps them forever.
func NewRedisLog(client *redis.Client, ttl time.Duration) *RedisLog {
	return &RedisLog{client: client, ttl: ttl}
}

func streamKey(id uuid.UUID) string     { return "session:" + id.String() + ":actions" }
func checkpointKey(id uuid.UUID) string { return "session:" + id.String() + ":checkpoint" }

// Append adds rec to the session stream.
func (l *RedisLog) Append(ctx context.Context, sessionID uuid.UUID, rec protocol.Record) error {
	if rec.N == 0 {
		return fmt.Errorf("%w: record without sequence", ErrOutOfOrder)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	key := streamKey(sessionID)
	err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		ID:     strconv.FormatUint(rec.N, 10) + "-0",
		Values: map[string]interface{}{"r": string(b)},
	}).Err()
	if err != nil {
		if strings.Contains(err.Error(), "equal or smaller") {
			return fmt.Errorf("%w: seq %d", ErrOutOfOrder, rec.N)
		}
		return fmt.Errorf("xadd %s: %w", key, err)
	}
	l.touch(ctx, key)
	return nil
}

// Since returns every record with a sequence above after, in order.
func (l *RedisLog) Since(ctx context.Context, sessionID uuid.UUID, after uint64) ([]protocol.Record, error) {
	key := streamKey(sessionID)
	msgs, err := l.client.XRange(ctx, key, strconv.FormatUint(after+1, 10)+"-0", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", key, err)
	}
	out := make([]protocol.Record, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["r"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no record", m.ID)
		}
		var rec protocol.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("stream entry %s: %w", m.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveCheckpoint replaces the stored checkpoint and trims the records it
// covers from the stream.
func (l *RedisLog) SaveCheckpoint(ctx context.Context, sessionID uuid.UUID, cp protocol.Checkpoint) error {
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	key := checkpointKey(sessionID)
	if err := l.client.Set(ctx, key, b, l.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if cp.Seq > 0 {
		minID := strconv.FormatUint(cp.Seq, 10) + "-0"
		if err := l.client.XTrimMinID(ctx, streamKey(sessionID), minID).Err(); err != nil {
			return fmt.Errorf("trim %s: %w", streamKey(sessionID), err)
		}
	}
	return nil
}

// LatestCheckpoint returns the stored checkpoint, if any.
func (l *RedisLog) LatestCheckpoint(ctx context.Context, sessionID uuid.UUID) (protocol.Checkpoint, bool, error) {
	var cp protocol.Checkpoint
	b, err := l.client.Get(ctx, checkpointKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cp, false, nil
	}
	if err != nil {
		return cp, false, fmt.Errorf("get checkpoint: %w", err)
	}
	if err := json.Unmarshal(b, &cp); err != nil {
		return cp, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}

// Remove deletes everything stored for the session.
func (l *RedisLog) Remove(ctx context.Context, sessionID uuid.UUID) error {
	return l.client.Del(ctx, streamKey(sessionID), checkpointKey(sessionID)).Err()
}

func (l *RedisLog) touch(ctx context.Context, key string) {
	if l.ttl > 0 {
		_ = l.client.Expire(ctx, key, l.ttl).Err()
	}
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type memorySession struct {
	records    []protocol.Record
	checkpoint *protocol.Checkpoint
}

// MemoryLog is an ActionLog for a relay running without Redis, and for tests.
type MemoryLog struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*memorySession
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{sessions: make(map[uuid.UUID]*memorySession)}
}

func (l *MemoryLog) session(id uuid.UUID) *memorySession {
	s, ok := l.sessions[id]
	if !ok {
		s = &memorySession{}
		l.sessions[id] = s
	}
	return s
}

func (l *MemoryLog) Append(_ context.Context, sessionID uuid.UUID, rec protocol.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.session(sessionID)
	if rec.N == 0 || (len(s.records) > 0 && rec.N <= s.records[len(s.records)-1].N) {
		return fmt.Errorf("%w: seq %d", ErrOutOfOrder, rec.N)
	}
	s.records = append(s.records, rec)
	return nil
}

func (l *MemoryLog) Since(_ context.Context, sessionID uuid.UUID, after uint64) ([]protocol.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].N > after })
	out := make([]protocol.Record, len(s.records)-i)
	copy(out, s.records[i:])
	return out, nil
}

func (l *MemoryLog) SaveCheckpoint(_ context.Context, sessionID uuid.UUID, cp protocol.Checkpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.session(sessionID)
	s.checkpoint = &cp
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].N >= cp.Seq })
	s.records = append([]protocol.Record(nil), s.records[i:]...)
	return nil
}

func (l *MemoryLog) LatestCheckpoint(_ context.Context, sessionID uuid.UUID) (protocol.Checkpoint, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[sessionID]
	if !ok || s.checkpoint == nil {
		return protocol.Checkpoint{}, false, nil
	}
	return *s.checkpoint, true, nil
}

func (l *MemoryLog) Remove(_ context.Context, sessionID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
	return nil
}

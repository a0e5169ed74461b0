// internal/transport/hub_test.go
package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	engine "github.com/enaribe/startup-ludo/engine"
	"github.com/enaribe/startup-ludo/service/internal/auth"
	"github.com/enaribe/startup-ludo/service/internal/cache"
	"github.com/enaribe/startup-ludo/service/internal/database"
	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	specs   map[uuid.UUID]models.SessionSpec
	hashes  map[uuid.UUID]string
	results map[uuid.UUID]models.GameResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		specs:   make(map[uuid.UUID]models.SessionSpec),
		hashes:  make(map[uuid.UUID]string),
		results: make(map[uuid.UUID]models.GameResult),
	}
}

func (f *fakeStore) SaveSession(_ context.Context, spec models.SessionSpec, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs[spec.ID] = spec
	f.hashes[spec.ID] = hash
	return nil
}

func (f *fakeStore) LoadSession(_ context.Context, id uuid.UUID) (models.SessionSpec, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	spec, ok := f.specs[id]
	if !ok {
		return spec, "", database.ErrNotFound
	}
	return spec, f.hashes[id], nil
}

func (f *fakeStore) SaveResult(_ context.Context, res models.GameResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[res.SessionID] = res
	return nil
}

func (f *fakeStore) LoadResult(_ context.Context, id uuid.UUID) (models.GameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[id]
	if !ok {
		return res, database.ErrNotFound
	}
	return res, nil
}

func (f *fakeStore) RecentResults(_ context.Context, limit int) ([]models.GameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GameResult
	for _, r := range f.results {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) result(id uuid.UUID) (models.GameResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[id]
	return r, ok
}

func newTestHub(t *testing.T, log cache.ActionLog, store SessionStore, grace time.Duration) (*Hub, *auth.Authenticator) {
	t.Helper()
	a, err := auth.New("hub-test-secret-0123456789", "startup-ludo-test", time.Hour)
	require.NoError(t, err)
	h := NewHub(log, store, nil, a, Settings{ReconnectGrace: grace}, quietLogger())
	t.Cleanup(h.Close)
	return h, a
}

func attach(t *testing.T, h *Hub, token string) (*Room, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, _, err := h.Attach(ctx, c, protocol.Hello{Token: token})
	require.NoError(t, err)
	return r, c
}

func TestHubUnknownSession(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, time.Minute)
	_, err := h.Room(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	hs, _ := newTestHub(t, nil, newFakeStore(), time.Minute)
	_, err = hs.Room(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHubAttachRejectsForgedToken(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, time.Minute)
	other, err := auth.New("some-other-secret-0123456789", "startup-ludo-test", time.Hour)
	require.NoError(t, err)
	tok, err := other.Issue(uuid.New(), uuid.New(), 0, "eve")
	require.NoError(t, err)

	_, _, err = h.Attach(context.Background(), &fakeConn{}, protocol.Hello{Token: tok})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestHubStoresResult(t *testing.T) {
	store := newFakeStore()
	h, _ := newTestHub(t, nil, store, 0)
	ctx := context.Background()
	resp, err := h.CreateSession(ctx, CreateRequest{Seats: []SeatRequest{{Name: "ada"}, {Name: "bot", Computer: true}}})
	require.NoError(t, err)

	room, c := attach(t, h, resp.Seats[0].Token)
	room.post(Leave{Seat: 0, Conn: c})

	require.Eventually(t, func() bool {
		_, ok := store.result(resp.SessionID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	res, err := h.Result(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, res.Placements, 2)

	recent, err := h.RecentResults(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	// nobody is left and the session is over, so the room goes away
	require.Eventually(t, func() bool { return len(h.ListRooms()) == 0 }, 5*time.Second, 10*time.Millisecond)
	res, err = h.Result(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, res.SessionID)
	_, err = h.Room(ctx, resp.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "finished sessions are not recovered")
}

func TestHubRecoversAfterRestart(t *testing.T) {
	mem := cache.NewMemoryLog()
	store := newFakeStore()
	ctx := context.Background()

	first, _ := newTestHub(t, mem, store, 0)
	resp, err := first.CreateSession(ctx, CreateRequest{Seats: []SeatRequest{{Name: "ada"}, {Name: "bob"}}, Seed: 3})
	require.NoError(t, err)
	room, a := attach(t, first, resp.Seats[0].Token)
	attach(t, first, resp.Seats[1].Token)

	room.post(Leave{Seat: 0, Conn: a})
	require.Eventually(t, func() bool {
		st := room.Mirror().State()
		return st.Current == 1 && st.Phase == engine.PhaseAwaitRoll
	}, 5*time.Second, 10*time.Millisecond)
	want := room.Mirror().State()
	first.Close()

	second, _ := newTestHub(t, mem, store, time.Hour)
	recovered, err := second.Room(ctx, resp.SessionID)
	require.NoError(t, err)
	recoveredState := recovered.Mirror().State()
	assert.Equal(t, want.StateHash(), recoveredState.StateHash())

	cp, seq, err := second.Checkpoint(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, want.Turn, cp.Turn)
	assert.NotZero(t, seq)

	// the peer of seat 1 rejoins the recovered room
	_, c := attach(t, second, resp.Seats[1].Token)
	w := c.lastWelcome(t)
	assert.True(t, w.Started)
	require.NotNil(t, w.Checkpoint)
}

func TestHubJoinSeat(t *testing.T) {
	h, a := newTestHub(t, nil, nil, time.Minute)
	ctx := context.Background()
	resp, err := h.CreateSession(ctx, CreateRequest{
		Seats:    []SeatRequest{{Name: "ada"}, {Name: "bot", Computer: true}},
		Password: "open sesame",
	})
	require.NoError(t, err)

	_, err = h.JoinSeat(ctx, resp.SessionID, 1, "open sesame")
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	_, err = h.JoinSeat(ctx, resp.SessionID, 0, "nope")
	assert.ErrorIs(t, err, auth.ErrWrongPassword)

	st, err := h.JoinSeat(ctx, resp.SessionID, 0, "open sesame")
	require.NoError(t, err)
	claims, err := a.Verify(st.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Seats[0].PlayerID, claims.PlayerID)

	rooms := h.ListRooms()
	require.Len(t, rooms, 1)
	assert.True(t, rooms[0].Private)
}

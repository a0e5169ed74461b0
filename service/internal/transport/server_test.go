// internal/transport/server_test.go
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/enaribe/startup-ludo/engine/agent"
	"github.com/enaribe/startup-ludo/service/internal/auth"
	"github.com/enaribe/startup-ludo/service/internal/cache"
	"github.com/enaribe/startup-ludo/service/internal/content"
	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	srv     *httptest.Server
	hub     *Hub
	catalog *content.Catalog
	auth    *auth.Authenticator
}

func newTestRelay(t *testing.T, settings Settings) *testRelay {
	t.Helper()
	gin.SetMode(gin.TestMode)
	catalog, err := content.Default()
	require.NoError(t, err)
	a, err := auth.New("relay-test-secret-0123456789", "startup-ludo-test", time.Hour)
	require.NoError(t, err)

	hub := NewHub(cache.NewMemoryLog(), nil, catalog, a, settings, quietLogger())
	srv := httptest.NewServer(NewServer(hub, a, quietLogger()).Router())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testRelay{srv: srv, hub: hub, catalog: catalog, auth: a}
}

func (tr *testRelay) wsURL() string {
	return "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/ws"
}

func (tr *testRelay) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, tr.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (tr *testRelay) create(t *testing.T, req CreateRequest) CreateResponse {
	t.Helper()
	code, body := tr.do(t, http.MethodPost, "/v1/sessions", "", req)
	require.Equal(t, http.StatusCreated, code, string(body))
	var resp CreateResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func (tr *testRelay) dial(t *testing.T, token string) *Peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := Dial(ctx, PeerOptions{
		URL:      tr.wsURL(),
		Token:    token,
		Content:  tr.catalog.Provider(""),
		Lookup:   tr.catalog.Lookup,
		Computer: true,
		Policy:   agent.PolicyGreedy,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func TestHealthz(t *testing.T) {
	tr := newTestRelay(t, Settings{})
	code, body := tr.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", string(body))
}

func TestCreateSessionValidation(t *testing.T) {
	tr := newTestRelay(t, Settings{})

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"one seat", CreateRequest{Seats: []SeatRequest{{Name: "solo"}}}},
		{"five seats", CreateRequest{Seats: make([]SeatRequest, 5)}},
		{"unknown color", CreateRequest{Seats: []SeatRequest{{Color: "purple"}, {}}}},
		{"same color twice", CreateRequest{Seats: []SeatRequest{{Color: "red"}, {Color: "red"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := tr.do(t, http.MethodPost, "/v1/sessions", "", tt.req)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestCreateSessionAssignsColorsAndTokens(t *testing.T) {
	tr := newTestRelay(t, Settings{})
	resp := tr.create(t, CreateRequest{Seats: []SeatRequest{
		{Name: "ada"},
		{Name: "bot", Computer: true},
		{Name: "bob", Color: "yellow"},
	}})

	require.Len(t, resp.Seats, 3)
	assert.Equal(t, "blue", resp.Seats[0].Color)
	assert.Equal(t, "red", resp.Seats[1].Color)
	assert.Equal(t, "yellow", resp.Seats[2].Color)
	assert.NotEmpty(t, resp.Seats[0].Token)
	assert.Empty(t, resp.Seats[1].Token, "computer seats are not joinable")

	claims, err := tr.auth.Verify(resp.Seats[2].Token)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, claims.SessionID)
	assert.Equal(t, uint8(2), claims.Seat)

	code, body := tr.do(t, http.MethodGet, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Sessions []RoomSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, resp.SessionID, list.Sessions[0].SessionID)
	assert.False(t, list.Sessions[0].Private)
}

func TestJoinSeatWithPassword(t *testing.T) {
	tr := newTestRelay(t, Settings{})
	resp := tr.create(t, CreateRequest{
		Seats:    []SeatRequest{{Name: "ada"}, {Name: "bob"}},
		Password: "hunter22",
	})
	path := "/v1/sessions/" + resp.SessionID.String() + "/join"
	seat := uint8(1)

	code, _ := tr.do(t, http.MethodPost, path, "", map[string]any{"seat": seat, "password": "wrong"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := tr.do(t, http.MethodPost, path, "", map[string]any{"seat": seat, "password": "hunter22"})
	require.Equal(t, http.StatusOK, code, string(body))
	var st SeatToken
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, resp.Seats[1].PlayerID, st.PlayerID)
	assert.NotEmpty(t, st.Token)

	code, _ = tr.do(t, http.MethodPost, "/v1/sessions/"+uuid.NewString()+"/join", "", map[string]any{"seat": seat})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = tr.do(t, http.MethodPost, "/v1/sessions/not-a-uuid/join", "", map[string]any{"seat": seat})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCheckpointRequiresSessionToken(t *testing.T) {
	tr := newTestRelay(t, Settings{})
	resp := tr.create(t, CreateRequest{Seats: []SeatRequest{{Name: "ada"}, {Name: "bob"}}})
	other := tr.create(t, CreateRequest{Seats: []SeatRequest{{Name: "cy"}, {Name: "di"}}})
	path := "/v1/sessions/" + resp.SessionID.String() + "/checkpoint"

	code, _ := tr.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = tr.do(t, http.MethodGet, path, other.Seats[0].Token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := tr.do(t, http.MethodGet, path, resp.Seats[0].Token, nil)
	require.Equal(t, http.StatusOK, code)
	env, err := protocol.DecodeEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgCheckpoint, env.T)
	cp, seq, err := protocol.DecodeCheckpoint(env)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
	assert.Len(t, cp.Players, 2)
}

func TestHelloRejectsBadToken(t *testing.T) {
	tr := newTestRelay(t, Settings{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, PeerOptions{URL: tr.wsURL(), Token: "garbage", Logger: quietLogger()})
	assert.ErrorIs(t, err, ErrNoWelcome)
}

func TestHelloMustComeFirst(t *testing.T) {
	tr := newTestRelay(t, Settings{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, tr.wsURL(), nil)
	require.NoError(t, err)
	defer ws.CloseNow()
	b, err := protocol.Encode(protocol.MsgResync, struct{}{})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, b))

	_, data, err := ws.Read(ctx)
	require.NoError(t, err)
	env, err := protocol.DecodeEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgError, env.T)
	e, err := protocol.DecodePayload[protocol.ErrorMsg](env)
	require.NoError(t, err)
	assert.Equal(t, "expected_hello", e.Code)
}

// Two peers and a relay-driven seat play a whole session over websockets.
func TestPeersPlayFullSession(t *testing.T) {
	tr := newTestRelay(t, Settings{ReconnectGrace: time.Minute})
	resp := tr.create(t, CreateRequest{
		Seats: []SeatRequest{{Name: "ada"}, {Name: "bot", Computer: true}, {Name: "bob"}},
		Seed:  42,
	})

	ada := tr.dial(t, resp.Seats[0].Token)
	bob := tr.dial(t, resp.Seats[2].Token)
	assert.Equal(t, uint8(0), ada.Seat())
	assert.Equal(t, uint8(2), bob.Seat())

	room, err := tr.hub.Room(context.Background(), resp.SessionID)
	require.NoError(t, err)

	ended := func(p *Peer) bool {
		_, over := p.Session().Result()
		return over
	}
	require.Eventually(t, func() bool {
		return ended(ada) && ended(bob) && room.Ended()
	}, 30*time.Second, 20*time.Millisecond)

	want := room.Mirror().State()
	for _, p := range []*Peer{ada, bob} {
		got := p.Session().State()
		assert.Equal(t, want.StateHash(), got.StateHash())
		assert.Equal(t, want.Winner, got.Winner)
	}

	var res models.GameResult
	require.Eventually(t, func() bool {
		code, body := tr.do(t, http.MethodGet, "/v1/sessions/"+resp.SessionID.String()+"/result", "", nil)
		if code != http.StatusOK {
			return false
		}
		return json.Unmarshal(body, &res) == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, resp.SessionID, res.SessionID)
	assert.Len(t, res.Placements, 3)
}

// A peer that drops and comes back within the grace period catches up
// from its last sequence number and keeps playing its own seat.
func TestPeerReconnectCatchesUp(t *testing.T) {
	tr := newTestRelay(t, Settings{ReconnectGrace: time.Minute})
	resp := tr.create(t, CreateRequest{
		Seats: []SeatRequest{{Name: "ada"}, {Name: "bot", Computer: true}, {Name: "bob"}},
		Seed:  7,
	})
	ada := tr.dial(t, resp.Seats[0].Token)
	bob := tr.dial(t, resp.Seats[2].Token)

	require.Eventually(t, func() bool { return bob.Session().Seq() > 20 }, 10*time.Second, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bob.Reconnect(ctx))

	room, err := tr.hub.Room(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, a := ada.Session().Result()
		_, b := bob.Session().Result()
		return a && b && room.Ended()
	}, 30*time.Second, 20*time.Millisecond)

	mirrorState := room.Mirror().State()
	adaState := ada.Session().State()
	bobState := bob.Session().State()
	want := mirrorState.StateHash()
	assert.Equal(t, want, adaState.StateHash())
	assert.Equal(t, want, bobState.StateHash())
}

func TestPeerFetchCheckpoint(t *testing.T) {
	tr := newTestRelay(t, Settings{})
	resp := tr.create(t, CreateRequest{Seats: []SeatRequest{{Name: "ada"}, {Name: "bob"}}})
	ada := tr.dial(t, resp.Seats[0].Token)

	code, body := tr.do(t, http.MethodGet, "/v1/sessions/"+resp.SessionID.String()+"/checkpoint", resp.Seats[0].Token, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, ada.FetchCheckpoint(body))
	assert.Equal(t, uint64(0), ada.Session().Seq())
}

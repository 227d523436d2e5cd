package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade/core"
	"arcade/games/guessword"
	"arcade/platform"
	"arcade/transport"
)

func newTestServer(t *testing.T, friendsURL string) (*Server, *core.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()

	reg := core.NewRegistry(log)
	require.NoError(t, reg.Register(context.Background(), guessword.New(nil, log)))
	m := core.NewManager(reg, core.NewSessionManager("test"), core.ManagerConfig{}, log)
	d := core.NewDispatcher(reg, m, log)
	friends := platform.NewFriendsClient(friendsURL, log)

	return New(reg, m, d, friends, nil, log), m
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsAndRooms(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats core.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 0, stats.Rooms)
	assert.Equal(t, 1, stats.Plugins)

	resp, err = http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var listing struct {
		Rooms []core.RoomListing `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	assert.Empty(t, listing.Rooms)
}

func TestFriendsEndpoint(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id":"f1","name":"bob"}]`))
	}))
	defer upstream.Close()

	s, _ := newTestServer(t, upstream.URL)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/friends/p1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Friends []platform.Friend `json:"friends"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Friends, 1)
	assert.Equal(t, "bob", payload.Friends[0].Name)
}

func wsSend(t *testing.T, ws *websocket.Conn, event, data string) {
	t.Helper()
	frame, err := json.Marshal(transport.Envelope{Event: event, Data: json.RawMessage(data)})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func wsWaitFor(t *testing.T, ws *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, ws.SetReadDeadline(deadline))
	for {
		_, raw, err := ws.ReadMessage()
		require.NoError(t, err)
		var env transport.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

func TestWebsocketRoomLifecycle(t *testing.T) {
	t.Parallel()
	s, m := newTestServer(t, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/guessword"

	host, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer host.Close()

	wsSend(t, host, core.EventRoomCreate, `{"playerName":"alice"}`)
	created := wsWaitFor(t, host, core.EventRoomCreated)

	var createdPayload struct {
		Room struct {
			Code   string `json:"code"`
			Plugin string `json:"plugin"`
		} `json:"room"`
		SessionToken string `json:"sessionToken"`
	}
	require.NoError(t, json.Unmarshal(created, &createdPayload))
	assert.Len(t, createdPayload.Room.Code, 5)
	assert.Equal(t, "guessword", createdPayload.Room.Plugin)
	assert.NotEmpty(t, createdPayload.SessionToken)

	guest, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer guest.Close()

	wsSend(t, guest, core.EventRoomJoin, `{"roomCode":"`+createdPayload.Room.Code+`","playerName":"bob"}`)
	joined := wsWaitFor(t, guest, "room:joined")

	var joinedPayload struct {
		Room struct {
			Players []struct {
				Name string `json:"name"`
			} `json:"players"`
		} `json:"room"`
		Reconnected bool `json:"reconnected"`
	}
	require.NoError(t, json.Unmarshal(joined, &joinedPayload))
	assert.False(t, joinedPayload.Reconnected)
	assert.Len(t, joinedPayload.Room.Players, 2)

	// the host hears about the join through a state broadcast
	wsWaitFor(t, host, core.EventRoomState)

	assert.Equal(t, 1, m.Stats().Rooms)
	assert.Equal(t, 2, m.Stats().Players)
}

func TestWebsocketUnknownPathIs404(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/games/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

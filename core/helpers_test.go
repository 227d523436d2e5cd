package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpers_ScopedToOwnRoom(t *testing.T) {
	t.Parallel()
	m, reg := newTestManager(ManagerConfig{}, testDescriptor("word"))

	c1 := newFakeConn("c1", "word")
	m.Attach(c1)
	v1, _, err := m.CreateRoom(context.Background(), c1, "alice", Settings{})
	require.NoError(t, err)
	c2 := newFakeConn("c2", "word")
	m.Attach(c2)
	v2, _, err := m.CreateRoom(context.Background(), c2, "bob", Settings{})
	require.NoError(t, err)

	room, _ := m.RoomByCode(v1.Code)
	d, _ := reg.ByID("word")
	room.Lock()
	defer room.Unlock()
	h := m.helpersFor(room, d)

	_, ok := h.RoomByCode(v2.Code)
	assert.False(t, ok, "other rooms are invisible to plugin code")
	_, ok = h.RoomByCode(v1.Code)
	assert.True(t, ok)

	h.SendToRoom(v2.Code, "x", nil)
	assert.Empty(t, c2.eventsNamed("x"))

	assert.ErrorIs(t, h.UpdatePlayerStatus(context.Background(), v2.Code, v2.You, "ready", nil), ErrRoomNotFound)
}

func TestHelpers_UpdatePlayerStatus(t *testing.T) {
	t.Parallel()
	m, reg := newTestManager(ManagerConfig{}, testDescriptor("word"))
	conn := newFakeConn("c1", "word")
	m.Attach(conn)
	view, _, err := m.CreateRoom(context.Background(), conn, "alice", Settings{})
	require.NoError(t, err)

	room, _ := m.RoomByCode(view.Code)
	d, _ := reg.ByID("word")
	room.Lock()
	h := m.helpersFor(room, d)
	require.NoError(t, h.UpdatePlayerStatus(context.Background(), view.Code, view.You, "ready", map[string]int{"picks": 2}))
	p, _ := room.Player("c1")
	room.Unlock()

	assert.Equal(t, "ready", p.Status)
	assert.NotNil(t, p.GameData)
	assert.True(t, conn.received(EventRoomState), "status change broadcast")

	room.Lock()
	err = h.UpdatePlayerStatus(context.Background(), view.Code, "nobody", "ready", nil)
	room.Unlock()
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestHelpers_ScheduleRunsOnLiveRoomOnly(t *testing.T) {
	t.Parallel()
	m, reg := newTestManager(ManagerConfig{}, testDescriptor("word"))
	conn := newFakeConn("c1", "word")
	m.Attach(conn)
	view, _, err := m.CreateRoom(context.Background(), conn, "alice", Settings{})
	require.NoError(t, err)

	room, _ := m.RoomByCode(view.Code)
	d, _ := reg.ByID("word")
	fired := make(chan string, 1)

	room.Lock()
	h := m.helpersFor(room, d)
	h.Schedule("tick", 10*time.Millisecond, func(r *Room, _ Helpers) {
		fired <- r.Code()
	})
	room.Unlock()

	select {
	case code := <-fired:
		assert.Equal(t, view.Code, code)
	case <-time.After(time.Second):
		t.Fatal("scheduled timer never ran")
	}

	// a timer scheduled before teardown never fires afterwards
	room.Lock()
	h.Schedule("tick", 10*time.Millisecond, func(*Room, Helpers) {
		fired <- "stale"
	})
	room.Unlock()
	m.DestroyRoom(view.Code)

	select {
	case <-fired:
		t.Fatal("timer fired against a destroyed room")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHelpers_RemovePlayerFromRoom(t *testing.T) {
	t.Parallel()
	m, reg := newTestManager(ManagerConfig{}, testDescriptor("word"))

	host := newFakeConn("c1", "word")
	m.Attach(host)
	view, _, err := m.CreateRoom(context.Background(), host, "alice", Settings{})
	require.NoError(t, err)
	guest := newFakeConn("c2", "word")
	m.Attach(guest)
	_, _, _, err = m.JoinRoom(context.Background(), guest, view.Code, "bob", "")
	require.NoError(t, err)

	room, _ := m.RoomByCode(view.Code)
	d, _ := reg.ByID("word")
	room.Lock()
	h := m.helpersFor(room, d)
	h.RemovePlayerFromRoom(view.Code, "c2")
	n := len(room.Players())
	room.Unlock()

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"removed"}, guest.closed)
	_, ok := m.RoomFor("c2")
	assert.False(t, ok)
}

package core

import (
	"context"
	"time"
)

// roomHelpers is the Helpers implementation handed to plugin code. It is
// bound to one room and assumes the caller is already on that room's
// serialized path; lookups for any other room come back absent, which keeps
// a misbehaving plugin's blast radius inside its own room.
type roomHelpers struct {
	m    *Manager
	room *Room
	d    *Descriptor
}

func (m *Manager) helpersFor(room *Room, d *Descriptor) Helpers {
	return &roomHelpers{m: m, room: room, d: d}
}

func (h *roomHelpers) SendToRoom(code, event string, data any) {
	if code != h.room.code {
		return
	}
	h.m.sendToRoomLocked(h.room, event, data)
}

func (h *roomHelpers) SendToPlayer(connID, event string, data any) {
	h.m.SendToPlayer(connID, event, data)
}

func (h *roomHelpers) UpdatePlayerStatus(ctx context.Context, code, playerID, status string, data any) error {
	if code != h.room.code {
		return ErrRoomNotFound
	}
	p, ok := h.room.PlayerByID(playerID)
	if !ok {
		return ErrPlayerNotFound
	}
	p.Status = status
	if data != nil {
		p.GameData = data
	}
	h.m.broadcastStateLocked(h.room, h.d)
	return ctx.Err()
}

func (h *roomHelpers) RoomByCode(code string) (*Room, bool) {
	if code != h.room.code {
		return nil, false
	}
	return h.room, true
}

func (h *roomHelpers) RemovePlayerFromRoom(code, connID string) {
	if code != h.room.code {
		return
	}
	p, ok := h.room.players[connID]
	if !ok {
		return
	}
	h.m.removePlayerLocked(h.room, p)
	if conn, ok := h.m.conn(connID); ok {
		conn.Close("removed")
	}
	if len(h.room.players) == 0 {
		// the room lock is held here; tear down once the handler returns
		go h.m.DestroyRoom(h.room.code)
	}
}

func (h *roomHelpers) BroadcastState(code string) {
	if code != h.room.code {
		return
	}
	h.m.broadcastStateLocked(h.room, h.d)
}

func (h *roomHelpers) Schedule(name string, d time.Duration, fn TimerFunc) {
	code, room := h.room.code, h.room
	h.room.timers.Arm(name, d, func() {
		h.m.runOnRoom(code, room, fn)
	})
}

func (h *roomHelpers) CancelTimer(name string) {
	h.room.timers.Cancel(name)
}

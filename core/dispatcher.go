package core

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Dispatcher routes one inbound event to either core room handling or the
// owning plugin's handler table. All handling for a room happens under that
// room's lock, so no two handlers ever mutate the same room concurrently.
type Dispatcher struct {
	registry *Registry
	manager  *Manager
	log      zerolog.Logger
}

func NewDispatcher(registry *Registry, manager *Manager, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		manager:  manager,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch handles a single inbound event. It never panics past this
// boundary: a malformed payload or a misbehaving plugin handler is logged
// and the shared process keeps serving every other room.
func (d *Dispatcher) Dispatch(conn Conn, event string, raw json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error().Any("panic", rec).Str("event", event).Str("conn", conn.ID()).Msg("handler panicked")
			d.sendError(conn, "internal error")
		}
	}()

	switch event {
	case EventRoomCreate:
		d.handleCreate(conn, raw)
	case EventRoomJoin:
		d.handleJoin(conn, raw)
	case EventRoomLeave:
		if err := d.manager.LeaveRoom(conn.ID()); err != nil {
			d.sendError(conn, err.Error())
		}
	case EventChat:
		d.handleChat(conn, raw)
	default:
		d.dispatchToPlugin(conn, event, raw)
	}
}

func (d *Dispatcher) handleCreate(conn Conn, raw json.RawMessage) {
	var p createPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.PlayerName == "" {
		d.dropPayload(conn, EventRoomCreate, err)
		return
	}
	if _, busy := d.manager.RoomFor(conn.ID()); busy {
		d.sendError(conn, ErrAlreadyInRoom.Error())
		return
	}
	view, token, err := d.manager.CreateRoom(context.Background(), conn, p.PlayerName, p.Settings)
	if err != nil {
		d.sendError(conn, err.Error())
		return
	}
	conn.Send(EventRoomCreated, roomCreatedPayload{Room: view, SessionToken: token})
}

func (d *Dispatcher) handleJoin(conn Conn, raw json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomCode == "" {
		d.dropPayload(conn, EventRoomJoin, err)
		return
	}
	if _, busy := d.manager.RoomFor(conn.ID()); busy {
		d.sendError(conn, ErrAlreadyInRoom.Error())
		return
	}
	view, token, reconnected, err := d.manager.JoinRoom(context.Background(), conn, p.RoomCode, p.PlayerName, p.SessionToken)
	if err != nil {
		d.sendError(conn, err.Error())
		return
	}
	conn.Send("room:joined", roomJoinedPayload{Room: view, SessionToken: token, Reconnected: reconnected})
}

func (d *Dispatcher) handleChat(conn Conn, raw json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Text == "" {
		d.dropPayload(conn, EventChat, err)
		return
	}
	room, ok := d.manager.RoomFor(conn.ID())
	if !ok {
		d.sendError(conn, ErrNotInRoom.Error())
		return
	}
	desc, _ := d.registry.ByID(room.PluginID())

	room.Lock()
	defer room.Unlock()
	from, ok := room.Player(conn.ID())
	if !ok {
		return
	}
	out := chatOutPayload{From: from.Name, Text: p.Text}
	for _, to := range room.Players() {
		if !to.Connected || to.PlayerID == from.PlayerID {
			continue
		}
		if desc != nil && desc.OnChat != nil && !desc.OnChat(room, from, to) {
			continue
		}
		d.manager.SendToPlayer(to.ConnID, EventChatOut, out)
	}
}

// dispatchToPlugin resolves the room, validates the payload against the
// plugin's declared validator and runs the handler on the serialized path.
// A validation failure is logged and the event dropped; it never reaches
// game logic.
func (d *Dispatcher) dispatchToPlugin(conn Conn, event string, raw json.RawMessage) {
	room, ok := d.manager.RoomFor(conn.ID())
	if !ok {
		d.sendError(conn, ErrNotInRoom.Error())
		return
	}
	desc, ok := d.registry.ByID(room.PluginID())
	if !ok {
		d.sendError(conn, ErrPluginNotFound.Error())
		return
	}
	handler, ok := desc.Handlers[event]
	if !ok {
		d.log.Debug().Str("event", event).Str("plugin", desc.ID).Msg("unknown event")
		d.sendError(conn, "unknown event")
		return
	}
	if handler.Validate != nil {
		if err := handler.Validate(raw); err != nil {
			d.dropPayload(conn, event, err)
			return
		}
	}

	room.Lock()
	defer room.Unlock()
	if _, member := room.Player(conn.ID()); !member {
		// membership can change between resolution and lock acquisition
		return
	}
	if err := handler.Handle(conn, raw, room, d.manager.helpersFor(room, desc)); err != nil {
		d.log.Warn().Err(err).Str("event", event).Str("room", room.Code()).Msg("handler error")
		d.sendError(conn, err.Error())
	}
}

func (d *Dispatcher) dropPayload(conn Conn, event string, err error) {
	d.log.Warn().Err(err).Str("event", event).Str("conn", conn.ID()).Msg("malformed payload dropped")
	d.sendError(conn, ErrInvalidPayload.Error())
}

func (d *Dispatcher) sendError(conn Conn, msg string) {
	conn.Send(EventError, errorPayload{Message: msg})
}

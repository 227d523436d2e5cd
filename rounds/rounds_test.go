package rounds

import (
	"context"
	"sync"
	"time"

	"arcade/core"
)

// fakeRoom is the minimal RoomState used across the engine tests.
type fakeRoom struct {
	code    string
	players []*core.Player
	state   core.GameState
}

func newFakeRoom(names ...string) *fakeRoom {
	r := &fakeRoom{code: "ROOM1", state: core.GameState{Phase: "lobby"}}
	for _, name := range names {
		r.players = append(r.players, &core.Player{
			PlayerID:  "id-" + name,
			ConnID:    "conn-" + name,
			Name:      name,
			Connected: true,
		})
	}
	return r
}

func (r *fakeRoom) Code() string            { return r.code }
func (r *fakeRoom) Players() []*core.Player { return r.players }

func (r *fakeRoom) ConnectedPlayers() []*core.Player {
	var out []*core.Player
	for _, p := range r.players {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

func (r *fakeRoom) Phase() string { return r.state.Phase }
func (r *fakeRoom) SetPhase(phase string) error {
	r.state.Phase = phase
	return nil
}
func (r *fakeRoom) Settings() core.Settings  { return core.Settings{MinPlayers: 2, MaxPlayers: 8} }
func (r *fakeRoom) State() *core.GameState   { return &r.state }

func (r *fakeRoom) player(name string) *core.Player {
	for _, p := range r.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

type scheduled struct {
	name string
	d    time.Duration
	fn   core.TimerFunc
}

type sentEvent struct {
	event string
	data  any
}

// fakeHelpers records every side effect instead of performing it. Scheduled
// timers never fire on their own; tests drive the deadline paths directly.
type fakeHelpers struct {
	mu        sync.Mutex
	sent      []sentEvent
	toPlayer  map[string][]sentEvent
	scheduled []scheduled
	canceled  []string
}

func newFakeHelpers() *fakeHelpers {
	return &fakeHelpers{toPlayer: make(map[string][]sentEvent)}
}

func (h *fakeHelpers) SendToRoom(_, event string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{event, data})
}

func (h *fakeHelpers) SendToPlayer(connID, event string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.toPlayer[connID] = append(h.toPlayer[connID], sentEvent{event, data})
}

func (h *fakeHelpers) UpdatePlayerStatus(context.Context, string, string, string, any) error {
	return nil
}

func (h *fakeHelpers) RoomByCode(string) (*core.Room, bool) { return nil, false }
func (h *fakeHelpers) RemovePlayerFromRoom(string, string)  {}
func (h *fakeHelpers) BroadcastState(string)                {}

func (h *fakeHelpers) Schedule(name string, d time.Duration, fn core.TimerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduled = append(h.scheduled, scheduled{name, d, fn})
}

func (h *fakeHelpers) CancelTimer(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = append(h.canceled, name)
}

func (h *fakeHelpers) eventsNamed(name string) []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sentEvent
	for _, e := range h.sent {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

func (h *fakeHelpers) lastScheduled() (scheduled, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.scheduled) == 0 {
		return scheduled{}, false
	}
	return h.scheduled[len(h.scheduled)-1], true
}

// fakeGame records the engine's callbacks.
type fakeGame struct {
	payload    any
	drawErr    error
	onDraw     func(r RoomState)
	opened     []*Round
	timedOut   []*Round
	revealed   []*Round
}

func (g *fakeGame) Draw(_ context.Context, r RoomState) (any, error) {
	if g.onDraw != nil {
		g.onDraw(r)
	}
	return g.payload, g.drawErr
}

func (g *fakeGame) OpenRound(_ RoomState, _ core.Helpers, rd *Round)     { g.opened = append(g.opened, rd) }
func (g *fakeGame) InputTimedOut(_ RoomState, _ core.Helpers, rd *Round) { g.timedOut = append(g.timedOut, rd) }
func (g *fakeGame) Reveal(_ RoomState, _ core.Helpers, rd *Round)        { g.revealed = append(g.revealed, rd) }

package core

import (
	"sort"
	"sync"
	"time"
)

// GameState is the per-plugin slot on a room. Phase is one of the plugin's
// declared phases; Data is opaque to the core.
type GameState struct {
	Phase string
	Data  any
}

// Room groups a bounded set of players running one plugin's game. All
// mutation happens on the room's serialized path (see Dispatcher); the mutex
// is the serialization boundary, not fine-grained protection.
type Room struct {
	mu sync.Mutex

	code     string
	pluginID string
	phases   map[string]struct{}

	players    map[string]*Player // keyed by conn id
	hostID     string             // player id
	settings   Settings
	state      GameState
	timers     *TimerSet
	createdAt  time.Time
	lastActive time.Time
}

func newRoom(code string, d *Descriptor, settings Settings) *Room {
	phases := make(map[string]struct{}, len(d.Phases))
	for _, p := range d.Phases {
		phases[p] = struct{}{}
	}
	now := time.Now()
	return &Room{
		code:       code,
		pluginID:   d.ID,
		phases:     phases,
		players:    make(map[string]*Player),
		settings:   settings,
		state:      GameState{Phase: d.Phases[0]},
		timers:     NewTimerSet(),
		createdAt:  now,
		lastActive: now,
	}
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

func (r *Room) Code() string     { return r.code }
func (r *Room) PluginID() string { return r.pluginID }
func (r *Room) HostID() string   { return r.hostID }
func (r *Room) Settings() Settings { return r.settings }
func (r *Room) Timers() *TimerSet  { return r.timers }

// State returns the mutable game state slot. Callers must be on the room's
// serialized path.
func (r *Room) State() *GameState { return &r.state }

func (r *Room) Phase() string { return r.state.Phase }

// SetPhase transitions the game state, rejecting phases the plugin never
// declared.
func (r *Room) SetPhase(phase string) error {
	if _, ok := r.phases[phase]; !ok {
		return ErrUnknownPhase
	}
	r.state.Phase = phase
	return nil
}

// Players returns every player ordered by join time.
func (r *Room) Players() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// ConnectedPlayers returns connected players ordered by join time.
func (r *Room) ConnectedPlayers() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.Players() {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (r *Room) Player(connID string) (*Player, bool) {
	p, ok := r.players[connID]
	return p, ok
}

func (r *Room) PlayerByID(playerID string) (*Player, bool) {
	for _, p := range r.players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return nil, false
}

func (r *Room) touch() { r.lastActive = time.Now() }

// RoomView is what a single connection receives on every state broadcast.
// Game carries that player's own view of the opaque plugin state.
type RoomView struct {
	Code     string       `json:"code"`
	Plugin   string       `json:"plugin"`
	Phase    string       `json:"phase"`
	HostID   string       `json:"hostId"`
	You      string       `json:"you"`
	Players  []PlayerView `json:"players"`
	Settings Settings     `json:"settings"`
	Game     any          `json:"game,omitempty"`
}

// View builds the snapshot addressed to one player. The descriptor's
// OnSnapshot hook contributes the per-player game view.
func (r *Room) View(d *Descriptor, forPlayer *Player) RoomView {
	players := r.Players()
	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, p.view())
	}
	v := RoomView{
		Code:     r.code,
		Plugin:   r.pluginID,
		Phase:    r.state.Phase,
		HostID:   r.hostID,
		Players:  views,
		Settings: r.settings,
	}
	if forPlayer != nil {
		v.You = forPlayer.PlayerID
		if d != nil && d.OnSnapshot != nil {
			v.Game = d.OnSnapshot(r, forPlayer)
		}
	}
	return v
}

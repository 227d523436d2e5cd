package rounds

import (
	"context"
	"sort"
	"time"

	"arcade/core"
)

// TimerName is the single timer slot every round phase shares. Arming it
// always replaces the previous phase's timer, so a room has at most one live
// round timer.
const TimerName = "round"

// RoomState is the slice of a room the engine needs. *core.Room satisfies it.
type RoomState interface {
	Code() string
	Players() []*core.Player
	ConnectedPlayers() []*core.Player
	Phase() string
	SetPhase(string) error
	Settings() core.Settings
	State() *core.GameState
}

// Round is one active round record.
type Round struct {
	Index       int
	Holder      string // player id of the asymmetric role holder
	Payload     any    // hidden from non-holders until reveal
	Submissions map[string]Submission
	OpenedAt    time.Time
}

type Submission struct {
	PlayerID string
	Value    any
	At       time.Time
}

// Game is what a plugin supplies to drive its own phases on top of the
// engine's rotation, timers and bookkeeping. Every method runs on the room's
// serialized path.
type Game interface {
	// Draw produces the round payload (category, target word, ...). It may
	// suspend on external content; the engine re-validates the room after.
	Draw(ctx context.Context, r RoomState) (any, error)
	// OpenRound announces the round and moves the room into the
	// asymmetric-input phase. Privileged payload delivery happens here.
	OpenRound(r RoomState, h core.Helpers, rd *Round)
	// InputTimedOut runs after the engine applied the timeout penalty and
	// broadcast the timeout event.
	InputTimedOut(r RoomState, h core.Helpers, rd *Round)
	// Reveal scores the collected submissions and broadcasts results.
	Reveal(r RoomState, h core.Helpers, rd *Round)
}

type Config struct {
	MinPlayers      int
	LobbyPhase      string
	InputDuration   time.Duration // asymmetric-input phase; 0 = game owns its timing
	CollectDuration time.Duration
	RestartDelay    time.Duration // pause before the next-round attempt after a timeout
	TimeoutPenalty  int
	MaxRounds       int
}

// Engine is the generalized round/turn state machine: role rotation, the
// single active round record, phase timers and cumulative scores.
type Engine struct {
	cfg  Config
	game Game

	Queue   Queue
	Current *Round
	Played  int

	nextIndex int

	// timerGen invalidates a round timer callback that fired before a
	// cancel or re-arm but is still waiting on the room lock. Canceling
	// the TimerSet slot alone cannot stop such a callback.
	timerGen int
}

func NewEngine(cfg Config, game Game) *Engine {
	if cfg.MinPlayers < 2 {
		cfg.MinPlayers = 2
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 3 * time.Second
	}
	return &Engine{cfg: cfg, game: game}
}

func (e *Engine) Config() Config { return e.cfg }

// SyncPlayers reconciles the rotation with the room's connected set.
func (e *Engine) SyncPlayers(r RoomState) {
	connected := make(map[string]struct{})
	for _, p := range r.ConnectedPlayers() {
		connected[p.PlayerID] = struct{}{}
		e.Queue.Add(p.PlayerID)
	}
	for _, id := range e.Queue.IDs() {
		if _, ok := connected[id]; !ok {
			e.Queue.Remove(id)
		}
	}
}

// StartRound opens the next round. With too few connected players the room
// reverts to the lobby phase with a system notice and NO timer armed: a later
// start is player-initiated, so idle rooms never loop. This is recoverable,
// not fatal.
func (e *Engine) StartRound(ctx context.Context, r RoomState, h core.Helpers) error {
	e.SyncPlayers(r)

	if len(r.ConnectedPlayers()) < e.cfg.MinPlayers {
		e.cancelTimer(h)
		e.Current = nil
		r.SetPhase(e.cfg.LobbyPhase)
		h.SendToRoom(r.Code(), core.EventSystem, map[string]any{
			"text": "not enough players to start a round",
		})
		h.BroadcastState(r.Code())
		return core.ErrNotEnoughPlayers
	}

	holder, ok := e.Queue.Rotate()
	if !ok {
		return core.ErrNotEnoughPlayers
	}

	payload, err := e.game.Draw(ctx, r)
	if err != nil {
		r.SetPhase(e.cfg.LobbyPhase)
		h.SendToRoom(r.Code(), core.EventSystem, map[string]any{"text": "could not start round"})
		return err
	}
	// Draw may have suspended; the holder could have dropped meanwhile.
	if !e.connected(r, holder) {
		if next, ok := e.Queue.Rotate(); ok {
			holder = next
		} else {
			r.SetPhase(e.cfg.LobbyPhase)
			return core.ErrNotEnoughPlayers
		}
	}

	e.nextIndex++
	rd := &Round{
		Index:       e.nextIndex,
		Holder:      holder,
		Payload:     payload,
		Submissions: make(map[string]Submission),
		OpenedAt:    time.Now(),
	}
	e.Current = rd

	e.game.OpenRound(r, h, rd)

	if e.cfg.InputDuration > 0 {
		index, gen := rd.Index, e.rearm()
		h.Schedule(TimerName, e.cfg.InputDuration, func(room *core.Room, h core.Helpers) {
			e.inputTimeout(gen, index, room, h)
		})
	}
	return nil
}

// rearm advances the timer generation; the caller schedules with the
// returned value and the callback must present it back.
func (e *Engine) rearm() int {
	e.timerGen++
	return e.timerGen
}

func (e *Engine) cancelTimer(h core.Helpers) {
	e.timerGen++
	h.CancelTimer(TimerName)
}

func (e *Engine) connected(r RoomState, playerID string) bool {
	for _, p := range r.ConnectedPlayers() {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// inputTimeout fires when the asymmetric input never arrived. The holder
// takes the configured penalty, the timeout is broadcast, and a next-round
// attempt is scheduled after the restart delay.
func (e *Engine) inputTimeout(gen, index int, r RoomState, h core.Helpers) {
	if gen != e.timerGen || e.Current == nil || e.Current.Index != index {
		return // stale fire: the slot was re-armed or the round moved on
	}
	rd := e.Current
	e.Current = nil

	if p, ok := findPlayer(r, rd.Holder); ok {
		p.Score -= e.cfg.TimeoutPenalty
	}
	h.SendToRoom(r.Code(), "round:timeout", map[string]any{
		"round":   rd.Index,
		"holder":  rd.Holder,
		"penalty": e.cfg.TimeoutPenalty,
	})
	e.game.InputTimedOut(r, h, rd)
	e.ScheduleRestart(h, r)
}

// ScheduleRestart arms the delayed next-round attempt. An attempt that finds
// too few players falls back to lobby without re-arming.
func (e *Engine) ScheduleRestart(h core.Helpers, r RoomState) {
	gen := e.rearm()
	h.Schedule(TimerName, e.cfg.RestartDelay, func(room *core.Room, h core.Helpers) {
		if gen != e.timerGen {
			return
		}
		e.StartRound(context.Background(), room, h)
	})
}

// BeginCollect moves the round into the collection phase: the previous timer
// is replaced by the collection deadline.
func (e *Engine) BeginCollect(h core.Helpers) {
	if e.Current == nil {
		return
	}
	index, gen := e.Current.Index, e.rearm()
	h.Schedule(TimerName, e.cfg.CollectDuration, func(room *core.Room, h core.Helpers) {
		e.collectTimeout(gen, index, room, h)
	})
}

// collectTimeout closes the collection phase with whatever was received.
// Scoring partial results is deliberate; late input does not count.
func (e *Engine) collectTimeout(gen, index int, r RoomState, h core.Helpers) {
	if gen != e.timerGen || e.Current == nil || e.Current.Index != index {
		return
	}
	e.Finish(r, h)
}

// Submit records one player's submission for the active round.
func (e *Engine) Submit(playerID string, value any) bool {
	if e.Current == nil {
		return false
	}
	if _, dup := e.Current.Submissions[playerID]; dup {
		return false
	}
	e.Current.Submissions[playerID] = Submission{PlayerID: playerID, Value: value, At: time.Now()}
	return true
}

// Finish ends the active round early or on deadline: the timer is canceled,
// the round is closed and the game reveals and scores it.
func (e *Engine) Finish(r RoomState, h core.Helpers) {
	if e.Current == nil {
		return
	}
	e.cancelTimer(h)
	rd := e.Current
	e.Current = nil
	e.Played++
	e.game.Reveal(r, h, rd)
}

// Abort drops the active round without scoring, e.g. when the holder left.
func (e *Engine) Abort(h core.Helpers) *Round {
	if e.Current == nil {
		return nil
	}
	e.cancelTimer(h)
	rd := e.Current
	e.Current = nil
	return rd
}

// Done reports whether the configured number of rounds has been played.
func (e *Engine) Done() bool {
	return e.cfg.MaxRounds > 0 && e.Played >= e.cfg.MaxRounds
}

// Reset clears round bookkeeping for a fresh game.
func (e *Engine) Reset() {
	e.Current = nil
	e.Played = 0
}

// Standing is one leaderboard row.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Leaderboard ranks players by cumulative score. The sort is stable over
// join order, so ties keep whatever order that yields.
func Leaderboard(r RoomState) []Standing {
	players := r.Players()
	out := make([]Standing, 0, len(players))
	for _, p := range players {
		out = append(out, Standing{PlayerID: p.PlayerID, Name: p.Name, Score: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func findPlayer(r RoomState, playerID string) (*core.Player, bool) {
	for _, p := range r.Players() {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return nil, false
}

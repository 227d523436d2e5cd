// Package guessword is the rotating clue-giver game: each round one player
// secretly picks a word and everyone else races to guess it before the clock
// runs out.
package guessword

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"arcade/core"
	"arcade/rounds"
)

const (
	PhaseLobby    = "lobby"
	PhaseChoosing = "choosing"
	PhaseGuessing = "guessing"
	PhaseReveal   = "reveal"
)

const (
	wordChoiceCount  = 3
	roomPoolSize     = 64
	guesserPoints    = 10
	holderPoints     = 5
	choosingDuration = 15 * time.Second
	guessingDuration = 80 * time.Second
	revealDelay      = 5 * time.Second
)

// fallbackWords keeps rooms playable when the content service is down.
var fallbackWords = []string{
	"lighthouse", "bicycle", "volcano", "penguin", "submarine",
	"telescope", "waterfall", "accordion", "scarecrow", "hammock",
}

// WordSource is the narrow content contract. Empty results are expected and
// handled, never fatal.
type WordSource interface {
	RandomWords(ctx context.Context, count int) []string
}

type game struct {
	source WordSource
	log    zerolog.Logger
}

// roomState is the opaque per-room slot. Only this package touches it.
type roomState struct {
	eng     *rounds.Engine
	pool    []string
	choices []string
	word    string
	guessed map[string]bool
}

// New builds the plugin descriptor.
func New(source WordSource, log zerolog.Logger) *core.Descriptor {
	g := &game{source: source, log: log.With().Str("plugin", "guessword").Logger()}

	return &core.Descriptor{
		ID:        "guessword",
		Name:      "Guess the Word",
		Version:   "1.0.0",
		Namespace: "/guessword",
		BasePath:  "/games/guessword",
		Phases:    []string{PhaseLobby, PhaseChoosing, PhaseGuessing, PhaseReveal},
		DefaultSettings: core.Settings{
			MinPlayers: 2,
			MaxPlayers: 8,
		},
		Handlers: map[string]core.Handler{
			"round:start":  {Handle: g.handleStart},
			"word:choose":  {Validate: validateChoose, Handle: g.handleChoose},
			"guess:submit": {Validate: validateGuess, Handle: g.handleGuess},
		},
		OnRoomCreate:  g.onRoomCreate,
		OnPlayerLeave: g.onPlayerLeave,
		OnSnapshot:    g.onSnapshot,
		OnChat:        g.onChat,
	}
}

func state(r rounds.RoomState) *roomState {
	st, _ := r.State().Data.(*roomState)
	return st
}

func (g *game) onRoomCreate(ctx context.Context, r *core.Room) error {
	var pool []string
	if g.source != nil {
		pool = g.source.RandomWords(ctx, roomPoolSize)
	}
	if len(pool) == 0 {
		g.log.Warn().Str("room", r.Code()).Msg("content service empty, using fallback words")
		pool = append([]string(nil), fallbackWords...)
	}
	st := &roomState{
		pool:    pool,
		guessed: make(map[string]bool),
	}
	st.eng = rounds.NewEngine(rounds.Config{
		MinPlayers:      2,
		LobbyPhase:      PhaseLobby,
		InputDuration:   choosingDuration,
		CollectDuration: guessingDuration,
		RestartDelay:    revealDelay,
		TimeoutPenalty:  1,
		MaxRounds:       3,
	}, g)
	r.State().Data = st
	return nil
}

// --- handlers ---

func (g *game) handleStart(conn core.Conn, _ json.RawMessage, r *core.Room, h core.Helpers) error {
	p, ok := r.Player(conn.ID())
	if !ok || !p.IsHost {
		return errors.New("host-only")
	}
	if r.Phase() != PhaseLobby {
		return errors.New("round-in-progress")
	}
	err := state(r).eng.StartRound(context.Background(), r, h)
	if errors.Is(err, core.ErrNotEnoughPlayers) {
		return nil // already surfaced as a system message
	}
	return err
}

type choosePayload struct {
	Choice *int `json:"choice"`
}

func validateChoose(raw json.RawMessage) error {
	var p choosePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if p.Choice == nil || *p.Choice < 0 || *p.Choice >= wordChoiceCount {
		return core.ErrInvalidPayload
	}
	return nil
}

func (g *game) handleChoose(conn core.Conn, raw json.RawMessage, r *core.Room, h core.Helpers) error {
	var payload choosePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Choice == nil {
		return nil
	}

	st := state(r)
	p, ok := r.Player(conn.ID())
	if !ok || r.Phase() != PhaseChoosing || st.eng.Current == nil || st.eng.Current.Holder != p.PlayerID {
		return nil // stale or out-of-turn input, drop silently
	}
	if *payload.Choice >= len(st.choices) {
		return nil
	}

	st.word = st.choices[*payload.Choice]
	r.SetPhase(PhaseGuessing)
	h.SendToRoom(r.Code(), "round:guessing", map[string]any{
		"round":      st.eng.Current.Index,
		"holder":     st.eng.Current.Holder,
		"wordLength": len(st.word),
	})
	st.eng.BeginCollect(h)
	h.BroadcastState(r.Code())
	return nil
}

type guessPayload struct {
	Text string `json:"text"`
}

func validateGuess(raw json.RawMessage) error {
	var p guessPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Text) == "" {
		return core.ErrInvalidPayload
	}
	return nil
}

func (g *game) handleGuess(conn core.Conn, raw json.RawMessage, r *core.Room, h core.Helpers) error {
	var payload guessPayload
	json.Unmarshal(raw, &payload)

	st := state(r)
	p, ok := r.Player(conn.ID())
	if !ok || r.Phase() != PhaseGuessing || st.eng.Current == nil {
		return nil
	}
	if st.eng.Current.Holder == p.PlayerID || st.guessed[p.PlayerID] {
		return nil
	}

	guess := strings.TrimSpace(payload.Text)
	if !st.eng.Submit(p.PlayerID, guess) {
		return nil
	}

	if strings.EqualFold(guess, st.word) {
		st.guessed[p.PlayerID] = true
		h.SendToRoom(r.Code(), "guess:correct", map[string]any{
			"player": p.PlayerID,
			"name":   p.Name,
		})
		if g.everyoneGuessed(r, st) {
			st.eng.Finish(r, h)
		}
	} else {
		h.SendToRoom(r.Code(), "guess:shown", map[string]any{
			"player": p.PlayerID,
			"name":   p.Name,
			"text":   guess,
		})
	}
	return nil
}

func (g *game) everyoneGuessed(r rounds.RoomState, st *roomState) bool {
	for _, p := range r.ConnectedPlayers() {
		if p.PlayerID == st.eng.Current.Holder {
			continue
		}
		if !st.guessed[p.PlayerID] {
			return false
		}
	}
	return true
}

// --- rounds.Game ---

// Draw offers distinct words from the pool. A pool smaller than the choice
// count yields fewer options rather than duplicates.
func (g *game) Draw(_ context.Context, r rounds.RoomState) (any, error) {
	st := state(r)
	n := min(wordChoiceCount, len(st.pool))
	choices := make([]string, 0, n)
	for _, i := range rand.Perm(len(st.pool))[:n] {
		choices = append(choices, st.pool[i])
	}
	return choices, nil
}

func (g *game) OpenRound(r rounds.RoomState, h core.Helpers, rd *rounds.Round) {
	st := state(r)
	st.choices = rd.Payload.([]string)
	st.word = ""
	st.guessed = make(map[string]bool)
	r.SetPhase(PhaseChoosing)

	h.SendToRoom(r.Code(), "round:choosing", map[string]any{
		"round":  rd.Index,
		"holder": rd.Holder,
	})
	// the offered words go to the holder alone
	if holder, ok := playerByID(r, rd.Holder); ok {
		h.SendToPlayer(holder.ConnID, "word:choices", map[string]any{
			"round": rd.Index,
			"words": st.choices,
		})
	}
	h.BroadcastState(r.Code())
}

func (g *game) InputTimedOut(r rounds.RoomState, h core.Helpers, _ *rounds.Round) {
	st := state(r)
	st.choices = nil
	st.word = ""
	r.SetPhase(PhaseLobby)
	h.BroadcastState(r.Code())
}

// Reveal scores the collected guesses. Partial results are the policy: only
// what arrived before the deadline counts.
func (g *game) Reveal(r rounds.RoomState, h core.Helpers, rd *rounds.Round) {
	st := state(r)
	correct := scoreRound(rd, st.word)

	for _, p := range r.Players() {
		if correct[p.PlayerID] {
			p.Score += guesserPoints
		}
		if p.PlayerID == rd.Holder {
			p.Score += holderPoints * len(correct)
		}
	}

	r.SetPhase(PhaseReveal)
	h.SendToRoom(r.Code(), "round:reveal", map[string]any{
		"round":       rd.Index,
		"word":        st.word,
		"correct":     keys(correct),
		"leaderboard": rounds.Leaderboard(r),
	})
	h.BroadcastState(r.Code())

	if st.eng.Done() {
		h.SendToRoom(r.Code(), "game:over", map[string]any{
			"leaderboard": rounds.Leaderboard(r),
		})
		st.eng.Reset()
		h.Schedule(rounds.TimerName, revealDelay, func(room *core.Room, h core.Helpers) {
			room.SetPhase(PhaseLobby)
			h.BroadcastState(room.Code())
		})
		return
	}
	st.eng.ScheduleRestart(h, r)
}

// scoreRound is the pure scoring function of the round record: which
// submitters matched the word.
func scoreRound(rd *rounds.Round, word string) map[string]bool {
	correct := make(map[string]bool)
	if word == "" {
		return correct
	}
	for id, sub := range rd.Submissions {
		if text, ok := sub.Value.(string); ok && strings.EqualFold(text, word) {
			correct[id] = true
		}
	}
	return correct
}

// --- lifecycle / views ---

func (g *game) onPlayerLeave(r *core.Room, h core.Helpers, p *core.Player) {
	st := state(r)
	if st == nil {
		return
	}
	st.eng.Queue.Remove(p.PlayerID)
	if st.eng.Current == nil {
		return
	}
	if st.eng.Current.Holder == p.PlayerID {
		// holder gone: close the round out with what was collected
		st.eng.Finish(r, h)
		return
	}
	if r.Phase() == PhaseGuessing && g.everyoneGuessed(r, st) {
		st.eng.Finish(r, h)
	}
}

func (g *game) onSnapshot(r *core.Room, p *core.Player) any {
	st := state(r)
	if st == nil {
		return nil
	}
	view := map[string]any{
		"played": st.eng.Played,
	}
	if st.eng.Current != nil {
		view["round"] = st.eng.Current.Index
		view["holder"] = st.eng.Current.Holder
		view["guessed"] = st.guessed[p.PlayerID]
		if r.Phase() == PhaseChoosing && st.eng.Current.Holder == p.PlayerID {
			view["choices"] = st.choices
		}
		if r.Phase() == PhaseGuessing {
			view["wordLength"] = len(st.word)
			if st.eng.Current.Holder == p.PlayerID {
				view["word"] = st.word
			}
		}
	}
	if r.Phase() == PhaseReveal {
		view["word"] = st.word
	}
	return view
}

// onChat hides chat from players who already guessed the word, so the answer
// can't leak to the ones still guessing.
func (g *game) onChat(r *core.Room, from, to *core.Player) bool {
	if r.Phase() != PhaseGuessing {
		return true
	}
	st := state(r)
	if st == nil || st.eng.Current == nil {
		return true
	}
	if st.guessed[from.PlayerID] && !st.guessed[to.PlayerID] && to.PlayerID != st.eng.Current.Holder {
		return false
	}
	return true
}

func playerByID(r rounds.RoomState, playerID string) (*core.Player, bool) {
	for _, p := range r.Players() {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return nil, false
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

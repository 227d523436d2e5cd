// Package bingo is the draw-and-claim game: the server draws numbers on a
// clock, players mark their cards and race to claim a completed line. Claims
// are validated server-side; a false claim costs a point.
package bingo

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"arcade/core"
	"arcade/rounds"
)

const (
	PhaseLobby   = "lobby"
	PhaseDrawing = "drawing"
	PhaseReveal  = "reveal"
)

const (
	poolMax           = 75
	cardSize          = 25
	freeCell          = 0 // center of the card, always marked
	winnerPoints      = 15
	falseClaimPenalty = 1
	drawInterval      = 3 * time.Second
	revealDelay       = 5 * time.Second
)

type game struct {
	log zerolog.Logger
}

type roomState struct {
	eng   *rounds.Engine
	pool  []int
	drawn map[int]bool
	order []int
	cards map[string][]int

	winner  string
	winLine []int
}

// New builds the plugin descriptor.
func New(log zerolog.Logger) *core.Descriptor {
	g := &game{log: log.With().Str("plugin", "bingo").Logger()}

	return &core.Descriptor{
		ID:        "bingo",
		Name:      "Bingo",
		Version:   "1.0.0",
		Namespace: "/bingo",
		BasePath:  "/games/bingo",
		Phases:    []string{PhaseLobby, PhaseDrawing, PhaseReveal},
		DefaultSettings: core.Settings{
			MinPlayers: 2,
			MaxPlayers: 12,
		},
		Handlers: map[string]core.Handler{
			"round:start": {Handle: g.handleStart},
			"bingo:claim": {Handle: g.handleClaim},
		},
		OnRoomCreate:  g.onRoomCreate,
		OnPlayerLeave: g.onPlayerLeave,
		OnSnapshot:    g.onSnapshot,
	}
}

func state(r rounds.RoomState) *roomState {
	st, _ := r.State().Data.(*roomState)
	return st
}

func (g *game) onRoomCreate(_ context.Context, r *core.Room) error {
	st := &roomState{
		drawn: make(map[int]bool),
		cards: make(map[string][]int),
	}
	st.eng = rounds.NewEngine(rounds.Config{
		MinPlayers:   2,
		LobbyPhase:   PhaseLobby,
		RestartDelay: revealDelay,
		MaxRounds:    3,
	}, g)
	r.State().Data = st
	return nil
}

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
		return nil
	}
	return err
}

func (g *game) handleClaim(conn core.Conn, _ json.RawMessage, r *core.Room, h core.Helpers) error {
	st := state(r)
	p, ok := r.Player(conn.ID())
	if !ok || r.Phase() != PhaseDrawing || st.eng.Current == nil {
		return nil
	}
	card, ok := st.cards[p.PlayerID]
	if !ok {
		return nil
	}

	if line, won := winningLine(card, st.drawn); won {
		st.winner = p.PlayerID
		st.winLine = line
		st.eng.Submit(p.PlayerID, line)
		st.eng.Finish(r, h)
		return nil
	}

	p.Score -= falseClaimPenalty
	h.SendToRoom(r.Code(), "bingo:false", map[string]any{
		"player":  p.PlayerID,
		"name":    p.Name,
		"penalty": falseClaimPenalty,
	})
	h.BroadcastState(r.Code())
	return nil
}

// --- rounds.Game ---

// Draw shuffles the number pool for the round.
func (g *game) Draw(_ context.Context, _ rounds.RoomState) (any, error) {
	pool := rand.Perm(poolMax)
	for i := range pool {
		pool[i]++
	}
	return pool, nil
}

func (g *game) OpenRound(r rounds.RoomState, h core.Helpers, rd *rounds.Round) {
	st := state(r)
	st.pool = rd.Payload.([]int)
	st.drawn = map[int]bool{freeCell: true}
	st.order = nil
	st.winner = ""
	st.winLine = nil
	st.cards = make(map[string][]int)

	r.SetPhase(PhaseDrawing)
	h.SendToRoom(r.Code(), "round:drawing", map[string]any{
		"round":  rd.Index,
		"caller": rd.Holder,
	})
	for _, p := range r.ConnectedPlayers() {
		card := dealCard()
		st.cards[p.PlayerID] = card
		h.SendToPlayer(p.ConnID, "bingo:card", map[string]any{
			"round": rd.Index,
			"card":  card,
		})
	}
	h.BroadcastState(r.Code())

	g.scheduleDraw(h, rd.Index)
}

func (g *game) scheduleDraw(h core.Helpers, index int) {
	h.Schedule(rounds.TimerName, drawInterval, func(room *core.Room, h core.Helpers) {
		g.drawNext(room, h, index)
	})
}

// drawNext announces the next number. A fire after the round was reset or
// replaced is a silent no-op.
func (g *game) drawNext(r rounds.RoomState, h core.Helpers, index int) {
	st := state(r)
	if st == nil || st.eng.Current == nil || st.eng.Current.Index != index {
		return
	}
	if len(st.pool) == 0 {
		// pool exhausted with no winner
		st.eng.Finish(r, h)
		return
	}
	n := st.pool[0]
	st.pool = st.pool[1:]
	st.drawn[n] = true
	st.order = append(st.order, n)

	h.SendToRoom(r.Code(), "bingo:draw", map[string]any{
		"number": n,
		"count":  len(st.order),
	})
	g.scheduleDraw(h, index)
}

func (g *game) InputTimedOut(rounds.RoomState, core.Helpers, *rounds.Round) {}

func (g *game) Reveal(r rounds.RoomState, h core.Helpers, rd *rounds.Round) {
	st := state(r)
	if st.winner != "" {
		if p, ok := playerByID(r, st.winner); ok {
			p.Score += winnerPoints
		}
	}

	r.SetPhase(PhaseReveal)
	h.SendToRoom(r.Code(), "round:reveal", map[string]any{
		"round":       rd.Index,
		"winner":      st.winner,
		"line":        st.winLine,
		"drawn":       st.order,
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

// --- lifecycle / views ---

func (g *game) onPlayerLeave(r *core.Room, h core.Helpers, p *core.Player) {
	st := state(r)
	if st == nil {
		return
	}
	st.eng.Queue.Remove(p.PlayerID)
	delete(st.cards, p.PlayerID)
	if st.eng.Current != nil && len(r.ConnectedPlayers()) < st.eng.Config().MinPlayers {
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
		"drawn":  st.order,
		"winner": st.winner,
	}
	if card, ok := st.cards[p.PlayerID]; ok {
		view["card"] = card
	}
	return view
}

// dealCard produces a 5x5 card of distinct numbers with a free center.
func dealCard() []int {
	perm := rand.Perm(poolMax)
	card := make([]int, cardSize)
	for i := range card {
		card[i] = perm[i] + 1
	}
	card[12] = freeCell
	return card
}

// winningLine checks rows, columns and both diagonals of the card against
// the drawn set, returning the first completed line.
func winningLine(card []int, drawn map[int]bool) ([]int, bool) {
	if len(card) != cardSize {
		return nil, false
	}
	lines := make([][]int, 0, 12)
	for i := 0; i < 5; i++ {
		row := make([]int, 0, 5)
		col := make([]int, 0, 5)
		for j := 0; j < 5; j++ {
			row = append(row, card[i*5+j])
			col = append(col, card[j*5+i])
		}
		lines = append(lines, row, col)
	}
	diag1 := []int{card[0], card[6], card[12], card[18], card[24]}
	diag2 := []int{card[4], card[8], card[12], card[16], card[20]}
	lines = append(lines, diag1, diag2)

	for _, line := range lines {
		complete := true
		for _, n := range line {
			if n != freeCell && !drawn[n] {
				complete = false
				break
			}
		}
		if complete {
			return line, true
		}
	}
	return nil, false
}

func playerByID(r rounds.RoomState, playerID string) (*core.Player, bool) {
	for _, p := range r.Players() {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return nil, false
}

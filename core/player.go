package core

import "time"

// Player is one logical participant in a room. ConnID changes across
// reconnects; PlayerID is durable for the lifetime of the session.
type Player struct {
	ConnID    string
	PlayerID  string
	Name      string
	IsHost    bool
	Connected bool
	Status    string
	JoinedAt  time.Time
	Score     int

	// GameData is owned by the room's plugin; the core never inspects it.
	GameData any
}

// PlayerView is the serialized form of a player inside a room snapshot.
type PlayerView struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
	Status    string `json:"status,omitempty"`
	Score     int    `json:"score"`
}

func (p *Player) view() PlayerView {
	return PlayerView{
		PlayerID:  p.PlayerID,
		Name:      p.Name,
		IsHost:    p.IsHost,
		Connected: p.Connected,
		Status:    p.Status,
		Score:     p.Score,
	}
}

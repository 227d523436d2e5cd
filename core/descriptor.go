package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Conn is one transport connection. The core never sees the socket itself.
type Conn interface {
	ID() string
	Plugin() string
	Send(event string, data any) error
	Close(reason string)
}

// TimerFunc runs on the room's serialized path once a scheduled timer fires.
// The room passed in is live and locked; the helpers are bound to it.
type TimerFunc func(r *Room, h Helpers)

// Helpers is the only surface a plugin handler gets to act on the world.
// Every method operates on the single room the handler was invoked for.
type Helpers interface {
	SendToRoom(code, event string, data any)
	SendToPlayer(connID, event string, data any)
	UpdatePlayerStatus(ctx context.Context, code, playerID, status string, data any) error
	RoomByCode(code string) (*Room, bool)
	RemovePlayerFromRoom(code, connID string)
	BroadcastState(code string)
	Schedule(name string, d time.Duration, fn TimerFunc)
	CancelTimer(name string)
}

// Handler is one entry in a plugin's event table. Validate gates the raw
// payload before Handle ever sees it; a nil Validate accepts anything.
type Handler struct {
	Validate func(raw json.RawMessage) error
	Handle   func(conn Conn, raw json.RawMessage, r *Room, h Helpers) error
}

// Descriptor is the static contract a game registers with the core.
// It is created once at startup and immutable afterwards.
type Descriptor struct {
	ID      string
	Name    string
	Version string

	// Routing. Both must be non-empty and "/"-prefixed.
	Namespace string
	BasePath  string

	// Phases the plugin's game state may take. The first entry is the
	// phase rooms are seeded with.
	Phases []string

	DefaultSettings Settings

	Handlers map[string]Handler

	OnInitialize  func(ctx context.Context) error
	OnRoomCreate  func(ctx context.Context, r *Room) error
	OnPlayerJoin  func(r *Room, h Helpers, p *Player, reconnecting bool)
	OnPlayerLeave func(r *Room, h Helpers, p *Player)
	OnCleanup     func(ctx context.Context) error

	// OnSnapshot contributes the per-player view of the opaque game state
	// to room snapshots. Privileged data (the role holder's secret payload)
	// is only ever delivered through here, never broadcast.
	OnSnapshot func(r *Room, p *Player) any

	// OnChat decides whether a chat line from one player is visible to
	// another. A nil hook relays everything.
	OnChat func(r *Room, from, to *Player) bool
}

// Validate checks every structural invariant, naming the first violated field.
func (d *Descriptor) Validate() error {
	switch {
	case d == nil:
		return fmt.Errorf("%w: nil descriptor", ErrInvalidPlugin)
	case d.ID == "":
		return fmt.Errorf("%w: id", ErrInvalidPlugin)
	case d.Name == "":
		return fmt.Errorf("%w: name", ErrInvalidPlugin)
	case d.Version == "":
		return fmt.Errorf("%w: version", ErrInvalidPlugin)
	case d.Namespace == "" || !strings.HasPrefix(d.Namespace, "/"):
		return fmt.Errorf("%w: namespace", ErrInvalidPlugin)
	case d.BasePath == "" || !strings.HasPrefix(d.BasePath, "/"):
		return fmt.Errorf("%w: basePath", ErrInvalidPlugin)
	case len(d.Phases) == 0:
		return fmt.Errorf("%w: phases", ErrInvalidPlugin)
	case d.DefaultSettings.MinPlayers < 1:
		return fmt.Errorf("%w: minPlayers", ErrInvalidPlugin)
	case d.DefaultSettings.MaxPlayers < d.DefaultSettings.MinPlayers:
		return fmt.Errorf("%w: maxPlayers", ErrInvalidPlugin)
	}
	for name, h := range d.Handlers {
		if h.Handle == nil {
			return fmt.Errorf("%w: handler %q", ErrInvalidPlugin, name)
		}
	}
	return nil
}

// Settings is the per-room configuration record. Extra carries
// plugin-specific knobs the core never inspects.
type Settings struct {
	MinPlayers int            `json:"minPlayers"`
	MaxPlayers int            `json:"maxPlayers"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Merge fills zero fields from the plugin defaults and validates bounds.
func (s Settings) Merge(defaults Settings) (Settings, error) {
	if s.MinPlayers == 0 {
		s.MinPlayers = defaults.MinPlayers
	}
	if s.MaxPlayers == 0 {
		s.MaxPlayers = defaults.MaxPlayers
	}
	if s.MinPlayers < 1 || s.MaxPlayers < s.MinPlayers {
		return Settings{}, ErrInvalidSettings
	}
	return s, nil
}

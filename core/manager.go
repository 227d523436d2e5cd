package core

import (
	"context"
	"fmt"
	"time"

	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const graceTimerPrefix = "grace:"
const roomCodeAttempts = 16

type ManagerConfig struct {
	GraceWindow time.Duration
	GCInterval  time.Duration
}

// Manager is the room directory. It creates, finds and destroys rooms,
// enforces capacity, owns disconnect grace windows and garbage-collects
// abandoned rooms.
//
// Lock order: the directory lock is never held while acquiring a room lock,
// so taking the directory lock from inside a room's serialized path is safe.
type Manager struct {
	registry *Registry
	sessions *SessionManager
	cfg      ManagerConfig
	log      zerolog.Logger

	mu     sync.RWMutex
	rooms  map[string]*Room
	byConn map[string]string // conn id -> room code

	connsMu sync.RWMutex
	conns   map[string]Conn

	stopGC   chan struct{}
	stopOnce sync.Once
}

func NewManager(registry *Registry, sessions *SessionManager, cfg ManagerConfig, log zerolog.Logger) *Manager {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 30 * time.Second
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = time.Minute
	}
	return &Manager{
		registry: registry,
		sessions: sessions,
		cfg:      cfg,
		log:      log.With().Str("component", "rooms").Logger(),
		rooms:    make(map[string]*Room),
		byConn:   make(map[string]string),
		conns:    make(map[string]Conn),
		stopGC:   make(chan struct{}),
	}
}

// Attach makes a transport connection addressable for sends.
func (m *Manager) Attach(conn Conn) {
	m.connsMu.Lock()
	m.conns[conn.ID()] = conn
	m.connsMu.Unlock()
}

func (m *Manager) conn(connID string) (Conn, bool) {
	m.connsMu.RLock()
	defer m.connsMu.RUnlock()
	c, ok := m.conns[connID]
	return c, ok
}

func (m *Manager) detach(connID string) {
	m.connsMu.Lock()
	delete(m.conns, connID)
	m.connsMu.Unlock()
}

// RoomByCode returns the live room with this code.
func (m *Manager) RoomByCode(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	return r, ok
}

// RoomFor returns the room the connection is currently a member of.
func (m *Manager) RoomFor(connID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	r, ok := m.rooms[code]
	return r, ok
}

// CreateRoom builds a room for the connection's plugin, makes the creator
// host, seeds game state through OnRoomCreate and issues a session.
func (m *Manager) CreateRoom(ctx context.Context, conn Conn, playerName string, settings Settings) (RoomView, string, error) {
	d, ok := m.registry.ByID(conn.Plugin())
	if !ok {
		return RoomView{}, "", fmt.Errorf("%w: %s", ErrPluginNotFound, conn.Plugin())
	}
	settings, err := settings.Merge(d.DefaultSettings)
	if err != nil {
		return RoomView{}, "", err
	}

	room, err := m.reserveRoom(d, settings)
	if err != nil {
		return RoomView{}, "", err
	}

	host := &Player{
		ConnID:    conn.ID(),
		PlayerID:  uuid.NewString(),
		Name:      playerName,
		IsHost:    true,
		Connected: true,
		JoinedAt:  time.Now(),
	}

	room.Lock()
	defer room.Unlock()
	room.players[conn.ID()] = host
	room.hostID = host.PlayerID

	if d.OnRoomCreate != nil {
		if hookErr := d.OnRoomCreate(ctx, room); hookErr != nil {
			m.dropRoomEntry(room)
			room.timers.CancelAll()
			return RoomView{}, "", fmt.Errorf("%w: %w", ErrRoomCreateFailed, hookErr)
		}
	}

	token, err := m.sessions.Issue(room.code, host.PlayerID)
	if err != nil {
		m.dropRoomEntry(room)
		room.timers.CancelAll()
		return RoomView{}, "", err
	}

	m.mu.Lock()
	m.byConn[conn.ID()] = room.code
	m.mu.Unlock()

	m.log.Info().Str("room", room.code).Str("plugin", d.ID).Str("host", host.Name).Msg("room created")
	return room.View(d, host), token, nil
}

// reserveRoom inserts a new empty room under a collision-checked code.
func (m *Manager) reserveRoom(d *Descriptor, settings Settings) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n := 0; n < roomCodeAttempts; n++ {
		code := newRoomCode()
		if _, taken := m.rooms[code]; taken {
			continue
		}
		room := newRoom(code, d, settings)
		m.rooms[code] = room
		return room, nil
	}
	return nil, fmt.Errorf("room code space exhausted")
}

func (m *Manager) dropRoomEntry(room *Room) {
	m.mu.Lock()
	delete(m.rooms, room.code)
	for connID, code := range m.byConn {
		if code == room.code {
			delete(m.byConn, connID)
		}
	}
	m.mu.Unlock()
}

// JoinRoom attaches the connection to the room. A session token resolving to
// this room makes it a reconnection: the existing player record is reused,
// its grace timer canceled, and no new session is issued.
func (m *Manager) JoinRoom(ctx context.Context, conn Conn, code, playerName, sessionToken string) (RoomView, string, bool, error) {
	if sessionToken != "" {
		if s, ok := m.sessions.Resolve(sessionToken); ok && s.RoomCode == code {
			return m.reconnect(conn, s, sessionToken)
		}
	}

	room, ok := m.RoomByCode(code)
	if !ok {
		return RoomView{}, "", false, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	d, ok := m.registry.ByID(room.pluginID)
	if !ok {
		return RoomView{}, "", false, fmt.Errorf("%w: %s", ErrPluginNotFound, room.pluginID)
	}
	return m.joinAsNew(ctx, conn, room, d, playerName)
}

// joinAsNew admits a fresh player. The room pointer may be stale by the time
// the lock is held, so directory membership is re-checked under the lock.
func (m *Manager) joinAsNew(ctx context.Context, conn Conn, room *Room, d *Descriptor, playerName string) (RoomView, string, bool, error) {
	room.Lock()
	defer room.Unlock()

	if cur, live := m.RoomByCode(room.code); !live || cur != room {
		return RoomView{}, "", false, fmt.Errorf("%w: %s", ErrRoomNotFound, room.code)
	}
	if len(room.players) >= room.settings.MaxPlayers {
		return RoomView{}, "", false, ErrRoomFull
	}

	player := &Player{
		ConnID:    conn.ID(),
		PlayerID:  uuid.NewString(),
		Name:      playerName,
		Connected: true,
		JoinedAt:  time.Now(),
	}
	room.players[conn.ID()] = player
	room.touch()

	token, err := m.sessions.Issue(room.code, player.PlayerID)
	if err != nil {
		delete(room.players, conn.ID())
		return RoomView{}, "", false, err
	}

	m.mu.Lock()
	m.byConn[conn.ID()] = room.code
	m.mu.Unlock()

	if d.OnPlayerJoin != nil {
		d.OnPlayerJoin(room, m.helpersFor(room, d), player, false)
	}
	m.broadcastStateLocked(room, d)
	m.log.Info().Str("room", room.code).Str("player", player.Name).Msg("player joined")
	return room.View(d, player), token, false, nil
}

func (m *Manager) reconnect(conn Conn, s *Session, token string) (RoomView, string, bool, error) {
	room, ok := m.RoomByCode(s.RoomCode)
	if !ok {
		return RoomView{}, "", false, fmt.Errorf("%w: %s", ErrRoomNotFound, s.RoomCode)
	}
	d, _ := m.registry.ByID(room.pluginID)

	room.Lock()
	defer room.Unlock()

	player, ok := room.PlayerByID(s.PlayerID)
	if !ok {
		return RoomView{}, "", false, ErrSessionNotFound
	}

	oldConnID := player.ConnID
	delete(room.players, oldConnID)
	player.ConnID = conn.ID()
	player.Connected = true
	room.players[conn.ID()] = player
	room.timers.Cancel(graceTimerPrefix + player.PlayerID)
	room.touch()

	// a full disconnect leaves the room headless; the first player back
	// claims the host slot
	if room.hostID == "" {
		player.IsHost = true
		room.hostID = player.PlayerID
	}

	m.mu.Lock()
	delete(m.byConn, oldConnID)
	m.byConn[conn.ID()] = room.code
	m.mu.Unlock()

	if d != nil && d.OnPlayerJoin != nil {
		d.OnPlayerJoin(room, m.helpersFor(room, d), player, true)
	}
	m.broadcastStateLocked(room, d)
	m.log.Info().Str("room", room.code).Str("player", player.Name).Msg("player reconnected")
	return room.View(d, player), token, true, nil
}

// HandleDisconnect marks the player disconnected and opens the grace window.
// Host status moves immediately so the room is never headless.
func (m *Manager) HandleDisconnect(connID string) {
	m.detach(connID)

	room, ok := m.RoomFor(connID)
	if !ok {
		return
	}
	d, _ := m.registry.ByID(room.pluginID)

	room.Lock()
	defer room.Unlock()

	player, ok := room.players[connID]
	if !ok {
		return
	}
	player.Connected = false
	room.touch()

	if player.IsHost {
		m.transferHostLocked(room, player)
	}

	code := room.code
	playerID := player.PlayerID
	room.timers.Arm(graceTimerPrefix+playerID, m.cfg.GraceWindow, func() {
		m.expireGrace(code, playerID)
	})

	m.broadcastStateLocked(room, d)
	m.log.Info().Str("room", code).Str("player", player.Name).Dur("grace", m.cfg.GraceWindow).Msg("player disconnected")
}

func (m *Manager) transferHostLocked(room *Room, leaving *Player) {
	leaving.IsHost = false
	for _, p := range room.Players() {
		if p.Connected && p.PlayerID != leaving.PlayerID {
			p.IsHost = true
			room.hostID = p.PlayerID
			return
		}
	}
	// nobody connected; the room is headless until a reconnection claims
	// the slot or the room gets collected
	room.hostID = ""
}

// expireGrace fires when the grace window closes without a reconnection.
func (m *Manager) expireGrace(code, playerID string) {
	room, ok := m.RoomByCode(code)
	if !ok {
		return
	}
	room.Lock()
	player, ok := room.PlayerByID(playerID)
	if !ok || player.Connected {
		room.Unlock()
		return
	}
	m.removePlayerLocked(room, player)
	empty := len(room.players) == 0
	room.Unlock()

	if empty {
		m.DestroyRoom(code)
	}
}

// removePlayerLocked permanently removes the player. Caller holds the room.
func (m *Manager) removePlayerLocked(room *Room, player *Player) {
	d, _ := m.registry.ByID(room.pluginID)

	room.timers.Cancel(graceTimerPrefix + player.PlayerID)
	delete(room.players, player.ConnID)
	m.sessions.DropPlayer(room.code, player.PlayerID)

	m.mu.Lock()
	delete(m.byConn, player.ConnID)
	m.mu.Unlock()

	if player.IsHost {
		m.transferHostLocked(room, player)
	}
	if d != nil && d.OnPlayerLeave != nil {
		d.OnPlayerLeave(room, m.helpersFor(room, d), player)
	}
	room.touch()
	m.broadcastStateLocked(room, d)
	m.log.Info().Str("room", room.code).Str("player", player.Name).Msg("player removed")
}

// LeaveRoom is the explicit variant: no grace window.
func (m *Manager) LeaveRoom(connID string) error {
	room, ok := m.RoomFor(connID)
	if !ok {
		return ErrNotInRoom
	}
	room.Lock()
	player, ok := room.players[connID]
	if !ok {
		room.Unlock()
		return ErrNotInRoom
	}
	m.removePlayerLocked(room, player)
	empty := len(room.players) == 0
	room.Unlock()

	if empty {
		m.DestroyRoom(room.code)
	}
	return nil
}

// DestroyRoom tears the room down. Timers are canceled synchronously before
// any other cleanup so no timer ever fires against a freed room.
func (m *Manager) DestroyRoom(code string) {
	m.mu.Lock()
	room, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, code)
	for connID, c := range m.byConn {
		if c == code {
			delete(m.byConn, connID)
		}
	}
	m.mu.Unlock()

	room.timers.CancelAll()
	m.sessions.DropRoom(code)

	room.Lock()
	for _, p := range room.players {
		if conn, ok := m.conn(p.ConnID); ok {
			conn.Send(EventSystem, systemPayload{Text: "room closed"})
		}
	}
	room.players = make(map[string]*Player)
	room.Unlock()

	m.log.Info().Str("room", code).Msg("room destroyed")
}

// SendToRoom delivers an event to every connected player. Safe from outside
// the room's serialized path.
func (m *Manager) SendToRoom(code, event string, data any) {
	room, ok := m.RoomByCode(code)
	if !ok {
		return
	}
	room.Lock()
	m.sendToRoomLocked(room, event, data)
	room.Unlock()
}

func (m *Manager) sendToRoomLocked(room *Room, event string, data any) {
	for _, p := range room.players {
		if !p.Connected {
			continue
		}
		if conn, ok := m.conn(p.ConnID); ok {
			if err := conn.Send(event, data); err != nil {
				m.log.Debug().Err(err).Str("room", room.code).Str("player", p.Name).Msg("send failed")
			}
		}
	}
}

// SendToPlayer delivers an event to one connection.
func (m *Manager) SendToPlayer(connID, event string, data any) {
	if conn, ok := m.conn(connID); ok {
		if err := conn.Send(event, data); err != nil {
			m.log.Debug().Err(err).Str("conn", connID).Msg("send failed")
		}
	}
}

// BroadcastState pushes each connected player its own room snapshot.
func (m *Manager) BroadcastState(code string) {
	room, ok := m.RoomByCode(code)
	if !ok {
		return
	}
	d, _ := m.registry.ByID(room.pluginID)
	room.Lock()
	m.broadcastStateLocked(room, d)
	room.Unlock()
}

func (m *Manager) broadcastStateLocked(room *Room, d *Descriptor) {
	for _, p := range room.players {
		if !p.Connected {
			continue
		}
		if conn, ok := m.conn(p.ConnID); ok {
			conn.Send(EventRoomState, room.View(d, p))
		}
	}
}

// runOnRoom re-resolves the room and runs fn on its serialized path. A stale
// fire against a destroyed or replaced room is a silent no-op.
func (m *Manager) runOnRoom(code string, expect *Room, fn TimerFunc) {
	room, ok := m.RoomByCode(code)
	if !ok || room != expect {
		return
	}
	d, _ := m.registry.ByID(room.pluginID)
	room.Lock()
	defer room.Unlock()
	fn(room, m.helpersFor(room, d))
}

// Stats is the read-only aggregate view for the admin surface.
type Stats struct {
	Rooms     int                    `json:"rooms"`
	Players   int                    `json:"players"`
	Sessions  int                    `json:"sessions"`
	Plugins   int                    `json:"plugins"`
	PerPlugin map[string]PluginStats `json:"perPlugin"`
}

type PluginStats struct {
	Rooms   int `json:"rooms"`
	Players int `json:"players"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	st := Stats{
		Rooms:     len(rooms),
		Sessions:  m.sessions.Count(),
		Plugins:   m.registry.Count(),
		PerPlugin: make(map[string]PluginStats),
	}
	for _, r := range rooms {
		r.Lock()
		n := len(r.players)
		plugin := r.pluginID
		r.Unlock()
		st.Players += n
		ps := st.PerPlugin[plugin]
		ps.Rooms++
		ps.Players += n
		st.PerPlugin[plugin] = ps
	}
	return st
}

// RoomList is the public lobby listing.
type RoomListing struct {
	Code    string `json:"code"`
	Plugin  string `json:"plugin"`
	Phase   string `json:"phase"`
	Players int    `json:"players"`
	Max     int    `json:"maxPlayers"`
}

func (m *Manager) ListRooms() []RoomListing {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]RoomListing, 0, len(rooms))
	for _, r := range rooms {
		r.Lock()
		out = append(out, RoomListing{
			Code:    r.code,
			Plugin:  r.pluginID,
			Phase:   r.state.Phase,
			Players: r.ConnectedCount(),
			Max:     r.settings.MaxPlayers,
		})
		r.Unlock()
	}
	return out
}

// StartGC runs the backstop collector until Shutdown. Rooms with nobody
// connected and no activity past the grace window are destroyed.
func (m *Manager) StartGC() {
	go func() {
		ticker := time.NewTicker(m.cfg.GCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.collect()
			case <-m.stopGC:
				return
			}
		}
	}()
}

func (m *Manager) collect() {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		r.Lock()
		stale := r.ConnectedCount() == 0 && time.Since(r.lastActive) > m.cfg.GraceWindow
		code := r.code
		r.Unlock()
		if stale {
			m.log.Info().Str("room", code).Msg("collecting abandoned room")
			m.DestroyRoom(code)
		}
	}
}

// Shutdown stops the collector and destroys every room.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopGC) })
	m.mu.RLock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	m.mu.RUnlock()
	for _, code := range codes {
		m.DestroyRoom(code)
	}
}

package core

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session binds a durable token to a (room, player) pair so a fresh
// transport connection can be re-attached to the same logical player.
type Session struct {
	ID       string
	RoomCode string
	PlayerID string
	IssuedAt time.Time
}

type sessionClaims struct {
	Room   string `json:"room"`
	Player string `json:"player"`
	jwt.RegisteredClaims
}

// SessionManager issues and resolves session tokens. Tokens are HS256 JWTs
// carrying the session id; the in-memory table stays authoritative, the
// signature only makes tokens opaque and tamper-evident.
type SessionManager struct {
	mu     sync.Mutex
	byID   map[string]*Session
	secret []byte
}

func NewSessionManager(secret string) *SessionManager {
	return &SessionManager{
		byID:   make(map[string]*Session),
		secret: []byte(secret),
	}
}

// Issue creates a session for the player and returns the signed token.
func (sm *SessionManager) Issue(roomCode, playerID string) (string, error) {
	s := &Session{
		ID:       uuid.NewString(),
		RoomCode: roomCode,
		PlayerID: playerID,
		IssuedAt: time.Now(),
	}
	claims := sessionClaims{
		Room:   roomCode,
		Player: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       s.ID,
			IssuedAt: jwt.NewNumericDate(s.IssuedAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return "", err
	}
	sm.mu.Lock()
	sm.byID[s.ID] = s
	sm.mu.Unlock()
	return token, nil
}

// Resolve verifies the token and returns the live session it names, if any.
// Expired or tampered tokens and sessions already invalidated both come back
// as absent.
func (sm *SessionManager) Resolve(token string) (*Session, bool) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSessionNotFound
		}
		return sm.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok {
		return nil, false
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.byID[claims.ID]
	if !ok || s.RoomCode != claims.Room || s.PlayerID != claims.Player {
		return nil, false
	}
	return s, true
}

// Drop invalidates one session.
func (sm *SessionManager) Drop(id string) {
	sm.mu.Lock()
	delete(sm.byID, id)
	sm.mu.Unlock()
}

// DropPlayer invalidates the session of one player in one room.
func (sm *SessionManager) DropPlayer(roomCode, playerID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, s := range sm.byID {
		if s.RoomCode == roomCode && s.PlayerID == playerID {
			delete(sm.byID, id)
		}
	}
}

// DropRoom invalidates every session bound to the room.
func (sm *SessionManager) DropRoom(roomCode string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, s := range sm.byID {
		if s.RoomCode == roomCode {
			delete(sm.byID, id)
		}
	}
}

func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.byID)
}

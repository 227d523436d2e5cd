package core

import "errors"

// Structural errors, rejected at the boundary.
var (
	ErrInvalidPlugin   = errors.New("invalid-plugin")
	ErrInvalidPayload  = errors.New("invalid-payload")
	ErrInvalidSettings = errors.New("invalid-settings")
	ErrUnknownPhase    = errors.New("unknown-phase")
)

// Registry identity collisions.
var (
	ErrDuplicateID        = errors.New("duplicate-plugin-id")
	ErrDuplicateNamespace = errors.New("duplicate-plugin-namespace")
	ErrDuplicateBasePath  = errors.New("duplicate-plugin-base-path")
)

// Lifecycle hook failures.
var (
	ErrInitializationFailed = errors.New("plugin-initialization-failed")
	ErrRoomCreateFailed     = errors.New("room-create-hook-failed")
)

// Recoverable capacity errors. These surface a message, never destroy a room.
var (
	ErrRoomFull         = errors.New("room-full")
	ErrNotEnoughPlayers = errors.New("not-enough-players")
)

// Declined operations.
var (
	ErrRoomNotFound    = errors.New("room-not-found")
	ErrPluginNotFound  = errors.New("plugin-not-found")
	ErrSessionNotFound = errors.New("session-not-found")
	ErrPlayerNotFound  = errors.New("player-not-found")
	ErrAlreadyInRoom   = errors.New("already-in-room")
	ErrNotInRoom       = errors.New("not-in-room")
)

package core

// Common inbound events, handled by the core itself. Anything else is looked
// up in the owning plugin's handler table.
const (
	EventRoomCreate = "room:create"
	EventRoomJoin   = "room:join"
	EventRoomLeave  = "room:leave"
	EventChat       = "chat:message"
)

// Common outbound events.
const (
	EventRoomCreated = "room:created"
	EventRoomState   = "roomStateUpdated"
	EventError       = "error"
	EventSystem      = "system:message"
	EventChatOut     = "chat:message"
)

type createPayload struct {
	PlayerName string   `json:"playerName"`
	Settings   Settings `json:"settings"`
}

type joinPayload struct {
	RoomCode     string `json:"roomCode"`
	PlayerName   string `json:"playerName"`
	SessionToken string `json:"sessionToken,omitempty"`
}

type chatPayload struct {
	Text string `json:"text"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type systemPayload struct {
	Text string `json:"text"`
}

type chatOutPayload struct {
	From string `json:"from"`
	Text string `json:"text"`
}

type roomCreatedPayload struct {
	Room         RoomView `json:"room"`
	SessionToken string   `json:"sessionToken"`
}

type roomJoinedPayload struct {
	Room         RoomView `json:"room"`
	SessionToken string   `json:"sessionToken"`
	Reconnected  bool     `json:"reconnected"`
}

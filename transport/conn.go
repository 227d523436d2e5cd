package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = time.Minute
	pingInterval   = 30 * time.Second
	maxMessageSize = 8 * 1024
	outboxSize     = 256
)

var ErrOutboxFull = errors.New("outbox-full")

// Envelope is the wire frame: every message carries an event name and a raw
// payload for the dispatcher to route.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn wraps one websocket connection bound to a plugin endpoint. Reads are
// rate-limited per connection; writes go through a buffered outbox so sends
// from the room's serialized path never block on a slow client.
type Conn struct {
	id     string
	plugin string
	ws     *websocket.Conn

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
	limiter   *rate.Limiter
}

func NewConn(ws *websocket.Conn, pluginID string, log zerolog.Logger) *Conn {
	c := &Conn{
		id:      uuid.NewString(),
		plugin:  pluginID,
		ws:      ws,
		out:     make(chan []byte, outboxSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
	c.log = log.With().Str("conn", c.id).Str("plugin", pluginID).Logger()
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) Plugin() string { return c.plugin }

// Send marshals and enqueues one event. A full outbox drops the message
// rather than stalling the caller.
func (c *Conn) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	default:
		c.log.Warn().Str("event", event).Msg("outbox full, dropping frame")
		return ErrOutboxFull
	}
}

// Close sends a close frame with the reason and tears the socket down.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		c.ws.Close()
	})
}

// ReadPump decodes inbound frames and hands them to the dispatcher until the
// socket dies. Frames past the rate limit and malformed frames are dropped.
func (c *Conn) ReadPump(handle func(event string, data json.RawMessage)) {
	defer c.Close("")
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			c.log.Debug().Msg("rate limited frame dropped")
			continue
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.log.Debug().Err(err).Msg("malformed frame dropped")
			continue
		}
		handle(env.Event, env.Data)
	}
}

// WritePump drains the outbox and keeps the connection alive with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

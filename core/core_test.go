package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

var testLog = zerolog.Nop()

type sentEvent struct {
	event string
	data  any
}

// fakeConn records everything the core pushes at it.
type fakeConn struct {
	mu     sync.Mutex
	id     string
	plugin string
	sent   []sentEvent
	closed []string
}

func newFakeConn(id, plugin string) *fakeConn {
	return &fakeConn{id: id, plugin: plugin}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) Plugin() string { return c.plugin }

func (c *fakeConn) Send(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentEvent{event: event, data: data})
	return nil
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, reason)
}

func (c *fakeConn) eventsNamed(name string) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentEvent
	for _, e := range c.sent {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) received(name string) bool { return len(c.eventsNamed(name)) > 0 }

// testDescriptor is a minimal valid plugin for registry and manager tests.
func testDescriptor(id string) *Descriptor {
	return &Descriptor{
		ID:        id,
		Name:      "Test " + id,
		Version:   "0.0.1",
		Namespace: "/" + id,
		BasePath:  "/games/" + id,
		Phases:    []string{"lobby", "playing"},
		DefaultSettings: Settings{
			MinPlayers: 2,
			MaxPlayers: 4,
		},
	}
}

func newTestManager(cfg ManagerConfig, descs ...*Descriptor) (*Manager, *Registry) {
	reg := NewRegistry(testLog)
	for _, d := range descs {
		if err := reg.Register(context.Background(), d); err != nil {
			panic(err)
		}
	}
	sm := NewSessionManager("test-secret")
	return NewManager(reg, sm, cfg, testLog), reg
}

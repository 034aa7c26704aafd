// internal/registry/registry.go
package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tokenrivals/roomserver/internal/protocol"
)

// outChanSize buffers outbound events per connection so a slow reader
// never blocks the room's command path.
const outChanSize = 16

// Client is one live transport session. RoomCode and IsHost are only
// written from the client's own serialized command path and read after
// its read pump exits, so they need no extra locking.
type Client struct {
	ID       uuid.UUID
	RoomCode string
	IsHost   bool

	OutChan chan protocol.Event
	Cancel  context.CancelFunc
}

// NewClient builds a client with a fresh connection id and buffered
// outbound channel.
func NewClient(cancel context.CancelFunc) *Client {
	return &Client{
		ID:      uuid.New(),
		OutChan: make(chan protocol.Event, outChanSize),
		Cancel:  cancel,
	}
}

// Send pushes an event onto the client's outbound channel without
// blocking. A full or closed channel drops the event with a warning.
func (c *Client) Send(ev protocol.Event) {
	select {
	case c.OutChan <- ev:
	default:
		log.Warnf("Client %s: outbound channel full or closed, dropped %s", c.ID, ev.Type)
	}
}

// Registry tracks every live connection by id. It owns the Client
// objects; rooms only hold the uuid handles.
type Registry struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*Client
}

// NewRegistry initializes an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[uuid.UUID]*Client)}
}

// Register adds a client to the registry.
func (reg *Registry) Register(c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.clients[c.ID] = c
}

// Lookup returns the client for id, or nil if it has gone away.
// Callers treat a nil result as "skip this recipient".
func (reg *Registry) Lookup(id uuid.UUID) *Client {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.clients[id]
}

// Unregister removes a client by id. Unknown ids are a no-op.
func (reg *Registry) Unregister(id uuid.UUID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.clients, id)
}

// Len returns the number of live connections.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.clients)
}

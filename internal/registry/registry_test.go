// internal/registry/registry_test.go
package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenrivals/roomserver/internal/protocol"
)

func TestRegisterLookupUnregister(t *testing.T) {
	reg := NewRegistry()
	c := NewClient(nil)
	require.NotEqual(t, uuid.Nil, c.ID)

	reg.Register(c)
	assert.Same(t, c, reg.Lookup(c.ID))
	assert.Equal(t, 1, reg.Len())

	reg.Unregister(c.ID)
	assert.Nil(t, reg.Lookup(c.ID))
	assert.Equal(t, 0, reg.Len())

	// Unknown ids are a no-op.
	reg.Unregister(uuid.New())
}

func TestSendBuffersEvents(t *testing.T) {
	c := NewClient(nil)
	c.Send(protocol.Event{Type: protocol.EvtRoomCreated, RoomID: "A1B2C3D4"})

	ev := <-c.OutChan
	assert.Equal(t, protocol.EvtRoomCreated, ev.Type)
	assert.Equal(t, "A1B2C3D4", ev.RoomID)
}

func TestSendDropsWhenFull(t *testing.T) {
	c := NewClient(nil)
	for i := 0; i < cap(c.OutChan); i++ {
		c.Send(protocol.Event{Type: protocol.EvtGuestJoined})
	}

	// One more must not block the caller.
	done := make(chan struct{})
	go func() {
		c.Send(protocol.Event{Type: protocol.EvtHostDisconnected})
		close(done)
	}()
	<-done

	assert.Len(t, c.OutChan, cap(c.OutChan))
}

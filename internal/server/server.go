// internal/server/server.go
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tokenrivals/roomserver/internal/journal"
	"github.com/tokenrivals/roomserver/internal/protocol"
	"github.com/tokenrivals/roomserver/internal/registry"
	"github.com/tokenrivals/roomserver/internal/room"
	"github.com/tokenrivals/roomserver/internal/settlement"
)

const (
	// DefaultGracePeriod is how long a room survives its host's
	// disconnect before cleanup.
	DefaultGracePeriod = 5 * time.Minute

	// settlementTimeout bounds a single settlement call, on top of the
	// collaborator's own retry policy.
	settlementTimeout = 2 * time.Minute
)

// RoomServer owns the room store, the connection registry and the
// settlement collaborator, and drives the matchmaking, escrow and
// winner handlers. Settlement may be nil: the server then runs in
// degraded mode where matchmaking works but every settlement-touching
// operation reports its typed failure event.
type RoomServer struct {
	log *logrus.Logger

	Rooms    *room.Store
	Registry *registry.Registry

	settlement settlement.Service
	journal    *journal.Journal

	grace time.Duration
}

// New wires a RoomServer. journal may be nil (no journaling); svc may
// be nil (degraded mode).
func New(logger *logrus.Logger, svc settlement.Service, j *journal.Journal, grace time.Duration) *RoomServer {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &RoomServer{
		log:        logger,
		Rooms:      room.NewStore(),
		Registry:   registry.NewRegistry(),
		settlement: svc,
		journal:    j,
		grace:      grace,
	}
}

// Dispatch routes one decoded command from a client. Each handler
// serializes on the target room's mutex, so commands for one room are
// applied in arrival order while other rooms proceed independently.
func (s *RoomServer) Dispatch(c *registry.Client, cmd protocol.Command) {
	s.log.Infof("Received %s from client %s", cmd.Type, c.ID)

	switch cmd.Type {
	case protocol.CmdCreateRoom:
		s.handleCreateRoom(c, cmd)
	case protocol.CmdGetRoomInfo:
		s.handleGetRoomInfo(c, cmd)
	case protocol.CmdJoinRoom:
		s.handleJoinRoom(c, cmd)
	case protocol.CmdHandshakeAccept:
		s.handleHandshakeAccept(c, cmd)
	case protocol.CmdHandshakeReject:
		s.handleHandshakeReject(c, cmd)
	case protocol.CmdPlayerReady:
		s.handlePlayerReady(c, cmd)
	case protocol.CmdStakeCompleted:
		s.handleStakeCompleted(c, cmd)
	case protocol.CmdAnnounceWinner:
		s.handleAnnounceWinner(c, cmd)
	default:
		s.log.Warnf("Unknown message type %q from client %s", cmd.Type, c.ID)
	}
}

// send delivers an event to the connection behind connID, skipping
// silently when the connection has gone away.
func (s *RoomServer) send(connID uuid.UUID, ev protocol.Event) {
	if connID == uuid.Nil {
		return
	}
	if c := s.Registry.Lookup(connID); c != nil {
		c.Send(ev)
	}
}

// HealthHandler reports process liveness and current room/connection
// counts.
func (s *RoomServer) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":        "healthy",
			"activeRooms":   s.Rooms.Len(),
			"activeClients": s.Registry.Len(),
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// internal/room/room.go
package room

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tokenrivals/roomserver/internal/protocol"
)

// Status is a room's position in its lifecycle. The success path only
// advances forward; handshaking -> waiting is the one permitted
// backward edge (host rejects, or the guest drops mid-handshake).
type Status string

const (
	StatusWaiting         Status = "waiting"
	StatusHandshaking     Status = "handshaking"
	StatusAccepted        Status = "accepted"
	StatusTournament      Status = "tournament"
	StatusReady           Status = "ready_for_competition"
	StatusWinnerAnnounced Status = "winner_announced"
	StatusError           Status = "error"
)

// Room pairs one host and one guest for a single match. HostConn and
// GuestConn are registry handles, not connections; the registry owns
// the actual connection and either handle may be stale after a
// disconnect.
//
// Mu serializes all command handling for the room, settlement calls
// included, so at most one external call is in flight per room and
// commands arriving meanwhile queue behind it.
type Room struct {
	Mu sync.Mutex

	Code      string
	CreatedAt time.Time

	HostConn  uuid.UUID
	GuestConn uuid.UUID

	HostData  *protocol.PlayerData
	GuestData *protocol.PlayerData

	// RequiredStake and BetType are derived from the host payload at
	// creation and are authoritative for the whole room.
	RequiredStake float64
	BetType       string

	Status       Status
	TournamentID uint64
	TournamentTx string

	HostStaked  bool
	GuestStaked bool
	HostReady   bool
	GuestReady  bool

	GraceTimer *time.Timer
}

// HasGuest reports whether the guest slot is occupied. Assumes Mu is
// held.
func (r *Room) HasGuest() bool {
	return r.GuestConn != uuid.Nil
}

// IsParticipant reports whether connID is the room's host or guest
// handle. Assumes Mu is held.
func (r *Room) IsParticipant(connID uuid.UUID) bool {
	return connID == r.HostConn || (r.GuestConn != uuid.Nil && connID == r.GuestConn)
}

// TournamentHint parses the host-supplied tournament id hint, used for
// idempotent creation across retries. Returns 0 when absent or
// malformed.
func (r *Room) TournamentHint() uint64 {
	if r.HostData == nil || r.HostData.TournamentID == "" {
		return 0
	}
	hint, err := strconv.ParseUint(r.HostData.TournamentID, 10, 64)
	if err != nil {
		return 0
	}
	return hint
}

// DetachGuest clears the guest slot. During handshaking the room drops
// back to waiting so a new guest can join; in later states the payload
// is kept for settlement and resync. Assumes Mu is held.
func (r *Room) DetachGuest() {
	r.GuestConn = uuid.Nil
	r.GuestReady = false
	if r.Status == StatusHandshaking {
		r.GuestData = nil
		r.GuestStaked = false
		r.Status = StatusWaiting
	}
}

// internal/room/store.go
package room

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tokenrivals/roomserver/internal/protocol"
)

// Join and creation failures. Stake and bet mismatches are returned
// together with the room so callers can report the required values.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrStakeMismatch = errors.New("stake amount does not match room")
	ErrBetMismatch   = errors.New("bet type does not match room")
	ErrMissingData   = errors.New("missing player data")
	ErrCodeExhausted = errors.New("room code generation exhausted")
)

// codeAttempts bounds collision retries during creation. Four random
// bytes give 2^32 codes, so hitting this is effectively a broken RNG.
const codeAttempts = 5

// Store manages active rooms in memory, keyed by room code. Rooms are
// ephemeral: nothing survives a process restart.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewStore initializes an empty Store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// newCode returns an 8-hex-char human-shareable room code.
func newCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b[:])), nil
}

// Create builds a room for the given host with status waiting and a
// freshly generated code. A code collision is retried; an existing
// room is never overwritten.
func (s *Store) Create(hostConn uuid.UUID, hostData *protocol.PlayerData) (*Room, error) {
	if hostData == nil {
		return nil, ErrMissingData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < codeAttempts; i++ {
		code, err := newCode()
		if err != nil {
			return nil, err
		}
		if _, exists := s.rooms[code]; exists {
			log.Warnf("Store: room code collision on %s, retrying", code)
			continue
		}
		r := &Room{
			Code:          code,
			CreatedAt:     time.Now(),
			HostConn:      hostConn,
			HostData:      hostData,
			RequiredStake: hostData.Stake,
			BetType:       hostData.Bet,
			Status:        StatusWaiting,
		}
		s.rooms[code] = r
		log.Infof("Store: created room %s (stake %.2f, bet %s), %d active", code, r.RequiredStake, r.BetType, len(s.rooms))
		return r, nil
	}
	return nil, ErrCodeExhausted
}

// Get returns the room for code, or nil when none exists.
func (s *Store) Get(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[code]
}

// Join attaches a guest to the room identified by code. The guest's
// stake and bet direction must match the room's exactly; on
// ErrStakeMismatch and ErrBetMismatch the room is returned alongside
// the error so the caller can state the required values. The room is
// untouched on any failure.
func (s *Store) Join(code string, guestConn uuid.UUID, guestData *protocol.PlayerData) (*Room, error) {
	r := s.Get(code)
	if r == nil {
		return nil, ErrRoomNotFound
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HasGuest() || r.Status != StatusWaiting {
		return r, ErrRoomFull
	}
	if guestData == nil {
		return r, ErrMissingData
	}
	if guestData.Stake != r.RequiredStake {
		return r, ErrStakeMismatch
	}
	if guestData.Bet != r.BetType {
		return r, ErrBetMismatch
	}

	r.GuestConn = guestConn
	r.GuestData = guestData
	r.Status = StatusHandshaking
	log.Infof("Store: guest joined room %s, handshake pending", code)
	return r, nil
}

// Delete removes the room for code, if present.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[code]; exists {
		delete(s.rooms, code)
		log.Infof("Store: deleted room %s, %d active", code, len(s.rooms))
	}
}

// Len returns the number of active rooms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

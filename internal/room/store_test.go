// internal/room/store_test.go
package room

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenrivals/roomserver/internal/protocol"
)

var codeShape = regexp.MustCompile(`^[0-9A-F]{8}$`)

func hostData() *protocol.PlayerData {
	return &protocol.PlayerData{
		Stake:   1.5,
		Bet:     "LONG",
		Address: "0x1111111111111111111111111111111111111111",
	}
}

func guestData() *protocol.PlayerData {
	return &protocol.PlayerData{
		Stake:   1.5,
		Bet:     "LONG",
		Address: "0x2222222222222222222222222222222222222222",
	}
}

func TestCreateRoom(t *testing.T) {
	s := NewStore()
	hostConn := uuid.New()

	r, err := s.Create(hostConn, hostData())
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Regexp(t, codeShape, r.Code)
	assert.Equal(t, StatusWaiting, r.Status)
	assert.Equal(t, 1.5, r.RequiredStake)
	assert.Equal(t, "LONG", r.BetType)
	assert.Equal(t, hostConn, r.HostConn)
	assert.False(t, r.HasGuest())
	assert.False(t, r.CreatedAt.IsZero())

	assert.Same(t, r, s.Get(r.Code))
	assert.Equal(t, 1, s.Len())
}

func TestCreateRoomMissingHostData(t *testing.T) {
	s := NewStore()
	_, err := s.Create(uuid.New(), nil)
	assert.ErrorIs(t, err, ErrMissingData)
	assert.Equal(t, 0, s.Len())
}

func TestCreateRoomCodesAreUnique(t *testing.T) {
	s := NewStore()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		r, err := s.Create(uuid.New(), hostData())
		require.NoError(t, err)
		require.False(t, seen[r.Code], "duplicate code %s", r.Code)
		seen[r.Code] = true
	}
	assert.Equal(t, 100, s.Len())
}

func TestJoinRoom(t *testing.T) {
	s := NewStore()
	r, err := s.Create(uuid.New(), hostData())
	require.NoError(t, err)

	guestConn := uuid.New()
	joined, err := s.Join(r.Code, guestConn, guestData())
	require.NoError(t, err)
	assert.Same(t, r, joined)
	assert.Equal(t, StatusHandshaking, r.Status)
	assert.Equal(t, guestConn, r.GuestConn)
	require.NotNil(t, r.GuestData)
}

func TestJoinUnknownRoom(t *testing.T) {
	s := NewStore()
	_, err := s.Join("DEADBEEF", uuid.New(), guestData())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinStakeMismatchLeavesRoomUntouched(t *testing.T) {
	s := NewStore()
	r, err := s.Create(uuid.New(), hostData())
	require.NoError(t, err)

	gd := guestData()
	gd.Stake = 2.0
	got, err := s.Join(r.Code, uuid.New(), gd)
	assert.ErrorIs(t, err, ErrStakeMismatch)
	assert.Same(t, r, got, "room returned so caller can state the required stake")
	assert.Equal(t, StatusWaiting, r.Status)
	assert.False(t, r.HasGuest())
	assert.Nil(t, r.GuestData)
}

func TestJoinBetMismatchLeavesRoomUntouched(t *testing.T) {
	s := NewStore()
	r, err := s.Create(uuid.New(), hostData())
	require.NoError(t, err)

	gd := guestData()
	gd.Bet = "SHORT"
	_, err = s.Join(r.Code, uuid.New(), gd)
	assert.ErrorIs(t, err, ErrBetMismatch)
	assert.Equal(t, StatusWaiting, r.Status)
	assert.False(t, r.HasGuest())
}

func TestJoinFullRoom(t *testing.T) {
	s := NewStore()
	r, err := s.Create(uuid.New(), hostData())
	require.NoError(t, err)

	_, err = s.Join(r.Code, uuid.New(), guestData())
	require.NoError(t, err)

	// Payload is correct, but the guest slot is taken.
	_, err = s.Join(r.Code, uuid.New(), guestData())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestDelete(t *testing.T) {
	s := NewStore()
	r, err := s.Create(uuid.New(), hostData())
	require.NoError(t, err)

	s.Delete(r.Code)
	assert.Nil(t, s.Get(r.Code))
	assert.Equal(t, 0, s.Len())

	// Deleting again is a no-op.
	s.Delete(r.Code)
}

func TestDetachGuestDuringHandshake(t *testing.T) {
	s := NewStore()
	r, err := s.Create(uuid.New(), hostData())
	require.NoError(t, err)
	_, err = s.Join(r.Code, uuid.New(), guestData())
	require.NoError(t, err)

	r.Mu.Lock()
	r.DetachGuest()
	r.Mu.Unlock()

	assert.Equal(t, StatusWaiting, r.Status)
	assert.False(t, r.HasGuest())
	assert.Nil(t, r.GuestData)

	// Room is joinable again.
	_, err = s.Join(r.Code, uuid.New(), guestData())
	assert.NoError(t, err)
}

func TestDetachGuestAfterAcceptKeepsPayload(t *testing.T) {
	s := NewStore()
	r, err := s.Create(uuid.New(), hostData())
	require.NoError(t, err)
	_, err = s.Join(r.Code, uuid.New(), guestData())
	require.NoError(t, err)

	r.Mu.Lock()
	r.Status = StatusAccepted
	r.DetachGuest()
	r.Mu.Unlock()

	assert.Equal(t, StatusAccepted, r.Status)
	assert.NotNil(t, r.GuestData, "payload kept for settlement and resync")

	// Not joinable by a new guest once past handshaking.
	_, err = s.Join(r.Code, uuid.New(), guestData())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestTournamentHint(t *testing.T) {
	r := &Room{HostData: &protocol.PlayerData{TournamentID: "12345"}}
	assert.Equal(t, uint64(12345), r.TournamentHint())

	r.HostData.TournamentID = "not-a-number"
	assert.Zero(t, r.TournamentHint())

	r.HostData = nil
	assert.Zero(t, r.TournamentHint())
}

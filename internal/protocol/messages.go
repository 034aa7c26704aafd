// internal/protocol/messages.go
package protocol

import "encoding/json"

// Client -> server command types.
const (
	CmdCreateRoom      = "CREATE_ROOM"
	CmdGetRoomInfo     = "GET_ROOM_INFO"
	CmdJoinRoom        = "JOIN_ROOM"
	CmdHandshakeAccept = "HANDSHAKE_ACCEPT"
	CmdHandshakeReject = "HANDSHAKE_REJECT"
	CmdPlayerReady     = "PLAYER_READY"
	CmdStakeCompleted  = "STAKE_COMPLETED"
	CmdAnnounceWinner  = "ANNOUNCE_WINNER"
)

// Server -> client event types.
const (
	EvtRoomCreated              = "ROOM_CREATED"
	EvtRoomCreationFailed       = "ROOM_CREATION_FAILED"
	EvtRoomInfoSuccess          = "ROOM_INFO_SUCCESS"
	EvtRoomInfoFailed           = "ROOM_INFO_FAILED"
	EvtJoinRoomSuccess          = "JOIN_ROOM_SUCCESS"
	EvtJoinRoomFailed           = "JOIN_ROOM_FAILED"
	EvtGuestJoined              = "GUEST_JOINED"
	EvtHandshakeRequest         = "HANDSHAKE_REQUEST"
	EvtHandshakeAccepted        = "HANDSHAKE_ACCEPTED"
	EvtHandshakeComplete        = "HANDSHAKE_COMPLETE"
	EvtHandshakeRejected        = "HANDSHAKE_REJECTED"
	EvtTournamentStart          = "TOURNAMENT_START"
	EvtTournamentCreated        = "TOURNAMENT_CREATED"
	EvtTournamentCreationFailed = "TOURNAMENT_CREATION_FAILED"
	EvtBothPlayersStaked        = "BOTH_PLAYERS_STAKED"
	EvtWaitingForOpponentStake  = "WAITING_FOR_OPPONENT_STAKE"
	EvtWinnerAnnounced          = "WINNER_ANNOUNCED"
	EvtWinnerAnnouncementFailed = "WINNER_ANNOUNCEMENT_FAILED"
	EvtHostDisconnected         = "HOST_DISCONNECTED"
	EvtGuestDisconnected        = "GUEST_DISCONNECTED"
)

// PlayerData is the payload a participant submits at create or join
// time. The server only interprets the stake, bet direction, on-chain
// address and tournament id hint; the roster selection and formation
// are relayed to the opponent untouched.
type PlayerData struct {
	Stake           float64         `json:"stake"`
	Bet             string          `json:"bet"`
	Address         string          `json:"hostAddress"`
	TournamentID    string          `json:"tournamentId,omitempty"`
	SelectedPlayers json.RawMessage `json:"selectedPlayers,omitempty"`
	Formation       json.RawMessage `json:"formation,omitempty"`
}

// Command is one decoded inbound frame.
type Command struct {
	Type          string      `json:"type"`
	RoomID        string      `json:"roomId,omitempty"`
	HostData      *PlayerData `json:"hostData,omitempty"`
	GuestData     *PlayerData `json:"guestData,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	TxHash        string      `json:"txHash,omitempty"`
	WinnerAddress string      `json:"winnerAddress,omitempty"`
}

// Event is one outbound frame. Fields are omitted when empty so each
// event type carries exactly the fields the client contract names.
// RequiredStake is a pointer because a zero stake is still a value the
// client must see.
type Event struct {
	Type          string      `json:"type"`
	RoomID        string      `json:"roomId,omitempty"`
	HostData      *PlayerData `json:"hostData,omitempty"`
	GuestData     *PlayerData `json:"guestData,omitempty"`
	RequiredStake *float64    `json:"requiredStake,omitempty"`
	BetType       string      `json:"betType,omitempty"`
	TournamentID  uint64      `json:"tournamentId,omitempty"`
	TxHash        string      `json:"txHash,omitempty"`
	WinnerAddress string      `json:"winnerAddress,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Error         string      `json:"error,omitempty"`
	Message       string      `json:"message,omitempty"`
}

// Float returns a pointer to v for optional numeric event fields.
func Float(v float64) *float64 {
	return &v
}

// internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tokenrivals/roomserver/internal/journal"
	"github.com/tokenrivals/roomserver/internal/protocol"
	"github.com/tokenrivals/roomserver/internal/registry"
	"github.com/tokenrivals/roomserver/internal/room"
	"github.com/tokenrivals/roomserver/internal/settlement"
)

// handleCreateRoom builds a waiting room owned by the sender.
func (s *RoomServer) handleCreateRoom(c *registry.Client, cmd protocol.Command) {
	r, err := s.Rooms.Create(c.ID, cmd.HostData)
	if err != nil {
		s.log.Errorf("Room creation failed for client %s: %v", c.ID, err)
		c.Send(protocol.Event{
			Type:  protocol.EvtRoomCreationFailed,
			Error: "Failed to create room, please try again",
		})
		return
	}

	c.RoomCode = r.Code
	c.IsHost = true

	c.Send(protocol.Event{
		Type:     protocol.EvtRoomCreated,
		RoomID:   r.Code,
		HostData: cmd.HostData,
	})

	s.journal.Publish(journal.Record{
		Kind:     journal.KindRoomCreated,
		RoomCode: r.Code,
		Stake:    r.RequiredStake,
		BetType:  r.BetType,
	})
}

// handleGetRoomInfo returns the room's public info. A full room still
// answers with the tournament info once a tournament exists, so a
// returning participant can resync after a dropped connection.
func (s *RoomServer) handleGetRoomInfo(c *registry.Client, cmd protocol.Command) {
	r := s.Rooms.Get(cmd.RoomID)
	if r == nil {
		c.Send(protocol.Event{
			Type:   protocol.EvtRoomInfoFailed,
			RoomID: cmd.RoomID,
			Error:  "Room not found",
		})
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HasGuest() && r.TournamentID == 0 {
		c.Send(protocol.Event{
			Type:   protocol.EvtRoomInfoFailed,
			RoomID: r.Code,
			Error:  "Room is full",
		})
		return
	}

	c.Send(protocol.Event{
		Type:          protocol.EvtRoomInfoSuccess,
		RoomID:        r.Code,
		RequiredStake: protocol.Float(r.RequiredStake),
		BetType:       r.BetType,
		HostData:      r.HostData,
		TournamentID:  r.TournamentID,
	})
}

// handleJoinRoom validates and attaches the sender as the room's guest
// and kicks off the handshake with the host. Mismatch rejections state
// the room's required values so the client can correct and retry
// without a fresh lookup.
func (s *RoomServer) handleJoinRoom(c *registry.Client, cmd protocol.Command) {
	r, err := s.Rooms.Join(cmd.RoomID, c.ID, cmd.GuestData)
	if err != nil {
		c.Send(protocol.Event{
			Type:   protocol.EvtJoinRoomFailed,
			RoomID: cmd.RoomID,
			Error:  joinErrorText(r, err),
		})
		return
	}

	c.RoomCode = r.Code
	c.IsHost = false

	r.Mu.Lock()
	defer r.Mu.Unlock()

	c.Send(protocol.Event{
		Type:          protocol.EvtJoinRoomSuccess,
		RoomID:        r.Code,
		HostData:      r.HostData,
		BetType:       r.BetType,
		RequiredStake: protocol.Float(r.RequiredStake),
	})
	s.send(r.HostConn, protocol.Event{
		Type:      protocol.EvtGuestJoined,
		RoomID:    r.Code,
		GuestData: r.GuestData,
	})
	s.send(r.HostConn, protocol.Event{
		Type:      protocol.EvtHandshakeRequest,
		RoomID:    r.Code,
		GuestData: r.GuestData,
	})
}

func joinErrorText(r *room.Room, err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, room.ErrStakeMismatch):
		return fmt.Sprintf("Stake amount must be $%g", r.RequiredStake)
	case errors.Is(err, room.ErrBetMismatch):
		return fmt.Sprintf("This room requires %s betting. Your bet will be automatically set to %s.", r.BetType, r.BetType)
	default:
		return "Invalid join request"
	}
}

// handleHandshakeAccept moves the room to accepted and creates the
// on-chain tournament. Only the host may accept; anything else is a
// stale or duplicate client and is dropped with a log line.
func (s *RoomServer) handleHandshakeAccept(c *registry.Client, cmd protocol.Command) {
	r := s.Rooms.Get(cmd.RoomID)
	if r == nil {
		s.log.Warnf("Handshake accept for unknown room %s from client %s", cmd.RoomID, c.ID)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostConn != c.ID {
		s.log.Warnf("Room %s: handshake accept from non-host client %s, ignoring", r.Code, c.ID)
		return
	}
	if r.Status != room.StatusHandshaking {
		s.log.Warnf("Room %s: handshake accept in status %s, ignoring", r.Code, r.Status)
		return
	}

	r.Status = room.StatusAccepted

	s.send(r.GuestConn, protocol.Event{
		Type:     protocol.EvtHandshakeAccepted,
		RoomID:   r.Code,
		HostData: r.HostData,
	})
	c.Send(protocol.Event{
		Type:      protocol.EvtHandshakeComplete,
		RoomID:    r.Code,
		GuestData: r.GuestData,
	})

	s.createTournament(r)
}

// createTournament obtains the tournament object for the room, then
// broadcasts the outcome to both participants. Creation failure is not
// fatal to the room: status stays accepted and a later accept retry can
// land on the same id via the host's hint. Assumes r.Mu is held.
func (s *RoomServer) createTournament(r *room.Room) {
	if r.TournamentID != 0 {
		// Already created; resend so a retried accept still resolves.
		s.broadcast(r, protocol.Event{
			Type:         protocol.EvtTournamentCreated,
			RoomID:       r.Code,
			TournamentID: r.TournamentID,
			TxHash:       r.TournamentTx,
		})
		return
	}

	failure := func(msg string) {
		s.broadcast(r, protocol.Event{
			Type:   protocol.EvtTournamentCreationFailed,
			RoomID: r.Code,
			Error:  msg,
		})
	}

	if s.settlement == nil {
		s.log.Warnf("Room %s: cannot create tournament, settlement service not available", r.Code)
		failure("Tournament service not available")
		return
	}
	if r.HostData == nil || r.GuestData == nil {
		s.log.Warnf("Room %s: cannot create tournament, missing participant data", r.Code)
		failure("Missing participant data")
		return
	}

	hint := r.TournamentHint()
	s.log.Infof("Room %s: creating tournament (host %s, guest %s, hint %d)", r.Code, r.HostData.Address, r.GuestData.Address, hint)

	ctx, cancel := context.WithTimeout(context.Background(), settlementTimeout)
	defer cancel()
	t, err := s.settlement.CreateTournament(ctx, r.HostData.Address, r.GuestData.Address, hint)
	if err != nil {
		s.log.Errorf("Room %s: tournament creation failed: %v", r.Code, err)
		failure(err.Error())
		return
	}

	r.TournamentID = t.ID
	r.TournamentTx = t.TxHash
	s.log.Infof("Room %s: tournament %d created (tx %s)", r.Code, t.ID, t.TxHash)

	s.broadcast(r, protocol.Event{
		Type:         protocol.EvtTournamentCreated,
		RoomID:       r.Code,
		TournamentID: t.ID,
		TxHash:       t.TxHash,
	})

	s.journal.Publish(journal.Record{
		Kind:         journal.KindTournamentCreated,
		RoomCode:     r.Code,
		TournamentID: t.ID,
		TxHash:       t.TxHash,
	})
}

// handleHandshakeReject detaches the guest and returns the room to
// waiting. Host only.
func (s *RoomServer) handleHandshakeReject(c *registry.Client, cmd protocol.Command) {
	r := s.Rooms.Get(cmd.RoomID)
	if r == nil {
		s.log.Warnf("Handshake reject for unknown room %s from client %s", cmd.RoomID, c.ID)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostConn != c.ID {
		s.log.Warnf("Room %s: handshake reject from non-host client %s, ignoring", r.Code, c.ID)
		return
	}
	if r.Status != room.StatusHandshaking {
		s.log.Warnf("Room %s: handshake reject in status %s, ignoring", r.Code, r.Status)
		return
	}

	reason := cmd.Reason
	if reason == "" {
		reason = "Host rejected the connection"
	}
	s.send(r.GuestConn, protocol.Event{
		Type:   protocol.EvtHandshakeRejected,
		RoomID: r.Code,
		Reason: reason,
	})

	r.DetachGuest()
	s.log.Infof("Room %s: handshake rejected, back to waiting", r.Code)
}

// handlePlayerReady records the per-role ready flag and starts the
// tournament phase once both sides are ready.
func (s *RoomServer) handlePlayerReady(c *registry.Client, cmd protocol.Command) {
	r := s.Rooms.Get(cmd.RoomID)
	if r == nil {
		s.log.Warnf("Player ready for unknown room %s from client %s", cmd.RoomID, c.ID)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	switch c.ID {
	case r.HostConn:
		r.HostReady = true
	case r.GuestConn:
		r.GuestReady = true
	default:
		s.log.Warnf("Room %s: player ready from non-participant %s, ignoring", r.Code, c.ID)
		return
	}

	if r.HostReady && r.GuestReady {
		r.Status = room.StatusTournament
		s.broadcast(r, protocol.Event{
			Type:      protocol.EvtTournamentStart,
			RoomID:    r.Code,
			HostData:  r.HostData,
			GuestData: r.GuestData,
		})
		s.log.Infof("Room %s: both players ready, tournament started", r.Code)
	}
}

// handleStakeCompleted records one side's stake and, once both sides
// report, verifies the deposits on chain before unlocking competition.
// The client-supplied tx hash is only a hint; the chain is
// authoritative.
func (s *RoomServer) handleStakeCompleted(c *registry.Client, cmd protocol.Command) {
	r := s.Rooms.Get(cmd.RoomID)
	if r == nil {
		s.log.Warnf("Stake completed for unknown room %s from client %s", cmd.RoomID, c.ID)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	var waitingFor string
	switch c.ID {
	case r.HostConn:
		r.HostStaked = true
		waitingFor = "guest"
	case r.GuestConn:
		r.GuestStaked = true
		waitingFor = "host"
	default:
		s.log.Warnf("Room %s: stake completed from non-participant %s, ignoring", r.Code, c.ID)
		return
	}
	s.log.Infof("Room %s: stake completed by %s (tx %s)", r.Code, roleOf(c.ID == r.HostConn), cmd.TxHash)

	if r.Status == room.StatusReady || r.Status == room.StatusWinnerAnnounced {
		// Competition already unlocked; a duplicate report changes nothing.
		s.log.Warnf("Room %s: duplicate stake report in status %s, ignoring", r.Code, r.Status)
		return
	}

	if !(r.HostStaked && r.GuestStaked) {
		c.Send(protocol.Event{
			Type:    protocol.EvtWaitingForOpponentStake,
			RoomID:  r.Code,
			Message: fmt.Sprintf("Waiting for %s to complete their stake...", waitingFor),
		})
		return
	}

	if s.settlement == nil || r.TournamentID == 0 {
		s.log.Warnf("Room %s: cannot verify stakes, missing settlement service or tournament id", r.Code)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), settlementTimeout)
	defer cancel()
	deposited, err := s.settlement.BothDeposited(ctx, r.TournamentID)
	if err != nil {
		s.log.Errorf("Room %s: deposit verification failed: %v", r.Code, err)
	}
	if err != nil || !deposited {
		// Soft state: the chain has not (yet) recorded both deposits.
		// The sender keeps waiting; polling room info or the indexer
		// retries naturally.
		c.Send(protocol.Event{
			Type:    protocol.EvtWaitingForOpponentStake,
			RoomID:  r.Code,
			Message: "Waiting for opponent to complete their stake...",
		})
		return
	}

	r.Status = room.StatusReady
	s.broadcast(r, protocol.Event{
		Type:         protocol.EvtBothPlayersStaked,
		RoomID:       r.Code,
		TournamentID: r.TournamentID,
		Message:      "Both players have staked successfully. Competition can begin!",
	})
	s.log.Infof("Room %s: both deposits confirmed for tournament %d, competition ready", r.Code, r.TournamentID)

	s.journal.Publish(journal.Record{
		Kind:         journal.KindBothStaked,
		RoomCode:     r.Code,
		TournamentID: r.TournamentID,
	})
}

// handleAnnounceWinner settles the tournament for a winner named by a
// participant. A non-participant sender or a winner address that is
// not one of the two recorded participants indicates a corrupted or
// adversarial client: dropped with a log line, no reply.
func (s *RoomServer) handleAnnounceWinner(c *registry.Client, cmd protocol.Command) {
	r := s.Rooms.Get(cmd.RoomID)
	if r == nil {
		s.log.Warnf("Winner announcement for unknown room %s from client %s", cmd.RoomID, c.ID)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.IsParticipant(c.ID) {
		s.log.Warnf("Room %s: winner announcement from non-participant %s, ignoring", r.Code, c.ID)
		return
	}
	if !s.isParticipantAddress(r, cmd.WinnerAddress) {
		s.log.Warnf("Room %s: winner address %s is not a participant, ignoring", r.Code, cmd.WinnerAddress)
		return
	}

	if s.settlement == nil || r.TournamentID == 0 {
		s.log.Warnf("Room %s: cannot announce winner, missing settlement service or tournament id", r.Code)
		c.Send(protocol.Event{
			Type:   protocol.EvtWinnerAnnouncementFailed,
			RoomID: r.Code,
			Error:  "Tournament service not available",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), settlementTimeout)
	defer cancel()
	txHash, err := s.settlement.AnnounceWinner(ctx, r.TournamentID, cmd.WinnerAddress)
	if err != nil {
		// Room state untouched so the same announcement can be retried.
		s.log.Errorf("Room %s: winner announcement failed: %v", r.Code, err)
		c.Send(protocol.Event{
			Type:   protocol.EvtWinnerAnnouncementFailed,
			RoomID: r.Code,
			Error:  err.Error(),
		})
		return
	}

	r.Status = room.StatusWinnerAnnounced
	s.log.Infof("Room %s: winner %s announced for tournament %d (tx %s)", r.Code, cmd.WinnerAddress, r.TournamentID, txHash)

	s.broadcast(r, protocol.Event{
		Type:          protocol.EvtWinnerAnnounced,
		RoomID:        r.Code,
		TournamentID:  r.TournamentID,
		WinnerAddress: cmd.WinnerAddress,
		TxHash:        txHash,
	})

	s.journal.Publish(journal.Record{
		Kind:          journal.KindWinnerAnnounced,
		RoomCode:      r.Code,
		TournamentID:  r.TournamentID,
		TxHash:        txHash,
		WinnerAddress: cmd.WinnerAddress,
	})
}

// isParticipantAddress reports whether addr equals either recorded
// participant address, case-insensitively.
func (s *RoomServer) isParticipantAddress(r *room.Room, addr string) bool {
	if addr == "" {
		return false
	}
	if r.HostData != nil && settlement.SameAddress(addr, r.HostData.Address) {
		return true
	}
	if r.GuestData != nil && settlement.SameAddress(addr, r.GuestData.Address) {
		return true
	}
	return false
}

// Disconnect is the transport-close path: the connection leaves the
// registry, then the room policy runs. A guest disconnect is immediate
// and synchronous; a host disconnect starts the grace timer and the
// room keeps answering lookups until it fires.
func (s *RoomServer) Disconnect(c *registry.Client) {
	s.Registry.Unregister(c.ID)
	s.log.Infof("Client disconnected: %s", c.ID)

	if c.RoomCode == "" {
		return
	}
	r := s.Rooms.Get(c.RoomCode)
	if r == nil {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	switch c.ID {
	case r.HostConn:
		s.log.Infof("Room %s: host disconnected, cleanup in %v", r.Code, s.grace)
		s.scheduleHostCleanup(r, c.ID)
	case r.GuestConn:
		s.log.Infof("Room %s: guest disconnected", r.Code)
		r.DetachGuest()
		s.send(r.HostConn, protocol.Event{
			Type:   protocol.EvtGuestDisconnected,
			RoomID: r.Code,
		})
	}
}

// scheduleHostCleanup arms the grace timer. When it fires, the room is
// deleted and a still-present guest is notified, unless the host
// handle changed meanwhile (it cannot today, there is no resume flow,
// but the stale-timer check keeps the invariant local). Assumes r.Mu
// is held.
func (s *RoomServer) scheduleHostCleanup(r *room.Room, hostConn uuid.UUID) {
	code := r.Code
	r.GraceTimer = time.AfterFunc(s.grace, func() {
		rr := s.Rooms.Get(code)
		if rr == nil {
			return
		}
		rr.Mu.Lock()
		defer rr.Mu.Unlock()
		if rr.HostConn != hostConn {
			s.log.Infof("Room %s: stale grace timer fired, ignoring", code)
			return
		}
		s.log.Infof("Room %s: grace period elapsed, cleaning up", code)
		s.send(rr.GuestConn, protocol.Event{
			Type:   protocol.EvtHostDisconnected,
			RoomID: code,
		})
		s.Rooms.Delete(code)
	})
}

// broadcast sends ev to both participants, skipping absent ones.
// Assumes r.Mu is held.
func (s *RoomServer) broadcast(r *room.Room, ev protocol.Event) {
	s.send(r.HostConn, ev)
	s.send(r.GuestConn, ev)
}

func roleOf(isHost bool) string {
	if isHost {
		return "host"
	}
	return "guest"
}

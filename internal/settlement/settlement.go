// internal/settlement/settlement.go

// Package settlement talks to the system of record for tournaments:
// creation and winner payout go through the key-holding owner sidecar,
// deposit verification reads the escrow contract directly over EVM
// JSON-RPC. Every call is potentially slow (chain confirmation
// latency) and retried with backoff on rate limiting.
package settlement

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Tournament is the on-chain tournament object reference returned by
// creation.
type Tournament struct {
	ID     uint64 `json:"tournamentId"`
	TxHash string `json:"txHash"`
}

// Service is the narrow contract the room server depends on. Calls
// block until the chain action is confirmed or terminally failed.
type Service interface {
	// CreateTournament registers the two participants on chain. A
	// non-zero idHint is used as the tournament id so a retried
	// creation lands on the same object; 0 lets the collaborator
	// generate one.
	CreateTournament(ctx context.Context, hostAddr, guestAddr string, idHint uint64) (Tournament, error)

	// BothDeposited reports whether both participants' stakes are
	// recorded on chain for the tournament.
	BothDeposited(ctx context.Context, id uint64) (bool, error)

	// AnnounceWinner records the winner and triggers payout, returning
	// the transaction hash.
	AnnounceWinner(ctx context.Context, id uint64, winnerAddr string) (string, error)
}

var (
	ErrInvalidAddress = errors.New("invalid participant address")
	ErrSameAddress    = errors.New("participant addresses must be different")
)

var addrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s looks like an EVM address.
func ValidAddress(s string) bool {
	return addrPattern.MatchString(s)
}

// SameAddress compares two addresses case-insensitively, the on-chain
// notion of equality.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

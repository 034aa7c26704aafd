// internal/settlement/owner.go
package settlement

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"
)

// bothDepositedSig is the escrow contract's deposit-check view method.
const bothDepositedSig = "bothParticipantsDeposited(uint256)"

// Retry policy for rate-limited chain calls: 3 retries, 1s base delay,
// doubled each attempt.
const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

// OwnerClient implements Service. Transactions (create, announce) are
// delegated to the owner sidecar, which holds the contract owner's
// private key; the deposit check is a signature-free eth_call made
// directly against the RPC node.
type OwnerClient struct {
	ownerURL     string
	rpcURL       string
	contractAddr string

	httpc      *http.Client
	maxRetries int
	baseDelay  time.Duration

	depositedSelector string
}

// NewOwnerClient builds a client for the given owner sidecar, RPC node
// and escrow contract address.
func NewOwnerClient(ownerURL, rpcURL, contractAddr string) (*OwnerClient, error) {
	if ownerURL == "" {
		return nil, fmt.Errorf("owner service URL is required")
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}
	if !ValidAddress(contractAddr) {
		return nil, fmt.Errorf("contract address %q: %w", contractAddr, ErrInvalidAddress)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(bothDepositedSig))
	sum := h.Sum(nil)

	return &OwnerClient{
		ownerURL:          strings.TrimRight(ownerURL, "/"),
		rpcURL:            rpcURL,
		contractAddr:      contractAddr,
		httpc:             &http.Client{Timeout: 90 * time.Second},
		maxRetries:        defaultMaxRetries,
		baseDelay:         defaultBaseDelay,
		depositedSelector: hex.EncodeToString(sum[:4]),
	}, nil
}

// NewOwnerClientFromEnv reads OWNER_SERVICE_URL, RPC_URL and
// CONTRACT_ADDRESS.
func NewOwnerClientFromEnv() (*OwnerClient, error) {
	return NewOwnerClient(
		os.Getenv("OWNER_SERVICE_URL"),
		os.Getenv("RPC_URL"),
		os.Getenv("CONTRACT_ADDRESS"),
	)
}

// rateLimitError marks failures the backoff loop should retry.
type rateLimitError struct{ msg string }

func (e *rateLimitError) Error() string { return e.msg }

// looksRateLimited matches the node's rate-limit responses, which
// arrive either as HTTP 429 or as JSON-RPC error code -32005.
func looksRateLimited(statusCode int, rpcCode int, msg string) bool {
	if statusCode == http.StatusTooManyRequests || rpcCode == -32005 {
		return true
	}
	return strings.Contains(strings.ToLower(msg), "rate limited")
}

// withBackoff runs call, retrying rate-limited failures with
// exponential delay. Other errors are terminal.
func (c *OwnerClient) withBackoff(ctx context.Context, call func() error) error {
	delay := c.baseDelay
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		var rl *rateLimitError
		if !errors.As(err, &rl) || attempt >= c.maxRetries {
			return err
		}
		log.Warnf("settlement: rate limited, retrying in %v (attempt %d/%d)", delay, attempt+1, c.maxRetries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// postOwner POSTs a JSON body to the owner sidecar and decodes the
// response into out.
func (c *OwnerClient) postOwner(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ownerURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &failure)
		msg := failure.Error
		if msg == "" {
			msg = fmt.Sprintf("owner service returned %d", resp.StatusCode)
		}
		if looksRateLimited(resp.StatusCode, 0, msg) {
			return &rateLimitError{msg: msg}
		}
		return fmt.Errorf("owner service %s: %s", path, msg)
	}
	return json.Unmarshal(data, out)
}

// CreateTournament registers the two participants through the owner
// sidecar, passing the id hint along when present.
func (c *OwnerClient) CreateTournament(ctx context.Context, hostAddr, guestAddr string, idHint uint64) (Tournament, error) {
	if !ValidAddress(hostAddr) || !ValidAddress(guestAddr) {
		return Tournament{}, ErrInvalidAddress
	}
	if SameAddress(hostAddr, guestAddr) {
		return Tournament{}, ErrSameAddress
	}

	body := map[string]interface{}{
		"hostAddress":  hostAddr,
		"guestAddress": guestAddr,
	}
	if idHint != 0 {
		body["tournamentId"] = idHint
	}

	var result Tournament
	err := c.withBackoff(ctx, func() error {
		return c.postOwner(ctx, "/tournaments", body, &result)
	})
	if err != nil {
		return Tournament{}, fmt.Errorf("create tournament: %w", err)
	}
	return result, nil
}

// AnnounceWinner records the winner through the owner sidecar.
func (c *OwnerClient) AnnounceWinner(ctx context.Context, id uint64, winnerAddr string) (string, error) {
	if !ValidAddress(winnerAddr) {
		return "", ErrInvalidAddress
	}

	var result struct {
		TxHash string `json:"txHash"`
	}
	err := c.withBackoff(ctx, func() error {
		return c.postOwner(ctx, fmt.Sprintf("/tournaments/%d/winner", id), map[string]string{"winnerAddress": winnerAddr}, &result)
	})
	if err != nil {
		return "", fmt.Errorf("announce winner: %w", err)
	}
	return result.TxHash, nil
}

// BothDeposited issues eth_call bothParticipantsDeposited(id) against
// the RPC node. The returned word is an ABI-encoded bool.
func (c *OwnerClient) BothDeposited(ctx context.Context, id uint64) (bool, error) {
	callData := fmt.Sprintf("0x%s%064x", c.depositedSelector, id)
	rpcBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_call",
		"params": []interface{}{
			map[string]string{"to": c.contractAddr, "data": callData},
			"latest",
		},
	}

	var deposited bool
	err := c.withBackoff(ctx, func() error {
		payload, err := json.Marshal(rpcBody)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var rpcResp struct {
			Result string `json:"result"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&rpcResp); decodeErr != nil {
			return decodeErr
		}
		if rpcResp.Error != nil {
			if looksRateLimited(resp.StatusCode, rpcResp.Error.Code, rpcResp.Error.Message) {
				return &rateLimitError{msg: rpcResp.Error.Message}
			}
			return fmt.Errorf("eth_call: %s", rpcResp.Error.Message)
		}
		if resp.StatusCode != http.StatusOK {
			if looksRateLimited(resp.StatusCode, 0, "") {
				return &rateLimitError{msg: "http 429 from rpc node"}
			}
			return fmt.Errorf("rpc node returned %d", resp.StatusCode)
		}

		word := strings.TrimPrefix(rpcResp.Result, "0x")
		deposited = strings.ContainsAny(word, "123456789abcdefABCDEF")
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("verify deposits: %w", err)
	}
	return deposited, nil
}

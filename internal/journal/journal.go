// internal/journal/journal.go

// Package journal pushes room lifecycle records onto a Redis list for
// the external match indexer. The journal is optional: a nil *Journal
// is a valid no-op sink, so the server runs unchanged without Redis.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list the indexer drains.
var DefaultQueueName = "tokenrivals_room_events"

// Record kinds.
const (
	KindRoomCreated       = "room_created"
	KindTournamentCreated = "tournament_created"
	KindBothStaked        = "both_staked"
	KindWinnerAnnounced   = "winner_announced"
)

// Record is one journaled room event.
type Record struct {
	Kind          string  `json:"kind"`
	RoomCode      string  `json:"room_code"`
	TournamentID  uint64  `json:"tournament_id,omitempty"`
	TxHash        string  `json:"tx_hash,omitempty"`
	WinnerAddress string  `json:"winner_address,omitempty"`
	Stake         float64 `json:"stake,omitempty"`
	BetType       string  `json:"bet_type,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}

// Journal is a Redis-backed event sink.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect initializes the journal from environment variables:
//   - REDIS_ADDR (empty disables the journal)
//   - REDIS_DB (optional, default 0)
//   - JOURNAL_QUEUE_NAME (optional)
//
// Returns (nil, nil) when the journal is disabled.
func Connect() (*Journal, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	dbIdx := 0
	if s := os.Getenv("REDIS_DB"); s != "" {
		fmt.Sscanf(s, "%d", &dbIdx)
	}
	queue := os.Getenv("JOURNAL_QUEUE_NAME")
	if queue == "" {
		queue = DefaultQueueName
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: dbIdx})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Journal{rdb: rdb, queue: queue}, nil
}

// Publish serializes the record and pushes it onto the queue in the
// background. It never blocks the caller; failures are logged, not
// surfaced, since the journal is best-effort.
func (j *Journal) Publish(rec Record) {
	if j == nil {
		return
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	go func() {
		data, err := json.Marshal(rec)
		if err != nil {
			log.Warnf("journal: failed to marshal %s record: %v", rec.Kind, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
			log.Warnf("journal: failed to RPush to %q: %v", j.queue, err)
		}
	}()
}

// Close releases the Redis connection.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.rdb.Close()
}

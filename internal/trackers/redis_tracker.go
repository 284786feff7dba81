// Package trackers implements capability.WinnerTracker over a Redis-backed
// ring of recent winner records, for dashboards and post-hoc audits.
package trackers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/util"
)

const keyPrefix = "prizepool:"

func winnersKey(poolID string) string {
	return fmt.Sprintf("%swinners:%s", keyPrefix, poolID)
}

// WinnerRecord is the JSON shape pushed onto, and read back from, a
// pool's winners list.
type WinnerRecord struct {
	RoundID   uint64   `json:"round_id"`
	Receiver  uint64   `json:"receiver"`
	Amount    string   `json:"amount"`
	NFTIDs    []string `json:"nft_ids,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// RedisWinnerTracker records winners into a Redis list, bounded to the
// most recent ringSize entries per pool via LPUSH+LTRIM.
type RedisWinnerTracker struct {
	client   *redis.Client
	ringSize int64
}

// NewRedisWinnerTracker builds a tracker over an existing Redis client.
func NewRedisWinnerTracker(addr, password string, db int, ringSize int64) (*RedisWinnerTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("trackers: redis connection failed: %w", err)
	}

	util.Infof("trackers: connected to redis at %s", addr)
	return &RedisWinnerTracker{client: client, ringSize: ringSize}, nil
}

// Close closes the underlying Redis connection.
func (t *RedisWinnerTracker) Close() error {
	return t.client.Close()
}

// RecordWinner pushes a winner record onto the pool's bounded ring.
func (t *RedisWinnerTracker) RecordWinner(poolID string, roundID uint64, receiver uint64, amount fixedpoint.Amount, nftIDs []string) error {
	rec := WinnerRecord{
		RoundID:   roundID,
		Receiver:  receiver,
		Amount:    amount.String(),
		NFTIDs:    nftIDs,
		Timestamp: time.Now().Unix(),
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("trackers: marshal winner record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := winnersKey(poolID)
	pipe := t.client.Pipeline()
	pipe.LPush(ctx, key, body)
	pipe.LTrim(ctx, key, 0, t.ringSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("trackers: record winner: %w", err)
	}
	return nil
}

// RecentWinners returns up to limit of the most recently recorded
// winners for a pool, newest first.
func (t *RedisWinnerTracker) RecentWinners(ctx context.Context, poolID string, limit int64) ([]WinnerRecord, error) {
	key := winnersKey(poolID)
	raw, err := t.client.LRange(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("trackers: recent winners: %w", err)
	}

	records := make([]WinnerRecord, 0, len(raw))
	for _, item := range raw {
		var rec WinnerRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("trackers: unmarshal winner record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ capability.WinnerTracker = (*RedisWinnerTracker)(nil)

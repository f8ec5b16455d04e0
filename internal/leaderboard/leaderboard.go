// Package leaderboard ranks finished games per deck size in Redis sorted
// sets. Fewer moves rank higher; ties go to the faster game.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keepPerDeck = 100

type Entry struct {
	GameID     string    `json:"gameId"`
	Player     string    `json:"player"`
	Pairs      int       `json:"pairs"`
	Moves      int       `json:"moves"`
	Seconds    int       `json:"seconds"`
	FinishedAt time.Time `json:"finishedAt"`
}

type Board struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Board {
	return &Board{rdb: rdb}
}

func key(pairs int) string {
	return fmt.Sprintf("pairchain:leaderboard:%d", pairs)
}

// rank orders by moves, then seconds. Play time is capped at one day.
func rank(e Entry) float64 {
	secs := min(e.Seconds, 86_399)
	return float64(e.Moves)*100_000 + float64(secs)
}

func (b *Board) Record(ctx context.Context, e Entry) error {
	member, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	k := key(e.Pairs)
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, k, redis.Z{Score: rank(e), Member: member})
		p.ZRemRangeByRank(ctx, k, keepPerDeck, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.GameID, err)
	}
	return nil
}

func (b *Board) Top(ctx context.Context, pairs, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	members, err := b.rdb.ZRange(ctx, key(pairs), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		var e Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("decoding entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Check adapts the client to health checks.
func (b *Board) Check(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ds124wfegd/parking/internal/entity"
)

const (
	deadLetterKey = "parking:events:dlq"
	// Oldest entries are trimmed beyond this size.
	maxDeadLetters = 1000
)

// DeadLetters keeps undeliverable booking events in a sorted set scored by
// failure time, newest last.
type DeadLetters struct {
	client *redis.Client
	key    string
}

func NewDeadLetters(client *redis.Client) *DeadLetters {
	return &DeadLetters{client: client, key: deadLetterKey}
}

func (d *DeadLetters) Add(ctx context.Context, failed *entity.FailedEvent) error {
	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("failed to marshal failed event: %w", err)
	}

	score := float64(failed.FailedAt.UnixNano()) / 1e9
	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, d.key, redis.Z{Score: score, Member: data})
		pipe.ZRemRangeByRank(ctx, d.key, 0, -maxDeadLetters-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store failed event: %w", err)
	}
	return nil
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const popTimeout = 30 * time.Second

// RedisQueue dispatches job ids through a Redis list, for deployments
// that already run a broker. It satisfies the same contract as
// MemoryQueue; job records still live only in the local registry, so
// this does not add durability, only an external pending list.
type RedisQueue struct {
	client  *redis.Client
	pending string
}

func NewRedisQueue(client *redis.Client, pending string) *RedisQueue {
	return &RedisQueue{client: client, pending: pending}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.pending, jobID).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.pending, err)
	}
	return nil
}

// Dequeue blocks on BRPOP, retrying on poll timeouts until a job id
// arrives or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		result, err := q.client.BRPop(ctx, popTimeout, q.pending).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("brpop %s: %w", q.pending, err)
		}
		// BRPOP returns [key, value].
		return result[1], nil
	}
}

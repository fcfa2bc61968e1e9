package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list shared between the ingestion path and the
// grading workers.
const DefaultKey = "queue:submissions"

// SubmissionQueue is a FIFO of opaque submission identifiers. Delivery is
// at-most-once: a consumer crash after Dequeue loses the job.
type SubmissionQueue interface {
	Enqueue(ctx context.Context, submissionID string) error
	Dequeue(ctx context.Context) (string, error)
}

// NewRedisQueue constructs a Redis-backed submission queue. An empty key
// falls back to DefaultKey.
func NewRedisQueue(client *redis.Client, key string) SubmissionQueue {
	if key == "" {
		key = DefaultKey
	}
	return &redisQueue{client: client, key: key}
}

type redisQueue struct {
	client *redis.Client
	key    string
}

func (q *redisQueue) Enqueue(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return fmt.Errorf("submission id must not be empty")
	}
	return q.client.LPush(ctx, q.key, submissionID).Err()
}

// Dequeue blocks until a job is available or the context is cancelled.
// BRPOP with a zero timeout waits indefinitely without polling; the pop
// is atomic, so concurrent workers never receive the same id.
func (q *redisQueue) Dequeue(ctx context.Context) (string, error) {
	res, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return "", err
	}
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected brpop reply of length %d", len(res))
	}
	return res[1], nil
}

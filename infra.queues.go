package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Predefinied Queue IDs.
const (
	BookCreateQueue = "books.creation"
	BookUpdateQueue = "books.updating"
	BookDeleteQueue = "books.deletion"
	MailVerifyQueue = "mails.verification"
)

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// Queuer describes a queue of json payloads.
type Queuer interface {
	Push(ctx context.Context, qid string, v interface{}) error
	Pop(ctx context.Context, qids ...string) (string, []byte, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) Queuer {
	return &redisQueue{client: client}
}

// Push enqueues the json encoding of v onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, qid, payload).Err()
}

// Pop blocks until a payload is available on one of the queues and returns
// the queue id it came from with the raw payload.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, []byte, error) {
	infos, err := q.client.BLPop(ctx, 0*time.Second, qids...).Result()
	if err != nil {
		return "", nil, err
	}
	return infos[0], []byte(infos[1]), nil
}

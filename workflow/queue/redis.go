package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue over a single Redis list using the
// reliable-queue pattern: BLMOVE shifts a message from the source list
// into a processing list atomically, so a message is never lost between
// "received" and "being worked." A sorted set scored by visibility
// deadline backs a reaper that requeues messages whose consumer never
// Acked or Nacked in time.
type RedisQueue struct {
	client      *redis.Client
	sourceKey   string
	workingKey  string
	deadlineKey string

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type envelope struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// NewRedisQueue returns a RedisQueue named name, starting a background
// reaper that runs every reaperInterval to requeue expired deliveries.
func NewRedisQueue(client *redis.Client, name string, reaperInterval time.Duration) *RedisQueue {
	if reaperInterval <= 0 {
		reaperInterval = time.Second
	}
	q := &RedisQueue{
		client:      client,
		sourceKey:   "queue:" + name + ":pending",
		workingKey:  "queue:" + name + ":working",
		deadlineKey: "queue:" + name + ":deadlines",
		reaperStop:  make(chan struct{}),
		reaperDone:  make(chan struct{}),
	}
	go q.reapLoop(reaperInterval)
	return q
}

func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	env := envelope{ID: uuid.NewString(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return q.client.LPush(ctx, q.sourceKey, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (Message, error) {
	data, err := q.client.BLMove(ctx, q.sourceKey, q.workingKey, "right", "left", 0).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Message{}, ctx.Err()
		}
		return Message{}, fmt.Errorf("queue: dequeue: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return Message{}, fmt.Errorf("queue: decode envelope: %w", err)
	}

	deadline := time.Now().Add(visibilityTimeout)
	if err := q.client.ZAdd(ctx, q.deadlineKey, redis.Z{
		Score:  float64(deadline.UnixNano()),
		Member: data,
	}).Err(); err != nil {
		return Message{}, fmt.Errorf("queue: set visibility deadline: %w", err)
	}

	return Message{ID: env.ID, Handle: data, Payload: env.Payload}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, msg Message) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.workingKey, 1, msg.Handle)
	pipe.ZRem(ctx, q.deadlineKey, msg.Handle)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Nack(ctx context.Context, msg Message) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.workingKey, 1, msg.Handle)
	pipe.ZRem(ctx, q.deadlineKey, msg.Handle)
	pipe.RPush(ctx, q.sourceKey, msg.Handle)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Close() error {
	close(q.reaperStop)
	<-q.reaperDone
	return nil
}

// reapLoop periodically requeues deliveries whose visibility deadline has
// passed without an Ack or Nack.
func (q *RedisQueue) reapLoop(interval time.Duration) {
	defer close(q.reaperDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.reaperStop:
			return
		case <-ticker.C:
			q.reapExpired()
		}
	}
}

func (q *RedisQueue) reapExpired() {
	ctx := context.Background()
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	expired, err := q.client.ZRangeByScore(ctx, q.deadlineKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return
	}
	for _, member := range expired {
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.workingKey, 1, member)
		pipe.ZRem(ctx, q.deadlineKey, member)
		pipe.RPush(ctx, q.sourceKey, member)
		_, _ = pipe.Exec(ctx)
	}
}

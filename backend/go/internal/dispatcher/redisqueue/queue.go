// Package redisqueue is a delayed work queue on a Redis sorted set. Scores
// are the deliver-after instant in unix milliseconds; payloads live in a hash
// keyed by task id.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// claimScript removes a member from the delayed set and takes its payload in
// one step. It returns nil when another consumer claimed the member first.
var claimScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return false
end
local body = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return body
`)

// Queue implements dispatcher.MessageQueue.
type Queue struct {
	rdb        redis.Cmdable
	delayedKey string
	payloadKey string
	now        func() time.Time
}

// New uses prefix+":delayed" and prefix+":payload" as keys.
func New(rdb redis.Cmdable, prefix string) *Queue {
	return &Queue{
		rdb:        rdb,
		delayedKey: prefix + ":delayed",
		payloadKey: prefix + ":payload",
		now:        time.Now,
	}
}

func (q *Queue) Enqueue(ctx context.Context, msg dispatcher.WorkMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode work message: %w", err)
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.payloadKey, msg.TaskID, body)
		p.ZAdd(ctx, q.delayedKey, &redis.Z{Score: score(msg.NotBefore), Member: msg.TaskID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

// Poll claims up to limit due messages. A message is returned to exactly one
// caller: the one whose claim removed it from the delayed set.
func (q *Queue) Poll(ctx context.Context, limit int64) ([]dispatcher.WorkMessage, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis poll: %w", err)
	}

	var out []dispatcher.WorkMessage
	for _, id := range ids {
		body, err := claimScript.Run(ctx, q.rdb, []string{q.delayedKey, q.payloadKey}, id).Text()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("redis claim %s: %w", id, err)
		}
		msg, err := dispatcher.Decode([]byte(body))
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Pending returns the number of messages not yet claimed.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.delayedKey).Result()
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (q *Queue) Close() error { return nil }

func score(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli())
}

// source is the part of Queue a Consumer uses.
type source interface {
	Poll(ctx context.Context, limit int64) ([]dispatcher.WorkMessage, error)
	Enqueue(ctx context.Context, msg dispatcher.WorkMessage) error
}

// Consumer polls the queue on a fixed interval.
type Consumer struct {
	queue    source
	interval time.Duration
	batch    int64
	log      *logger.Logger
	now      func() time.Time
	backoff  func(attempt int) time.Duration
	// attempts counts consecutive retryable failures per task id.
	attempts map[string]int
}

func NewConsumer(q *Queue, interval time.Duration, log *logger.Logger) *Consumer {
	return newConsumer(q, interval, log)
}

func newConsumer(q source, interval time.Duration, log *logger.Logger) *Consumer {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Consumer{
		queue:    q,
		interval: interval,
		batch:    16,
		log:      log,
		now:      time.Now,
		backoff:  dispatcher.RetryDelay,
		attempts: map[string]int{},
	}
}

// Start blocks until ctx is cancelled. A message whose handler returns a
// retryable error is put back on the queue with a backoff delay.
func (c *Consumer) Start(ctx context.Context, handle dispatcher.Handler) error {
	c.log.Info("redis work consumer started")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("redis work consumer stopping")
			return nil
		case <-ticker.C:
		}

		msgs, err := c.queue.Poll(ctx, c.batch)
		if err != nil && ctx.Err() == nil {
			c.log.WithError(models.NewErrorInfo(err)).Error("failed to poll work queue")
		}
		for _, msg := range msgs {
			c.handle(ctx, handle, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handle dispatcher.Handler, msg dispatcher.WorkMessage) {
	err := handle(ctx, msg)
	if err == nil || !dispatcher.Retryable(err) {
		delete(c.attempts, msg.TaskID)
		if err != nil {
			c.log.WithError(models.NewErrorInfo(err)).
				WithField("task_id", msg.TaskID).
				Error("work handler failed")
		}
		return
	}

	c.attempts[msg.TaskID]++
	attempt := c.attempts[msg.TaskID]
	msg.NotBefore = c.now().Add(c.backoff(attempt))
	log := c.log.WithPayload(map[string]interface{}{"task_id": msg.TaskID, "attempt": attempt, "not_before": msg.NotBefore})
	// The claim already removed the message, so it must be written back even
	// when ctx is being cancelled.
	if rqErr := c.queue.Enqueue(context.WithoutCancel(ctx), msg); rqErr != nil {
		log.WithError(models.NewErrorInfo(errors.Join(err, rqErr))).Error("failed to requeue work message")
		return
	}
	log.WithError(models.NewErrorInfo(err)).Warn("work handler failed, requeued")
}

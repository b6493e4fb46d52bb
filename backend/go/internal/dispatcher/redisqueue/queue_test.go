package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	require.Equal(t, 0.0, score(time.Time{}))
	at := time.Date(2024, 5, 17, 8, 0, 1, 0, time.UTC)
	require.Equal(t, float64(at.UnixMilli()), score(at))
}

func TestKeys(t *testing.T) {
	q := New(nil, "jaqpot-work")
	require.Equal(t, "jaqpot-work:delayed", q.delayedKey)
	require.Equal(t, "jaqpot-work:payload", q.payloadKey)
}

func newTestQueue(t *testing.T) *Queue {
	addr := os.Getenv("JAQPOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("JAQPOT_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	q := New(rdb, "test-"+uuid.NewString())
	t.Cleanup(func() { rdb.Del(context.Background(), q.delayedKey, q.payloadKey) })
	return q
}

func TestPollHonoursDelay(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()
	q.now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, dispatcher.WorkMessage{TaskID: "due", Type: dispatcher.WorkSplit, Params: dispatcher.Params{"split_ratio": 0.3}, NotBefore: now.Add(-time.Second)}))
	require.NoError(t, q.Enqueue(ctx, dispatcher.WorkMessage{TaskID: "later", Type: dispatcher.WorkCross, NotBefore: now.Add(time.Minute)}))

	msgs, err := q.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "due", msgs[0].TaskID)
	require.Equal(t, dispatcher.Params{"split_ratio": 0.3}, msgs[0].Params)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, pending)

	q.now = func() time.Time { return now.Add(2 * time.Minute) }
	msgs, err = q.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "later", msgs[0].TaskID)
}

func TestPollClaimsOnce(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, dispatcher.WorkMessage{TaskID: "T1", Type: dispatcher.WorkSplit}))

	first, err := q.Poll(ctx, 10)
	require.NoError(t, err)
	second, err := q.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Empty(t, second)

	left, err := q.rdb.HLen(ctx, q.payloadKey).Result()
	require.NoError(t, err)
	require.Zero(t, left, "claimed payload must be removed with the member")
}

func TestPollSkipsMemberWithoutPayload(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.rdb.ZAdd(ctx, q.delayedKey, &redis.Z{Score: 0, Member: "orphan"}).Err())
	require.NoError(t, q.Enqueue(ctx, dispatcher.WorkMessage{TaskID: "T1", Type: dispatcher.WorkSplit}))

	msgs, err := q.Poll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "T1", msgs[0].TaskID)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)
}

// fakeSource hands out queued messages and records what is written back.
type fakeSource struct {
	mu       sync.Mutex
	due      []dispatcher.WorkMessage
	requeued []dispatcher.WorkMessage
}

func (f *fakeSource) Poll(context.Context, int64) ([]dispatcher.WorkMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.due
	f.due = nil
	return out, nil
}

func (f *fakeSource) Enqueue(_ context.Context, msg dispatcher.WorkMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, msg)
	// Redeliver immediately so the retry is observable.
	f.due = append(f.due, msg)
	return nil
}

func TestConsumerRequeuesWhileStoreUnavailable(t *testing.T) {
	src := &fakeSource{due: []dispatcher.WorkMessage{{TaskID: "T1", Type: dispatcher.WorkSplit, Params: dispatcher.Params{"split_ratio": 0.3}}}}
	c := newConsumer(src, time.Millisecond, logger.NewWithOutput("test", io.Discard))
	now := time.Date(2024, 5, 17, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.backoff = func(attempt int) time.Duration { return time.Duration(attempt) * time.Second }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	handled := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, msg dispatcher.WorkMessage) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("load task %s: %w", msg.TaskID, entitymanager.ErrStoreUnavailable)
			}
			close(handled)
			return nil
		})
	}()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never redelivered")
	}
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, 3, calls)
	require.Len(t, src.requeued, 2)
	require.Equal(t, now.Add(time.Second), src.requeued[0].NotBefore)
	require.Equal(t, now.Add(2*time.Second), src.requeued[1].NotBefore)
	require.Equal(t, dispatcher.Params{"split_ratio": 0.3}, src.requeued[1].Params)
	require.Empty(t, c.attempts, "attempts reset after success")
}

func TestConsumerDropsPermanentFailure(t *testing.T) {
	src := &fakeSource{due: []dispatcher.WorkMessage{{TaskID: "T1", Type: dispatcher.WorkSplit}}}
	c := newConsumer(src, time.Millisecond, logger.NewWithOutput("test", io.Discard))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	require.NoError(t, c.Start(ctx, func(context.Context, dispatcher.WorkMessage) error {
		calls++
		return errors.New("unknown work type")
	}))
	require.Equal(t, 1, calls)
	require.Empty(t, src.requeued)
}

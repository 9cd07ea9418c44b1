// Package redisqueue adapts a redis list to the ports.JobQueue interface,
// grounded on the teacher's redis pub/sub bus (internal/realtime/bus):
// same client construction and ping-on-connect, but list-based (LPUSH/
// BRPOP) instead of pub/sub, since a queue needs at-least-once delivery
// with a durable backlog rather than fan-out broadcast.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
	"github.com/mixmaster-audio/pipeline/internal/ports"
)

// Queue is a redis list-backed ports.JobQueue. Push does LPUSH, Pop does a
// blocking BRPOP so a worker can poll without busy-waiting.
type Queue struct {
	log        *logger.Logger
	rdb        *goredis.Client
	key        string
	popTimeout time.Duration
}

// New dials redis at addr and verifies connectivity with a ping, matching
// the teacher's redisBus construction. key is the list name jobs are
// pushed to and popped from. popTimeout bounds how long Pop blocks before
// returning ErrPopTimeout, so a caller's context can still be
// checked between polls.
func New(log *logger.Logger, addr, key string, popTimeout time.Duration) (*Queue, error) {
	if addr == "" {
		return nil, fmt.Errorf("redisqueue: missing redis address")
	}
	if key == "" {
		key = "mix:jobs"
	}
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisqueue: ping: %w", err)
	}

	return &Queue{log: log, rdb: rdb, key: key, popTimeout: popTimeout}, nil
}

// ErrPopTimeout is returned by Pop when no job arrived within popTimeout —
// the worker loop treats this the same as ports.ErrQueueEmpty: try again.
var ErrPopTimeout = fmt.Errorf("redisqueue: no job within pop timeout")

func (q *Queue) Push(ctx context.Context, env ports.JobEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal envelope: %w", err)
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

func (q *Queue) Pop(ctx context.Context) (ports.JobEnvelope, error) {
	res, err := q.rdb.BRPop(ctx, q.popTimeout, q.key).Result()
	if err == goredis.Nil {
		return ports.JobEnvelope{}, ErrPopTimeout
	}
	if err != nil {
		return ports.JobEnvelope{}, fmt.Errorf("redisqueue: brpop: %w", err)
	}
	// BRPop returns [key, value]; we only ever pop from one key.
	if len(res) != 2 {
		return ports.JobEnvelope{}, fmt.Errorf("redisqueue: unexpected brpop result shape %v", res)
	}
	var env ports.JobEnvelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return ports.JobEnvelope{}, fmt.Errorf("redisqueue: unmarshal envelope: %w", err)
	}
	return env, nil
}

// Close releases the underlying redis client.
func (q *Queue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}

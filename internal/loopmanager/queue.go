// Package loopmanager runs the OODA-cycle (Observe/Think/Decide/Act/Pace)
// goroutine-per-agent loops that drive every has_loop artifact,
// plus the trigger/queue machinery that wakes them.
//
// The queue's in-memory default is a buffered Go channel. The Redis-backed
// implementation adapts an RPush/BLPop job queue from per-workflow-run jobs
// to per-agent trigger-fire jobs, so a kernel can be horizontally scaled
// across more than one process without losing enqueued wakeups.
package loopmanager

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TriggerFire is one enqueued wakeup: agent_id woke up because of a
// cron/event trigger, never executed synchronously inside the event
// pipeline that produced it.
type TriggerFire struct {
	AgentID   string    `json:"agent_id"`
	TriggerID string    `json:"trigger_id"`
	Reason    string    `json:"reason"`
	FiredAt   time.Time `json:"fired_at"`
}

// TriggerQueue decouples "something happened" from "an agent's loop acts on
// it". Implementations must not block Enqueue on a full queue
// forever; a dropped fire just means the agent's next Observe cycle picks
// up the underlying state change anyway.
type TriggerQueue interface {
	Enqueue(ctx context.Context, fire TriggerFire) error
	// Dequeue blocks until a fire for agentID is available or ctx is done.
	Dequeue(ctx context.Context, agentID string) (TriggerFire, bool)
	Close() error
}

// memoryQueue is the default single-process TriggerQueue: one buffered
// channel per agent, created lazily.
type memoryQueue struct {
	mu   sync.Mutex
	chs  map[string]chan TriggerFire
	size int
}

// NewMemoryQueue builds the in-process channel-backed default queue.
func NewMemoryQueue(size int) TriggerQueue {
	if size <= 0 {
		size = 64
	}
	return &memoryQueue{chs: make(map[string]chan TriggerFire), size: size}
}

func (q *memoryQueue) chanFor(agentID string) chan TriggerFire {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.chs[agentID]
	if !ok {
		ch = make(chan TriggerFire, q.size)
		q.chs[agentID] = ch
	}
	return ch
}

func (q *memoryQueue) Enqueue(ctx context.Context, fire TriggerFire) error {
	ch := q.chanFor(fire.AgentID)
	select {
	case ch <- fire:
	default: // queue full for this agent; fire dropped, see interface doc
	}
	return nil
}

func (q *memoryQueue) Dequeue(ctx context.Context, agentID string) (TriggerFire, bool) {
	ch := q.chanFor(agentID)
	select {
	case fire := <-ch:
		return fire, true
	case <-ctx.Done():
		return TriggerFire{}, false
	}
}

func (q *memoryQueue) Close() error { return nil }

// redisQueue is the distributed TriggerQueue: RPush to enqueue, BLPop
// (with a fresh bounded-wait context per call) to dequeue.
type redisQueue struct {
	client *redis.Client
	prefix string
}

// RedisQueueConfig controls redisQueue construction.
type RedisQueueConfig struct {
	Addr   string
	Prefix string
}

// NewRedisQueue connects to addr and returns a TriggerQueue backed by
// per-agent Redis lists named <prefix>:triggers:<agent_id>.
func NewRedisQueue(cfg RedisQueueConfig) (TriggerQueue, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agentsim"
	}
	return &redisQueue{client: client, prefix: prefix}, nil
}

func (q *redisQueue) key(agentID string) string {
	return q.prefix + ":triggers:" + agentID
}

func (q *redisQueue) Enqueue(ctx context.Context, fire TriggerFire) error {
	b, err := json.Marshal(fire)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key(fire.AgentID), b).Err()
}

func (q *redisQueue) Dequeue(ctx context.Context, agentID string) (TriggerFire, bool) {
	res, err := q.client.BLPop(ctx, 0, q.key(agentID)).Result()
	if err != nil || len(res) < 2 {
		return TriggerFire{}, false
	}
	var fire TriggerFire
	if err := json.Unmarshal([]byte(res[1]), &fire); err != nil {
		return TriggerFire{}, false
	}
	return fire, true
}

func (q *redisQueue) Close() error {
	return q.client.Close()
}

// Package cache provides the distributed lock and cross-instance
// invalidation primitives the scheduler and flow engine need once more than
// one process runs against the same entity databases: a Redis SETNX lock
// per (source, direction) run, and a pub/sub channel that tells every other
// instance to drop its memoized entity database handle for a NIP.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/exef-pl/exef/logging"
)

var log = logging.New(map[string]interface{}{"component": "cache"})

// InvalidateChannel is the pub/sub channel every instance subscribes to for
// entity-database invalidation notices.
const InvalidateChannel = "exef:entity-invalidate"

// Manager wraps a Redis/Valkey client for run-locking and invalidation
// pub/sub.
type Manager struct {
	client *redis.Client
}

// NewManager connects to redisURL and verifies the connection with a ping.
func NewManager(redisURL string) (*Manager, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Manager{client: client}, nil
}

// Close closes the underlying Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

func runLockKey(sourceID string, direction string) string {
	return fmt.Sprintf("lock:run:%s:%s", direction, sourceID)
}

// AcquireRunLock takes the distributed lock for one (source, direction)
// pair, so two instances never trigger the same import/export run at once.
// It returns false, nil when another instance already holds the lock.
func (m *Manager) AcquireRunLock(ctx context.Context, sourceID, direction string, ttl time.Duration) (bool, error) {
	key := runLockKey(sourceID, direction)
	payload, err := json.Marshal(map[string]any{
		"source_id": sourceID,
		"direction": direction,
		"locked_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, fmt.Errorf("marshal lock payload: %w", err)
	}

	ok, err := m.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseRunLock drops the lock for one (source, direction) pair, letting
// the next scheduled pull proceed immediately instead of waiting out the
// TTL.
func (m *Manager) ReleaseRunLock(ctx context.Context, sourceID, direction string) error {
	key := runLockKey(sourceID, direction)
	if err := m.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release run lock %s: %w", key, err)
	}
	return nil
}

// IsRunLocked reports whether another instance currently holds the run lock
// for sourceID/direction.
func (m *Manager) IsRunLocked(ctx context.Context, sourceID, direction string) (bool, error) {
	key := runLockKey(sourceID, direction)
	exists, err := m.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check run lock %s: %w", key, err)
	}
	return exists > 0, nil
}

// PublishEntityInvalidate notifies every subscribed instance that entityNIP's
// memoized database handle (router.Manager's in-process cache) should be
// dropped and reopened, e.g. after MigrateToEntityDB runs on another node.
func (m *Manager) PublishEntityInvalidate(ctx context.Context, entityNIP string) error {
	if err := m.client.Publish(ctx, InvalidateChannel, entityNIP).Err(); err != nil {
		return fmt.Errorf("publish entity invalidate %s: %w", entityNIP, err)
	}
	return nil
}

// SubscribeEntityInvalidate returns a channel of entity NIPs to invalidate,
// closing it when ctx is cancelled.
func (m *Manager) SubscribeEntityInvalidate(ctx context.Context) <-chan string {
	pubsub := m.client.Subscribe(ctx, InvalidateChannel)
	out := make(chan string)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("subscribed to entity invalidation channel")
	return out
}

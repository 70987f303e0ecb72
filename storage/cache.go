package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"nebula-api/domain"
)

const taskSnapshotKey = "nebula:tasks:snapshot"

// Cache wraps a TaskBackend with a Redis-backed snapshot of the full listing.
// Every mutation evicts the snapshot so readers always observe a consistent
// re-list, never a patched partial view.
type Cache struct {
	base  TaskBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching backend wrapper using the provided Redis client
// and TTL.
func NewCache(base TaskBackend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base backend is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) InsertTask(ctx context.Context, task domain.Task) error {
	if err := c.base.InsertTask(ctx, task); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, task domain.Task) error {
	if err := c.base.UpdateTask(ctx, task); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) ListTasks(ctx context.Context) ([]domain.Task, error) {
	if tasks, ok := c.loadSnapshot(ctx); ok {
		return tasks, nil
	}

	tasks, err := c.base.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	c.storeSnapshot(ctx, tasks)
	return tasks, nil
}

func (c *Cache) loadSnapshot(ctx context.Context) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, taskSnapshotKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, taskSnapshotKey).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, taskSnapshotKey).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeSnapshot(ctx context.Context, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, taskSnapshotKey, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, taskSnapshotKey).Result()
}

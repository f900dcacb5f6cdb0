// Package attempts counts failed tries per key inside a time window.
package attempts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

type Limiter interface {
	// Allowed reports whether key still has tries left.
	Allowed(ctx context.Context, key string) (bool, error)
	// Fail records a failed try and returns the failures so far.
	Fail(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
	Max() int
}

type counter struct {
	n       int
	expires time.Time
}

type Memory struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	counts map[string]counter
	now    func() time.Time
}

func NewMemory(max int, window time.Duration) *Memory {
	return &Memory{
		max:    max,
		window: window,
		counts: make(map[string]counter),
		now:    time.Now,
	}
}

func (m *Memory) Max() int { return m.max }

func (m *Memory) current(key string) int {
	c, ok := m.counts[key]
	if !ok {
		return 0
	}
	if !m.now().Before(c.expires) {
		delete(m.counts, key)
		return 0
	}
	return c.n
}

func (m *Memory) Allowed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(key) < m.max, nil
}

func (m *Memory) Fail(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.current(key) + 1
	c := m.counts[key]
	if n == 1 {
		c.expires = m.now().Add(m.window)
	}
	c.n = n
	m.counts[key] = c
	return n, nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, key)
	return nil
}

// Redis shares counters between instances. The window starts at the first failure.
type Redis struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedis(client *redis.Client, prefix string, max int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, max: max, window: window}
}

func (r *Redis) Max() int { return r.max }

func (r *Redis) key(k string) string {
	return r.prefix + ":attempts:" + k
}

func (r *Redis) Allowed(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Get(ctx, r.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n < r.max, nil
}

func (r *Redis) Fail(ctx context.Context, key string) (int, error) {
	k := r.key(key)
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Package cancel records which composition requests a caller asked to stop.
package cancel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

// DefaultTTL bounds how long a cancel flag outlives its request.
const DefaultTTL = time.Hour

const keyPrefix = "dressup:cancel:"

// ErrEmptyRequestID is returned when no request id is given.
var ErrEmptyRequestID = errors.New("cancel: request id is required")

// Registry sets and reads cancel flags.
type Registry interface {
	imagegen.CancelChecker
	Cancel(ctx context.Context, requestID string) error
	// Clear drops a flag so a new run can reuse the request id.
	Clear(ctx context.Context, requestID string) error
}

// RedisRegistry shares cancel flags between API replicas.
type RedisRegistry struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisRegistry(rdb redis.Cmdable, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRegistry{rdb: rdb, ttl: ttl}
}

func (r *RedisRegistry) Cancel(ctx context.Context, requestID string) error {
	id := strings.TrimSpace(requestID)
	if id == "" {
		return ErrEmptyRequestID
	}
	return r.rdb.Set(ctx, keyPrefix+id, "1", r.ttl).Err()
}

func (r *RedisRegistry) Clear(ctx context.Context, requestID string) error {
	id := strings.TrimSpace(requestID)
	if id == "" {
		return nil
	}
	return r.rdb.Del(ctx, keyPrefix+id).Err()
}

func (r *RedisRegistry) Canceled(ctx context.Context, requestID string) (bool, error) {
	id := strings.TrimSpace(requestID)
	if id == "" {
		return false, nil
	}
	n, err := r.rdb.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRegistry keeps flags in process. Used when REDIS_ADDR is unset.
type MemoryRegistry struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	flags map[string]time.Time
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryRegistry{ttl: ttl, now: time.Now, flags: make(map[string]time.Time)}
}

func (m *MemoryRegistry) Cancel(ctx context.Context, requestID string) error {
	id := strings.TrimSpace(requestID)
	if id == "" {
		return ErrEmptyRequestID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.flags {
		if now.After(exp) {
			delete(m.flags, k)
		}
	}
	m.flags[id] = now.Add(m.ttl)
	return nil
}

func (m *MemoryRegistry) Clear(ctx context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, strings.TrimSpace(requestID))
	return nil
}

func (m *MemoryRegistry) Canceled(ctx context.Context, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.flags[strings.TrimSpace(requestID)]
	return ok && !m.now().After(exp), nil
}

var (
	_ Registry = (*RedisRegistry)(nil)
	_ Registry = (*MemoryRegistry)(nil)
)

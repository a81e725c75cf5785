package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "finalize:"
	// TTL страхует от ключей, брошенных упавшим процессом.
	defaultTTL = 2 * time.Minute
)

// Redis — блокировка «запрос уже выполняется», общая для всех экземпляров.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Acquire возвращает false, если такой ключ уже занят.
func (r *Redis) Acquire(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+key, 1, r.ttl).Result()
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}

// Local — то же в пределах одного процесса, когда Redis не настроен.
type Local struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewLocal() *Local { return &Local{busy: map[string]struct{}{}} }

func (l *Local) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[key]; ok {
		return false, nil
	}
	l.busy[key] = struct{}{}
	return true, nil
}

func (l *Local) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.busy, key)
	return nil
}

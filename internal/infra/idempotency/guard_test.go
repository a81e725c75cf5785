package idempotency

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func exerciseGuard(t *testing.T, g guard) {
	t.Helper()
	ctx := context.Background()
	key := uuid.NewString()

	ok, err := g.Acquire(ctx, key)
	if err != nil || !ok {
		t.Fatalf("first Acquire = %v, %v", ok, err)
	}
	ok, err = g.Acquire(ctx, key)
	if err != nil || ok {
		t.Fatalf("second Acquire = %v, %v; want false", ok, err)
	}
	if err := g.Release(ctx, key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, err = g.Acquire(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Acquire after Release = %v, %v", ok, err)
	}
	_ = g.Release(ctx, key)
}

func TestLocal(t *testing.T) {
	exerciseGuard(t, NewLocal())
}

func TestLocalConcurrent(t *testing.T) {
	g := NewLocal()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.Acquire(context.Background(), "same"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	g := NewRedis(client, 5*time.Second)
	exerciseGuard(t, g)
}

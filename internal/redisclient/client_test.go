package redisclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/memologist/memologist/internal/config"
)

func TestLocker(t *testing.T) {
	addr := os.Getenv("MEMOLOGIST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEMOLOGIST_TEST_REDIS_ADDR not set")
	}
	rdb := New(config.RedisConfig{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	l := NewLocker(rdb)
	key := fmt.Sprintf("memologist:test:lock:%d", time.Now().UnixNano())
	unlock, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, err := l.TryLock(ctx, key, time.Minute); err != nil || ok {
		t.Fatalf("second lock should fail: ok=%v err=%v", ok, err)
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	unlock, ok, err = l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("relock: ok=%v err=%v", ok, err)
	}
	_ = unlock(ctx)
}

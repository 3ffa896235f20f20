package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	l := NewRateLimiter(client, 3, time.Minute)
	fixed := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d of 3 should be allowed", i)
		}
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("request over the limit should be denied")
	}

	ok, _ = l.Allow(ctx, "10.0.0.2")
	if !ok {
		t.Fatal("another key has its own window")
	}
}

func TestRateLimiter_NewWindowResets(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	l := NewRateLimiter(client, 1, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 59, 0, time.UTC)
	l.now = func() time.Time { return now }

	if ok, _ := l.Allow(ctx, "ip"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "ip"); ok {
		t.Fatal("second request in the same window should be denied")
	}

	now = now.Add(2 * time.Second)
	if ok, _ := l.Allow(ctx, "ip"); !ok {
		t.Fatal("first request of the next window should be allowed")
	}
}

func TestRateLimiter_WindowKeyExpires(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	l := NewRateLimiter(client, 5, time.Minute)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	if _, err := l.Allow(ctx, "ip"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	key := "ratelimit:ip:" + "1767268800"
	if !mr.Exists(key) {
		t.Fatalf("expected counter key %s, have %v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("counter ttl = %v, want within one window", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if mr.Exists(key) {
		t.Fatal("counter should expire with its window")
	}
}

func TestRateLimiter_RedisDown(t *testing.T) {
	mr, client := newTestClient(t)
	mr.Close()

	l := NewRateLimiter(client, 5, time.Minute)
	if _, err := l.Allow(context.Background(), "ip"); err == nil {
		t.Fatal("expected an error when redis is unreachable")
	}
}

package rateLimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/event-pass-gate/internal/adapters/redis"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestLimiter(t *testing.T) *RateLimiter {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container test")
	}
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := c.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(redisadapter.NewCache(client))
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	rl := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := rl.Allow(ctx, "gate:ip:10.0.0.1", 3, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Remaining != 3-i {
			t.Fatalf("request %d: got %+v", i, d)
		}
		if d.ResetIn <= 0 || d.ResetIn > time.Minute {
			t.Fatalf("request %d: reset in %v", i, d.ResetIn)
		}
	}

	d, err := rl.Allow(ctx, "gate:ip:10.0.0.1", 3, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("expected fourth request denied, got %+v", d)
	}

	other, err := rl.Allow(ctx, "gate:ip:10.0.0.2", 3, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !other.Allowed {
		t.Errorf("expected separate budget per key, got %+v", other)
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	rl := newTestLimiter(t)
	ctx := context.Background()

	if d, err := rl.Allow(ctx, "gate:user:op-1", 1, 300*time.Millisecond); err != nil || !d.Allowed {
		t.Fatalf("first request: %+v %v", d, err)
	}
	if d, _ := rl.Allow(ctx, "gate:user:op-1", 1, 300*time.Millisecond); d.Allowed {
		t.Fatalf("expected second request denied, got %+v", d)
	}
	time.Sleep(500 * time.Millisecond)
	if d, err := rl.Allow(ctx, "gate:user:op-1", 1, 300*time.Millisecond); err != nil || !d.Allowed {
		t.Errorf("expected a fresh window, got %+v %v", d, err)
	}
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	cache, err := ConnectRedis(ctx, fmt.Sprintf("%s:%s", host, port.Port()))
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = cache.Close()
	})
	return cache
}

func TestRedisCache_RoundTrip(t *testing.T) {
	cache := setupRedisCache(t)
	ctx := context.Background()

	want := []Summary{{
		PartnerID:           "bob",
		PartnerName:         "Bob B",
		LastMessageText:     "hey",
		LastMessageAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		LastMessageSenderID: "bob",
	}}
	epoch, err := cache.Epoch(ctx, "alice")
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	if err := cache.Set(ctx, "alice", epoch, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := cache.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summaries mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisCache_MissAndInvalidate(t *testing.T) {
	cache := setupRedisCache(t)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "nobody"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get on empty key error = %v, want ErrCacheMiss", err)
	}

	if err := cache.Set(ctx, "alice", 0, []Summary{{PartnerID: "bob"}}); err != nil {
		t.Fatalf("set alice: %v", err)
	}
	if err := cache.Set(ctx, "bob", 0, []Summary{{PartnerID: "alice"}}); err != nil {
		t.Fatalf("set bob: %v", err)
	}

	if err := cache.Invalidate(ctx, "alice", "bob"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.Get(ctx, "alice"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get alice after invalidate error = %v, want ErrCacheMiss", err)
	}
	if _, err := cache.Get(ctx, "bob"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get bob after invalidate error = %v, want ErrCacheMiss", err)
	}

	// Invalidating nothing is a no-op, not an error.
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("empty invalidate: %v", err)
	}
}

func TestRedisCache_StaleEpochWriteUnreachable(t *testing.T) {
	cache := setupRedisCache(t)
	ctx := context.Background()

	// A recompute captured epoch 0, then a mutation invalidated the viewer
	// before the write landed. The write goes through but resolves to a key
	// no reader uses anymore.
	epoch, err := cache.Epoch(ctx, "alice")
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	if err := cache.Invalidate(ctx, "alice", "bob"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := cache.Set(ctx, "alice", epoch, []Summary{{PartnerID: "bob", LastMessageText: "stale"}}); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := cache.Get(ctx, "alice"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get after stale write error = %v, want ErrCacheMiss", err)
	}

	// A write under the current epoch is served normally.
	current, err := cache.Epoch(ctx, "alice")
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	if err := cache.Set(ctx, "alice", current, []Summary{{PartnerID: "bob", LastMessageText: "fresh"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := cache.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].LastMessageText != "fresh" {
		t.Fatalf("summaries = %+v, want the fresh list", got)
	}
}

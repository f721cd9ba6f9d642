package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/partsync/internal/core"
)

// setupTestCache creates a cache on a unique prefix. Requires Redis on
// localhost:6379; skipped otherwise.
func setupTestCache(t *testing.T) *ListCache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	c := New(client, "test:"+uuid.New().String()+":list:", time.Minute)
	t.Cleanup(func() {
		_ = c.Invalidate(ctx)
		client.Close()
	})
	return c
}

func TestKey(t *testing.T) {
	c := New(nil, "", time.Minute)
	if got := c.key(20, 10); got != "products:list:20:10" {
		t.Errorf("key() = %q", got)
	}
}

func TestListCache_GetSetInvalidate(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	if _, hit, err := c.GetList(ctx, 0, 10); err != nil || hit {
		t.Fatalf("GetList() on empty cache = hit %v, err %v", hit, err)
	}

	desc := "Widget"
	page := []core.Product{{ID: 1, PartNumber: "A1", BranchID: "B1", PartPrice: 9.99, ShortDesc: &desc}}
	if err := c.SetList(ctx, 0, 10, page); err != nil {
		t.Fatalf("SetList() error = %v", err)
	}

	got, hit, err := c.GetList(ctx, 0, 10)
	if err != nil || !hit {
		t.Fatalf("GetList() = hit %v, err %v", hit, err)
	}
	if len(got) != 1 || got[0].PartNumber != "A1" || *got[0].ShortDesc != "Widget" {
		t.Errorf("GetList() = %+v", got)
	}

	if _, hit, _ := c.GetList(ctx, 10, 10); hit {
		t.Error("different page reported a hit")
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, hit, _ := c.GetList(ctx, 0, 10); hit {
		t.Error("page survived invalidation")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Sets != 1 || stats.Invalidations != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

type page struct {
	Total int      `json:"total"`
	IDs   []string `json:"ids"`
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	var got page
	hit, err := c.Get(ctx, "items:1", &got)
	if err != nil || hit {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}

	if err := c.Set(ctx, "items:1", page{Total: 2, IDs: []string{"a", "b"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	hit, err = c.Get(ctx, "items:1", &got)
	if err != nil || !hit {
		t.Fatalf("get: hit=%v err=%v", hit, err)
	}
	if got.Total != 2 || len(got.IDs) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "k", page{Total: 1}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)

	var got page
	if hit, _ := c.Get(ctx, "k", &got); hit {
		t.Error("expired entry should miss")
	}
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	_ = c.Set(ctx, "a", page{})
	_ = c.Set(ctx, "b", page{})

	if err := c.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	var got page
	if hit, _ := c.Get(ctx, "a", &got); hit {
		t.Error("invalidate left entries behind")
	}
}

func TestNoopNeverHits(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	_ = c.Set(ctx, "a", page{Total: 1})
	var got page
	if hit, err := c.Get(ctx, "a", &got); hit || err != nil {
		t.Errorf("noop: hit=%v err=%v", hit, err)
	}
}

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedis(ctx, url, "pitchpulse-test:", time.Minute)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	defer c.Invalidate(ctx)

	if err := c.Set(ctx, "items:1", page{Total: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got page
	hit, err := c.Get(ctx, "items:1", &got)
	if err != nil || !hit || got.Total != 3 {
		t.Fatalf("get: hit=%v err=%v got=%+v", hit, err, got)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if hit, _ := c.Get(ctx, "items:1", &got); hit {
		t.Error("key survived invalidate")
	}
}

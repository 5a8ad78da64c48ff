package memory_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"presencelog/internal/cache"
	"presencelog/internal/cache/memory"
)

func TestSetGet(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected 'value1', got %q", string(val))
	}
}

func TestGetNotFound(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()

	_, err := c.Get(context.Background(), "nonexistent")
	if !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiration(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "key1"); !errors.Is(err, cache.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "key1"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKeysPrefix(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	for _, k := range []string{"presence:current:u1", "presence:current:u2", "other:u3"} {
		if err := c.Set(ctx, k, []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	keys, err := c.Keys(ctx, "presence:current:*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "presence:current:u1" || keys[1] != "presence:current:u2" {
		t.Errorf("keys = %v", keys)
	}
}

func TestIncrement(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Increment(ctx, "counter", 1, time.Minute)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if got != want {
			t.Errorf("Increment = %d, want %d", got, want)
		}
	}
}

func TestIncrementExpiredCounterResets(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Increment(ctx, "counter", 5, 10*time.Millisecond); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	got, err := c.Increment(ctx, "counter", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expired counter not reset: got %d, want 1", got)
	}
}

func TestRegistryBuildsMemoryDriver(t *testing.T) {
	c, err := cache.NewFromConfig("memory", map[string]any{
		"memory": map[string]any{"default_ttl_seconds": int64(60)},
	})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if val, err := c.Get(ctx, "k"); err != nil || string(val) != "v" {
		t.Errorf("Get = %q, %v", val, err)
	}
}

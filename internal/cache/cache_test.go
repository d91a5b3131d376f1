package cache

import (
	"context"
	"testing"
	"time"

	"github.com/fleetops/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	fleetID := "fleet-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, fleetID, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, fleetID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, fleetID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, fleetID, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, fleetID, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, fleetID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, fleetID, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, fleetID, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, fleetID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, fleetID, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, fleetID, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, fleetID, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, fleetID, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, fleetID, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, fleetID, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, fleetID, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("FleetIsolation", func(t *testing.T) {
		fleet1 := "fleet-001"
		fleet2 := "fleet-002"

		_ = cache.Set(ctx, fleet1, "shared-key", []byte("fleet1-value"), time.Minute)
		_ = cache.Set(ctx, fleet2, "shared-key", []byte("fleet2-value"), time.Minute)

		val1, _ := cache.Get(ctx, fleet1, "shared-key")
		val2, _ := cache.Get(ctx, fleet2, "shared-key")

		if string(val1) != "fleet1-value" {
			t.Errorf("expected 'fleet1-value', got '%s'", string(val1))
		}
		if string(val2) != "fleet2-value" {
			t.Errorf("expected 'fleet2-value', got '%s'", string(val2))
		}
	})

	t.Run("RequiresFleetID", func(t *testing.T) {
		err := cache.Set(ctx, "", "key", []byte("value"), time.Minute)
		if err == nil {
			t.Error("expected error for empty fleetID")
		}

		_, err = cache.Get(ctx, "", "key")
		if err == nil {
			t.Error("expected error for empty fleetID")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := 100 * time.Millisecond

		count1, err := cache.IncrementCounter(ctx, fleetID, "alerts", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := cache.IncrementCounter(ctx, fleetID, "alerts", window)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		// Wait for window to expire
		time.Sleep(150 * time.Millisecond)

		count3, _ := cache.IncrementCounter(ctx, fleetID, "alerts", window)
		if count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("BaselineCache", func(t *testing.T) {
		entry := &domain.BaselineEntry{
			VehicleID:      "veh-001",
			OdometerBucket: 4,
			Efficiency:     9.5,
			SampleCount:    12,
			ComputedAt:     time.Now().UTC(),
		}

		err := cache.SetBaseline(ctx, fleetID, "veh-001", 4, entry, time.Minute)
		if err != nil {
			t.Fatalf("SetBaseline failed: %v", err)
		}

		retrieved, err := cache.GetBaseline(ctx, fleetID, "veh-001", 4)
		if err != nil {
			t.Fatalf("GetBaseline failed: %v", err)
		}

		if retrieved.VehicleID != entry.VehicleID {
			t.Errorf("expected VehicleID %s, got %s", entry.VehicleID, retrieved.VehicleID)
		}
		if retrieved.Efficiency != entry.Efficiency {
			t.Errorf("expected Efficiency %.2f, got %.2f", entry.Efficiency, retrieved.Efficiency)
		}

		// Different bucket is a distinct entry
		miss, _ := cache.GetBaseline(ctx, fleetID, "veh-001", 5)
		if miss != nil {
			t.Error("expected miss for a different odometer bucket")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, fleetID, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, fleetID, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, fleetID, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		// Cache should be empty after close
		val, _ := testCache.Get(ctx, fleetID, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

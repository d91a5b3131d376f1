package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require fleetID for strict fleet isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, fleetID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, fleetID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, fleetID string, key string) error

	// GetBaseline retrieves a cached baseline-efficiency entry for a
	// vehicle/odometer-bucket pair. Returns nil, nil on a miss.
	GetBaseline(ctx context.Context, fleetID string, vehicleID string, bucket int) (*BaselineEntry, error)

	// SetBaseline caches a baseline-efficiency entry.
	SetBaseline(ctx context.Context, fleetID string, vehicleID string, bucket int, entry *BaselineEntry, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used to track repeat alerts per vehicle in a time window.
	IncrementCounter(ctx context.Context, fleetID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// BaselineEntry holds a vehicle's cached historical efficiency figure.
// Entries are keyed by (vehicle, coarse odometer bucket) so a vehicle's
// baseline naturally rolls over as mileage accumulates; the cache is owned
// by the caller and passed into the analysis pipeline, never held as
// process-wide mutable state.
type BaselineEntry struct {
	VehicleID      string    `json:"vehicleId"`
	OdometerBucket int       `json:"odometerBucket"`
	Efficiency     float64   `json:"efficiency"`
	SampleCount    int       `json:"sampleCount"`
	ComputedAt     time.Time `json:"computedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}

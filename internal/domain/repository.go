package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require fleetID for strict fleet isolation.
type Repository interface {
	// Trip operations
	SaveTrip(ctx context.Context, fleetID string, trip *Trip) error
	GetTrip(ctx context.Context, fleetID string, tripID string) (*Trip, error)
	ListTripsByVehicle(ctx context.Context, fleetID string, vehicleID string, since time.Time) ([]*Trip, error)
	ListRecentTrips(ctx context.Context, fleetID string, since time.Time) ([]*Trip, error)

	// Vehicle operations
	SaveVehicle(ctx context.Context, fleetID string, vehicle *Vehicle) error
	GetVehicle(ctx context.Context, fleetID string, vehicleID string) (*Vehicle, error)

	// Rule configuration operations
	SaveRule(ctx context.Context, fleetID string, rule *Rule) error
	GetRule(ctx context.Context, fleetID string, ruleID string) (*Rule, error)
	ListRules(ctx context.Context, fleetID string) ([]*Rule, error)

	// Detection results
	SaveDetection(ctx context.Context, fleetID string, det *EdgeCaseDetection) error
	GetDetection(ctx context.Context, fleetID string, caseID string) (*EdgeCaseDetection, error)
	ListDetections(ctx context.Context, fleetID string, status ResolutionStatus, limit int) ([]*EdgeCaseDetection, error)
	UpdateDetectionStatus(ctx context.Context, fleetID string, caseID string, status ResolutionStatus) error

	// Recovery scenarios
	SaveScenario(ctx context.Context, fleetID string, scenario *DataRecoveryScenario) error
	ListScenariosByVehicle(ctx context.Context, fleetID string, vehicleID string) ([]*DataRecoveryScenario, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

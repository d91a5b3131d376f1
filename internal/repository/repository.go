// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetops/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTrip stores a trip with fleet isolation.
func (r *SQLRepository) SaveTrip(ctx context.Context, fleetID string, trip *domain.Trip) error {
	if fleetID == "" {
		return fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	destinations, _ := json.Marshal(trip.Destinations)

	query := `
		INSERT INTO trips (
			id, fleet_id, vehicle_id, vehicle_registration, serial_number,
			start_time, end_time, created_at, start_km, end_km,
			fuel_quantity, efficiency, destinations, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, fleet_id) DO UPDATE SET
			vehicle_id = excluded.vehicle_id,
			vehicle_registration = excluded.vehicle_registration,
			serial_number = excluded.serial_number,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			start_km = excluded.start_km,
			end_km = excluded.end_km,
			fuel_quantity = excluded.fuel_quantity,
			efficiency = excluded.efficiency,
			destinations = excluded.destinations,
			notes = excluded.notes
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		trip.ID, fleetID, trip.VehicleID, trip.VehicleRegistration, trip.SerialNumber,
		trip.StartTime, trip.EndTime, trip.CreatedAt, trip.StartKM, trip.EndKM,
		trip.FuelQuantity, trip.Efficiency, string(destinations), trip.Notes,
	)
	return err
}

// GetTrip retrieves a trip by ID with fleet isolation.
func (r *SQLRepository) GetTrip(ctx context.Context, fleetID string, tripID string) (*domain.Trip, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, fleet_id, vehicle_id, vehicle_registration, serial_number,
			   start_time, end_time, created_at, start_km, end_km,
			   fuel_quantity, efficiency, destinations, notes
		FROM trips
		WHERE fleet_id = ? AND id = ?
	`

	trip, err := scanTrip(r.db.QueryRowContext(ctx, r.rebind(query), fleetID, tripID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return trip, err
}

// ListTripsByVehicle retrieves a vehicle's trips since a point in time,
// ordered by start time ascending.
func (r *SQLRepository) ListTripsByVehicle(ctx context.Context, fleetID string, vehicleID string, since time.Time) ([]*domain.Trip, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, fleet_id, vehicle_id, vehicle_registration, serial_number,
			   start_time, end_time, created_at, start_km, end_km,
			   fuel_quantity, efficiency, destinations, notes
		FROM trips
		WHERE fleet_id = ? AND vehicle_id = ? AND start_time >= ?
		ORDER BY start_time ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), fleetID, vehicleID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrips(rows)
}

// ListRecentTrips retrieves all fleet trips since a point in time, ordered
// by start time ascending.
func (r *SQLRepository) ListRecentTrips(ctx context.Context, fleetID string, since time.Time) ([]*domain.Trip, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, fleet_id, vehicle_id, vehicle_registration, serial_number,
			   start_time, end_time, created_at, start_km, end_km,
			   fuel_quantity, efficiency, destinations, notes
		FROM trips
		WHERE fleet_id = ? AND start_time >= ?
		ORDER BY start_time ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), fleetID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrips(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var destinations sql.NullString
	var registration, serial, notes sql.NullString

	err := row.Scan(
		&trip.ID, &trip.FleetID, &trip.VehicleID, &registration, &serial,
		&trip.StartTime, &trip.EndTime, &trip.CreatedAt, &trip.StartKM, &trip.EndKM,
		&trip.FuelQuantity, &trip.Efficiency, &destinations, &notes,
	)
	if err != nil {
		return nil, err
	}

	trip.VehicleRegistration = registration.String
	trip.SerialNumber = serial.String
	trip.Notes = notes.String
	if destinations.Valid && destinations.String != "" {
		json.Unmarshal([]byte(destinations.String), &trip.Destinations)
	}

	return &trip, nil
}

func scanTrips(rows *sql.Rows) ([]*domain.Trip, error) {
	var trips []*domain.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// SaveVehicle stores a vehicle with fleet isolation.
func (r *SQLRepository) SaveVehicle(ctx context.Context, fleetID string, vehicle *domain.Vehicle) error {
	if fleetID == "" {
		return fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO vehicles (
			id, fleet_id, registration, make, model, odometer_km, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, fleet_id) DO UPDATE SET
			registration = excluded.registration,
			make = excluded.make,
			model = excluded.model,
			odometer_km = excluded.odometer_km
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		vehicle.ID, fleetID, vehicle.Registration, vehicle.Make, vehicle.Model,
		vehicle.OdometerKM, vehicle.CreatedAt,
	)
	return err
}

// GetVehicle retrieves a vehicle by ID with fleet isolation.
func (r *SQLRepository) GetVehicle(ctx context.Context, fleetID string, vehicleID string) (*domain.Vehicle, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, fleet_id, registration, make, model, odometer_km, created_at
		FROM vehicles
		WHERE fleet_id = ? AND id = ?
	`

	var v domain.Vehicle
	var registration, mk, model sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), fleetID, vehicleID).Scan(
		&v.ID, &v.FleetID, &registration, &mk, &model, &v.OdometerKM, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	v.Registration = registration.String
	v.Make = mk.String
	v.Model = model.String

	return &v, nil
}

// SaveRule stores a rule configuration with fleet isolation.
func (r *SQLRepository) SaveRule(ctx context.Context, fleetID string, rule *domain.Rule) error {
	if fleetID == "" {
		return fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	conditions, _ := json.Marshal(rule.Conditions)
	overrides, _ := json.Marshal(rule.SeverityOverrides)
	actions, _ := json.Marshal(rule.AutoActions)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO detection_rules (
			id, fleet_id, name, description, version, case_type, expression,
			conditions, severity_overrides, auto_actions, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, fleet_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			case_type = excluded.case_type,
			expression = excluded.expression,
			conditions = excluded.conditions,
			severity_overrides = excluded.severity_overrides,
			auto_actions = excluded.auto_actions,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, fleetID, rule.Name, rule.Description, rule.Version,
		rule.CaseType, rule.Expression,
		string(conditions), string(overrides), string(actions), enabled,
		now, now,
	)
	return err
}

// GetRule retrieves a rule configuration with fleet isolation.
func (r *SQLRepository) GetRule(ctx context.Context, fleetID string, ruleID string) (*domain.Rule, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, fleet_id, name, description, version, case_type, expression,
			   conditions, severity_overrides, auto_actions, enabled
		FROM detection_rules
		WHERE fleet_id = ? AND id = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), fleetID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all enabled rule configurations for a fleet, ordered
// by name.
func (r *SQLRepository) ListRules(ctx context.Context, fleetID string) ([]*domain.Rule, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, fleet_id, name, description, version, case_type, expression,
			   conditions, severity_overrides, auto_actions, enabled
		FROM detection_rules
		WHERE fleet_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var description, version, expression sql.NullString
	var conditions string
	var overrides, actions sql.NullString
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.FleetID, &rule.Name, &description, &version,
		&rule.CaseType, &expression,
		&conditions, &overrides, &actions, &enabled,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Version = version.String
	rule.Expression = expression.String
	rule.Enabled = enabled == 1

	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to parse rule conditions for %s: %w", rule.ID, err)
	}
	if overrides.Valid && overrides.String != "" {
		json.Unmarshal([]byte(overrides.String), &rule.SeverityOverrides)
	}
	if actions.Valid && actions.String != "" {
		json.Unmarshal([]byte(actions.String), &rule.AutoActions)
	}

	return &rule, nil
}

// SaveDetection stores a detection result with fleet isolation.
func (r *SQLRepository) SaveDetection(ctx context.Context, fleetID string, det *domain.EdgeCaseDetection) error {
	if fleetID == "" {
		return fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	patterns, _ := json.Marshal(det.PatternsDetected)
	context_, _ := json.Marshal(det.Context)
	recommendations, _ := json.Marshal(det.Recommendations)
	actions, _ := json.Marshal(det.AutoActionsTaken)

	requiresReview := 0
	if det.RequiresManualReview {
		requiresReview = 1
	}

	query := `
		INSERT INTO detections (
			case_id, fleet_id, case_type, trip_id, vehicle_id, vehicle_registration,
			severity, confidence_score, detected_at, description,
			patterns, context, recommendations, auto_actions,
			requires_review, resolution_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		det.CaseID, fleetID, det.CaseType, det.TripID, det.VehicleID, det.VehicleRegistration,
		det.Severity, det.ConfidenceScore, det.DetectedAt, det.Description,
		string(patterns), string(context_), string(recommendations), string(actions),
		requiresReview, det.ResolutionStatus,
	)
	return err
}

// GetDetection retrieves a detection by case ID with fleet isolation.
func (r *SQLRepository) GetDetection(ctx context.Context, fleetID string, caseID string) (*domain.EdgeCaseDetection, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT case_id, case_type, trip_id, vehicle_id, vehicle_registration,
			   severity, confidence_score, detected_at, description,
			   patterns, context, recommendations, auto_actions,
			   requires_review, resolution_status
		FROM detections
		WHERE fleet_id = ? AND case_id = ?
	`

	det, err := scanDetection(r.db.QueryRowContext(ctx, r.rebind(query), fleetID, caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return det, err
}

// ListDetections retrieves detections for a fleet, newest first, optionally
// filtered by resolution status. A zero limit applies no cap.
func (r *SQLRepository) ListDetections(ctx context.Context, fleetID string, status domain.ResolutionStatus, limit int) ([]*domain.EdgeCaseDetection, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT case_id, case_type, trip_id, vehicle_id, vehicle_registration,
			   severity, confidence_score, detected_at, description,
			   patterns, context, recommendations, auto_actions,
			   requires_review, resolution_status
		FROM detections
		WHERE fleet_id = ?
	`
	args := []any{fleetID}

	if status != "" {
		query += ` AND resolution_status = ?`
		args = append(args, status)
	}

	query += ` ORDER BY detected_at DESC`

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var detections []*domain.EdgeCaseDetection
	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, det)
	}
	return detections, rows.Err()
}

// UpdateDetectionStatus changes a detection's resolution status.
func (r *SQLRepository) UpdateDetectionStatus(ctx context.Context, fleetID string, caseID string, status domain.ResolutionStatus) error {
	if fleetID == "" {
		return fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		UPDATE detections
		SET resolution_status = ?
		WHERE fleet_id = ? AND case_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, fleetID, caseID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func scanDetection(row rowScanner) (*domain.EdgeCaseDetection, error) {
	var det domain.EdgeCaseDetection
	var registration sql.NullString
	var patterns, context_, recommendations, actions sql.NullString
	var requiresReview int

	err := row.Scan(
		&det.CaseID, &det.CaseType, &det.TripID, &det.VehicleID, &registration,
		&det.Severity, &det.ConfidenceScore, &det.DetectedAt, &det.Description,
		&patterns, &context_, &recommendations, &actions,
		&requiresReview, &det.ResolutionStatus,
	)
	if err != nil {
		return nil, err
	}

	det.VehicleRegistration = registration.String
	det.RequiresManualReview = requiresReview == 1
	if patterns.Valid && patterns.String != "" {
		json.Unmarshal([]byte(patterns.String), &det.PatternsDetected)
	}
	if context_.Valid && context_.String != "" {
		json.Unmarshal([]byte(context_.String), &det.Context)
	}
	if recommendations.Valid && recommendations.String != "" {
		json.Unmarshal([]byte(recommendations.String), &det.Recommendations)
	}
	if actions.Valid && actions.String != "" {
		json.Unmarshal([]byte(actions.String), &det.AutoActionsTaken)
	}

	return &det, nil
}

// SaveScenario stores a data-recovery scenario with fleet isolation.
func (r *SQLRepository) SaveScenario(ctx context.Context, fleetID string, scenario *domain.DataRecoveryScenario) error {
	if fleetID == "" {
		return fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	affected, _ := json.Marshal(scenario.AffectedTrips)
	inconsistencies, _ := json.Marshal(scenario.DataInconsistencies)
	options, _ := json.Marshal(scenario.RecoveryOptions)

	query := `
		INSERT INTO recovery_scenarios (
			scenario_id, fleet_id, scenario_type, vehicle_id,
			affected_trips, inconsistencies, recovery_options,
			recommended_action, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		scenario.ScenarioID, fleetID, scenario.ScenarioType, scenario.VehicleID,
		string(affected), string(inconsistencies), string(options),
		scenario.RecommendedAction, scenario.DetectedAt,
	)
	return err
}

// ListScenariosByVehicle retrieves a vehicle's recovery scenarios, newest
// first.
func (r *SQLRepository) ListScenariosByVehicle(ctx context.Context, fleetID string, vehicleID string) ([]*domain.DataRecoveryScenario, error) {
	if fleetID == "" {
		return nil, fmt.Errorf("%w: fleetID is required", ErrInvalidInput)
	}

	query := `
		SELECT scenario_id, fleet_id, scenario_type, vehicle_id,
			   affected_trips, inconsistencies, recovery_options,
			   recommended_action, detected_at
		FROM recovery_scenarios
		WHERE fleet_id = ? AND vehicle_id = ?
		ORDER BY detected_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), fleetID, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []*domain.DataRecoveryScenario
	for rows.Next() {
		var s domain.DataRecoveryScenario
		var affected, inconsistencies, options sql.NullString
		var action sql.NullString

		if err := rows.Scan(
			&s.ScenarioID, &s.FleetID, &s.ScenarioType, &s.VehicleID,
			&affected, &inconsistencies, &options,
			&action, &s.DetectedAt,
		); err != nil {
			return nil, err
		}

		s.RecommendedAction = action.String
		if affected.Valid && affected.String != "" {
			json.Unmarshal([]byte(affected.String), &s.AffectedTrips)
		}
		if inconsistencies.Valid && inconsistencies.String != "" {
			json.Unmarshal([]byte(inconsistencies.String), &s.DataInconsistencies)
		}
		if options.Valid && options.String != "" {
			json.Unmarshal([]byte(options.String), &s.RecoveryOptions)
		}

		scenarios = append(scenarios, &s)
	}

	return scenarios, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

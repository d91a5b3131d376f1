package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTrips = `
CREATE TABLE IF NOT EXISTS trips (
    id TEXT NOT NULL,
    fleet_id TEXT NOT NULL,
    vehicle_id TEXT NOT NULL,
    vehicle_registration TEXT,
    serial_number TEXT,
    start_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    start_km REAL NOT NULL,
    end_km REAL NOT NULL,
    fuel_quantity REAL,
    efficiency REAL,
    destinations TEXT,
    notes TEXT,
    PRIMARY KEY (id, fleet_id)
);

CREATE INDEX IF NOT EXISTS idx_trips_fleet ON trips(fleet_id);
CREATE INDEX IF NOT EXISTS idx_trips_vehicle ON trips(fleet_id, vehicle_id);
CREATE INDEX IF NOT EXISTS idx_trips_start_time ON trips(fleet_id, start_time);
`

const schemaVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id TEXT NOT NULL,
    fleet_id TEXT NOT NULL,
    registration TEXT,
    make TEXT,
    model TEXT,
    odometer_km REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, fleet_id)
);

CREATE INDEX IF NOT EXISTS idx_vehicles_fleet ON vehicles(fleet_id);
`

const schemaDetectionRules = `
CREATE TABLE IF NOT EXISTS detection_rules (
    id TEXT NOT NULL,
    fleet_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT,
    case_type TEXT NOT NULL,
    expression TEXT,
    conditions TEXT NOT NULL,
    severity_overrides TEXT,
    auto_actions TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, fleet_id)
);

CREATE INDEX IF NOT EXISTS idx_detection_rules_fleet ON detection_rules(fleet_id);
CREATE INDEX IF NOT EXISTS idx_detection_rules_enabled ON detection_rules(fleet_id, enabled);
`

const schemaDetections = `
CREATE TABLE IF NOT EXISTS detections (
    case_id TEXT NOT NULL,
    fleet_id TEXT NOT NULL,
    case_type TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    vehicle_id TEXT NOT NULL,
    vehicle_registration TEXT,
    severity TEXT NOT NULL,
    confidence_score INTEGER NOT NULL,
    detected_at TIMESTAMP NOT NULL,
    description TEXT NOT NULL,
    patterns TEXT,
    context TEXT,
    recommendations TEXT,
    auto_actions TEXT,
    requires_review INTEGER NOT NULL DEFAULT 0,
    resolution_status TEXT NOT NULL DEFAULT 'pending',
    PRIMARY KEY (case_id, fleet_id)
);

CREATE INDEX IF NOT EXISTS idx_detections_fleet ON detections(fleet_id);
CREATE INDEX IF NOT EXISTS idx_detections_trip ON detections(fleet_id, trip_id);
CREATE INDEX IF NOT EXISTS idx_detections_status ON detections(fleet_id, resolution_status);
CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(fleet_id, detected_at);
`

const schemaRecoveryScenarios = `
CREATE TABLE IF NOT EXISTS recovery_scenarios (
    scenario_id TEXT NOT NULL,
    fleet_id TEXT NOT NULL,
    scenario_type TEXT NOT NULL,
    vehicle_id TEXT NOT NULL,
    affected_trips TEXT,
    inconsistencies TEXT NOT NULL,
    recovery_options TEXT NOT NULL,
    recommended_action TEXT,
    detected_at TIMESTAMP NOT NULL,
    PRIMARY KEY (scenario_id, fleet_id)
);

CREATE INDEX IF NOT EXISTS idx_recovery_scenarios_fleet ON recovery_scenarios(fleet_id);
CREATE INDEX IF NOT EXISTS idx_recovery_scenarios_vehicle ON recovery_scenarios(fleet_id, vehicle_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTrips,
		schemaVehicles,
		schemaDetectionRules,
		schemaDetections,
		schemaRecoveryScenarios,
	}
}

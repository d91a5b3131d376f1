package domain

import "time"

// ScenarioType classifies a data-recovery scenario.
type ScenarioType string

const (
	ScenarioMissingTripData   ScenarioType = "missing_trip_data"
	ScenarioCorruptedOdometer ScenarioType = "corrupted_odometer"
	ScenarioFuelDataLoss      ScenarioType = "fuel_data_loss"
	ScenarioIncompleteTrip    ScenarioType = "incomplete_trip"
	ScenarioDuplicateRecords  ScenarioType = "duplicate_detection"
)

// RiskLevel grades a recovery option's risk of making things worse.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DataRecoveryScenario is one integrity-scan's positive finding on one
// vehicle's trip history. A scenario is only constructed when at least one
// inconsistency was found.
type DataRecoveryScenario struct {
	ScenarioID   string       `json:"scenarioId"`
	ScenarioType ScenarioType `json:"scenarioType"`
	VehicleID    string       `json:"vehicleId"`
	FleetID      string       `json:"fleetId,omitempty"`

	AffectedTrips []string `json:"affectedTrips"`

	DataInconsistencies []DataInconsistency `json:"dataInconsistencies"`

	// RecoveryOptions are ranked most-preferred first.
	RecoveryOptions []RecoveryOption `json:"recoveryOptions"`

	// RecommendedAction is textual guidance only; the engine never picks
	// or performs a recovery itself.
	RecommendedAction string `json:"recommendedAction"`

	DetectedAt time.Time `json:"detectedAt"`
}

// DataInconsistency describes one suspect field in the trip history.
type DataInconsistency struct {
	Field         string `json:"field"`
	TripID        string `json:"tripId,omitempty"`
	ExpectedValue string `json:"expectedValue,omitempty"`
	ActualValue   string `json:"actualValue,omitempty"`
	Confidence    int    `json:"confidence"`
}

// RecoveryOption is one proposed way to repair the inconsistent data.
type RecoveryOption struct {
	Method             string    `json:"method"`
	Description        string    `json:"description"`
	RiskLevel          RiskLevel `json:"riskLevel"`
	SuccessProbability int       `json:"successProbability"`
	EstimatedAccuracy  int       `json:"estimatedAccuracy"`
}

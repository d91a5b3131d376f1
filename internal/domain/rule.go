package domain

// CaseType classifies the kind of edge case a rule detects.
type CaseType string

const (
	CaseMaintenanceTrip  CaseType = "maintenance_trip"
	CaseEmergencyTrip    CaseType = "emergency_trip"
	CaseDataAnomaly      CaseType = "data_anomaly"
	CaseBreakdownTrip    CaseType = "breakdown_trip"
	CaseUnusualPattern   CaseType = "unusual_pattern"
	CaseRecoveryScenario CaseType = "recovery_scenario"
)

// Severity is the ordinal urgency tier of a detection.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DiagnosticCode identifies which specific anomaly variant was found.
// Codes are the shared vocabulary between condition evaluators and the
// severity overrides declared on rules; a rule referencing a code no
// evaluator emits can never fire its override.
type DiagnosticCode string

const (
	CodeShortDistance            DiagnosticCode = "short_distance"
	CodeLongDistance             DiagnosticCode = "long_distance"
	CodeImpossibleDistance       DiagnosticCode = "impossible_distance"
	CodeShortDuration            DiagnosticCode = "short_duration"
	CodeLongDuration             DiagnosticCode = "long_duration"
	CodeLateNightEmergency       DiagnosticCode = "late_night_emergency"
	CodeZeroFuelLongTrip         DiagnosticCode = "zero_fuel_long_trip"
	CodeNegativeFuel             DiagnosticCode = "negative_fuel"
	CodeEfficiencyVariance       DiagnosticCode = "efficiency_variance"
	CodeExcessiveFuelUsage       DiagnosticCode = "excessive_fuel_usage"
	CodeShortDistanceMaintenance DiagnosticCode = "short_distance_maintenance"
	CodeScheduledMaintenance     DiagnosticCode = "scheduled_maintenance"
	CodeMinorBreakdown           DiagnosticCode = "minor_breakdown"
	CodeMajorBreakdown           DiagnosticCode = "major_breakdown"
	CodeAccidentRelated          DiagnosticCode = "accident_related"
	CodeMedicalEmergency         DiagnosticCode = "medical_emergency"
	CodeEmergencySituation       DiagnosticCode = "emergency_situation"
	CodeKeywordIndicator         DiagnosticCode = "keyword_indicator"
)

// KnownDiagnosticCodes is the full set of codes evaluators can emit.
// Rule validation rejects severity overrides referencing anything else.
var KnownDiagnosticCodes = map[DiagnosticCode]bool{
	CodeShortDistance:            true,
	CodeLongDistance:             true,
	CodeImpossibleDistance:       true,
	CodeShortDuration:            true,
	CodeLongDuration:             true,
	CodeLateNightEmergency:       true,
	CodeZeroFuelLongTrip:         true,
	CodeNegativeFuel:             true,
	CodeEfficiencyVariance:       true,
	CodeExcessiveFuelUsage:       true,
	CodeShortDistanceMaintenance: true,
	CodeScheduledMaintenance:     true,
	CodeMinorBreakdown:           true,
	CodeMajorBreakdown:           true,
	CodeAccidentRelated:          true,
	CodeMedicalEmergency:         true,
	CodeEmergencySituation:       true,
	CodeKeywordIndicator:         true,
}

// Rule defines an edge-case detection rule configuration.
// Rules are immutable at run time; the engine compiles and loads them.
type Rule struct {
	ID          string   `json:"id"`
	FleetID     string   `json:"fleetId,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	CaseType    CaseType `json:"caseType"`
	Enabled     bool     `json:"enabled"`

	// Expression is an optional CEL guard. When set it must evaluate to a
	// bool against the trip activation; a false result skips the rule for
	// that trip without producing a detection.
	Expression string `json:"expression,omitempty"`

	// Conditions is the structured bundle of sub-conditions the rule's
	// evaluators check. Blocks left nil are not evaluated.
	Conditions ConditionSet `json:"conditions"`

	// SeverityOverrides map diagnostic codes to severity tiers. Declaration
	// order is significant: the first entry whose code was detected wins.
	SeverityOverrides []SeverityOverride `json:"severityOverrides,omitempty"`

	// AutoActions are action identifiers reported as taken on a detection.
	// Performing them is an external collaborator's job; the engine only
	// records intent.
	AutoActions []string `json:"autoActions,omitempty"`
}

// ConditionSet bundles the optional per-dimension conditions of a rule.
type ConditionSet struct {
	Distance *DistanceConditions `json:"distance,omitempty"`
	Time     *TimeConditions     `json:"time,omitempty"`
	Fuel     *FuelConditions     `json:"fuel,omitempty"`
	Pattern  *PatternConditions  `json:"pattern,omitempty"`

	// EmergencyKeywords is a flat keyword list checked in addition to any
	// Pattern keywords.
	EmergencyKeywords []string `json:"emergencyKeywords,omitempty"`
}

// DistanceConditions holds distance thresholds in kilometres.
type DistanceConditions struct {
	MinKM      float64 `json:"minKm,omitempty"`
	MaxKM      float64 `json:"maxKm,omitempty"`
	VarianceKM float64 `json:"varianceKm,omitempty"`
}

// TimeConditions holds duration and start-time thresholds.
type TimeConditions struct {
	MinDurationHours float64 `json:"minDurationHours,omitempty"`
	MaxDurationHours float64 `json:"maxDurationHours,omitempty"`
	UnusualStartTime bool    `json:"unusualStartTime,omitempty"`
}

// FuelConditions holds fuel-dimension thresholds.
type FuelConditions struct {
	// EfficiencyVariancePct flags trips whose efficiency deviates from the
	// vehicle's baseline by more than this percentage. Zero disables the
	// check.
	EfficiencyVariancePct float64 `json:"efficiencyVariancePct,omitempty"`

	// ZeroConsumption flags zero or absent fuel on long trips.
	ZeroConsumption bool `json:"zeroConsumption,omitempty"`

	// ExcessiveUsage marks the rule as interested in the excessive_fuel_usage
	// escalation of the variance check.
	ExcessiveUsage bool `json:"excessiveUsage,omitempty"`
}

// PatternConditions holds keyword and route-pattern thresholds. Frequency
// and route-deviation thresholds are carried in rule configuration; the
// current evaluators act on Keywords only.
type PatternConditions struct {
	FrequencyThreshold int      `json:"frequencyThreshold,omitempty"`
	RouteDeviationPct  float64  `json:"routeDeviationPct,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
}

// SeverityOverride maps a detected diagnostic code to a severity tier.
type SeverityOverride struct {
	Code     DiagnosticCode `json:"code"`
	Severity Severity       `json:"severity"`
}

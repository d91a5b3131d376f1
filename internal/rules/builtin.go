package rules

import "github.com/fleetops/kestrel/internal/domain"

// BuiltinRules returns the default detection catalog. Fleets can replace or
// extend it with rules stored in the database; POST /rules + reload layers
// stored rules on top of these.
func BuiltinRules() []*domain.Rule {
	return []*domain.Rule{
		{
			ID:          "maintenance-trip-001",
			Name:        "Maintenance Trip Detection",
			Description: "Flags trips whose destinations or notes indicate a workshop or service visit",
			Version:     "1.0.0",
			CaseType:    domain.CaseMaintenanceTrip,
			Enabled:     true,
			Conditions: domain.ConditionSet{
				Pattern: &domain.PatternConditions{
					Keywords: []string{"service", "repair", "maintenance", "workshop", "garage"},
				},
			},
			SeverityOverrides: []domain.SeverityOverride{
				{Code: domain.CodeShortDistanceMaintenance, Severity: domain.SeverityMedium},
				{Code: domain.CodeScheduledMaintenance, Severity: domain.SeverityLow},
			},
			AutoActions: []string{"tag_maintenance", "exclude_from_baseline"},
		},
		{
			ID:          "emergency-trip-001",
			Name:        "Emergency Trip Detection",
			Description: "Flags trips with emergency indicators or unusual start times",
			Version:     "1.0.0",
			CaseType:    domain.CaseEmergencyTrip,
			Enabled:     true,
			Conditions: domain.ConditionSet{
				Time: &domain.TimeConditions{
					UnusualStartTime: true,
				},
				EmergencyKeywords: []string{"hospital", "emergency", "urgent", "ambulance", "police"},
			},
			SeverityOverrides: []domain.SeverityOverride{
				{Code: domain.CodeMedicalEmergency, Severity: domain.SeverityCritical},
				{Code: domain.CodeEmergencySituation, Severity: domain.SeverityHigh},
				{Code: domain.CodeLateNightEmergency, Severity: domain.SeverityHigh},
			},
			AutoActions: []string{"notify_fleet_manager"},
		},
		{
			ID:          "data-anomaly-001",
			Name:        "Trip Data Anomaly Detection",
			Description: "Flags physically implausible or inconsistent trip data",
			Version:     "1.0.0",
			CaseType:    domain.CaseDataAnomaly,
			Enabled:     true,
			Conditions: domain.ConditionSet{
				Distance: &domain.DistanceConditions{
					MinKM: 10,
					MaxKM: 1000,
				},
				Time: &domain.TimeConditions{
					MinDurationHours: 0.05,
					MaxDurationHours: 24,
				},
				Fuel: &domain.FuelConditions{
					ZeroConsumption:       true,
					EfficiencyVariancePct: 50,
					ExcessiveUsage:        true,
				},
			},
			SeverityOverrides: []domain.SeverityOverride{
				{Code: domain.CodeImpossibleDistance, Severity: domain.SeverityCritical},
				{Code: domain.CodeNegativeFuel, Severity: domain.SeverityCritical},
				{Code: domain.CodeZeroFuelLongTrip, Severity: domain.SeverityHigh},
				{Code: domain.CodeExcessiveFuelUsage, Severity: domain.SeverityHigh},
			},
			AutoActions: []string{"flag_for_correction"},
		},
		{
			ID:          "breakdown-trip-001",
			Name:        "Breakdown Trip Detection",
			Description: "Flags trips whose notes indicate a breakdown, tow or accident",
			Version:     "1.0.0",
			CaseType:    domain.CaseBreakdownTrip,
			Enabled:     true,
			Conditions: domain.ConditionSet{
				Pattern: &domain.PatternConditions{
					Keywords: []string{"breakdown", "tow", "stuck", "mechanical", "accident"},
				},
			},
			SeverityOverrides: []domain.SeverityOverride{
				{Code: domain.CodeAccidentRelated, Severity: domain.SeverityCritical},
				{Code: domain.CodeMajorBreakdown, Severity: domain.SeverityHigh},
				{Code: domain.CodeMinorBreakdown, Severity: domain.SeverityMedium},
			},
			AutoActions: []string{"open_work_order"},
		},
		{
			ID:          "unusual-pattern-001",
			Name:        "Unusual Trip Pattern Detection",
			Description: "Flags trips outside the fleet's normal usage envelope",
			Version:     "1.0.0",
			CaseType:    domain.CaseUnusualPattern,
			Enabled:     true,
			Conditions: domain.ConditionSet{
				Distance: &domain.DistanceConditions{
					MaxKM: 800,
				},
				Time: &domain.TimeConditions{
					MaxDurationHours: 18,
					UnusualStartTime: true,
				},
			},
			SeverityOverrides: []domain.SeverityOverride{
				{Code: domain.CodeLongDuration, Severity: domain.SeverityMedium},
				{Code: domain.CodeLateNightEmergency, Severity: domain.SeverityMedium},
			},
		},
	}
}

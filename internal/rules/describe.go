package rules

import (
	"strings"

	"github.com/fleetops/kestrel/internal/domain"
)

// caseDescriptions are the fixed lead sentences per case type.
var caseDescriptions = map[domain.CaseType]string{
	domain.CaseMaintenanceTrip:  "Potential maintenance or service trip detected",
	domain.CaseEmergencyTrip:    "Emergency or urgent trip pattern identified",
	domain.CaseDataAnomaly:      "Data inconsistency or anomaly detected",
	domain.CaseBreakdownTrip:    "Possible vehicle breakdown or mechanical issue",
	domain.CaseUnusualPattern:   "Unusual trip pattern that requires attention",
	domain.CaseRecoveryScenario: "Data recovery scenario identified",
}

// caseRecommendations are the fixed case-type-specific action items.
var caseRecommendations = map[domain.CaseType][]string{
	domain.CaseMaintenanceTrip: {
		"Verify trip purpose with the driver or workshop",
		"Recategorize as a maintenance trip if confirmed",
		"Exclude from fuel efficiency baseline calculations",
		"Cross-check against scheduled maintenance records",
	},
	domain.CaseEmergencyTrip: {
		"Confirm the emergency with the driver",
		"Document the incident for fleet records",
		"Flag the trip as exempt from usage policy checks",
	},
	domain.CaseDataAnomaly: {
		"Verify odometer and fuel entries against source documents",
		"Correct the trip record if data entry error is confirmed",
		"Check neighbouring trips of the same vehicle for knock-on errors",
		"Consider running a data recovery analysis for the vehicle",
	},
	domain.CaseBreakdownTrip: {
		"Confirm breakdown details with the driver",
		"Open a maintenance work order for the vehicle",
		"Review the vehicle's recent maintenance history",
	},
	domain.CaseUnusualPattern: {
		"Review the trip against the vehicle's normal usage profile",
		"Check for unauthorized vehicle use",
		"Monitor the vehicle for repeat occurrences",
	},
	domain.CaseRecoveryScenario: {
		"Review the identified inconsistencies",
		"Select a recovery option appropriate to the risk level",
		"Re-run the analysis after corrections are applied",
	},
}

// severityRecommendations are the fixed urgency items appended after the
// case-type items.
var severityRecommendations = map[domain.Severity][]string{
	domain.SeverityCritical: {
		"Escalate to the fleet manager immediately",
		"Consider suspending the vehicle pending investigation",
	},
	domain.SeverityHigh: {
		"Review within 24 hours",
	},
	domain.SeverityMedium: {
		"Review within 3 days",
	},
	domain.SeverityLow: {
		"Review during the next routine audit",
	},
}

// describe builds the detection description: the case-type lead sentence
// followed by the comma-joined pattern list.
func describe(caseType domain.CaseType, patterns []string) string {
	lead, ok := caseDescriptions[caseType]
	if !ok {
		lead = "Edge case detected"
	}
	if len(patterns) == 0 {
		return lead
	}
	return lead + ": " + strings.Join(patterns, ", ")
}

// recommend builds the ordered recommendation list: case-type items first,
// then severity urgency items.
func recommend(caseType domain.CaseType, sev domain.Severity) []string {
	base := caseRecommendations[caseType]
	urgency := severityRecommendations[sev]

	recs := make([]string, 0, len(base)+len(urgency))
	recs = append(recs, base...)
	recs = append(recs, urgency...)
	return recs
}

package domain

import (
	"time"
)

// ResolutionStatus is the caller-managed lifecycle state of a detection.
// The engine always emits pending; transitions belong to the caller.
type ResolutionStatus string

const (
	ResolutionPending    ResolutionStatus = "pending"
	ResolutionInProgress ResolutionStatus = "in_progress"
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionDismissed  ResolutionStatus = "dismissed"
)

// ValidTransition reports whether a resolution-status change is allowed.
// Lifecycle: pending -> in_progress -> resolved|dismissed, with the
// in_progress step optional.
func ValidTransition(from, to ResolutionStatus) bool {
	switch from {
	case ResolutionPending:
		return to == ResolutionInProgress || to == ResolutionResolved || to == ResolutionDismissed
	case ResolutionInProgress:
		return to == ResolutionResolved || to == ResolutionDismissed
	default:
		return false
	}
}

// EdgeCaseDetection is one rule's positive finding on one trip.
// Detections are constructed fresh on every analysis call and are not
// mutated by the engine after construction.
type EdgeCaseDetection struct {
	// CaseID is unique per analysis run, derived from rule id, trip id and
	// a timestamp component.
	CaseID string `json:"caseId"`

	CaseType            CaseType `json:"caseType"`
	TripID              string   `json:"tripId"`
	VehicleID           string   `json:"vehicleId"`
	VehicleRegistration string   `json:"vehicleRegistration,omitempty"`

	Severity Severity `json:"severity"`

	// ConfidenceScore is the additive heuristic strength, clamped to [0,100].
	ConfidenceScore int `json:"confidenceScore"`

	// DetectedAt is the time of analysis, not of the trip.
	DetectedAt time.Time `json:"detectedAt"`

	Description      string   `json:"description"`
	PatternsDetected []string `json:"patternsDetected"`

	// Context is a trip summary for downstream consumers.
	Context TripContext `json:"context"`

	Recommendations  []string `json:"recommendations"`
	AutoActionsTaken []string `json:"autoActionsTaken,omitempty"`

	// RequiresManualReview is true iff severity is high or critical.
	RequiresManualReview bool `json:"requiresManualReview"`

	ResolutionStatus ResolutionStatus `json:"resolutionStatus"`
}

// TripContext summarizes the analyzed trip for downstream consumers.
type TripContext struct {
	SerialNumber  string   `json:"serialNumber,omitempty"`
	DistanceKM    float64  `json:"distanceKm"`
	DurationHours float64  `json:"durationHours"`
	Efficiency    *float64 `json:"efficiency,omitempty"`
	Destinations  []string `json:"destinations,omitempty"`
}

// BatchSummary aggregates the detections produced by a batch analysis run.
type BatchSummary struct {
	TotalCasesDetected int                  `json:"totalCasesDetected"`
	TripsAnalyzed      int                  `json:"tripsAnalyzed"`
	TripsSkipped       int                  `json:"tripsSkipped"`
	CasesByType        map[CaseType]int     `json:"casesByType"`
	CasesBySeverity    map[Severity]int     `json:"casesBySeverity"`
	PendingReviews     int                  `json:"pendingReviews"`
	RecentDetections   []EdgeCaseDetection  `json:"recentDetections"`
}

// Package recovery implements the data-recovery analyzer: integrity scans
// over a vehicle's ordered trip history that surface missing records,
// odometer corruption and fuel inconsistencies, with ranked recovery
// options.
package recovery

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/kestrel/internal/domain"
)

// Scan thresholds.
const (
	// maxTripGap is the largest acceptable gap between a trip's end and the
	// next trip's start before the window is flagged as missing records.
	maxTripGap = 7 * 24 * time.Hour

	// maxOdometerJumpKM flags a jump between consecutive trips that is
	// physically implausible within maxJumpWindow.
	maxOdometerJumpKM = 1000.0
	maxJumpWindow     = 24 * time.Hour

	// minFuelTripKM is the distance above which a trip with no fuel
	// recorded is treated as fuel data loss.
	minFuelTripKM = 50.0
)

// Inconsistency confidence levels per finding kind.
const (
	confidenceDuplicateSerial = 90
	confidenceTimeGap         = 70
	confidenceOdometerRegress = 95
	confidenceOdometerJump    = 85
	confidenceMissingFuel     = 80
	confidenceNegativeFuel    = 95
)

// Analyzer runs integrity scans over one vehicle's trip history.
type Analyzer struct{}

// NewAnalyzer creates a data-recovery analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze runs the three integrity scans over a vehicle's trip history and
// returns every scenario with at least one inconsistency. The input is
// sorted by start time first; the scans all assume chronological order.
// Scans are independent: a vehicle may produce all three scenario types at
// once. No findings is not an error; it yields an empty slice.
func (a *Analyzer) Analyze(fleetID, vehicleID string, history []*domain.Trip) []domain.DataRecoveryScenario {
	trips := make([]*domain.Trip, 0, len(history))
	for _, t := range history {
		if t != nil {
			trips = append(trips, t)
		}
	}
	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].StartTime.Before(trips[j].StartTime)
	})

	var scenarios []domain.DataRecoveryScenario
	if s, ok := a.scanMissingData(fleetID, vehicleID, trips); ok {
		scenarios = append(scenarios, s)
	}
	if s, ok := a.scanOdometer(fleetID, vehicleID, trips); ok {
		scenarios = append(scenarios, s)
	}
	if s, ok := a.scanFuel(fleetID, vehicleID, trips); ok {
		scenarios = append(scenarios, s)
	}

	return scenarios
}

// scanMissingData detects duplicate serial numbers and time gaps longer
// than maxTripGap between consecutive trips.
func (a *Analyzer) scanMissingData(fleetID, vehicleID string, trips []*domain.Trip) (domain.DataRecoveryScenario, bool) {
	var inconsistencies []domain.DataInconsistency

	// Duplicate serials: more non-empty serials than distinct ones.
	serialCount := 0
	distinct := make(map[string]bool)
	for _, t := range trips {
		if t.SerialNumber == "" {
			continue
		}
		serialCount++
		distinct[t.SerialNumber] = true
	}
	if serialCount > len(distinct) {
		inconsistencies = append(inconsistencies, domain.DataInconsistency{
			Field:         "serial_number",
			ExpectedValue: fmt.Sprintf("%d distinct serials", serialCount),
			ActualValue:   fmt.Sprintf("%d distinct serials", len(distinct)),
			Confidence:    confidenceDuplicateSerial,
		})
	}

	// Gaps between consecutive trips.
	for i := 1; i < len(trips); i++ {
		gap := trips[i].StartTime.Sub(trips[i-1].EndTime)
		if gap > maxTripGap {
			inconsistencies = append(inconsistencies, domain.DataInconsistency{
				Field:         "time_gap",
				TripID:        trips[i].ID,
				ExpectedValue: "gap of 7 days or less between trips",
				ActualValue:   fmt.Sprintf("%.1f day gap", gap.Hours()/24),
				Confidence:    confidenceTimeGap,
			})
		}
	}

	if len(inconsistencies) == 0 {
		return domain.DataRecoveryScenario{}, false
	}

	affected := make([]string, 0, len(trips))
	for _, t := range trips {
		affected = append(affected, t.ID)
	}

	return domain.DataRecoveryScenario{
		ScenarioID:          uuid.New().String(),
		ScenarioType:        domain.ScenarioMissingTripData,
		VehicleID:           vehicleID,
		FleetID:             fleetID,
		AffectedTrips:       affected,
		DataInconsistencies: inconsistencies,
		RecoveryOptions: []domain.RecoveryOption{
			{
				Method:             "manual_reentry",
				Description:        "Re-enter the missing trips from driver logs and trip sheets",
				RiskLevel:          domain.RiskLow,
				SuccessProbability: 85,
				EstimatedAccuracy:  90,
			},
			{
				Method:             "interpolation",
				Description:        "Interpolate the missing records from neighbouring trips",
				RiskLevel:          domain.RiskMedium,
				SuccessProbability: 70,
				EstimatedAccuracy:  75,
			},
		},
		RecommendedAction: "Review the flagged gap periods against driver logs and re-enter any missing trips",
		DetectedAt:        time.Now().UTC(),
	}, true
}

// scanOdometer detects readings that regress between consecutive trips and
// jumps too large to be plausible in the elapsed time. Odometer readings
// must be monotonic non-decreasing across trips for a given vehicle.
func (a *Analyzer) scanOdometer(fleetID, vehicleID string, trips []*domain.Trip) (domain.DataRecoveryScenario, bool) {
	var inconsistencies []domain.DataInconsistency
	affected := make(map[string]bool)

	for i := 1; i < len(trips); i++ {
		prev, next := trips[i-1], trips[i]

		if next.StartKM < prev.EndKM {
			inconsistencies = append(inconsistencies, domain.DataInconsistency{
				Field:         "odometer_reading",
				TripID:        next.ID,
				ExpectedValue: fmt.Sprintf(">= %.1f km", prev.EndKM),
				ActualValue:   fmt.Sprintf("%.1f km", next.StartKM),
				Confidence:    confidenceOdometerRegress,
			})
			affected[prev.ID] = true
			affected[next.ID] = true
			continue
		}

		jump := next.StartKM - prev.EndKM
		elapsed := next.StartTime.Sub(prev.EndTime)
		if jump > maxOdometerJumpKM && elapsed < maxJumpWindow {
			inconsistencies = append(inconsistencies, domain.DataInconsistency{
				Field:         "odometer_reading",
				TripID:        next.ID,
				ExpectedValue: fmt.Sprintf("jump under %.0f km within %.0f hours", maxOdometerJumpKM, maxJumpWindow.Hours()),
				ActualValue:   fmt.Sprintf("%.1f km jump in %.1f hours", jump, elapsed.Hours()),
				Confidence:    confidenceOdometerJump,
			})
			affected[prev.ID] = true
			affected[next.ID] = true
		}
	}

	if len(inconsistencies) == 0 {
		return domain.DataRecoveryScenario{}, false
	}

	return domain.DataRecoveryScenario{
		ScenarioID:          uuid.New().String(),
		ScenarioType:        domain.ScenarioCorruptedOdometer,
		VehicleID:           vehicleID,
		FleetID:             fleetID,
		AffectedTrips:       sortedKeys(affected),
		DataInconsistencies: inconsistencies,
		RecoveryOptions: []domain.RecoveryOption{
			{
				Method:             "manual_verification",
				Description:        "Verify the readings against the physical odometer and trip sheets",
				RiskLevel:          domain.RiskLow,
				SuccessProbability: 90,
				EstimatedAccuracy:  95,
			},
			{
				Method:             "progressive_correction",
				Description:        "Correct the readings progressively from the last trusted value",
				RiskLevel:          domain.RiskMedium,
				SuccessProbability: 75,
				EstimatedAccuracy:  80,
			},
		},
		RecommendedAction: "Verify the flagged odometer readings against the vehicle before applying corrections",
		DetectedAt:        time.Now().UTC(),
	}, true
}

// scanFuel detects zero or absent fuel on long trips and negative fuel
// quantities.
func (a *Analyzer) scanFuel(fleetID, vehicleID string, trips []*domain.Trip) (domain.DataRecoveryScenario, bool) {
	var inconsistencies []domain.DataInconsistency
	affected := make(map[string]bool)

	for _, t := range trips {
		distance := t.DistanceKM()

		if (t.FuelQuantity == nil || *t.FuelQuantity == 0) && distance > minFuelTripKM {
			inconsistencies = append(inconsistencies, domain.DataInconsistency{
				Field:         "fuel_quantity",
				TripID:        t.ID,
				ExpectedValue: fmt.Sprintf("fuel recorded for %.1f km trip", distance),
				ActualValue:   "none",
				Confidence:    confidenceMissingFuel,
			})
			affected[t.ID] = true
		}

		if t.FuelQuantity != nil && *t.FuelQuantity < 0 {
			inconsistencies = append(inconsistencies, domain.DataInconsistency{
				Field:         "fuel_quantity",
				TripID:        t.ID,
				ExpectedValue: "non-negative quantity",
				ActualValue:   fmt.Sprintf("%.1f l", *t.FuelQuantity),
				Confidence:    confidenceNegativeFuel,
			})
			affected[t.ID] = true
		}
	}

	if len(inconsistencies) == 0 {
		return domain.DataRecoveryScenario{}, false
	}

	return domain.DataRecoveryScenario{
		ScenarioID:          uuid.New().String(),
		ScenarioType:        domain.ScenarioFuelDataLoss,
		VehicleID:           vehicleID,
		FleetID:             fleetID,
		AffectedTrips:       sortedKeys(affected),
		DataInconsistencies: inconsistencies,
		RecoveryOptions: []domain.RecoveryOption{
			{
				Method:             "receipt_crossreference",
				Description:        "Cross-reference fuel purchases with receipts and fuel card statements",
				RiskLevel:          domain.RiskLow,
				SuccessProbability: 85,
				EstimatedAccuracy:  90,
			},
			{
				Method:             "consumption_estimation",
				Description:        "Estimate the missing quantities from the vehicle's average consumption",
				RiskLevel:          domain.RiskMedium,
				SuccessProbability: 70,
				EstimatedAccuracy:  75,
			},
		},
		RecommendedAction: "Reconcile the flagged trips against fuel receipts before estimating missing quantities",
		DetectedAt:        time.Now().UTC(),
	}, true
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

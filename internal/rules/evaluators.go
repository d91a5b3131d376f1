package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetops/kestrel/internal/domain"
)

// Confidence contributions per finding kind.
const (
	confidenceShortDistance  = 30
	confidenceLongDistance   = 25
	confidenceDuration       = 20
	confidenceUnusualStart   = 15
	confidenceZeroFuel       = 40
	confidenceEffVariance    = 25
	confidenceKeywordMatch   = 35
)

// Distance bounds beyond which a reading is physically implausible.
const (
	impossibleShortKM = 1.0
	impossibleLongKM  = 1000.0
)

// maintenanceShortDistanceKM is the cutoff below which a maintenance keyword
// match is classified as a short-distance maintenance run rather than a
// scheduled one. Shared here so the pattern evaluator and rule authors use
// one constant.
const maintenanceShortDistanceKM = 50.0

// Hours outside of which a trip start counts as unusual.
const (
	earliestNormalStartHour = 5
	latestNormalStartHour   = 22
)

// Keyword categories for the pattern evaluator.
var (
	maintenanceKeywords = map[string]bool{
		"service": true, "repair": true, "maintenance": true,
		"workshop": true, "garage": true,
	}
	breakdownKeywords = map[string]bool{
		"breakdown": true, "tow": true, "stuck": true, "mechanical": true,
	}
	emergencyKeywords = map[string]bool{
		"hospital": true, "emergency": true, "urgent": true,
		"ambulance": true, "police": true,
	}
)

// Finding is one evaluator hit: a human-readable pattern, the diagnostic
// code that identifies the anomaly variant, and its confidence contribution.
type Finding struct {
	Pattern    string
	Code       domain.DiagnosticCode
	Confidence int
}

// evaluateDistance checks the trip distance against rule thresholds.
func evaluateDistance(trip *domain.Trip, cond *domain.DistanceConditions) []Finding {
	if cond == nil {
		return nil
	}

	distance := trip.DistanceKM()
	var findings []Finding

	if cond.MinKM > 0 && distance < cond.MinKM {
		code := domain.CodeShortDistance
		pattern := fmt.Sprintf("Unusually short distance: %.1f km", distance)
		if distance < impossibleShortKM {
			code = domain.CodeImpossibleDistance
			pattern = fmt.Sprintf("Impossible distance recorded: %.1f km", distance)
		}
		findings = append(findings, Finding{
			Pattern:    pattern,
			Code:       code,
			Confidence: confidenceShortDistance,
		})
	}

	if cond.MaxKM > 0 && distance > cond.MaxKM {
		code := domain.CodeLongDistance
		pattern := fmt.Sprintf("Unusually long distance: %.1f km", distance)
		if distance > impossibleLongKM {
			code = domain.CodeImpossibleDistance
			pattern = fmt.Sprintf("Impossible distance recorded: %.1f km", distance)
		}
		findings = append(findings, Finding{
			Pattern:    pattern,
			Code:       code,
			Confidence: confidenceLongDistance,
		})
	}

	return findings
}

// evaluateTime checks trip duration and start hour against rule thresholds.
func evaluateTime(trip *domain.Trip, cond *domain.TimeConditions) []Finding {
	if cond == nil {
		return nil
	}

	duration := trip.DurationHours()
	var findings []Finding

	if cond.MinDurationHours > 0 && duration < cond.MinDurationHours {
		findings = append(findings, Finding{
			Pattern:    fmt.Sprintf("Unusually short duration: %.1f hours", duration),
			Code:       domain.CodeShortDuration,
			Confidence: confidenceDuration,
		})
	}

	if cond.MaxDurationHours > 0 && duration > cond.MaxDurationHours {
		findings = append(findings, Finding{
			Pattern:    fmt.Sprintf("Unusually long duration: %.1f hours", duration),
			Code:       domain.CodeLongDuration,
			Confidence: confidenceDuration,
		})
	}

	if cond.UnusualStartTime {
		hour := trip.StartTime.Local().Hour()
		if hour < earliestNormalStartHour || hour > latestNormalStartHour {
			findings = append(findings, Finding{
				Pattern:    fmt.Sprintf("Trip started at unusual hour: %02d:00", hour),
				Code:       domain.CodeLateNightEmergency,
				Confidence: confidenceUnusualStart,
			})
		}
	}

	return findings
}

// evaluateFuel checks fuel consumption against rule thresholds. The
// baseline lookup is an external collaborator; a miss silently skips the
// variance check and is never an error.
func evaluateFuel(ctx context.Context, trip *domain.Trip, cond *domain.FuelConditions, getBaseline BaselineGetter) []Finding {
	if cond == nil {
		return nil
	}

	var findings []Finding
	distance := trip.DistanceKM()

	if cond.ZeroConsumption && distance > 10 {
		noFuel := trip.FuelQuantity == nil || *trip.FuelQuantity <= 0
		if noFuel {
			code := domain.CodeZeroFuelLongTrip
			if trip.FuelQuantity != nil && *trip.FuelQuantity < 0 {
				code = domain.CodeNegativeFuel
			}
			findings = append(findings, Finding{
				Pattern:    fmt.Sprintf("No fuel recorded for %.1f km trip", distance),
				Code:       code,
				Confidence: confidenceZeroFuel,
			})
		}
	}

	if cond.EfficiencyVariancePct > 0 && trip.Efficiency != nil && getBaseline != nil {
		baseline, ok, err := getBaseline(ctx, trip.FleetID, trip.VehicleID)
		if err == nil && ok && baseline > 0 {
			variance := (*trip.Efficiency - baseline) / baseline * 100
			if variance < 0 {
				variance = -variance
			}
			if variance > cond.EfficiencyVariancePct {
				code := domain.CodeEfficiencyVariance
				if variance > 100 {
					code = domain.CodeExcessiveFuelUsage
				}
				findings = append(findings, Finding{
					Pattern:    fmt.Sprintf("Fuel efficiency deviates %.0f%% from baseline %.1f km/l", variance, baseline),
					Code:       code,
					Confidence: confidenceEffVariance,
				})
			}
		}
	}

	return findings
}

// evaluatePattern scans destination names and notes for configured keywords.
// Each distinct keyword match contributes independently; confidence is
// additive across matches.
func evaluatePattern(trip *domain.Trip, cond *domain.PatternConditions, extraKeywords []string) []Finding {
	var keywords []string
	if cond != nil {
		keywords = append(keywords, cond.Keywords...)
	}
	keywords = append(keywords, extraKeywords...)
	if len(keywords) == 0 {
		return nil
	}

	text := trip.SearchText()
	if text == "" {
		return nil
	}

	distance := trip.DistanceKM()
	seen := make(map[string]bool, len(keywords))
	var findings []Finding

	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true

		if !strings.Contains(text, kw) {
			continue
		}

		findings = append(findings, Finding{
			Pattern:    fmt.Sprintf("Indicator found: %q", kw),
			Code:       keywordCode(kw, distance),
			Confidence: confidenceKeywordMatch,
		})
	}

	return findings
}

// keywordCode maps a matched keyword to its diagnostic code.
func keywordCode(kw string, distance float64) domain.DiagnosticCode {
	switch {
	case maintenanceKeywords[kw]:
		if distance < maintenanceShortDistanceKM {
			return domain.CodeShortDistanceMaintenance
		}
		return domain.CodeScheduledMaintenance

	case breakdownKeywords[kw]:
		if kw == "tow" || kw == "stuck" {
			return domain.CodeMajorBreakdown
		}
		return domain.CodeMinorBreakdown

	case kw == "accident":
		return domain.CodeAccidentRelated

	case emergencyKeywords[kw]:
		if kw == "hospital" || kw == "ambulance" {
			return domain.CodeMedicalEmergency
		}
		return domain.CodeEmergencySituation

	default:
		return domain.CodeKeywordIndicator
	}
}

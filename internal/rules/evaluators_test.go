package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetops/kestrel/internal/domain"
)

func makeTrip(startKM, endKM float64, hours float64) *domain.Trip {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return &domain.Trip{
		ID:        "trip-1",
		FleetID:   "fleet-1",
		VehicleID: "veh-1",
		StartTime: start,
		EndTime:   start.Add(time.Duration(hours * float64(time.Hour))),
		StartKM:   startKM,
		EndKM:     endKM,
	}
}

func hasCode(findings []Finding, code domain.DiagnosticCode) bool {
	for _, f := range findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestEvaluateDistance(t *testing.T) {
	cond := &domain.DistanceConditions{MinKM: 10, MaxKM: 1000}

	t.Run("NilConditions", func(t *testing.T) {
		if got := evaluateDistance(makeTrip(0, 5, 1), nil); got != nil {
			t.Errorf("expected no findings, got %v", got)
		}
	})

	t.Run("WithinRange", func(t *testing.T) {
		if got := evaluateDistance(makeTrip(100, 200, 2), cond); len(got) != 0 {
			t.Errorf("expected no findings for 100 km trip, got %v", got)
		}
	})

	t.Run("ShortDistance", func(t *testing.T) {
		got := evaluateDistance(makeTrip(100, 105, 1), cond)
		if !hasCode(got, domain.CodeShortDistance) {
			t.Errorf("expected short_distance, got %v", got)
		}
	})

	t.Run("ImpossiblyShort", func(t *testing.T) {
		got := evaluateDistance(makeTrip(100, 100.5, 1), cond)
		if !hasCode(got, domain.CodeImpossibleDistance) {
			t.Errorf("expected impossible_distance for 0.5 km, got %v", got)
		}
	})

	t.Run("LongDistance", func(t *testing.T) {
		narrow := &domain.DistanceConditions{MaxKM: 500}
		got := evaluateDistance(makeTrip(0, 700, 8), narrow)
		if !hasCode(got, domain.CodeLongDistance) {
			t.Errorf("expected long_distance for 700 km, got %v", got)
		}
	})

	t.Run("ImpossiblyLong", func(t *testing.T) {
		got := evaluateDistance(makeTrip(0, 1500, 8), cond)
		if !hasCode(got, domain.CodeImpossibleDistance) {
			t.Errorf("expected impossible_distance for 1500 km, got %v", got)
		}
	})
}

func TestEvaluateTime(t *testing.T) {
	cond := &domain.TimeConditions{
		MinDurationHours: 0.05,
		MaxDurationHours: 24,
		UnusualStartTime: true,
	}

	t.Run("NormalDaytimeTrip", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		trip.StartTime = time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
		trip.EndTime = trip.StartTime.Add(2 * time.Hour)
		if got := evaluateTime(trip, cond); len(got) != 0 {
			t.Errorf("expected no findings, got %v", got)
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		trip := makeTrip(0, 100, 0.01)
		trip.StartTime = time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
		trip.EndTime = trip.StartTime.Add(30 * time.Second)
		got := evaluateTime(trip, cond)
		if !hasCode(got, domain.CodeShortDuration) {
			t.Errorf("expected short_duration, got %v", got)
		}
	})

	t.Run("TooLong", func(t *testing.T) {
		trip := makeTrip(0, 100, 30)
		trip.StartTime = time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
		trip.EndTime = trip.StartTime.Add(30 * time.Hour)
		got := evaluateTime(trip, cond)
		if !hasCode(got, domain.CodeLongDuration) {
			t.Errorf("expected long_duration, got %v", got)
		}
	})

	t.Run("LateNightStart", func(t *testing.T) {
		trip := makeTrip(0, 100, 1)
		trip.StartTime = time.Date(2026, 3, 10, 2, 30, 0, 0, time.Local)
		trip.EndTime = trip.StartTime.Add(time.Hour)
		got := evaluateTime(trip, cond)
		if !hasCode(got, domain.CodeLateNightEmergency) {
			t.Errorf("expected late_night_emergency for 02:30 start, got %v", got)
		}
	})

	t.Run("StartTimeCheckDisabled", func(t *testing.T) {
		quiet := &domain.TimeConditions{}
		trip := makeTrip(0, 100, 1)
		trip.StartTime = time.Date(2026, 3, 10, 2, 30, 0, 0, time.Local)
		trip.EndTime = trip.StartTime.Add(time.Hour)
		if got := evaluateTime(trip, quiet); len(got) != 0 {
			t.Errorf("expected no findings with check disabled, got %v", got)
		}
	})
}

func TestEvaluateFuel(t *testing.T) {
	ctx := context.Background()
	cond := &domain.FuelConditions{
		ZeroConsumption:       true,
		EfficiencyVariancePct: 50,
	}

	t.Run("FuelRecorded", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		fuel := 10.0
		trip.FuelQuantity = &fuel
		if got := evaluateFuel(ctx, trip, cond, nil); len(got) != 0 {
			t.Errorf("expected no findings, got %v", got)
		}
	})

	t.Run("NoFuelOnLongTrip", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		got := evaluateFuel(ctx, trip, cond, nil)
		if !hasCode(got, domain.CodeZeroFuelLongTrip) {
			t.Errorf("expected zero_fuel_long_trip, got %v", got)
		}
	})

	t.Run("NoFuelOnShortTripIgnored", func(t *testing.T) {
		trip := makeTrip(0, 5, 1)
		if got := evaluateFuel(ctx, trip, cond, nil); len(got) != 0 {
			t.Errorf("expected no findings for a 5 km trip, got %v", got)
		}
	})

	t.Run("NegativeFuel", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		fuel := -3.0
		trip.FuelQuantity = &fuel
		got := evaluateFuel(ctx, trip, cond, nil)
		if !hasCode(got, domain.CodeNegativeFuel) {
			t.Errorf("expected negative_fuel, got %v", got)
		}
	})

	t.Run("EfficiencyVariance", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		fuel, eff := 25.0, 4.0
		trip.FuelQuantity = &fuel
		trip.Efficiency = &eff

		// Baseline 10 km/l against trip efficiency 4 km/l: 60% deviation.
		getter := func(ctx context.Context, fleetID, vehicleID string) (float64, bool, error) {
			return 10.0, true, nil
		}

		got := evaluateFuel(ctx, trip, cond, getter)
		if !hasCode(got, domain.CodeEfficiencyVariance) {
			t.Errorf("expected efficiency_variance, got %v", got)
		}
	})

	t.Run("ExtremeVarianceEscalates", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		fuel, eff := 4.0, 25.0
		trip.FuelQuantity = &fuel
		trip.Efficiency = &eff

		// 150% above baseline crosses into excessive_fuel_usage.
		getter := func(ctx context.Context, fleetID, vehicleID string) (float64, bool, error) {
			return 10.0, true, nil
		}

		got := evaluateFuel(ctx, trip, cond, getter)
		if !hasCode(got, domain.CodeExcessiveFuelUsage) {
			t.Errorf("expected excessive_fuel_usage, got %v", got)
		}
	})

	t.Run("BaselineMissSkipsVarianceCheck", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		fuel, eff := 25.0, 4.0
		trip.FuelQuantity = &fuel
		trip.Efficiency = &eff

		getter := func(ctx context.Context, fleetID, vehicleID string) (float64, bool, error) {
			return 0, false, nil
		}

		if got := evaluateFuel(ctx, trip, cond, getter); len(got) != 0 {
			t.Errorf("expected no findings on baseline miss, got %v", got)
		}
	})

	t.Run("BaselineErrorSkipsVarianceCheck", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		fuel, eff := 25.0, 4.0
		trip.FuelQuantity = &fuel
		trip.Efficiency = &eff

		getter := func(ctx context.Context, fleetID, vehicleID string) (float64, bool, error) {
			return 0, false, errors.New("cache unavailable")
		}

		if got := evaluateFuel(ctx, trip, cond, getter); len(got) != 0 {
			t.Errorf("expected no findings on baseline error, got %v", got)
		}
	})
}

func TestEvaluatePattern(t *testing.T) {
	cond := &domain.PatternConditions{
		Keywords: []string{"breakdown", "tow", "workshop"},
	}

	t.Run("NoText", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		if got := evaluatePattern(trip, cond, nil); len(got) != 0 {
			t.Errorf("expected no findings without text, got %v", got)
		}
	})

	t.Run("NoKeywords", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		trip.Notes = "routine delivery run"
		if got := evaluatePattern(trip, nil, nil); len(got) != 0 {
			t.Errorf("expected no findings without keywords, got %v", got)
		}
	})

	t.Run("CaseInsensitiveMatch", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		trip.Notes = "BREAKDOWN on the N3"
		got := evaluatePattern(trip, cond, nil)
		if !hasCode(got, domain.CodeMinorBreakdown) {
			t.Errorf("expected minor_breakdown, got %v", got)
		}
	})

	t.Run("TowEscalatesToMajor", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		trip.Notes = "vehicle towed back to depot"
		got := evaluatePattern(trip, cond, nil)
		if !hasCode(got, domain.CodeMajorBreakdown) {
			t.Errorf("expected major_breakdown for tow, got %v", got)
		}
	})

	t.Run("MaintenanceDistanceSplit", func(t *testing.T) {
		short := makeTrip(0, 20, 1)
		short.Destinations = []string{"workshop"}
		got := evaluatePattern(short, cond, nil)
		if !hasCode(got, domain.CodeShortDistanceMaintenance) {
			t.Errorf("expected short_distance_maintenance for 20 km, got %v", got)
		}

		long := makeTrip(0, 200, 3)
		long.Destinations = []string{"workshop"}
		got = evaluatePattern(long, cond, nil)
		if !hasCode(got, domain.CodeScheduledMaintenance) {
			t.Errorf("expected scheduled_maintenance for 200 km, got %v", got)
		}
	})

	t.Run("DistinctMatchesAccumulate", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		trip.Notes = "breakdown, then towed to the workshop"
		got := evaluatePattern(trip, cond, nil)
		if len(got) != 3 {
			t.Errorf("expected 3 findings, got %d: %v", len(got), got)
		}
	})

	t.Run("DuplicateKeywordsCountedOnce", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		trip.Notes = "tow tow tow"
		dup := &domain.PatternConditions{Keywords: []string{"tow", "tow"}}
		got := evaluatePattern(trip, dup, []string{"tow"})
		if len(got) != 1 {
			t.Errorf("expected 1 finding for repeated keyword, got %d", len(got))
		}
	})

	t.Run("ExtraKeywordsChecked", func(t *testing.T) {
		trip := makeTrip(0, 100, 2)
		trip.Notes = "rushed to hospital"
		got := evaluatePattern(trip, nil, []string{"hospital"})
		if !hasCode(got, domain.CodeMedicalEmergency) {
			t.Errorf("expected medical_emergency, got %v", got)
		}
	})
}

func TestScoreFindings(t *testing.T) {
	findings := []Finding{
		{Confidence: 35},
		{Confidence: 35},
		{Confidence: 40},
	}

	raw, capped := scoreFindings(findings)
	if raw != 110 {
		t.Errorf("expected raw 110, got %d", raw)
	}
	if capped != 100 {
		t.Errorf("expected capped 100, got %d", capped)
	}

	raw, capped = scoreFindings(nil)
	if raw != 0 || capped != 0 {
		t.Errorf("expected zeros for no findings, got raw=%d capped=%d", raw, capped)
	}
}

func TestResolveSeverity(t *testing.T) {
	t.Run("DefaultThresholds", func(t *testing.T) {
		cases := []struct {
			score int
			want  domain.Severity
		}{
			{0, domain.SeverityLow},
			{39, domain.SeverityLow},
			{40, domain.SeverityMedium},
			{69, domain.SeverityMedium},
			{70, domain.SeverityHigh},
			{100, domain.SeverityHigh},
		}
		for _, c := range cases {
			if got := resolveSeverity(c.score, nil, nil); got != c.want {
				t.Errorf("score %d: expected %s, got %s", c.score, c.want, got)
			}
		}
	})

	t.Run("FirstMatchingOverrideWins", func(t *testing.T) {
		findings := []Finding{
			{Code: domain.CodeMinorBreakdown},
			{Code: domain.CodeMajorBreakdown},
		}
		overrides := []domain.SeverityOverride{
			{Code: domain.CodeAccidentRelated, Severity: domain.SeverityCritical},
			{Code: domain.CodeMajorBreakdown, Severity: domain.SeverityHigh},
			{Code: domain.CodeMinorBreakdown, Severity: domain.SeverityMedium},
		}

		// accident_related was not detected; major_breakdown is the first
		// declared override that was.
		if got := resolveSeverity(35, overrides, findings); got != domain.SeverityHigh {
			t.Errorf("expected high from override order, got %s", got)
		}
	})

	t.Run("OverrideBeatsScore", func(t *testing.T) {
		findings := []Finding{{Code: domain.CodeScheduledMaintenance}}
		overrides := []domain.SeverityOverride{
			{Code: domain.CodeScheduledMaintenance, Severity: domain.SeverityLow},
		}

		// Score alone would say high; the override replaces it outright.
		if got := resolveSeverity(90, overrides, findings); got != domain.SeverityLow {
			t.Errorf("expected low from override, got %s", got)
		}
	})

	t.Run("NoOverrideMatchFallsBack", func(t *testing.T) {
		findings := []Finding{{Code: domain.CodeShortDistance}}
		overrides := []domain.SeverityOverride{
			{Code: domain.CodeNegativeFuel, Severity: domain.SeverityCritical},
		}
		if got := resolveSeverity(45, overrides, findings); got != domain.SeverityMedium {
			t.Errorf("expected medium fallback, got %s", got)
		}
	})
}

func TestRequiresReview(t *testing.T) {
	if requiresReview(domain.SeverityLow) || requiresReview(domain.SeverityMedium) {
		t.Error("low and medium must not require review")
	}
	if !requiresReview(domain.SeverityHigh) || !requiresReview(domain.SeverityCritical) {
		t.Error("high and critical must require review")
	}
}

func TestDescribe(t *testing.T) {
	got := describe(domain.CaseBreakdownTrip, []string{"Indicator found: \"tow\""})
	want := "Possible vehicle breakdown or mechanical issue: Indicator found: \"tow\""
	if got != want {
		t.Errorf("unexpected description:\n got: %s\nwant: %s", got, want)
	}

	if got := describe(domain.CaseDataAnomaly, nil); got != "Data inconsistency or anomaly detected" {
		t.Errorf("expected bare lead sentence, got %s", got)
	}
}

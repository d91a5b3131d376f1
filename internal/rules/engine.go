// Package rules provides the edge-case detection engine: a declarative
// rule catalog evaluated against individual trip records.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/fleetops/kestrel/internal/domain"
)

// ErrInvalidTrip marks a trip record missing required fields. Batch runs
// skip such trips and continue; nothing about them is fatal.
var ErrInvalidTrip = errors.New("trip record missing required fields")

// BaselineGetter returns a vehicle's historical baseline efficiency in
// km/l. The boolean reports availability: a missing baseline is a valid
// response that silently skips the variance check, never an error that
// aborts analysis.
type BaselineGetter func(ctx context.Context, fleetID, vehicleID string) (float64, bool, error)

// Engine runs the rule catalog against trip records.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	rules         []*CompiledRule // catalog order
	index         map[string]int  // rule ID -> position in rules
	getBaseline   BaselineGetter
}

// CompiledRule holds a rule with its pre-compiled CEL guard, if any.
type CompiledRule struct {
	Config  *domain.Rule
	Program cel.Program // nil when the rule has no guard expression
}

// NewEngine creates a new detection engine.
func NewEngine(getBaseline BaselineGetter) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("trip", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("distance", cel.DoubleType),
		cel.Variable("duration_hours", cel.DoubleType),
		cel.Variable("fuel_quantity", cel.DoubleType),
		cel.Variable("has_fuel", cel.BoolType),
		cel.Variable("efficiency", cel.DoubleType),
		cel.Variable("has_efficiency", cel.BoolType),
		cel.Variable("vehicle_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:         env,
		index:       make(map[string]int),
		getBaseline: getBaseline,
	}, nil
}

// ValidateRule compiles and validates a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.Rule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule, preserving catalog order. Loading a
// rule with an existing ID replaces it in place.
func (e *Engine) LoadRule(cfg *domain.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	if pos, ok := e.index[cfg.ID]; ok {
		e.rules[pos] = compiled
		return nil
	}

	e.index[cfg.ID] = len(e.rules)
	e.rules = append(e.rules, compiled)
	return nil
}

// LoadRules compiles and loads multiple rules in order.
func (e *Engine) LoadRules(configs []*domain.Rule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make([]*CompiledRule, 0, len(configs))
	newIndex := make(map[string]int, len(configs))

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		if pos, ok := newIndex[cfg.ID]; ok {
			newRules[pos] = compiled
			continue
		}
		newIndex[cfg.ID] = len(newRules)
		newRules = append(newRules, compiled)
	}

	e.rules = newRules
	e.index = newIndex
	return nil
}

// GetLoadedRules returns the currently loaded rule configurations in
// catalog order.
func (e *Engine) GetLoadedRules() []*domain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.Rule, 0, len(e.rules))
	for _, compiled := range e.rules {
		out = append(out, compiled.Config)
	}
	return out
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
	e.index = make(map[string]int)
	return nil
}

// AnalyzeTrip runs every enabled rule against one trip in catalog order and
// returns the detections produced. Rules are independent: a single trip may
// yield multiple detections of different case types. A rule with zero
// evaluator hits produces no detection at all.
func (e *Engine) AnalyzeTrip(ctx context.Context, trip *domain.Trip) ([]domain.EdgeCaseDetection, error) {
	if trip == nil || !trip.Valid() {
		return nil, ErrInvalidTrip
	}

	e.mu.RLock()
	catalog := make([]*CompiledRule, len(e.rules))
	copy(catalog, e.rules)
	e.mu.RUnlock()

	activation := tripActivation(trip)

	var detections []domain.EdgeCaseDetection
	for _, rule := range catalog {
		det, ok := e.runRule(ctx, rule, trip, activation)
		if ok {
			detections = append(detections, det)
		}
	}

	return detections, nil
}

// BatchOptions configures a batch analysis run.
type BatchOptions struct {
	// RecentLimit caps the recent-detections slice. Zero means the default
	// of 20.
	RecentLimit int
}

// DefaultRecentLimit bounds the recent-detections slice in batch summaries.
const DefaultRecentLimit = 20

// BatchAnalyze runs AnalyzeTrip over a candidate window of trips, pools the
// detections and derives aggregate counts. Trips with missing required
// fields are skipped without aborting the batch; callers always receive
// partial results.
func (e *Engine) BatchAnalyze(ctx context.Context, trips []*domain.Trip, opts BatchOptions) *domain.BatchSummary {
	limit := opts.RecentLimit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	summary := &domain.BatchSummary{
		CasesByType:     make(map[domain.CaseType]int),
		CasesBySeverity: make(map[domain.Severity]int),
	}

	var pooled []domain.EdgeCaseDetection
	for _, trip := range trips {
		dets, err := e.AnalyzeTrip(ctx, trip)
		if err != nil {
			summary.TripsSkipped++
			continue
		}
		summary.TripsAnalyzed++
		pooled = append(pooled, dets...)
	}

	summary.TotalCasesDetected = len(pooled)
	for _, det := range pooled {
		summary.CasesByType[det.CaseType]++
		summary.CasesBySeverity[det.Severity]++
		if det.RequiresManualReview && det.ResolutionStatus == domain.ResolutionPending {
			summary.PendingReviews++
		}
	}

	// Most recent first, bounded.
	sort.SliceStable(pooled, func(i, j int) bool {
		return pooled[i].DetectedAt.After(pooled[j].DetectedAt)
	})
	if len(pooled) > limit {
		pooled = pooled[:limit]
	}
	summary.RecentDetections = pooled

	return summary
}

// runRule evaluates one rule against one trip. The boolean reports whether
// a detection was produced.
func (e *Engine) runRule(ctx context.Context, rule *CompiledRule, trip *domain.Trip, activation map[string]any) (domain.EdgeCaseDetection, bool) {
	cfg := rule.Config

	// CEL guard: a false result or an evaluation error skips the rule for
	// this trip without failing the analysis.
	if rule.Program != nil {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			return domain.EdgeCaseDetection{}, false
		}
		if pass, ok := out.(types.Bool); !ok || !bool(pass) {
			return domain.EdgeCaseDetection{}, false
		}
	}

	var findings []Finding
	findings = append(findings, evaluateDistance(trip, cfg.Conditions.Distance)...)
	findings = append(findings, evaluateTime(trip, cfg.Conditions.Time)...)
	findings = append(findings, evaluateFuel(ctx, trip, cfg.Conditions.Fuel, e.getBaseline)...)
	findings = append(findings, evaluatePattern(trip, cfg.Conditions.Pattern, cfg.Conditions.EmergencyKeywords)...)

	if len(findings) == 0 {
		return domain.EdgeCaseDetection{}, false
	}

	raw, capped := scoreFindings(findings)
	severity := resolveSeverity(raw, cfg.SeverityOverrides, findings)

	patterns := make([]string, 0, len(findings))
	for _, f := range findings {
		patterns = append(patterns, f.Pattern)
	}

	now := time.Now().UTC()

	return domain.EdgeCaseDetection{
		CaseID:              fmt.Sprintf("%s-%s-%d", cfg.ID, trip.ID, now.UnixNano()),
		CaseType:            cfg.CaseType,
		TripID:              trip.ID,
		VehicleID:           trip.VehicleID,
		VehicleRegistration: trip.VehicleRegistration,
		Severity:            severity,
		ConfidenceScore:     capped,
		DetectedAt:          now,
		Description:         describe(cfg.CaseType, patterns),
		PatternsDetected:    patterns,
		Context: domain.TripContext{
			SerialNumber:  trip.SerialNumber,
			DistanceKM:    trip.DistanceKM(),
			DurationHours: trip.DurationHours(),
			Efficiency:    trip.Efficiency,
			Destinations:  trip.Destinations,
		},
		Recommendations:      recommend(cfg.CaseType, severity),
		AutoActionsTaken:     append([]string(nil), cfg.AutoActions...),
		RequiresManualReview: requiresReview(severity),
		ResolutionStatus:     domain.ResolutionPending,
	}, true
}

// tripActivation builds the CEL activation variables for a trip.
func tripActivation(trip *domain.Trip) map[string]any {
	fuel := 0.0
	hasFuel := trip.FuelQuantity != nil
	if hasFuel {
		fuel = *trip.FuelQuantity
	}

	eff := 0.0
	hasEff := trip.Efficiency != nil
	if hasEff {
		eff = *trip.Efficiency
	}

	return map[string]any{
		"trip": map[string]any{
			"id":           trip.ID,
			"vehicle_id":   trip.VehicleID,
			"serial":       trip.SerialNumber,
			"destinations": trip.Destinations,
			"notes":        trip.Notes,
		},
		"distance":       trip.DistanceKM(),
		"duration_hours": trip.DurationHours(),
		"fuel_quantity":  fuel,
		"has_fuel":       hasFuel,
		"efficiency":     eff,
		"has_efficiency": hasEff,
		"vehicle_id":     trip.VehicleID,
	}
}

func (e *Engine) compileRule(cfg *domain.Rule) (*CompiledRule, error) {
	for _, ov := range cfg.SeverityOverrides {
		if !domain.KnownDiagnosticCodes[ov.Code] {
			return nil, fmt.Errorf("rule %s: severity override references unknown diagnostic code %q", cfg.ID, ov.Code)
		}
	}

	compiled := &CompiledRule{Config: cfg}
	if cfg.Expression == "" {
		return compiled, nil
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: guard expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	compiled.Program = program
	return compiled, nil
}

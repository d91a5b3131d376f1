package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetops/kestrel/internal/domain"
	"github.com/fleetops/kestrel/internal/recovery"
	"github.com/fleetops/kestrel/internal/repository"
	"github.com/fleetops/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	analyzer *recovery.Analyzer
	analysis domain.AnalysisConfig
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, analyzer *recovery.Analyzer, analysis domain.AnalysisConfig, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		analyzer: analyzer,
		analysis: analysis,
		version:  version,
	}
}

// IngestResponse is the response for POST /trips.
type IngestResponse struct {
	TripID     string                      `json:"tripId"`
	Detections []domain.EdgeCaseDetection  `json:"detections"`
	Metadata   struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// IngestTrip handles POST /trips: it stores the trip, runs the rule catalog
// against it synchronously and returns any detections produced.
func (h *Handler) IngestTrip(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	fleetID := GetFleetID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req domain.TripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if req.VehicleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "vehicleId is required",
		})
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "startTime must be RFC 3339",
		})
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "endTime must be RFC 3339",
		})
		return
	}

	// Create trip record
	trip := &domain.Trip{
		ID:                  uuid.New().String(),
		FleetID:             fleetID,
		VehicleID:           req.VehicleID,
		VehicleRegistration: req.VehicleRegistration,
		SerialNumber:        req.SerialNumber,
		StartTime:           startTime,
		EndTime:             endTime,
		CreatedAt:           time.Now().UTC(),
		StartKM:             req.StartKM,
		EndKM:               req.EndKM,
		FuelQuantity:        req.FuelQuantity,
		Efficiency:          req.Efficiency,
		Destinations:        req.Destinations,
		Notes:               req.Notes,
	}

	// Save trip if repository is available
	if h.repo != nil {
		if err := h.repo.SaveTrip(ctx, fleetID, trip); err != nil {
			slog.Error("failed to save trip", "error", err)
			// Continue even if save fails, to prioritize analysis.
		}

		// Keep the vehicle registry current with the latest odometer reading.
		vehicle := &domain.Vehicle{
			ID:           trip.VehicleID,
			FleetID:      fleetID,
			Registration: trip.VehicleRegistration,
			OdometerKM:   trip.EndKM,
			CreatedAt:    time.Now().UTC(),
		}
		if err := h.repo.SaveVehicle(ctx, fleetID, vehicle); err != nil {
			slog.Error("failed to update vehicle registry", "vehicle_id", trip.VehicleID, "error", err)
		}
	}

	// Synchronous analysis (Community tier / direct mode)
	detections, err := h.engine.AnalyzeTrip(ctx, trip)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "trip record is missing required fields",
		})
		return
	}

	// Persist and publish detections
	for i := range detections {
		det := &detections[i]

		if h.repo != nil {
			if err := h.repo.SaveDetection(ctx, fleetID, det); err != nil {
				slog.Error("failed to save detection", "case_id", det.CaseID, "error", err)
			}
		}

		if h.bus != nil {
			payload, _ := json.Marshal(det)
			if err := h.bus.Publish(ctx, fleetID, domain.TopicDetectionCreated, payload); err != nil {
				slog.Error("failed to publish detection", "case_id", det.CaseID, "error", err)
			}
			if det.RequiresManualReview {
				if err := h.bus.Publish(ctx, fleetID, domain.TopicAlert, payload); err != nil {
					slog.Error("failed to publish alert", "case_id", det.CaseID, "error", err)
				}
			}
		}
	}

	resp := IngestResponse{
		TripID:     trip.ID,
		Detections: detections,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetTrip retrieves a trip by ID.
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := GetFleetID(ctx)
	tripID := chi.URLParam(r, "id")

	if tripID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "trip id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	trip, err := h.repo.GetTrip(ctx, fleetID, tripID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "trip not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, trip)
}

// GetDetection retrieves a detection by case ID.
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := GetFleetID(ctx)
	caseID := chi.URLParam(r, "id")

	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	det, err := h.repo.GetDetection(ctx, fleetID, caseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "detection not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, det)
}

// ListDetections returns the fleet's detections, optionally filtered by
// resolution status via ?status=.
func (h *Handler) ListDetections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := GetFleetID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	status := domain.ResolutionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.ResolutionPending, domain.ResolutionInProgress, domain.ResolutionResolved, domain.ResolutionDismissed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown resolution status",
		})
		return
	}

	detections, err := h.repo.ListDetections(ctx, fleetID, status, 100)
	if err != nil {
		slog.Error("failed to list detections", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list detections",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detections": detections,
		"count":      len(detections),
	})
}

// DetectionSummary runs a batch analysis over the fleet's recent trips and
// returns the aggregate counts.
func (h *Handler) DetectionSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := GetFleetID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	windowHours := h.analysis.BatchWindowHours
	if v := r.URL.Query().Get("windowHours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			windowHours = parsed
		}
	}
	if windowHours <= 0 {
		windowHours = 168
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)

	trips, err := h.repo.ListRecentTrips(ctx, fleetID, since)
	if err != nil {
		slog.Error("failed to list recent trips", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list recent trips",
		})
		return
	}

	recentLimit := h.analysis.RecentDetectionLimit
	if v := r.URL.Query().Get("recentLimit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			recentLimit = parsed
		}
	}

	summary := h.engine.BatchAnalyze(ctx, trips, rules.BatchOptions{
		RecentLimit: recentLimit,
	})

	writeJSON(w, http.StatusOK, summary)
}

// StatusUpdateRequest is the request body for PATCH /detections/{id}/status.
type StatusUpdateRequest struct {
	Status domain.ResolutionStatus `json:"status"`
}

// UpdateDetectionStatus transitions a detection's resolution status.
// Invalid transitions (resolved is terminal, for instance) are rejected.
func (h *Handler) UpdateDetectionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := GetFleetID(ctx)
	caseID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	switch req.Status {
	case domain.ResolutionPending, domain.ResolutionInProgress, domain.ResolutionResolved, domain.ResolutionDismissed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown resolution status",
		})
		return
	}

	det, err := h.repo.GetDetection(ctx, fleetID, caseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "detection not found",
		})
		return
	}

	if !domain.ValidTransition(det.ResolutionStatus, req.Status) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "invalid status transition from " + string(det.ResolutionStatus),
		})
		return
	}

	if err := h.repo.UpdateDetectionStatus(ctx, fleetID, caseID, req.Status); err != nil {
		slog.Error("failed to update detection status", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update detection status",
		})
		return
	}

	det.ResolutionStatus = req.Status
	writeJSON(w, http.StatusOK, det)
}

// AnalyzeVehicleRecovery runs the data-recovery integrity scans over a
// vehicle's trip history.
func (h *Handler) AnalyzeVehicleRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := GetFleetID(ctx)
	vehicleID := chi.URLParam(r, "id")

	if vehicleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "vehicle id is required",
		})
		return
	}

	if h.repo == nil || h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "recovery analysis not available",
		})
		return
	}

	windowHours := h.analysis.BatchWindowHours
	if windowHours <= 0 {
		windowHours = 168
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)

	trips, err := h.repo.ListTripsByVehicle(ctx, fleetID, vehicleID, since)
	if err != nil {
		slog.Error("failed to list vehicle trips", "vehicle_id", vehicleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list vehicle trips",
		})
		return
	}

	scenarios := h.analyzer.Analyze(fleetID, vehicleID, trips)

	for i := range scenarios {
		scenario := &scenarios[i]

		if err := h.repo.SaveScenario(ctx, fleetID, scenario); err != nil {
			slog.Error("failed to save recovery scenario", "scenario_id", scenario.ScenarioID, "error", err)
		}

		if h.bus != nil {
			payload, _ := json.Marshal(scenario)
			if err := h.bus.Publish(ctx, fleetID, domain.TopicRecoveryScenario, payload); err != nil {
				slog.Error("failed to publish recovery scenario", "scenario_id", scenario.ScenarioID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vehicleId":     vehicleID,
		"tripsScanned":  len(trips),
		"scenarios":     scenarios,
		"scenarioCount": len(scenarios),
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// GlobalFleetID is used for rules that apply to all fleets.
const GlobalFleetID = "*"

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (fleet_id = "*") so they apply to all fleets.
// The rule is validated and loaded into the engine immediately.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if rule.ID == "" || rule.Name == "" || rule.CaseType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and caseType are required",
		})
		return
	}

	rule.FleetID = GlobalFleetID
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	// Compile and load; rejects unknown override codes and bad guards
	if err := h.engine.LoadRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	// Persist to repository (global fleet ID)
	if h.repo != nil {
		if err := h.repo.SaveRule(ctx, GlobalFleetID, &rule); err != nil {
			slog.Error("failed to save rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created and loaded.",
	})
}

// ReloadRules reloads the builtin catalog plus all database rules into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	// Load rules from database (global rules)
	dbRules, err := h.repo.ListRules(ctx, GlobalFleetID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	// Builtin catalog first, database rules layered on top
	catalog := append(rules.BuiltinRules(), dbRules...)
	if err := h.engine.ReloadRules(catalog); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "builtin", len(rules.BuiltinRules()), "database", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

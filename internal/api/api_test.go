package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetops/kestrel/internal/bus"
	"github.com/fleetops/kestrel/internal/cache"
	"github.com/fleetops/kestrel/internal/domain"
	"github.com/fleetops/kestrel/internal/recovery"
	"github.com/fleetops/kestrel/internal/repository"
	"github.com/fleetops/kestrel/internal/rules"
)

// createTestServer wires a full server against a temp SQLite database,
// an in-memory cache and a channel bus.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	memCache := cache.NewLRUCache(1000)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	engine, err := rules.NewEngine(nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	analysis := domain.AnalysisConfig{
		RecentDetectionLimit: 20,
		BatchWindowHours:     168,
	}

	return NewServer(cfg, analysis, repo, memCache, eventBus, engine, recovery.NewAnalyzer(), "test-v1")
}

// ingestTrip posts a trip and returns the parsed response.
func ingestTrip(t *testing.T, server *Server, fleetID string, trip domain.TripRequest) IngestResponse {
	t.Helper()

	body, _ := json.Marshal(trip)
	req := httptest.NewRequest(http.MethodPost, "/trips", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(FleetIDHeader, fleetID)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("ingest failed with status %d: %s", rr.Code, rr.Body.String())
	}

	var resp IngestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse ingest response: %v", err)
	}
	return resp
}

func rfc3339(t time.Time) string {
	return t.Format(time.RFC3339)
}

// noonAgo returns local noon the given number of days back. Anchoring trips
// to midday keeps the unusual-start-hour rules quiet regardless of when the
// tests run.
func noonAgo(days int) time.Time {
	y, m, d := time.Now().AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.Local)
}

func TestIngestEndpoint(t *testing.T) {
	server := createTestServer(t)
	now := time.Now()

	t.Run("CleanTripNoDetections", func(t *testing.T) {
		resp := ingestTrip(t, server, "fleet-001", domain.TripRequest{
			VehicleID: "veh-clean",
			StartTime: rfc3339(noonAgo(1)),
			EndTime:   rfc3339(noonAgo(1).Add(2 * time.Hour)),
			StartKM:   1000,
			EndKM:     1120,
			FuelQuantity: func() *float64 {
				v := 12.0
				return &v
			}(),
			Destinations: []string{"Durban"},
		})

		if resp.TripID == "" {
			t.Error("expected a generated trip ID")
		}
		if len(resp.Detections) != 0 {
			t.Errorf("expected no detections for a clean trip, got %d", len(resp.Detections))
		}
	})

	t.Run("TowedTripProducesDetections", func(t *testing.T) {
		resp := ingestTrip(t, server, "fleet-001", domain.TripRequest{
			VehicleID: "veh-towed",
			StartTime: rfc3339(noonAgo(1)),
			EndTime:   rfc3339(noonAgo(1).Add(time.Hour)),
			StartKM:   500,
			EndKM:     505,
			Notes:     "vehicle towed after breakdown on highway",
		})

		if len(resp.Detections) == 0 {
			t.Fatal("expected detections for a towed trip")
		}

		var breakdown *domain.EdgeCaseDetection
		for i := range resp.Detections {
			if resp.Detections[i].CaseType == domain.CaseBreakdownTrip {
				breakdown = &resp.Detections[i]
			}
		}
		if breakdown == nil {
			t.Fatal("expected a breakdown_trip detection")
		}
		if breakdown.Severity != domain.SeverityHigh {
			t.Errorf("expected high severity for towed trip, got %s", breakdown.Severity)
		}
		if !breakdown.RequiresManualReview {
			t.Error("expected towed trip detection to require review")
		}
		if breakdown.ResolutionStatus != domain.ResolutionPending {
			t.Errorf("expected pending resolution, got %s", breakdown.ResolutionStatus)
		}
	})

	t.Run("MissingFleetHeader", func(t *testing.T) {
		body, _ := json.Marshal(domain.TripRequest{VehicleID: "veh-x"})
		req := httptest.NewRequest(http.MethodPost, "/trips", bytes.NewBuffer(body))

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without fleet header, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/trips", bytes.NewBufferString("{not json"))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid JSON, got %d", rr.Code)
		}
	})

	t.Run("MissingVehicleID", func(t *testing.T) {
		body, _ := json.Marshal(domain.TripRequest{
			StartTime: rfc3339(now),
			EndTime:   rfc3339(now.Add(time.Hour)),
		})
		req := httptest.NewRequest(http.MethodPost, "/trips", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing vehicleId, got %d", rr.Code)
		}
	})

	t.Run("UnparseableTimestamp", func(t *testing.T) {
		body, _ := json.Marshal(domain.TripRequest{
			VehicleID: "veh-x",
			StartTime: "yesterday",
			EndTime:   rfc3339(now),
		})
		req := httptest.NewRequest(http.MethodPost, "/trips", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad timestamp, got %d", rr.Code)
		}
	})
}

func TestGetTrip(t *testing.T) {
	server := createTestServer(t)

	resp := ingestTrip(t, server, "fleet-001", domain.TripRequest{
		VehicleID: "veh-001",
		StartTime: rfc3339(noonAgo(1)),
		EndTime:   rfc3339(noonAgo(1).Add(time.Hour)),
		StartKM:   100,
		EndKM:     180,
	})

	t.Run("Found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/trips/"+resp.TripID, nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var trip domain.Trip
		if err := json.Unmarshal(rr.Body.Bytes(), &trip); err != nil {
			t.Fatalf("failed to parse trip: %v", err)
		}
		if trip.VehicleID != "veh-001" {
			t.Errorf("expected vehicle 'veh-001', got '%s'", trip.VehicleID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/trips/nonexistent", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("WrongFleet", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/trips/"+resp.TripID, nil)
		req.Header.Set(FleetIDHeader, "fleet-other")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404 across fleets, got %d", rr.Code)
		}
	})
}

func TestDetectionLifecycle(t *testing.T) {
	server := createTestServer(t)

	resp := ingestTrip(t, server, "fleet-001", domain.TripRequest{
		VehicleID: "veh-lifecycle",
		StartTime: rfc3339(noonAgo(1)),
		EndTime:   rfc3339(noonAgo(1).Add(time.Hour)),
		StartKM:   500,
		EndKM:     505,
		Notes:     "towed to workshop after breakdown",
	})
	if len(resp.Detections) == 0 {
		t.Fatal("expected detections from ingested trip")
	}
	caseID := resp.Detections[0].CaseID

	t.Run("ListDetections", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/detections", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var list struct {
			Detections []domain.EdgeCaseDetection `json:"detections"`
			Count      int                        `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
			t.Fatalf("failed to parse list: %v", err)
		}
		if list.Count == 0 {
			t.Error("expected at least one detection in list")
		}
	})

	t.Run("ListWithStatusFilter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/detections?status=resolved", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var list struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &list)
		if list.Count != 0 {
			t.Errorf("expected no resolved detections yet, got %d", list.Count)
		}
	})

	t.Run("ListWithUnknownStatus", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/detections?status=bogus", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown status, got %d", rr.Code)
		}
	})

	t.Run("GetDetection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/detections/"+caseID, nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var det domain.EdgeCaseDetection
		if err := json.Unmarshal(rr.Body.Bytes(), &det); err != nil {
			t.Fatalf("failed to parse detection: %v", err)
		}
		if det.CaseID != caseID {
			t.Errorf("expected case '%s', got '%s'", caseID, det.CaseID)
		}
	})

	t.Run("StatusTransition", func(t *testing.T) {
		body, _ := json.Marshal(StatusUpdateRequest{Status: domain.ResolutionInProgress})
		req := httptest.NewRequest(http.MethodPatch, "/detections/"+caseID+"/status", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var det domain.EdgeCaseDetection
		json.Unmarshal(rr.Body.Bytes(), &det)
		if det.ResolutionStatus != domain.ResolutionInProgress {
			t.Errorf("expected in_progress, got %s", det.ResolutionStatus)
		}

		// Resolve and verify the terminal state rejects further changes.
		body, _ = json.Marshal(StatusUpdateRequest{Status: domain.ResolutionResolved})
		req = httptest.NewRequest(http.MethodPatch, "/detections/"+caseID+"/status", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 resolving, got %d", rr.Code)
		}

		body, _ = json.Marshal(StatusUpdateRequest{Status: domain.ResolutionPending})
		req = httptest.NewRequest(http.MethodPatch, "/detections/"+caseID+"/status", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409 for transition out of resolved, got %d", rr.Code)
		}
	})

	t.Run("UnknownStatusValue", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/detections/"+caseID+"/status", bytes.NewBufferString(`{"status":"done"}`))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown status value, got %d", rr.Code)
		}
	})

	t.Run("DetectionNotFound", func(t *testing.T) {
		body, _ := json.Marshal(StatusUpdateRequest{Status: domain.ResolutionResolved})
		req := httptest.NewRequest(http.MethodPatch, "/detections/nope/status", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestDetectionSummary(t *testing.T) {
	server := createTestServer(t)

	ingestTrip(t, server, "fleet-sum", domain.TripRequest{
		VehicleID: "veh-1",
		StartTime: rfc3339(noonAgo(2)),
		EndTime:   rfc3339(noonAgo(2).Add(time.Hour)),
		StartKM:   100,
		EndKM:     105,
		Notes:     "towed after breakdown",
	})
	ingestTrip(t, server, "fleet-sum", domain.TripRequest{
		VehicleID: "veh-2",
		StartTime: rfc3339(noonAgo(1)),
		EndTime:   rfc3339(noonAgo(1).Add(time.Hour)),
		StartKM:   200,
		EndKM:     280,
		FuelQuantity: func() *float64 {
			v := 9.0
			return &v
		}(),
	})

	req := httptest.NewRequest(http.MethodGet, "/detections/summary", nil)
	req.Header.Set(FleetIDHeader, "fleet-sum")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var summary domain.BatchSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to parse summary: %v", err)
	}

	if summary.TripsAnalyzed != 2 {
		t.Errorf("expected 2 trips analyzed, got %d", summary.TripsAnalyzed)
	}
	if summary.TotalCasesDetected == 0 {
		t.Error("expected at least one case from the towed trip")
	}
	if summary.CasesByType[domain.CaseBreakdownTrip] == 0 {
		t.Error("expected a breakdown_trip case in the summary")
	}
	if len(summary.RecentDetections) == 0 {
		t.Error("expected recent detections in the summary")
	}
}

func TestRecoveryEndpoint(t *testing.T) {
	server := createTestServer(t)

	// Two trips with an odometer regression between them.
	ingestTrip(t, server, "fleet-rec", domain.TripRequest{
		VehicleID: "veh-odo",
		StartTime: rfc3339(noonAgo(2)),
		EndTime:   rfc3339(noonAgo(2).Add(time.Hour)),
		StartKM:   1000,
		EndKM:     1060,
		FuelQuantity: func() *float64 {
			v := 6.0
			return &v
		}(),
	})
	ingestTrip(t, server, "fleet-rec", domain.TripRequest{
		VehicleID: "veh-odo",
		StartTime: rfc3339(noonAgo(1)),
		EndTime:   rfc3339(noonAgo(1).Add(time.Hour)),
		StartKM:   900, // behind the previous trip's end reading
		EndKM:     960,
		FuelQuantity: func() *float64 {
			v := 6.0
			return &v
		}(),
	})

	req := httptest.NewRequest(http.MethodGet, "/vehicles/veh-odo/recovery", nil)
	req.Header.Set(FleetIDHeader, "fleet-rec")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		VehicleID     string                        `json:"vehicleId"`
		TripsScanned  int                           `json:"tripsScanned"`
		Scenarios     []domain.DataRecoveryScenario `json:"scenarios"`
		ScenarioCount int                           `json:"scenarioCount"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse recovery response: %v", err)
	}

	if resp.TripsScanned != 2 {
		t.Errorf("expected 2 trips scanned, got %d", resp.TripsScanned)
	}

	var odo *domain.DataRecoveryScenario
	for i := range resp.Scenarios {
		if resp.Scenarios[i].ScenarioType == domain.ScenarioCorruptedOdometer {
			odo = &resp.Scenarios[i]
		}
	}
	if odo == nil {
		t.Fatal("expected a corrupted_odometer scenario")
	}
	if len(odo.DataInconsistencies) == 0 {
		t.Error("expected inconsistencies in the odometer scenario")
	}
	if len(odo.RecoveryOptions) == 0 {
		t.Error("expected recovery options in the odometer scenario")
	}
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var list struct {
			Rules []domain.Rule `json:"rules"`
			Count int           `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
			t.Fatalf("failed to parse rule list: %v", err)
		}
		if list.Count != len(rules.BuiltinRules()) {
			t.Errorf("expected %d builtin rules, got %d", len(rules.BuiltinRules()), list.Count)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules/breakdown-trip-001", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("GetRuleNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules/no-such-rule", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("CreateRule", func(t *testing.T) {
		rule := domain.Rule{
			ID:       "custom-rule-001",
			Name:     "Long Haul Watch",
			CaseType: domain.CaseUnusualPattern,
			Enabled:  true,
			Conditions: domain.ConditionSet{
				Distance: &domain.DistanceConditions{MaxKM: 800},
			},
		}
		body, _ := json.Marshal(rule)

		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		// The new rule is loaded into the engine immediately
		if server.Handler().engine.RulesCount() != len(rules.BuiltinRules())+1 {
			t.Errorf("expected rule count %d, got %d",
				len(rules.BuiltinRules())+1, server.Handler().engine.RulesCount())
		}
	})

	t.Run("CreateRuleBadGuard", func(t *testing.T) {
		rule := domain.Rule{
			ID:         "bad-guard-001",
			Name:       "Bad Guard",
			CaseType:   domain.CaseDataAnomaly,
			Enabled:    true,
			Expression: "distance + 1.0", // not a bool
		}
		body, _ := json.Marshal(rule)

		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for non-bool guard, got %d", rr.Code)
		}
	})

	t.Run("CreateRuleUnknownOverrideCode", func(t *testing.T) {
		rule := domain.Rule{
			ID:       "bad-override-001",
			Name:     "Bad Override",
			CaseType: domain.CaseDataAnomaly,
			Enabled:  true,
			SeverityOverrides: []domain.SeverityOverride{
				{Code: "not_a_code", Severity: domain.SeverityHigh},
			},
		}
		body, _ := json.Marshal(rule)

		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown override code, got %d", rr.Code)
		}
	})

	t.Run("CreateRuleMissingFields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBufferString(`{"id":"x"}`))
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing fields, got %d", rr.Code)
		}
	})

	t.Run("ReloadRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rules/reload", nil)
		req.Header.Set(FleetIDHeader, "fleet-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		// Builtin catalog plus the database rule created above
		if resp.Count != len(rules.BuiltinRules())+1 {
			t.Errorf("expected %d rules after reload, got %d", len(rules.BuiltinRules())+1, resp.Count)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy status, got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/trips", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("unexpected allow-origin header: %s", got)
	}
}

package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetops/kestrel/internal/bus"
	"github.com/fleetops/kestrel/internal/domain"
	"github.com/fleetops/kestrel/internal/rules"
)

func newTestEngine(t *testing.T) *rules.Engine {
	t.Helper()

	engine, err := rules.NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	return engine
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	engine := newTestEngine(t)
	worker := NewWorker(eventBus, nil, nil, engine)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			FleetIDs:    []string{"fleet-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessTrip", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, engine)

		cfg := Config{
			FleetIDs: []string{"fleet-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track detection results
		var detectionReceived atomic.Bool
		var detectionPayload []byte

		eventBus.Subscribe(context.Background(), "fleet-test", domain.TopicDetectionCreated, func(ctx context.Context, msg *domain.Message) error {
			detectionPayload = msg.Payload
			detectionReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		// Publish a trip whose notes clearly indicate a breakdown
		tripMsg := TripMessage{
			TripID:    "trip-001",
			FleetID:   "fleet-test",
			VehicleID: "veh-001",
			StartTime: "2026-03-10T09:00:00Z",
			EndTime:   "2026-03-10T11:00:00Z",
			StartKM:   1000,
			EndKM:     1005,
			Notes:     "vehicle towed after breakdown on highway",
		}

		payload, _ := json.Marshal(tripMsg)
		err := eventBus.Publish(context.Background(), "fleet-test", domain.TopicTripIngested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !detectionReceived.Load() {
			t.Fatal("expected detection to be published")
		}

		var det domain.EdgeCaseDetection
		if err := json.Unmarshal(detectionPayload, &det); err != nil {
			t.Fatalf("failed to parse detection: %v", err)
		}

		if det.TripID != "trip-001" {
			t.Errorf("expected tripID 'trip-001', got '%s'", det.TripID)
		}
		if det.VehicleID != "veh-001" {
			t.Errorf("expected vehicleID 'veh-001', got '%s'", det.VehicleID)
		}
		if det.ResolutionStatus != domain.ResolutionPending {
			t.Errorf("expected pending status, got '%s'", det.ResolutionStatus)
		}
	})

	t.Run("AlertPublishedForReviewableDetection", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, engine)

		cfg := Config{
			FleetIDs: []string{"fleet-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track alerts
		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "fleet-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// A towed trip maps to major_breakdown, which overrides to high
		// severity and therefore requires review.
		tripMsg := TripMessage{
			TripID:    "trip-alert",
			FleetID:   "fleet-alert",
			VehicleID: "veh-002",
			StartTime: "2026-03-10T09:00:00Z",
			EndTime:   "2026-03-10T10:00:00Z",
			StartKM:   500,
			EndKM:     505,
			Notes:     "towed to workshop",
		}

		payload, _ := json.Marshal(tripMsg)
		eventBus.Publish(context.Background(), "fleet-alert", domain.TopicTripIngested, payload)

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for reviewable detection")
		}
	})

	t.Run("InvalidTripSkippedWithoutError", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, engine)

		cfg := Config{
			FleetIDs: []string{"fleet-invalid"},
		}
		w.Start(cfg)
		defer w.Stop()

		var detectionReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "fleet-invalid", domain.TopicDetectionCreated, func(ctx context.Context, msg *domain.Message) error {
			detectionReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Missing vehicle ID and times: skipped, no detections.
		tripMsg := TripMessage{
			TripID: "trip-bad",
		}
		payload, _ := json.Marshal(tripMsg)
		eventBus.Publish(context.Background(), "fleet-invalid", domain.TopicTripIngested, payload)

		time.Sleep(100 * time.Millisecond)

		if detectionReceived.Load() {
			t.Error("expected no detections for an invalid trip")
		}
	})

	t.Run("MultiFleet", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, engine)

		cfg := Config{
			FleetIDs: []string{"fleet-a", "fleet-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 fleets, got %d", stats.SubscriptionCount)
		}
	})
}

func TestTripMessageConversion(t *testing.T) {
	fuel := 12.5
	msg := TripMessage{
		TripID:       "trip-123",
		FleetID:      "fleet-001",
		VehicleID:    "veh-001",
		StartTime:    "2026-03-10T08:00:00Z",
		EndTime:      "2026-03-10T12:00:00Z",
		StartKM:      100,
		EndKM:        250,
		FuelQuantity: &fuel,
		Destinations: []string{"Durban"},
	}

	trip := msg.toTrip("fleet-001")

	if !trip.Valid() {
		t.Error("expected converted trip to be valid")
	}
	if trip.DistanceKM() != 150 {
		t.Errorf("expected distance 150, got %.1f", trip.DistanceKM())
	}
	if trip.DurationHours() != 4 {
		t.Errorf("expected duration 4h, got %.1f", trip.DurationHours())
	}

	// Bad timestamps leave zero times, failing validation
	bad := TripMessage{TripID: "t", VehicleID: "v", StartTime: "not-a-time", EndTime: "also-bad"}
	if bad.toTrip("fleet-001").Valid() {
		t.Error("expected trip with unparseable times to be invalid")
	}
}

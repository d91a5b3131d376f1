// Package worker provides async trip processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetops/kestrel/internal/domain"
	"github.com/fleetops/kestrel/internal/rules"
)

// alertWindow is the counter window for tracking repeat alerts per vehicle.
const alertWindow = 24 * time.Hour

// Worker analyzes trips asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	engine *rules.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// FleetIDs is the list of fleets to process (empty = all via wildcard if supported)
	FleetIDs []string

	// WorkerCount is the number of concurrent workers per fleet
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given fleets.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.FleetIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, fleetID := range cfg.FleetIDs {
		if err := w.startFleetWorker(fleetID); err != nil {
			slog.Error("failed to start worker for fleet",
				"fleet_id", fleetID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"fleet_count", len(cfg.FleetIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all fleets (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" fleet ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTripIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startFleetWorker starts workers for a specific fleet.
func (w *Worker) startFleetWorker(fleetID string) error {
	// Subscribe to trip ingested topic
	sub, err := w.bus.Subscribe(w.ctx, fleetID, domain.TopicTripIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processTrip(ctx, fleetID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("fleet worker started",
		"fleet_id", fleetID,
		"topic", domain.TopicTripIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processTrip(ctx, msg.FleetID, msg)
}

// TripMessage is the message payload for trip processing.
type TripMessage struct {
	TripID              string   `json:"tripId"`
	FleetID             string   `json:"fleetId"`
	VehicleID           string   `json:"vehicleId"`
	VehicleRegistration string   `json:"vehicleRegistration,omitempty"`
	SerialNumber        string   `json:"serialNumber,omitempty"`
	StartTime           string   `json:"startTime"`
	EndTime             string   `json:"endTime"`
	StartKM             float64  `json:"startKm"`
	EndKM               float64  `json:"endKm"`
	FuelQuantity        *float64 `json:"fuelQuantity,omitempty"`
	Efficiency          *float64 `json:"efficiency,omitempty"`
	Destinations        []string `json:"destinations,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

// toTrip converts the message to a domain trip. Unparseable times are left
// zero so validation rejects the trip downstream.
func (m *TripMessage) toTrip(fleetID string) *domain.Trip {
	start, _ := time.Parse(time.RFC3339, m.StartTime)
	end, _ := time.Parse(time.RFC3339, m.EndTime)

	return &domain.Trip{
		ID:                  m.TripID,
		FleetID:             fleetID,
		VehicleID:           m.VehicleID,
		VehicleRegistration: m.VehicleRegistration,
		SerialNumber:        m.SerialNumber,
		StartTime:           start,
		EndTime:             end,
		CreatedAt:           time.Now().UTC(),
		StartKM:             m.StartKM,
		EndKM:               m.EndKM,
		FuelQuantity:        m.FuelQuantity,
		Efficiency:          m.Efficiency,
		Destinations:        m.Destinations,
		Notes:               m.Notes,
	}
}

// processTrip runs a trip through the detection pipeline.
func (w *Worker) processTrip(ctx context.Context, fleetID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var tripMsg TripMessage
	if err := json.Unmarshal(msg.Payload, &tripMsg); err != nil {
		slog.Error("failed to parse trip message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message fleet if provided
	if tripMsg.FleetID != "" {
		fleetID = tripMsg.FleetID
	}

	trip := tripMsg.toTrip(fleetID)

	slog.Debug("analyzing trip",
		"trip_id", trip.ID,
		"fleet_id", fleetID,
		"vehicle_id", trip.VehicleID,
	)

	// 1. Run the rule catalog
	detections, err := w.engine.AnalyzeTrip(ctx, trip)
	if err != nil {
		// Invalid trips are dropped, not retried
		slog.Warn("trip skipped",
			"trip_id", trip.ID,
			"fleet_id", fleetID,
			"reason", err,
		)
		return nil
	}

	// 2. Persist trip and detections
	if w.repo != nil {
		if err := w.repo.SaveTrip(ctx, fleetID, trip); err != nil {
			slog.Error("failed to save trip",
				"trip_id", trip.ID,
				"error", err,
			)
		}
		for i := range detections {
			if err := w.repo.SaveDetection(ctx, fleetID, &detections[i]); err != nil {
				slog.Error("failed to save detection",
					"case_id", detections[i].CaseID,
					"error", err,
				)
			}
		}
	}

	// 3. Publish each detection, escalating reviewable ones to the alert topic
	for i := range detections {
		det := &detections[i]

		payload, _ := json.Marshal(det)
		if err := w.bus.Publish(ctx, fleetID, domain.TopicDetectionCreated, payload); err != nil {
			slog.Error("failed to publish detection",
				"case_id", det.CaseID,
				"error", err,
			)
		}

		if !det.RequiresManualReview {
			continue
		}

		if err := w.bus.Publish(ctx, fleetID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"case_id", det.CaseID,
				"error", err,
			)
		}

		// Track repeat alerts per vehicle; repeat offenders get flagged loudly.
		if w.cache != nil {
			count, err := w.cache.IncrementCounter(ctx, fleetID, "alerts:"+det.VehicleID, alertWindow)
			if err == nil && count > 1 {
				slog.Warn("repeat alerts for vehicle",
					"vehicle_id", det.VehicleID,
					"fleet_id", fleetID,
					"alert_count", count,
				)
			}
		}
	}

	slog.Info("trip analyzed",
		"trip_id", trip.ID,
		"fleet_id", fleetID,
		"detections", len(detections),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

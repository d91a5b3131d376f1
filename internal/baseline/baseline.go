// Package baseline computes historical fuel-efficiency baselines per
// vehicle, used by the rule engine's efficiency-variance check.
package baseline

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetops/kestrel/internal/domain"
)

// bucketSizeKM groups odometer readings into coarse buckets so a vehicle's
// baseline rolls over as mileage accumulates.
const bucketSizeKM = 10000

// historyWindow bounds how far back trips contribute to a baseline.
const historyWindow = 90 * 24 * time.Hour

// cacheTTL bounds how long a computed baseline is reused before recomputing.
const cacheTTL = time.Hour

// minSamples is the smallest trip count a baseline may be derived from.
// Below it the baseline is reported unavailable and variance checks skip.
const minSamples = 3

// Service computes baseline efficiency for vehicles.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new baseline service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetBaselineEfficiency returns a vehicle's historical mean efficiency in
// km/l. The boolean reports availability; too few samples is not an error.
// This is the BaselineGetter signature expected by the rule engine.
func (s *Service) GetBaselineEfficiency(ctx context.Context, fleetID, vehicleID string) (float64, bool, error) {
	if fleetID == "" || vehicleID == "" {
		return 0, false, fmt.Errorf("fleetID and vehicleID are required")
	}

	since := time.Now().Add(-historyWindow)

	trips, err := s.fetchTrips(ctx, fleetID, vehicleID, since)
	if err != nil {
		return 0, false, err
	}
	if len(trips) == 0 {
		return 0, false, nil
	}

	bucket := odometerBucket(trips)

	if s.cache != nil {
		entry, err := s.cache.GetBaseline(ctx, fleetID, vehicleID, bucket)
		if err == nil && entry != nil {
			return entry.Efficiency, true, nil
		}
	}

	eff, samples := meanEfficiency(trips)
	if samples < minSamples {
		return 0, false, nil
	}

	if s.cache != nil {
		entry := &domain.BaselineEntry{
			VehicleID:      vehicleID,
			OdometerBucket: bucket,
			Efficiency:     eff,
			SampleCount:    samples,
			ComputedAt:     time.Now().UTC(),
		}
		// Cache write failure is not fatal; the next call recomputes.
		_ = s.cache.SetBaseline(ctx, fleetID, vehicleID, bucket, entry, cacheTTL)
	}

	return eff, true, nil
}

// fetchTrips loads the vehicle's recent trips.
func (s *Service) fetchTrips(ctx context.Context, fleetID, vehicleID string, since time.Time) ([]*domain.Trip, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}
	trips, err := s.repo.ListTripsByVehicle(ctx, fleetID, vehicleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// meanEfficiency averages the recorded efficiency over trips that carry one.
func meanEfficiency(trips []*domain.Trip) (float64, int) {
	sum := 0.0
	n := 0
	for _, t := range trips {
		if t.Efficiency == nil || *t.Efficiency <= 0 {
			continue
		}
		sum += *t.Efficiency
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// odometerBucket derives the cache bucket from the highest end reading.
func odometerBucket(trips []*domain.Trip) int {
	maxKM := 0.0
	for _, t := range trips {
		if t.EndKM > maxKM {
			maxKM = t.EndKM
		}
	}
	return int(maxKM) / bucketSizeKM
}

// Getter returns a BaselineGetter function for the rule engine.
func (s *Service) Getter() func(ctx context.Context, fleetID, vehicleID string) (float64, bool, error) {
	return s.GetBaselineEfficiency
}

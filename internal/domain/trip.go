// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"strings"
	"time"
)

// Trip represents a single recorded vehicle trip to be analyzed.
type Trip struct {
	// Core identifiers
	ID      string `json:"id"`
	FleetID string `json:"fleetId"`

	// Vehicle reference
	VehicleID           string `json:"vehicleId"`
	VehicleRegistration string `json:"vehicleRegistration"`

	// SerialNumber is the fleet-assigned trip sheet serial, if any.
	SerialNumber string `json:"serialNumber,omitempty"`

	// Temporal
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	CreatedAt time.Time `json:"createdAt"`

	// Odometer readings in kilometres
	StartKM float64 `json:"startKm"`
	EndKM   float64 `json:"endKm"`

	// FuelQuantity is litres consumed; nil when not recorded.
	FuelQuantity *float64 `json:"fuelQuantity,omitempty"`

	// Efficiency is a precomputed km/l figure; nil when not available.
	Efficiency *float64 `json:"efficiency,omitempty"`

	// Destinations visited, in order.
	Destinations []string `json:"destinations,omitempty"`

	// Notes is the driver's free-text remark field.
	Notes string `json:"notes,omitempty"`
}

// DistanceKM returns the odometer delta for the trip.
func (t *Trip) DistanceKM() float64 {
	return t.EndKM - t.StartKM
}

// DurationHours returns the trip duration in hours.
func (t *Trip) DurationHours() float64 {
	return t.EndTime.Sub(t.StartTime).Hours()
}

// SearchText returns the lower-cased concatenation of destinations and notes,
// used for keyword matching.
func (t *Trip) SearchText() string {
	parts := make([]string, 0, len(t.Destinations)+1)
	parts = append(parts, t.Destinations...)
	if t.Notes != "" {
		parts = append(parts, t.Notes)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Valid reports whether the trip carries the fields the engine requires.
// Trips failing this check are skipped, not errors that abort a batch.
func (t *Trip) Valid() bool {
	return t.VehicleID != "" && !t.StartTime.IsZero() && !t.EndTime.IsZero()
}

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID           string    `json:"id"`
	FleetID      string    `json:"fleetId"`
	Registration string    `json:"registration"`
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	OdometerKM   float64   `json:"odometerKm"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TripRequest is the API request payload for trip ingestion.
type TripRequest struct {
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

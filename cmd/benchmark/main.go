// Benchmark tool for replaying labelled trip logs against Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/trips.csv -url http://localhost:8080
//
// This tool:
//  1. Reads a trip log CSV carrying edge-case labels
//  2. Sends each trip to Kestrel for analysis
//  3. Compares Kestrel's verdict (detections vs none) with the labels
//  4. Calculates precision, recall, F1-score, and a confusion matrix
//
// Expected CSV columns (header row required, order free):
//   vehicle_id, registration, serial, start_time, end_time,
//   start_km, end_km, fuel_quantity, destinations, notes, is_edge_case
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TripRecord represents a labelled row from the trip log.
type TripRecord struct {
	VehicleID    string
	Registration string
	Serial       string
	StartTime    string
	EndTime      string
	StartKM      float64
	EndKM        float64
	FuelQuantity *float64
	Destinations []string
	Notes        string
	IsEdgeCase   bool
}

// TripRequest is the Kestrel API request format.
type TripRequest struct {
	VehicleID           string   `json:"vehicleId"`
	VehicleRegistration string   `json:"vehicleRegistration,omitempty"`
	SerialNumber        string   `json:"serialNumber,omitempty"`
	StartTime           string   `json:"startTime"`
	EndTime             string   `json:"endTime"`
	StartKM             float64  `json:"startKm"`
	EndKM               float64  `json:"endKm"`
	FuelQuantity        *float64 `json:"fuelQuantity,omitempty"`
	Destinations        []string `json:"destinations,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

// IngestResponse is the Kestrel API response format.
type IngestResponse struct {
	TripID     string `json:"tripId"`
	Detections []struct {
		CaseType        string `json:"caseType"`
		Severity        string `json:"severity"`
		ConfidenceScore int    `json:"confidenceScore"`
	} `json:"detections"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Labelled edge case, detections produced
	FalsePositives int64 // Not labelled, detections produced
	TrueNegatives  int64 // Not labelled, no detections
	FalseNegatives int64 // Labelled edge case, nothing detected

	TotalProcessed int64
	TotalEdgeCases int64
	TotalNormal    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labelled trip CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	fleetID := flag.String("fleet", "benchmark-test", "Fleet ID for requests")
	limit := flag.Int("limit", 10000, "Maximum trips to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	edgeOnly := flag.Bool("edge-only", false, "Only replay labelled edge cases")
	verbose := flag.Bool("verbose", false, "Print each trip result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/trips.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK - trip log replay")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Fleet ID:    %s\n", *fleetID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Edge Only:   %v\n", *edgeOnly)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	// Read trip log
	fmt.Printf("\nReading trip log from %s...\n", *csvPath)
	trips, err := readTripCSV(*csvPath, *limit, *edgeOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d trips\n", len(trips))

	// Count labels
	edgeCount := 0
	for _, trip := range trips {
		if trip.IsEdgeCase {
			edgeCount++
		}
	}
	fmt.Printf("  - Edge cases: %d (%.2f%%)\n", edgeCount, 100*float64(edgeCount)/float64(len(trips)))
	fmt.Printf("  - Normal:     %d (%.2f%%)\n", len(trips)-edgeCount, 100*float64(len(trips)-edgeCount)/float64(len(trips)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(trips, *baseURL, *fleetID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readTripCSV(path string, limit int, edgeOnly bool) ([]TripRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var trips []TripRecord

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isEdge := field(record, "is_edge_case") == "1"
		if edgeOnly && !isEdge {
			continue
		}

		startKM, _ := strconv.ParseFloat(field(record, "start_km"), 64)
		endKM, _ := strconv.ParseFloat(field(record, "end_km"), 64)

		var fuel *float64
		if raw := field(record, "fuel_quantity"); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				fuel = &v
			}
		}

		var destinations []string
		if raw := field(record, "destinations"); raw != "" {
			for _, d := range strings.Split(raw, ";") {
				if d = strings.TrimSpace(d); d != "" {
					destinations = append(destinations, d)
				}
			}
		}

		trips = append(trips, TripRecord{
			VehicleID:    field(record, "vehicle_id"),
			Registration: field(record, "registration"),
			Serial:       field(record, "serial"),
			StartTime:    field(record, "start_time"),
			EndTime:      field(record, "end_time"),
			StartKM:      startKM,
			EndKM:        endKM,
			FuelQuantity: fuel,
			Destinations: destinations,
			Notes:        field(record, "notes"),
			IsEdgeCase:   isEdge,
		})

		if limit > 0 && len(trips) >= limit {
			break
		}
	}

	return trips, nil
}

func runBenchmark(trips []TripRecord, baseURL, fleetID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan TripRecord, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for trip := range work {
				start := time.Now()
				result, err := analyzeTrip(client, baseURL, fleetID, trip)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", trip.VehicleID, err)
					}
					continue
				}

				// Track actual labels
				if trip.IsEdgeCase {
					atomic.AddInt64(&metrics.TotalEdgeCases, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNormal, 1)
				}

				// Confusion matrix
				predicted := len(result.Detections) > 0
				actual := trip.IsEdgeCase

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok  "
					if (predicted && !actual) || (!predicted && actual) {
						status = "miss"
					}
					fmt.Printf("%s %-10s | %8.1f km | Label: %-5v | Detections: %d\n",
						status,
						trip.VehicleID,
						trip.EndKM-trip.StartKM,
						trip.IsEdgeCase,
						len(result.Detections),
					)
				}
			}
		}()
	}

	// Send work
	for _, trip := range trips {
		work <- trip
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func analyzeTrip(client *http.Client, baseURL, fleetID string, trip TripRecord) (*IngestResponse, error) {
	req := TripRequest{
		VehicleID:           trip.VehicleID,
		VehicleRegistration: trip.Registration,
		SerialNumber:        trip.Serial,
		StartTime:           trip.StartTime,
		EndTime:             trip.EndTime,
		StartKM:             trip.StartKM,
		EndKM:               trip.EndKM,
		FuelQuantity:        trip.FuelQuantity,
		Destinations:        trip.Destinations,
		Notes:               trip.Notes,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/trips", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Fleet-ID", fleetID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Edge Cases:       %d\n", m.TotalEdgeCases)
	fmt.Printf("   Normal Trips:     %d\n", m.TotalNormal)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                         Predicted")
	fmt.Println("                    Flagged     Clean")
	fmt.Printf("   Actual  Edge   %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           Normal %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged trips, how many were labelled)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of labelled edge cases, how many were caught)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalEdgeCases > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalEdgeCases) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalEdgeCases) * 100
		fmt.Printf("   Edge Cases Caught: %d / %d (%.2f%%)\n", m.TruePositives, m.TotalEdgeCases, detectionRate)
		fmt.Printf("   Edge Cases Missed: %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalEdgeCases, missRate)
	}
	if m.TotalNormal > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNormal) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNormal, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f trips/sec\n", tps)
	}

	fmt.Println()
}

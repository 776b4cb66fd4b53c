package mission

import (
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/navigation"
	"github.com/roman-kulish/uav-ground-control/internal/telemetry"
)

// FlightStats summarises a recorded flight
type FlightStats struct {
	Samples       int           `json:"samples"`
	Duration      time.Duration `json:"duration"`
	TotalDistance float64       `json:"totalDistance"` // metres, 3D
	MaxAltitude   float64       `json:"maxAltitude"`
	MaxSpeed      float64       `json:"maxSpeed"`
	AverageSpeed  float64       `json:"averageSpeed"` // mean of reported speeds
	BatteryUsed   float64       `json:"batteryUsed"`  // percentage points
}

// ComputeFlightStats derives replay statistics from samples ordered oldest first
func ComputeFlightStats(samples []telemetry.Telemetry) FlightStats {
	var stats FlightStats
	if len(samples) == 0 {
		return stats
	}

	stats.Samples = len(samples)
	stats.MaxAltitude = samples[0].Altitude

	var speedSum float64
	for i := range samples {
		s := &samples[i]

		stats.MaxAltitude = max(stats.MaxAltitude, s.Altitude)
		stats.MaxSpeed = max(stats.MaxSpeed, s.Speed)
		speedSum += s.Speed

		if i > 0 {
			p := &samples[i-1]
			stats.TotalDistance += navigation.Distance(
				navigation.Position{Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude},
				navigation.Position{Latitude: s.Latitude, Longitude: s.Longitude, Altitude: s.Altitude},
			)
		}
	}

	first, last := &samples[0], &samples[len(samples)-1]
	stats.AverageSpeed = speedSum / float64(len(samples))
	stats.BatteryUsed = max(0, first.Battery-last.Battery)

	if !first.Monotonic.IsZero() && !last.Monotonic.IsZero() {
		stats.Duration = last.Monotonic.Sub(first.Monotonic)
	} else {
		stats.Duration = last.Timestamp.Sub(first.Timestamp)
	}

	return stats
}

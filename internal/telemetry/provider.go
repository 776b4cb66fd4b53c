package telemetry

import (
	"time"
)

// Provider returns the most recent telemetry of a vehicle, live or simulated
type Provider interface {
	Get() *Telemetry
}

// Telemetry is a single snapshot of vehicle state
type Telemetry struct {
	Timestamp  time.Time `json:"timestamp"`  // Wall-clock time (UTC) the sample was emitted
	Monotonic  time.Time `json:"-"`          // Reading of the monotonic clock at sampling time
	Latitude   float64   `json:"latitude"`   // Degrees
	Longitude  float64   `json:"longitude"`  // Degrees
	Altitude   float64   `json:"altitude"`   // Metres relative to home
	Speed      float64   `json:"speed"`      // Ground speed in m/s
	Battery    float64   `json:"battery"`    // Remaining charge in percent, [0, 100]
	Heading    float64   `json:"heading"`    // Degrees, [0, 360)
	Satellites int       `json:"satellites"` // Satellites in view
	FlightMode string    `json:"flightMode"` // Autopilot mode name
	Armed      bool      `json:"armed"`
}

// Clamp forces battery and heading into their documented ranges
func (t *Telemetry) Clamp() {
	t.Battery = max(0, min(t.Battery, 100))
	for t.Heading < 0 {
		t.Heading += 360
	}
	for t.Heading >= 360 {
		t.Heading -= 360
	}
}

package simulator

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/uav-ground-control/internal/mission"
	"github.com/roman-kulish/uav-ground-control/internal/navigation"
)

const (
	// MaxSafeAltitude is the regulatory soft ceiling in metres
	MaxSafeAltitude = 120.0

	// MinWaypointSpacing is the horizontal distance below which two
	// consecutive waypoints are reported as very close
	MinWaypointSpacing = 5.0

	// MaxClimbAngle is the steepest leg in degrees flown without a warning
	MaxClimbAngle = 45.0

	// DefaultSpeed is used for legs when neither the waypoint nor the
	// mission carries a speed
	DefaultSpeed = 10.0

	// Endurance is the nominal battery endurance used for estimates
	Endurance = 20 * time.Minute

	batteryOverhead = 1.2
	batteryWarn     = 80.0
	batteryMax      = 100.0
)

// Result is the outcome of a dry run. Validation problems are data, never
// errors.
type Result struct {
	Valid                 bool     `json:"valid"`
	Errors                []string `json:"errors"`
	Warnings              []string `json:"warnings"`
	TotalDistance         float64  `json:"totalDistance"`         // metres
	EstimatedFlightTime   float64  `json:"estimatedFlightTime"`   // seconds
	EstimatedBatteryUsage float64  `json:"estimatedBatteryUsage"` // percent, capped at 100
	MaxAltitude           float64  `json:"maxAltitude"`
	AverageSpeed          float64  `json:"avgSpeed"`
	WaypointCount         int      `json:"waypointCount"`
}

// FlightTime returns the estimated flight time as a duration
func (r *Result) FlightTime() time.Duration {
	return time.Duration(r.EstimatedFlightTime * float64(time.Second)).Round(time.Second)
}

// Summary renders a one-line human readable digest of the result
func (r *Result) Summary() string {
	verdict := "valid"
	if !r.Valid {
		verdict = "invalid"
	}
	return fmt.Sprintf("%s: %d waypoints, %s, %s, %.0f%% battery, %s errors, %s warnings",
		verdict,
		r.WaypointCount,
		humanize.SIWithDigits(r.TotalDistance, 1, "m"),
		r.FlightTime(),
		r.EstimatedBatteryUsage,
		humanize.Comma(int64(len(r.Errors))),
		humanize.Comma(int64(len(r.Warnings))),
	)
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// WithLogger sets the logger for the simulator
func WithLogger(logger *slog.Logger) func(*Simulator) {
	return func(s *Simulator) {
		s.logger = logger.With(slog.String("component", "simulator"))
	}
}

// WithDefaultSpeed overrides the fallback leg speed
func WithDefaultSpeed(speed float64) func(*Simulator) {
	return func(s *Simulator) {
		if speed > 0 {
			s.defaultSpeed = speed
		}
	}
}

// Simulator validates missions and estimates their cost without touching
// the wire
type Simulator struct {
	defaultSpeed float64
	logger       *slog.Logger
}

// New creates a Simulator
func New(options ...func(*Simulator)) *Simulator {
	s := Simulator{
		defaultSpeed: DefaultSpeed,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Simulate runs every check against m. Waypoints are taken in their stored
// order, which the mission store keeps normalised.
func (s *Simulator) Simulate(m *mission.Mission) *Result {
	r := Result{
		Errors:   []string{},
		Warnings: []string{},
	}

	if m == nil || len(m.Waypoints) == 0 {
		r.errorf("Mission has no waypoints")
		return &r
	}

	wps := m.Waypoints
	r.WaypointCount = len(wps)

	for i := range wps {
		s.checkWaypoint(i, &wps[i], &r)
	}

	for i := 0; i < len(wps)-1; i++ {
		a, b := wps[i].Position(), wps[i+1].Position()

		distance := navigation.Distance(a, b)
		r.TotalDistance += distance
		r.EstimatedFlightTime += distance/m.LegSpeed(i+1, s.defaultSpeed) + wps[i+1].Delay

		horizontal := navigation.GroundDistance(a, b)
		if horizontal > 0 {
			if angle := navigation.ClimbAngle(a, b); angle > MaxClimbAngle {
				r.warnf("WP%d to WP%d: Steep altitude change (%.1f degrees)", i, i+1, angle)
			}
		}
		if horizontal < MinWaypointSpacing {
			r.warnf("WP%d to WP%d: Waypoints very close (%.1fm)", i, i+1, horizontal)
		}
	}

	if r.EstimatedFlightTime > 0 {
		r.AverageSpeed = r.TotalDistance / r.EstimatedFlightTime
	}

	battery := r.EstimatedFlightTime / Endurance.Seconds() * 100 * batteryOverhead
	r.EstimatedBatteryUsage = min(battery, batteryMax)
	if battery > batteryWarn {
		r.warnf("Mission may require more than 80%% battery")
	}
	if battery > batteryMax {
		r.errorf("Mission estimated to require more than 100%% battery")
	}

	if m.GeofenceEnabled && m.MaxAltitude != nil {
		for i := range wps {
			if wps[i].Altitude > *m.MaxAltitude {
				r.errorf("WP%d: Altitude %.1fm exceeds geofence limit %.1fm", i, wps[i].Altitude, *m.MaxAltitude)
			}
		}
	}

	for _, z := range m.Zones {
		if z.MinAltitude != nil && z.MaxAltitude != nil && *z.MinAltitude >= *z.MaxAltitude {
			r.errorf("Zone %s: Minimum altitude %.1fm is not below maximum %.1fm", z.Name, *z.MinAltitude, *z.MaxAltitude)
		}
	}
	if n := len(m.RallyPoints); n > mission.MaxRallyPoints {
		r.errorf("Mission has %d rally points, the limit is %d", n, mission.MaxRallyPoints)
	}

	r.Valid = len(r.Errors) == 0

	s.logger.Info("mission simulation complete",
		slog.String("mission", m.Name),
		slog.Bool("valid", r.Valid),
		slog.String("distance", humanize.SIWithDigits(r.TotalDistance, 1, "m")),
		slog.Duration("flightTime", r.FlightTime()))

	return &r
}

func (s *Simulator) checkWaypoint(i int, wp *mission.Waypoint, r *Result) {
	if wp.Latitude < -90 || wp.Latitude > 90 {
		r.errorf("WP%d: Invalid latitude %.6f", i, wp.Latitude)
	}
	if wp.Longitude < -180 || wp.Longitude > 180 {
		r.errorf("WP%d: Invalid longitude %.6f", i, wp.Longitude)
	}
	if wp.Altitude < 0 {
		r.errorf("WP%d: Negative altitude %.1fm", i, wp.Altitude)
	}
	if wp.Altitude > MaxSafeAltitude {
		r.warnf("WP%d: Altitude %.1fm exceeds safe limit of %.1fm", i, wp.Altitude, MaxSafeAltitude)
	}
	r.MaxAltitude = max(r.MaxAltitude, wp.Altitude)
}

package vehicle

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/metrics"
)

// ConnectionTimeout is how long a vehicle counts as connected after its
// last heartbeat
const ConnectionTimeout = 5 * time.Second

// Status summarises the arming state of a vehicle
type Status string

const (
	StatusDisarmed Status = "DISARMED"
	StatusArmed    Status = "ARMED"
	StatusFlying   Status = "FLYING"
)

// Vehicle is the last known state of one MAVLink system
type Vehicle struct {
	Name          string    `json:"name"`
	SystemID      uint8     `json:"systemId"`
	Type          uint8     `json:"type"`
	Autopilot     uint8     `json:"autopilot"`
	Status        Status    `json:"status"`
	FlightMode    string    `json:"flightMode"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Altitude      float64   `json:"altitude"`
	Heading       float64   `json:"heading"`
	Speed         float64   `json:"speed"`
	Battery       float64   `json:"battery"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Connected     bool      `json:"connected"`
}

// WithLogger sets the logger for the registry
func WithLogger(logger *slog.Logger) func(*Registry) {
	return func(r *Registry) {
		r.logger = logger.With(slog.String("component", "vehicles"))
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) func(*Registry) {
	return func(r *Registry) {
		r.now = now
	}
}

// WithMetrics exports the number of connected vehicles
func WithMetrics(m *metrics.Metrics) func(*Registry) {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry tracks the vehicles seen on the link, keyed by system id.
// Systems missing from the configured names are registered on first
// sight as vehicle-<sysid>.
type Registry struct {
	mu       sync.RWMutex
	vehicles map[uint8]*Vehicle

	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRegistry creates a registry pre-populated with names keyed by system id
func NewRegistry(names map[uint8]string, options ...func(*Registry)) *Registry {
	r := Registry{
		vehicles: make(map[uint8]*Vehicle, len(names)),
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	for id, name := range names {
		r.vehicles[id] = &Vehicle{Name: name, SystemID: id, Status: StatusDisarmed, Battery: 100}
	}

	return &r
}

// HandleFrame applies a frame received from the vehicle side
func (r *Registry) HandleFrame(f *mavlink.Frame) {
	r.Apply(f.SystemID, f.Message())
}

// Apply updates the vehicle with the given system id from msg. Messages
// other than HEARTBEAT, GLOBAL_POSITION_INT and SYS_STATUS are ignored, as
// are heartbeats of ground stations.
func (r *Registry) Apply(systemID uint8, msg mavlink.Message) {
	switch m := msg.(type) {
	case *mavlink.Heartbeat:
		if m.Type == mavlink.TypeGCS {
			return
		}
	case *mavlink.GlobalPositionInt, *mavlink.SysStatus:
	default:
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[systemID]
	if !ok {
		v = &Vehicle{Name: fmt.Sprintf("vehicle-%d", systemID), SystemID: systemID, Status: StatusDisarmed, Battery: 100}
		r.vehicles[systemID] = v
		r.logger.Info("vehicle registered", slog.String("name", v.Name), slog.Int("systemId", int(systemID)))
	}

	switch m := msg.(type) {
	case *mavlink.Heartbeat:
		now := r.now()
		if !v.LastHeartbeat.IsZero() && now.Sub(v.LastHeartbeat) > ConnectionTimeout {
			r.logger.Info("vehicle reconnected", slog.String("name", v.Name),
				slog.String("lastSeen", humanize.RelTime(v.LastHeartbeat, now, "ago", "from now")))
		}

		v.LastHeartbeat = now
		v.Type = m.Type
		v.Autopilot = m.Autopilot
		v.FlightMode = mavlink.CopterMode(m.CustomMode).String()
		switch {
		case m.Armed() && m.SystemStatus == mavlink.StateActive:
			v.Status = StatusFlying
		case m.Armed():
			v.Status = StatusArmed
		default:
			v.Status = StatusDisarmed
		}

	case *mavlink.GlobalPositionInt:
		v.Latitude = m.Latitude()
		v.Longitude = m.Longitude()
		v.Altitude = m.RelativeAltitude()
		v.Speed = m.GroundSpeed()
		if heading, ok := m.Heading(); ok {
			v.Heading = heading
		}

	case *mavlink.SysStatus:
		if m.BatteryRemaining >= 0 {
			v.Battery = float64(m.BatteryRemaining)
		}
	}
}

// Get returns a copy of the vehicle with the given name
func (r *Registry) Get(name string) (Vehicle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	for _, v := range r.vehicles {
		if v.Name == name {
			return r.snapshot(v, now), true
		}
	}
	return Vehicle{}, false
}

// Lookup returns a copy of the vehicle with the given system id
func (r *Registry) Lookup(systemID uint8) (Vehicle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vehicles[systemID]
	if !ok {
		return Vehicle{}, false
	}
	return r.snapshot(v, r.now()), true
}

// List returns copies of every known vehicle ordered by system id
func (r *Registry) List() []Vehicle {
	r.mu.RLock()
	now := r.now()
	list := make([]Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		list = append(list, r.snapshot(v, now))
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b Vehicle) int {
		return cmp.Compare(a.SystemID, b.SystemID)
	})

	connected := 0
	for _, v := range list {
		if v.Connected {
			connected++
		}
	}
	r.metrics.VehiclesConnected(connected)

	return list
}

func (r *Registry) snapshot(v *Vehicle, now time.Time) Vehicle {
	c := *v
	c.Connected = !v.LastHeartbeat.IsZero() && now.Sub(v.LastHeartbeat) <= ConnectionTimeout
	return c
}

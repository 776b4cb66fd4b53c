package mission

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/navigation"
)

// MaxRallyPoints is the protocol cap on rally points per mission
const MaxRallyPoints = 255

// Status is the lifecycle stage of a mission
type Status string

const (
	StatusDraft     Status = "draft"
	StatusDeployed  Status = "deployed"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Frozen reports whether a mission in this status must not be edited
func (s Status) Frozen() bool {
	return s == StatusDeployed || s == StatusExecuting
}

// FenceKind tells whether a zone keeps the vehicle in or out
type FenceKind string

const (
	FenceInclusion FenceKind = "inclusion"
	FenceExclusion FenceKind = "exclusion"
)

// ViolationAction is what the autopilot does when a zone is breached
type ViolationAction string

const (
	ActionWarn  ViolationAction = "warn"
	ActionRTL   ViolationAction = "rtl"
	ActionLand  ViolationAction = "land"
	ActionBrake ViolationAction = "brake"
)

// Waypoint is a single mission item
type Waypoint struct {
	Sequence  int             `json:"sequence" yaml:"sequence"`
	Latitude  float64         `json:"latitude" yaml:"latitude"`
	Longitude float64         `json:"longitude" yaml:"longitude"`
	Altitude  float64         `json:"altitude" yaml:"altitude"` // metres relative to home
	Command   mavlink.Command `json:"command" yaml:"command"`

	Speed            *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`     // m/s
	Heading          *float64 `json:"heading,omitempty" yaml:"heading,omitempty"` // degrees
	Delay            float64  `json:"delay,omitempty" yaml:"delay,omitempty"`     // hold time in seconds
	AcceptanceRadius *float64 `json:"acceptanceRadius,omitempty" yaml:"acceptanceRadius,omitempty"`
	PassRadius       *float64 `json:"passRadius,omitempty" yaml:"passRadius,omitempty"`
	Yaw              *float64 `json:"yaw,omitempty" yaml:"yaw,omitempty"`
	Frame            *uint8   `json:"frame,omitempty" yaml:"frame,omitempty"`
	Autocontinue     *bool    `json:"autocontinue,omitempty" yaml:"autocontinue,omitempty"`
	CameraTrigger    bool     `json:"cameraTrigger,omitempty" yaml:"cameraTrigger,omitempty"`
	CameraInterval   float64  `json:"cameraInterval,omitempty" yaml:"cameraInterval,omitempty"` // seconds
}

// Position returns the waypoint location
func (w *Waypoint) Position() navigation.Position {
	return navigation.Position{Latitude: w.Latitude, Longitude: w.Longitude, Altitude: w.Altitude}
}

// Params returns the four command parameters of the mission item:
// hold time, acceptance radius, pass radius and yaw.
func (w *Waypoint) Params() [4]float32 {
	yaw := w.Yaw
	if yaw == nil {
		yaw = w.Heading
	}
	return [4]float32{
		float32(w.Delay),
		float32(deref(w.AcceptanceRadius)),
		float32(deref(w.PassRadius)),
		float32(deref(yaw)),
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// GeofencePoint is a polygon vertex of a zone
type GeofencePoint struct {
	Sequence  int     `json:"sequence" yaml:"sequence"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// GeofenceZone is a polygon plus an optional altitude band
type GeofenceZone struct {
	Name        string          `json:"name" yaml:"name"`
	Kind        FenceKind       `json:"kind" yaml:"kind"`
	Enabled     bool            `json:"enabled" yaml:"enabled"`
	MinAltitude *float64        `json:"minAltitude,omitempty" yaml:"minAltitude,omitempty"`
	MaxAltitude *float64        `json:"maxAltitude,omitempty" yaml:"maxAltitude,omitempty"`
	Action      ViolationAction `json:"action" yaml:"action"`
	Points      []GeofencePoint `json:"points" yaml:"points"`
}

// Inert reports whether the zone has too few vertices to enclose an area
func (z *GeofenceZone) Inert() bool {
	return len(z.Points) < 3
}

// RallyPoint is an alternative safe return location
type RallyPoint struct {
	Latitude      float64 `json:"latitude" yaml:"latitude"`
	Longitude     float64 `json:"longitude" yaml:"longitude"`
	Altitude      float64 `json:"altitude" yaml:"altitude"`
	BreakAltitude float64 `json:"breakAltitude" yaml:"breakAltitude"`
	LandDirection float64 `json:"landDirection" yaml:"landDirection"` // degrees
}

// VehicleParameter is a named autopilot setting
type VehicleParameter struct {
	Name        string  `json:"name" yaml:"name"`
	Value       float32 `json:"value" yaml:"value"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks that the parameter can be carried by PARAM_SET
func (p *VehicleParameter) Validate() error {
	if p.Name == "" {
		return fault.New(fault.KindValidation, "parameter", "name is empty")
	}
	if len(p.Name) > mavlink.ParamIDLen {
		return fault.Errorf(fault.KindValidation, "parameter", "name %q exceeds %d bytes", p.Name, mavlink.ParamIDLen)
	}
	for i := 0; i < len(p.Name); i++ {
		if c := p.Name[i]; c < 0x20 || c > 0x7E {
			return fault.Errorf(fault.KindValidation, "parameter", "name %q is not printable ASCII", p.Name)
		}
	}
	if v := float64(p.Value); math.IsNaN(v) || math.IsInf(v, 0) {
		return fault.Errorf(fault.KindValidation, "parameter", "%s: value is not finite", p.Name)
	}
	return nil
}

// Mission is the aggregate owned by the store
type Mission struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status    `json:"status" yaml:"status"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`

	DefaultAltitude float64  `json:"defaultAltitude" yaml:"defaultAltitude"`
	DefaultSpeed    float64  `json:"defaultSpeed" yaml:"defaultSpeed"`
	TakeoffAltitude float64  `json:"takeoffAltitude" yaml:"takeoffAltitude"`
	RTLAltitude     float64  `json:"rtlAltitude" yaml:"rtlAltitude"`
	GeofenceEnabled bool     `json:"geofenceEnabled" yaml:"geofenceEnabled"`
	MaxAltitude     *float64 `json:"maxAltitude,omitempty" yaml:"maxAltitude,omitempty"`
	MaxDistance     *float64 `json:"maxDistance,omitempty" yaml:"maxDistance,omitempty"`

	Waypoints   []Waypoint         `json:"waypoints" yaml:"waypoints"`
	Zones       []GeofenceZone     `json:"zones,omitempty" yaml:"zones,omitempty"`
	RallyPoints []RallyPoint       `json:"rallyPoints,omitempty" yaml:"rallyPoints,omitempty"`
	Parameters  []VehicleParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Clone returns a deep copy
func (m *Mission) Clone() *Mission {
	c := *m
	c.MaxAltitude = cloneFloat(m.MaxAltitude)
	c.MaxDistance = cloneFloat(m.MaxDistance)

	c.Waypoints = slices.Clone(m.Waypoints)
	for i := range c.Waypoints {
		w := &c.Waypoints[i]
		w.Speed = cloneFloat(w.Speed)
		w.Heading = cloneFloat(w.Heading)
		w.AcceptanceRadius = cloneFloat(w.AcceptanceRadius)
		w.PassRadius = cloneFloat(w.PassRadius)
		w.Yaw = cloneFloat(w.Yaw)
		if w.Frame != nil {
			f := *w.Frame
			w.Frame = &f
		}
		if w.Autocontinue != nil {
			a := *w.Autocontinue
			w.Autocontinue = &a
		}
	}

	c.Zones = slices.Clone(m.Zones)
	for i := range c.Zones {
		z := &c.Zones[i]
		z.MinAltitude = cloneFloat(z.MinAltitude)
		z.MaxAltitude = cloneFloat(z.MaxAltitude)
		z.Points = slices.Clone(z.Points)
	}

	c.RallyPoints = slices.Clone(m.RallyPoints)
	c.Parameters = slices.Clone(m.Parameters)
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Normalize orders waypoints and zone points by sequence and renumbers
// them to a dense 0..n-1 prefix. Missing zone kinds and actions default
// to inclusion and warn.
func (m *Mission) Normalize() {
	slices.SortStableFunc(m.Waypoints, func(a, b Waypoint) int {
		return a.Sequence - b.Sequence
	})
	for i := range m.Waypoints {
		m.Waypoints[i].Sequence = i
	}

	for i := range m.Zones {
		z := &m.Zones[i]
		if z.Kind == "" {
			z.Kind = FenceInclusion
		}
		if z.Action == "" {
			z.Action = ActionWarn
		}
		slices.SortStableFunc(z.Points, func(a, b GeofencePoint) int {
			return a.Sequence - b.Sequence
		})
		for j := range z.Points {
			z.Points[j].Sequence = j
		}
	}
}

// CheckStructure rejects aggregates that could never be uploaded: broken
// zone altitude bands, too many rally points and unencodable or duplicate
// parameters. Flight-safety checks are left to the validator.
func (m *Mission) CheckStructure() error {
	for _, z := range m.Zones {
		if z.Kind != FenceInclusion && z.Kind != FenceExclusion {
			return fault.Errorf(fault.KindValidation, "mission", "zone %q: unknown kind %q", z.Name, z.Kind)
		}
		switch z.Action {
		case ActionWarn, ActionRTL, ActionLand, ActionBrake:
		default:
			return fault.Errorf(fault.KindValidation, "mission", "zone %q: unknown action %q", z.Name, z.Action)
		}
		if z.MinAltitude != nil && z.MaxAltitude != nil && *z.MinAltitude >= *z.MaxAltitude {
			return fault.Errorf(fault.KindValidation, "mission", "zone %q: min altitude %.1fm must be below max altitude %.1fm",
				z.Name, *z.MinAltitude, *z.MaxAltitude)
		}
	}

	if len(m.RallyPoints) > MaxRallyPoints {
		return fault.Errorf(fault.KindValidation, "mission", "%d rally points exceed the limit of %d", len(m.RallyPoints), MaxRallyPoints)
	}

	seen := make(map[string]struct{}, len(m.Parameters))
	for i := range m.Parameters {
		p := &m.Parameters[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if _, ok := seen[p.Name]; ok {
			return fault.Errorf(fault.KindValidation, "mission", "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	return nil
}

// LegSpeed returns the cruise speed towards waypoint i: its own override,
// else the mission default, else fallback.
func (m *Mission) LegSpeed(i int, fallback float64) float64 {
	if i >= 0 && i < len(m.Waypoints) {
		if s := m.Waypoints[i].Speed; s != nil && *s > 0 {
			return *s
		}
	}
	if m.DefaultSpeed > 0 {
		return m.DefaultSpeed
	}
	return fallback
}

// FencePolygons returns the vertices of every enabled zone that encloses an area
func (m *Mission) FencePolygons() [][]navigation.Position {
	var polygons [][]navigation.Position
	for _, z := range m.Zones {
		if !z.Enabled || z.Inert() {
			continue
		}
		vertices := make([]navigation.Position, len(z.Points))
		for i, p := range z.Points {
			vertices[i] = navigation.Position{Latitude: p.Latitude, Longitude: p.Longitude}
		}
		polygons = append(polygons, vertices)
	}
	return polygons
}

func (m *Mission) String() string {
	return fmt.Sprintf("%s (%s, %d waypoints)", m.Name, m.Status, len(m.Waypoints))
}

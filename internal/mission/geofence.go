package mission

import (
	"fmt"

	"github.com/roman-kulish/uav-ground-control/internal/navigation"
)

// Violation describes one geofence rule a position breaks
type Violation struct {
	Zone   string          `json:"zone"`
	Kind   FenceKind       `json:"kind"`
	Action ViolationAction `json:"action"`
	Reason string          `json:"reason"`
}

const globalZone = "mission"

// CheckPosition evaluates pos against the mission's geofence. When the
// geofence is disabled nothing is reported. The global altitude and
// distance limits are checked first, distance being measured on the
// ground from home; then every enabled zone is checked for its altitude
// band and polygon. Zones with fewer than three points never trigger.
func (m *Mission) CheckPosition(pos, home navigation.Position) []Violation {
	if !m.GeofenceEnabled {
		return nil
	}

	var violations []Violation

	if m.MaxAltitude != nil && pos.Altitude > *m.MaxAltitude {
		violations = append(violations, Violation{
			Zone:   globalZone,
			Kind:   FenceInclusion,
			Action: ActionRTL,
			Reason: fmt.Sprintf("altitude %.1fm exceeds geofence limit %.1fm", pos.Altitude, *m.MaxAltitude),
		})
	}
	if m.MaxDistance != nil {
		if d := navigation.GroundDistance(home, pos); d > *m.MaxDistance {
			violations = append(violations, Violation{
				Zone:   globalZone,
				Kind:   FenceInclusion,
				Action: ActionRTL,
				Reason: fmt.Sprintf("distance from home %.1fm exceeds geofence limit %.1fm", d, *m.MaxDistance),
			})
		}
	}

	for i := range m.Zones {
		z := &m.Zones[i]
		if !z.Enabled || z.Inert() {
			continue
		}

		if z.MinAltitude != nil && pos.Altitude < *z.MinAltitude {
			violations = append(violations, z.violation(fmt.Sprintf("altitude %.1fm below minimum %.1fm", pos.Altitude, *z.MinAltitude)))
		}
		if z.MaxAltitude != nil && pos.Altitude > *z.MaxAltitude {
			violations = append(violations, z.violation(fmt.Sprintf("altitude %.1fm above maximum %.1fm", pos.Altitude, *z.MaxAltitude)))
		}

		inside := z.polygon().Contains(pos)
		switch {
		case z.Kind == FenceExclusion && inside:
			violations = append(violations, z.violation("inside exclusion zone"))
		case z.Kind == FenceInclusion && !inside:
			violations = append(violations, z.violation("outside inclusion zone"))
		}
	}

	return violations
}

func (z *GeofenceZone) violation(reason string) Violation {
	return Violation{Zone: z.Name, Kind: z.Kind, Action: z.Action, Reason: reason}
}

func (z *GeofenceZone) polygon() *navigation.Polygon {
	vertices := make([]navigation.Position, len(z.Points))
	for i, p := range z.Points {
		vertices[i] = navigation.Position{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return navigation.NewPolygon(vertices)
}

package navigation

import (
	"math"

	geo "github.com/kellydunn/golang-geo"
)

// EarthRadius is the mean Earth radius in metres used for all great-circle maths
const EarthRadius = geo.EARTH_RADIUS * 1000

// Position is a geodetic position with altitude in metres relative to home
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

func (p Position) point() *geo.Point {
	return geo.NewPoint(p.Latitude, p.Longitude)
}

// IsFinite reports whether all coordinates are real numbers
func (p Position) IsFinite() bool {
	return isFinite(p.Latitude) && isFinite(p.Longitude) && isFinite(p.Altitude)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// GroundDistance returns the haversine distance between a and b in metres,
// ignoring altitude
func GroundDistance(a, b Position) float64 {
	return a.point().GreatCircleDistance(b.point()) * 1000
}

// Distance combines the haversine ground distance with the altitude
// difference as a Euclidean component
func Distance(a, b Position) float64 {
	return math.Hypot(GroundDistance(a, b), b.Altitude-a.Altitude)
}

// Bearing returns the initial great-circle bearing from a to b in degrees,
// normalised to [0, 360)
func Bearing(a, b Position) float64 {
	return NormalizeHeading(a.point().BearingTo(b.point()))
}

// NormalizeHeading maps any angle in degrees onto [0, 360)
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// Interpolate moves the fraction f of the way from a to b along all three
// coordinates linearly. f is clamped to [0, 1].
func Interpolate(a, b Position, f float64) Position {
	f = max(0, min(f, 1))
	return Position{
		Latitude:  a.Latitude + (b.Latitude-a.Latitude)*f,
		Longitude: a.Longitude + (b.Longitude-a.Longitude)*f,
		Altitude:  a.Altitude + (b.Altitude-a.Altitude)*f,
	}
}

// ClimbAngle returns the absolute climb or descent angle between a and b in
// degrees, measured against the horizontal distance
func ClimbAngle(a, b Position) float64 {
	horizontal := GroundDistance(a, b)
	vertical := math.Abs(b.Altitude - a.Altitude)
	if horizontal == 0 {
		if vertical == 0 {
			return 0
		}
		return 90
	}
	return math.Atan(vertical/horizontal) * 180 / math.Pi
}

// Polygon is a closed ring of positions; altitude is ignored
type Polygon struct {
	poly *geo.Polygon
	size int
}

// NewPolygon builds a polygon from its vertices in order
func NewPolygon(vertices []Position) *Polygon {
	points := make([]*geo.Point, 0, len(vertices))
	for _, v := range vertices {
		points = append(points, v.point())
	}
	return &Polygon{poly: geo.NewPolygon(points), size: len(points)}
}

// IsClosed reports whether the polygon has enough vertices to enclose an area
func (p *Polygon) IsClosed() bool {
	return p.size >= 3
}

// Contains runs a ray-casting test for pos. Polygons with fewer than three
// vertices contain nothing.
func (p *Polygon) Contains(pos Position) bool {
	if !p.IsClosed() {
		return false
	}
	return p.poly.Contains(pos.point())
}

package simulator

import (
	"math"
	"strings"
	"testing"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
)

func ptr[T any](v T) *T { return &v }

func containsAny(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestSimulate_EmptyMission(t *testing.T) {
	s := New()

	for _, m := range []*mission.Mission{nil, {Name: "empty"}} {
		r := s.Simulate(m)
		if r.Valid {
			t.Error("empty mission must be invalid")
		}
		if len(r.Errors) != 1 || r.Errors[0] != "Mission has no waypoints" {
			t.Errorf("unexpected errors %v", r.Errors)
		}
	}
}

func TestSimulate_GeofenceAltitude(t *testing.T) {
	m := &mission.Mission{
		Name:            "over",
		GeofenceEnabled: true,
		MaxAltitude:     ptr(50.0),
		Waypoints: []mission.Waypoint{
			{Latitude: 40.0, Longitude: -75.0, Altitude: 75, Command: mavlink.CmdNavWaypoint},
		},
	}

	r := New().Simulate(m)
	if r.Valid {
		t.Fatal("waypoint above the geofence must be invalid")
	}
	if !containsAny(r.Errors, "WP0: Altitude 75.0m exceeds geofence limit 50.0m") {
		t.Errorf("unexpected errors %v", r.Errors)
	}

	// exactly at the limit is fine
	m.Waypoints[0].Altitude = 50
	if r := New().Simulate(m); !r.Valid {
		t.Errorf("waypoint at the limit should be valid, got %v", r.Errors)
	}

	// disabled geofence ignores the limit
	m.Waypoints[0].Altitude = 75
	m.GeofenceEnabled = false
	if r := New().Simulate(m); !r.Valid {
		t.Errorf("disabled geofence should not reject, got %v", r.Errors)
	}
}

func TestSimulate_WaypointChecks(t *testing.T) {
	testCases := []struct {
		name    string
		wp      mission.Waypoint
		valid   bool
		errMsg  string
		warnMsg string
	}{
		{"valid", mission.Waypoint{Latitude: 10, Longitude: 10, Altitude: 30}, true, "", ""},
		{"latitude", mission.Waypoint{Latitude: 91, Longitude: 10, Altitude: 30}, false, "WP0: Invalid latitude 91.000000", ""},
		{"longitude", mission.Waypoint{Latitude: 10, Longitude: -181, Altitude: 30}, false, "WP0: Invalid longitude -181.000000", ""},
		{"negative altitude", mission.Waypoint{Latitude: 10, Longitude: 10, Altitude: -1}, false, "WP0: Negative altitude -1.0m", ""},
		{"above safe limit", mission.Waypoint{Latitude: 10, Longitude: 10, Altitude: 130}, true, "", "exceeds safe limit of 120.0m"},
		{"boundary latitude", mission.Waypoint{Latitude: -90, Longitude: 180, Altitude: 0}, true, "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := New().Simulate(&mission.Mission{Waypoints: []mission.Waypoint{tc.wp}})
			if r.Valid != tc.valid {
				t.Fatalf("expected valid=%v, got %v (errors %v)", tc.valid, r.Valid, r.Errors)
			}
			if tc.errMsg != "" && !containsAny(r.Errors, tc.errMsg) {
				t.Errorf("expected error %q, got %v", tc.errMsg, r.Errors)
			}
			if tc.warnMsg != "" && !containsAny(r.Warnings, tc.warnMsg) {
				t.Errorf("expected warning %q, got %v", tc.warnMsg, r.Warnings)
			}
			if r.WaypointCount != 1 {
				t.Errorf("expected one waypoint, got %d", r.WaypointCount)
			}
		})
	}
}

func TestSimulate_Aggregates(t *testing.T) {
	m := &mission.Mission{
		Waypoints: []mission.Waypoint{
			{Latitude: 0, Longitude: 0, Altitude: 0},
			{Latitude: 0.001, Longitude: 0, Altitude: 0, Delay: 5},
		},
	}

	r := New().Simulate(m)
	if !r.Valid {
		t.Fatalf("unexpected errors %v", r.Errors)
	}

	expectedDistance := 6371000 * 0.001 * math.Pi / 180
	if math.Abs(r.TotalDistance-expectedDistance) > 0.01 {
		t.Errorf("expected distance %.2f, got %.2f", expectedDistance, r.TotalDistance)
	}
	expectedTime := expectedDistance/10 + 5
	if math.Abs(r.EstimatedFlightTime-expectedTime) > 0.01 {
		t.Errorf("expected flight time %.2f, got %.2f", expectedTime, r.EstimatedFlightTime)
	}
	expectedBattery := expectedTime / 1200 * 100 * 1.2
	if math.Abs(r.EstimatedBatteryUsage-expectedBattery) > 0.001 {
		t.Errorf("expected battery %.3f, got %.3f", expectedBattery, r.EstimatedBatteryUsage)
	}
	if math.Abs(r.AverageSpeed-expectedDistance/expectedTime) > 0.001 {
		t.Errorf("unexpected average speed %.3f", r.AverageSpeed)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", r.Warnings)
	}

	// a waypoint speed override applies to the leg ending at it
	m.Waypoints[1].Speed = ptr(5.0)
	m.Waypoints[1].Delay = 0
	r = New().Simulate(m)
	if math.Abs(r.EstimatedFlightTime-expectedDistance/5) > 0.01 {
		t.Errorf("expected flight time %.2f, got %.2f", expectedDistance/5, r.EstimatedFlightTime)
	}
}

func TestSimulate_LegWarnings(t *testing.T) {
	m := &mission.Mission{
		Waypoints: []mission.Waypoint{
			{Latitude: 0, Longitude: 0, Altitude: 10},
			{Latitude: 0.00001, Longitude: 0, Altitude: 10},
			{Latitude: 0.0002, Longitude: 0, Altitude: 80},
		},
	}

	r := New().Simulate(m)
	if !r.Valid {
		t.Fatalf("warnings must not invalidate, errors %v", r.Errors)
	}
	if !containsAny(r.Warnings, "WP0 to WP1: Waypoints very close (1.1m)") {
		t.Errorf("expected spacing warning, got %v", r.Warnings)
	}
	if !containsAny(r.Warnings, "WP1 to WP2: Steep altitude change") {
		t.Errorf("expected climb warning, got %v", r.Warnings)
	}
	if r.MaxAltitude != 80 {
		t.Errorf("expected max altitude 80, got %v", r.MaxAltitude)
	}
}

func TestSimulate_Battery(t *testing.T) {
	testCases := []struct {
		name     string
		delay    float64
		valid    bool
		warnings int
	}{
		{"comfortable", 600, true, 0},
		{"over eighty", 900, true, 1},
		{"over hundred", 1100, false, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := &mission.Mission{
				Waypoints: []mission.Waypoint{
					{Latitude: 0, Longitude: 0, Altitude: 10},
					{Latitude: 0.001, Longitude: 0, Altitude: 10, Delay: tc.delay},
				},
			}
			r := New().Simulate(m)
			if r.Valid != tc.valid {
				t.Errorf("expected valid=%v, got errors %v", tc.valid, r.Errors)
			}
			if len(r.Warnings) != tc.warnings {
				t.Errorf("expected %d warnings, got %v", tc.warnings, r.Warnings)
			}
			if r.EstimatedBatteryUsage > 100 {
				t.Errorf("battery display must be capped, got %v", r.EstimatedBatteryUsage)
			}
		})
	}
}

func TestSimulate_StructureChecks(t *testing.T) {
	m := &mission.Mission{
		Waypoints:   []mission.Waypoint{{Latitude: 1, Longitude: 1, Altitude: 10}},
		Zones:       []mission.GeofenceZone{{Name: "band", MinAltitude: ptr(40.0), MaxAltitude: ptr(20.0)}},
		RallyPoints: make([]mission.RallyPoint, 256),
	}

	r := New().Simulate(m)
	if r.Valid {
		t.Fatal("expected invalid result")
	}
	if !containsAny(r.Errors, "Zone band") || !containsAny(r.Errors, "256 rally points") {
		t.Errorf("unexpected errors %v", r.Errors)
	}
}

func TestResult_Summary(t *testing.T) {
	r := Result{Valid: true, WaypointCount: 3, TotalDistance: 1500, EstimatedFlightTime: 150, EstimatedBatteryUsage: 15}
	expected := "valid: 3 waypoints, 1.5 km, 2m30s, 15% battery, 0 errors, 0 warnings"
	if s := r.Summary(); s != expected {
		t.Errorf("expected %q, got %q", expected, s)
	}
}

package mission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/navigation"
	"github.com/roman-kulish/uav-ground-control/internal/telemetry"
)

func ptr[T any](v T) *T { return &v }

func testMission() *Mission {
	return &Mission{
		Name:            "survey",
		DefaultAltitude: 30,
		DefaultSpeed:    8,
		Waypoints: []Waypoint{
			{Sequence: 5, Latitude: 47.398, Longitude: 8.546, Altitude: 30, Command: mavlink.CmdNavWaypoint},
			{Sequence: 1, Latitude: 47.397, Longitude: 8.545, Altitude: 20, Command: mavlink.CmdNavTakeoff},
			{Sequence: 9, Latitude: 47.397, Longitude: 8.545, Altitude: 0, Command: mavlink.CmdNavLand},
		},
	}
}

func TestMission_Normalize(t *testing.T) {
	m := testMission()
	m.Zones = []GeofenceZone{{Name: "field", Points: []GeofencePoint{{Sequence: 3}, {Sequence: 1}}}}
	m.Normalize()

	expected := []mavlink.Command{mavlink.CmdNavTakeoff, mavlink.CmdNavWaypoint, mavlink.CmdNavLand}
	for i, w := range m.Waypoints {
		if w.Sequence != i {
			t.Errorf("waypoint %d: expected sequence %d, got %d", i, i, w.Sequence)
		}
		if w.Command != expected[i] {
			t.Errorf("waypoint %d: expected %s, got %s", i, expected[i], w.Command)
		}
	}

	z := m.Zones[0]
	if z.Kind != FenceInclusion || z.Action != ActionWarn {
		t.Errorf("unexpected zone defaults %s/%s", z.Kind, z.Action)
	}
	if z.Points[0].Sequence != 0 || z.Points[1].Sequence != 1 {
		t.Errorf("zone points not renumbered: %+v", z.Points)
	}
}

func TestMission_Clone(t *testing.T) {
	m := testMission()
	m.MaxAltitude = ptr(120.0)
	m.Waypoints[0].Speed = ptr(5.0)
	m.Zones = []GeofenceZone{{Name: "field", Points: []GeofencePoint{{Latitude: 1}}}}

	c := m.Clone()
	*c.MaxAltitude = 10
	*c.Waypoints[0].Speed = 1
	c.Waypoints[1].Altitude = 99
	c.Zones[0].Points[0].Latitude = 2

	if *m.MaxAltitude != 120 || *m.Waypoints[0].Speed != 5 {
		t.Error("clone shares pointer fields with the original")
	}
	if m.Waypoints[1].Altitude != 20 || m.Zones[0].Points[0].Latitude != 1 {
		t.Error("clone shares slices with the original")
	}
}

func TestMission_CheckStructure(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Mission)
		errMsg string
	}{
		{
			name:   "valid",
			mutate: func(*Mission) {},
		},
		{
			name: "zone min above max",
			mutate: func(m *Mission) {
				m.Zones = []GeofenceZone{{Name: "z", Kind: FenceInclusion, Action: ActionRTL, MinAltitude: ptr(50.0), MaxAltitude: ptr(50.0)}}
			},
			errMsg: "must be below max altitude",
		},
		{
			name: "unknown zone kind",
			mutate: func(m *Mission) {
				m.Zones = []GeofenceZone{{Name: "z", Kind: "sideways", Action: ActionRTL}}
			},
			errMsg: "unknown kind",
		},
		{
			name: "too many rally points",
			mutate: func(m *Mission) {
				m.RallyPoints = make([]RallyPoint, MaxRallyPoints+1)
			},
			errMsg: "exceed the limit",
		},
		{
			name: "parameter name too long",
			mutate: func(m *Mission) {
				m.Parameters = []VehicleParameter{{Name: "ABCDEFGHIJKLMNOPQ", Value: 1}}
			},
			errMsg: "exceeds 16 bytes",
		},
		{
			name: "duplicate parameter",
			mutate: func(m *Mission) {
				m.Parameters = []VehicleParameter{{Name: "RTL_ALT", Value: 1}, {Name: "RTL_ALT", Value: 2}}
			},
			errMsg: "duplicate parameter",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := testMission()
			tc.mutate(m)
			m.Normalize()

			err := m.CheckStructure()
			if tc.errMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.errMsg)
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
			if !errors.Is(err, fault.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestWaypoint_Params(t *testing.T) {
	w := Waypoint{Delay: 3, AcceptanceRadius: ptr(2.0), Heading: ptr(90.0)}
	if p := w.Params(); p != [4]float32{3, 2, 0, 90} {
		t.Errorf("unexpected params %v", p)
	}

	w.Yaw = ptr(45.0)
	if p := w.Params(); p[3] != 45 {
		t.Errorf("yaw should take precedence over heading, got %v", p[3])
	}
}

func TestMission_LegSpeed(t *testing.T) {
	m := testMission()
	m.Waypoints[1].Speed = ptr(3.0)

	if s := m.LegSpeed(1, 10); s != 3 {
		t.Errorf("expected waypoint override 3, got %v", s)
	}
	if s := m.LegSpeed(0, 10); s != 8 {
		t.Errorf("expected mission default 8, got %v", s)
	}
	m.DefaultSpeed = 0
	if s := m.LegSpeed(0, 10); s != 10 {
		t.Errorf("expected fallback 10, got %v", s)
	}
}

func TestMission_CheckPosition(t *testing.T) {
	home := navigation.Position{Latitude: 47.397, Longitude: 8.545}
	square := []GeofencePoint{
		{Latitude: 47.396, Longitude: 8.544},
		{Latitude: 47.396, Longitude: 8.547},
		{Latitude: 47.399, Longitude: 8.547},
		{Latitude: 47.399, Longitude: 8.544},
	}

	m := testMission()
	m.GeofenceEnabled = true
	m.MaxAltitude = ptr(100.0)
	m.MaxDistance = ptr(500.0)
	m.Zones = []GeofenceZone{
		{Name: "field", Kind: FenceInclusion, Enabled: true, Action: ActionRTL, Points: square},
		{Name: "band", Kind: FenceInclusion, Enabled: true, Action: ActionWarn, MinAltitude: ptr(5.0), Points: square},
		{Name: "off", Kind: FenceExclusion, Enabled: false, Action: ActionLand, Points: square},
		{Name: "stub", Kind: FenceExclusion, Enabled: true, Action: ActionLand, MaxAltitude: ptr(10.0), Points: square[:2]},
	}

	testCases := []struct {
		name  string
		pos   navigation.Position
		zones []string
	}{
		{"inside everything", navigation.Position{Latitude: 47.3975, Longitude: 8.5455, Altitude: 20}, nil},
		{"too high", navigation.Position{Latitude: 47.3975, Longitude: 8.5455, Altitude: 150}, []string{"mission"}},
		{"too low", navigation.Position{Latitude: 47.3975, Longitude: 8.5455, Altitude: 1}, []string{"band"}},
		{"outside polygon and range", navigation.Position{Latitude: 47.41, Longitude: 8.545, Altitude: 20}, []string{"mission", "field", "band"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			violations := m.CheckPosition(tc.pos, home)
			if len(violations) != len(tc.zones) {
				t.Fatalf("expected %d violations, got %+v", len(tc.zones), violations)
			}
			for i, zone := range tc.zones {
				if violations[i].Zone != zone {
					t.Errorf("violation %d: expected zone %q, got %q", i, zone, violations[i].Zone)
				}
			}
		})
	}

	m.GeofenceEnabled = false
	if v := m.CheckPosition(navigation.Position{Altitude: 1000}, home); v != nil {
		t.Errorf("disabled geofence should report nothing, got %+v", v)
	}
}

func TestMission_CheckPositionExclusion(t *testing.T) {
	m := &Mission{
		GeofenceEnabled: true,
		Zones: []GeofenceZone{{
			Name: "tower", Kind: FenceExclusion, Enabled: true, Action: ActionBrake,
			Points: []GeofencePoint{
				{Latitude: 0, Longitude: 0},
				{Latitude: 0, Longitude: 1},
				{Latitude: 1, Longitude: 1},
				{Latitude: 1, Longitude: 0},
			},
		}},
	}

	v := m.CheckPosition(navigation.Position{Latitude: 0.5, Longitude: 0.5}, navigation.Position{})
	if len(v) != 1 || v[0].Action != ActionBrake || v[0].Kind != FenceExclusion {
		t.Fatalf("expected one brake violation, got %+v", v)
	}
	if v := m.CheckPosition(navigation.Position{Latitude: 2, Longitude: 2}, navigation.Position{}); len(v) != 0 {
		t.Errorf("expected no violations outside the exclusion zone, got %+v", v)
	}
}

type recordingPersister struct {
	saved   []string
	deleted []string
	err     error
}

func (p *recordingPersister) SaveMission(_ context.Context, m *Mission) error {
	p.saved = append(p.saved, m.ID+":"+string(m.Status))
	return p.err
}

func (p *recordingPersister) DeleteMission(_ context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return p.err
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &recordingPersister{}
	s := NewStore(WithPersister(p), WithClock(func() time.Time { return now }))

	m, err := s.Create(ctx, testMission())
	if err != nil {
		t.Fatalf("Failed to create mission: %v", err)
	}
	if m.ID == "" || m.Status != StatusDraft || !m.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created mission %+v", m)
	}
	if m.Waypoints[0].Command != mavlink.CmdNavTakeoff {
		t.Error("created mission was not normalised")
	}

	// edits to returned copies never leak into the store
	m.Name = "changed"
	if got, _ := s.Get(m.ID); got.Name != "survey" {
		t.Errorf("store returned a shared reference, name %q", got.Name)
	}

	if _, err := s.SetStatus(ctx, m.ID, StatusDeployed); err != nil {
		t.Fatalf("Failed to deploy: %v", err)
	}
	if _, err := s.Update(ctx, m.ID, func(m *Mission) error { m.Name = "x"; return nil }); !errors.Is(err, fault.ErrProtocolState) {
		t.Errorf("expected protocol state error updating a deployed mission, got %v", err)
	}
	if _, err := s.SetStatus(ctx, m.ID, StatusExecuting); err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}
	if err := s.Delete(ctx, m.ID); !errors.Is(err, fault.ErrProtocolState) {
		t.Errorf("expected protocol state error deleting an executing mission, got %v", err)
	}
	if _, err := s.SetStatus(ctx, m.ID, StatusDraft); err == nil {
		t.Error("expected error moving an executing mission to draft")
	}
	if _, err := s.SetStatus(ctx, m.ID, StatusCompleted); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	updated, err := s.Update(ctx, m.ID, func(m *Mission) error {
		m.Name = "survey 2"
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to update completed mission: %v", err)
	}
	if updated.Status != StatusDraft || updated.Name != "survey 2" {
		t.Errorf("unexpected updated mission %+v", updated)
	}

	if err := s.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := s.Get(m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	expected := []string{
		m.ID + ":draft", m.ID + ":deployed", m.ID + ":executing", m.ID + ":completed", m.ID + ":draft",
	}
	if strings.Join(p.saved, ",") != strings.Join(expected, ",") {
		t.Errorf("unexpected persisted history %v", p.saved)
	}
	if len(p.deleted) != 1 || p.deleted[0] != m.ID {
		t.Errorf("unexpected deletions %v", p.deleted)
	}
}

func TestStore_PersistFailureKeepsState(t *testing.T) {
	s := NewStore(WithPersister(&recordingPersister{err: errors.New("disk full")}))

	m, err := s.Create(context.Background(), testMission())
	if err != nil {
		t.Fatalf("persistence failure must not fail the operation: %v", err)
	}
	if _, err := s.Get(m.ID); err != nil {
		t.Errorf("mission should be in memory: %v", err)
	}
}

func TestStore_RestoreAndList(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Restore([]*Mission{
		{ID: "b", Name: "second", Status: StatusExecuting, CreatedAt: base.Add(time.Hour)},
		{ID: "a", Name: "first", Status: StatusDraft, CreatedAt: base},
	})

	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("unexpected list order %v", list)
	}
	if list[1].Status != StatusDeployed {
		t.Errorf("executing mission should restore as deployed, got %s", list[1].Status)
	}
}

func TestStore_UpdateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	m, err := s.Create(ctx, testMission())
	if err != nil {
		t.Fatalf("Failed to create mission: %v", err)
	}

	_, err = s.Update(ctx, m.ID, func(m *Mission) error {
		m.Parameters = []VehicleParameter{{Name: ""}}
		return nil
	})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got, _ := s.Get(m.ID); len(got.Parameters) != 0 {
		t.Error("rejected update must not be stored")
	}
}

func TestComputeFlightStats(t *testing.T) {
	if stats := ComputeFlightStats(nil); stats.Samples != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []telemetry.Telemetry{
		{Timestamp: start, Latitude: 0, Longitude: 0, Altitude: 0, Speed: 0, Battery: 100},
		{Timestamp: start.Add(10 * time.Second), Latitude: 0, Longitude: 0, Altitude: 30, Speed: 4, Battery: 98},
		{Timestamp: start.Add(20 * time.Second), Latitude: 0, Longitude: 0, Altitude: 10, Speed: 8, Battery: 97.5},
	}

	stats := ComputeFlightStats(samples)
	if stats.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", stats.Samples)
	}
	if stats.Duration != 20*time.Second {
		t.Errorf("expected 20s duration, got %s", stats.Duration)
	}
	if stats.TotalDistance != 50 {
		t.Errorf("expected 50m travelled, got %v", stats.TotalDistance)
	}
	if stats.MaxAltitude != 30 || stats.MaxSpeed != 8 || stats.AverageSpeed != 4 {
		t.Errorf("unexpected extremes %+v", stats)
	}
	if stats.BatteryUsed != 2.5 {
		t.Errorf("expected 2.5%% battery used, got %v", stats.BatteryUsed)
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "groundcontrol.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	return s
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }

	id, err := s.CreateSession(ctx, "simulation", map[string]int{"listenPort": 14550})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err = s.CreateSession(ctx, "live", nil); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.Mode != "simulation" || !sess.StartTime.Equal(start) || sess.EndTime != nil {
		t.Errorf("unexpected session %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"listenPort":14550}` {
		t.Errorf("unexpected config %v", sess.Config)
	}

	s.now = func() time.Time { return start.Add(time.Hour) }
	if err = s.EndSession(ctx, id); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if sess, _ = s.Session(ctx, id); sess.EndTime == nil || !sess.EndTime.Equal(start.Add(time.Hour)) {
		t.Errorf("unexpected end time %v", sess.EndTime)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 || sessions[1].Config != nil {
		t.Errorf("unexpected sessions %+v", sessions)
	}

	if _, err = s.Session(ctx, 42); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestSqliteStore_Missions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	maxAlt := 120.0
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := &mission.Mission{
		ID:          "b8a7c1c4-0000-4000-8000-000000000001",
		Name:        "survey",
		Status:      mission.StatusDraft,
		CreatedAt:   created,
		UpdatedAt:   created,
		MaxAltitude: &maxAlt,
		Waypoints: []mission.Waypoint{
			{Sequence: 0, Latitude: 40.7128, Longitude: -74.006, Altitude: 30, Command: mavlink.CmdNavTakeoff},
			{Sequence: 1, Latitude: 40.7138, Longitude: -74.006, Altitude: 30, Command: mavlink.CmdNavWaypoint},
		},
	}

	if err := s.SaveMission(ctx, m); err != nil {
		t.Fatalf("SaveMission() error = %v", err)
	}

	m.Status = mission.StatusDeployed
	m.UpdatedAt = created.Add(time.Minute)
	if err := s.SaveMission(ctx, m); err != nil {
		t.Fatalf("SaveMission() error = %v", err)
	}

	missions, err := s.Missions(ctx)
	if err != nil {
		t.Fatalf("Missions() error = %v", err)
	}
	if len(missions) != 1 {
		t.Fatalf("expected 1 mission, got %d", len(missions))
	}

	got := missions[0]
	if got.Status != mission.StatusDeployed || len(got.Waypoints) != 2 || *got.MaxAltitude != 120 {
		t.Errorf("unexpected mission %+v", got)
	}
	if got.Waypoints[0].Command != mavlink.CmdNavTakeoff {
		t.Errorf("unexpected first command %v", got.Waypoints[0].Command)
	}

	if err = s.DeleteMission(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMission() error = %v", err)
	}
	if missions, _ = s.Missions(ctx); len(missions) != 0 {
		t.Errorf("expected no missions, got %d", len(missions))
	}
}

func TestSqliteStore_Parameters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.StoreParameters(ctx, []mission.VehicleParameter{
		{Name: "RTL_ALT", Value: 100, Description: "return altitude"},
		{Name: "FS_OPTIONS", Value: 0},
	})
	if err != nil {
		t.Fatalf("StoreParameters() error = %v", err)
	}

	if err = s.StoreParameters(ctx, []mission.VehicleParameter{{Name: "RTL_ALT", Value: 1500}}); err != nil {
		t.Fatalf("StoreParameters() error = %v", err)
	}

	params, err := s.Parameters(ctx)
	if err != nil {
		t.Fatalf("Parameters() error = %v", err)
	}

	want := []mission.VehicleParameter{
		{Name: "FS_OPTIONS", Value: 0},
		{Name: "RTL_ALT", Value: 1500, Description: "return altitude"},
	}
	if len(params) != len(want) {
		t.Fatalf("expected %d parameters, got %d", len(want), len(params))
	}
	for i := range want {
		if params[i] != want[i] {
			t.Errorf("parameter %d: got %+v, want %+v", i, params[i], want[i])
		}
	}
}

func TestSqliteStore_CloseTwice(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "groundcontrol.db"))
	if _, err := s.Sessions(context.Background()); err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

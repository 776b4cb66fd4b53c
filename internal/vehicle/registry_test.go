package vehicle

import (
	"testing"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestRegistry_Apply(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(map[uint8]string{1: "scout", 2: "delivery"}, WithClock(c.now))

	r.Apply(1, &mavlink.Heartbeat{
		CustomMode:   uint32(mavlink.CopterGuided),
		Type:         mavlink.TypeQuadrotor,
		Autopilot:    mavlink.AutopilotArduPilotMega,
		BaseMode:     mavlink.ModeFlagCustomModeEnabled | mavlink.ModeFlagSafetyArmed,
		SystemStatus: mavlink.StateActive,
	})
	r.Apply(1, &mavlink.GlobalPositionInt{
		Lat:         mavlink.DegE7(40.7128),
		Lon:         mavlink.DegE7(-74.006),
		RelativeAlt: 30500,
		Vx:          300,
		Vy:          400,
		Hdg:         9000,
	})
	r.Apply(1, &mavlink.SysStatus{BatteryRemaining: 87})

	v, ok := r.Get("scout")
	if !ok {
		t.Fatal("scout not found")
	}
	if v.Status != StatusFlying || v.FlightMode != "GUIDED" || !v.Connected {
		t.Errorf("unexpected state %s/%s connected=%v", v.Status, v.FlightMode, v.Connected)
	}
	if v.Altitude != 30.5 || v.Speed != 5 || v.Heading != 90 || v.Battery != 87 {
		t.Errorf("unexpected telemetry alt=%v speed=%v heading=%v battery=%v", v.Altitude, v.Speed, v.Heading, v.Battery)
	}

	t.Run("unknown battery keeps last value", func(t *testing.T) {
		r.Apply(1, &mavlink.SysStatus{BatteryRemaining: -1})
		if v, _ := r.Get("scout"); v.Battery != 87 {
			t.Errorf("expected 87, got %v", v.Battery)
		}
	})

	t.Run("connection lapses", func(t *testing.T) {
		c.t = c.t.Add(ConnectionTimeout + time.Second)
		if v, _ := r.Get("scout"); v.Connected {
			t.Error("expected scout to be disconnected")
		}
	})
}

func TestRegistry_AutoRegister(t *testing.T) {
	r := NewRegistry(map[uint8]string{1: "scout"})

	r.Apply(7, &mavlink.Heartbeat{Type: mavlink.TypeQuadrotor})
	r.Apply(255, &mavlink.Heartbeat{Type: mavlink.TypeGCS})
	r.Apply(9, &mavlink.CommandAck{})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(list))
	}
	if list[0].Name != "scout" || list[1].Name != "vehicle-7" {
		t.Errorf("unexpected vehicles %q, %q", list[0].Name, list[1].Name)
	}
	if list[1].Status != StatusDisarmed || list[1].Battery != 100 {
		t.Errorf("unexpected defaults %+v", list[1])
	}
	if list[0].Connected {
		t.Error("scout never sent a heartbeat")
	}

	if v, ok := r.Lookup(7); !ok || v.Name != "vehicle-7" || !v.Connected {
		t.Errorf("unexpected lookup result %+v, %v", v, ok)
	}
	if _, ok := r.Lookup(9); ok {
		t.Error("a command ack registered a vehicle")
	}
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	r := NewRegistry(map[uint8]string{1: "scout"})

	v, _ := r.Get("scout")
	v.Battery = 0

	if again, _ := r.Get("scout"); again.Battery != 100 {
		t.Errorf("registry state changed through a snapshot: %v", again.Battery)
	}
}

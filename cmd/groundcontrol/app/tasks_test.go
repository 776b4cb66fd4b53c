package app

import (
	"testing"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/telemetry"
)

func TestPositionMessage(t *testing.T) {
	booted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		heading float64
		vx, vy  int16
	}{
		{"north", 0, 500, 0},
		{"east", 90, 0, 500},
		{"south", 180, -500, 0},
		{"west", 270, 0, -500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := positionMessage(&telemetry.Telemetry{
				Monotonic: booted.Add(90 * time.Second),
				Latitude:  40.7128,
				Longitude: -74.006,
				Altitude:  30.5,
				Speed:     5,
				Heading:   tt.heading,
			}, booted)

			if m.TimeBootMs != 90000 {
				t.Errorf("TimeBootMs = %d, want 90000", m.TimeBootMs)
			}
			if m.Vx != tt.vx || m.Vy != tt.vy {
				t.Errorf("velocity = (%d, %d), want (%d, %d)", m.Vx, m.Vy, tt.vx, tt.vy)
			}
			if m.RelativeAlt != 30500 || m.Hdg != uint16(tt.heading*100) {
				t.Errorf("unexpected altitude %d or heading %d", m.RelativeAlt, m.Hdg)
			}
			if got := m.GroundSpeed(); got != 5 {
				t.Errorf("GroundSpeed() = %v, want 5", got)
			}
		})
	}
}

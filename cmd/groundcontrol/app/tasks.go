package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/telemetry"
	"github.com/roman-kulish/uav-ground-control/internal/vehicle"
)

// runTicker advances the engine once per tick and records the telemetry it
// produces
func (a *App) runTicker(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *App) tick() {
	if a.config.Live() {
		if v, ok := a.registry.Lookup(a.config.MAVLink.TargetSystemID); ok && v.Connected {
			a.engine.Mirror(mirrored(&v))
		}
	}

	a.engine.Tick()

	t := a.engine.Get()
	if err := a.history.Add(t); err != nil {
		a.logger.Warn(fmt.Sprintf("recording telemetry: %s", err.Error()))
	}
	a.metrics.EngineTick(string(a.engine.State()), t.Battery)
}

func mirrored(v *vehicle.Vehicle) *telemetry.Telemetry {
	return &telemetry.Telemetry{
		Latitude:   v.Latitude,
		Longitude:  v.Longitude,
		Altitude:   v.Altitude,
		Speed:      v.Speed,
		Battery:    v.Battery,
		Heading:    v.Heading,
		FlightMode: v.FlightMode,
		Armed:      v.Status != vehicle.StatusDisarmed,
	}
}

// runHeartbeat makes the simulated vehicle visible to ground stations
func (a *App) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, frame := range a.vehicleFrames() {
				if err := a.bridge.SendToGroundStation(frame); err != nil {
					a.logger.Debug(fmt.Sprintf("sending vehicle state: %s", err.Error()))
					break
				}
			}
		}
	}
}

func (a *App) vehicleFrames() [][]byte {
	t := a.engine.Get()
	armed := a.engine.Armed()

	heartbeat := mavlink.Heartbeat{
		CustomMode:     uint32(a.engine.Mode()),
		Type:           mavlink.TypeQuadrotor,
		Autopilot:      mavlink.AutopilotArduPilotMega,
		BaseMode:       mavlink.ModeFlagCustomModeEnabled,
		SystemStatus:   mavlink.StateStandby,
		MavlinkVersion: 3,
	}
	if armed {
		heartbeat.BaseMode |= mavlink.ModeFlagSafetyArmed
		heartbeat.SystemStatus = mavlink.StateActive
	}

	a.logger.Debug("vehicle heartbeat",
		slog.String("mode", a.engine.Mode().String()),
		slog.Bool("armed", armed))

	return [][]byte{
		a.vehicleEncoder.EncodeHeartbeat(&heartbeat),
		a.vehicleEncoder.EncodeGlobalPositionInt(positionMessage(t, a.booted)),
		a.vehicleEncoder.EncodeSysStatus(&mavlink.SysStatus{
			CurrentBattery:   -1,
			BatteryRemaining: int8(t.Battery),
		}),
	}
}

func positionMessage(t *telemetry.Telemetry, booted time.Time) *mavlink.GlobalPositionInt {
	heading := t.Heading * math.Pi / 180

	return &mavlink.GlobalPositionInt{
		TimeBootMs:  uint32(t.Monotonic.Sub(booted).Milliseconds()),
		Lat:         mavlink.DegE7(t.Latitude),
		Lon:         mavlink.DegE7(t.Longitude),
		Alt:         int32(t.Altitude * 1000),
		RelativeAlt: int32(t.Altitude * 1000),
		Vx:          int16(math.Round(t.Speed * math.Cos(heading) * 100)),
		Vy:          int16(math.Round(t.Speed * math.Sin(heading) * 100)),
		Hdg:         uint16(t.Heading * 100),
	}
}

package upload

import (
	"context"
	"log/slog"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
)

// UploadParameters validates every parameter and then sends one PARAM_SET
// per parameter. Nothing is sent when any of them is invalid.
func (o *Orchestrator) UploadParameters(ctx context.Context, params []mission.VehicleParameter) error {
	const op = "upload.parameters"

	for i := range params {
		if err := params[i].Validate(); err != nil {
			return err
		}
	}

	for i, p := range params {
		if i > 0 {
			if err := sleep(ctx, op, o.timeouts.ParamGap); err != nil {
				return err
			}
		}

		set := mavlink.ParamSet{
			ParamValue:      p.Value,
			TargetSystem:    o.targetSystem,
			TargetComponent: o.targetComponent,
			ParamID:         p.Name,
			ParamType:       mavlink.ParamTypeReal32,
		}
		if err := o.send(op, &set); err != nil {
			return err
		}

		o.mu.Lock()
		o.parameters[p.Name] = p.Value
		o.mu.Unlock()
	}

	o.logger.Info("parameters uploaded", slog.Int("count", len(params)))
	return nil
}

// InitialParameters are announced to a newly bound ground station so it
// sees a configured autopilot
func (o *Orchestrator) InitialParameters() []mission.VehicleParameter {
	return []mission.VehicleParameter{
		{Name: "FS_OPTIONS", Value: 0},
		{Name: "H12_OOS_ENABLE", Value: 0},
		{Name: "H12_OOS_THRESHOLD", Value: 0},
		{Name: "SYSID_THISMAV", Value: float32(o.targetSystem)},
		{Name: "SYSID_MYGCS", Value: float32(o.encoder.SystemID())},
		{Name: "FLTMODE1", Value: float32(mavlink.CopterStabilize)},
		{Name: "FLTMODE2", Value: float32(mavlink.CopterAltHold)},
		{Name: "FLTMODE3", Value: float32(mavlink.CopterAuto)},
		{Name: "RTL_ALT", Value: 100},
		{Name: "WP_YAW_BEHAVIOR", Value: 0},
	}
}

// BroadcastParameters sends the initial parameter set as PARAM_VALUE frames
// through t, with index and count filled in. The frames carry the vehicle's
// identity so ground stations credit the catalogue to it.
func (o *Orchestrator) BroadcastParameters(ctx context.Context, t Transport) error {
	const op = "upload.broadcast"

	if t == nil {
		return fault.New(fault.KindNotConnected, op, "no ground station transport")
	}

	params := o.InitialParameters()
	for i, p := range params {
		if i > 0 {
			if err := sleep(ctx, op, o.timeouts.ParamGap); err != nil {
				return err
			}
		}

		value := mavlink.ParamValue{
			ParamValue: p.Value,
			ParamCount: uint16(len(params)),
			ParamIndex: uint16(i),
			ParamID:    p.Name,
			ParamType:  mavlink.ParamTypeReal32,
		}
		frame, err := o.vehicle.Encode(&value)
		if err != nil {
			return err
		}
		if err := t.Send(frame); err != nil {
			return fault.Wrap(fault.KindIO, op, err)
		}
	}

	o.logger.Info("initial parameters broadcast", slog.Int("count", len(params)))
	return nil
}

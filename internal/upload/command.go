package upload

import (
	"context"
	"log/slog"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
)

// SendCommand emits a COMMAND_LONG and waits for its COMMAND_ACK. An
// IN_PROGRESS result extends the wait; any other non-accepted result is
// returned as a CommandRejectedError.
func (o *Orchestrator) SendCommand(ctx context.Context, cmd mavlink.Command, params [7]float32) (err error) {
	op := "command." + cmd.String()

	o.mu.Lock()
	if o.transport == nil {
		o.mu.Unlock()
		return fault.New(fault.KindNotConnected, op, "no transport bound")
	}
	if _, ok := o.commands[cmd]; ok {
		o.mu.Unlock()
		return fault.Errorf(fault.KindProtocolState, op, "%s is already awaiting an ack", cmd)
	}
	acks := make(chan mavlink.Result, 1)
	o.commands[cmd] = acks
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.commands, cmd)
		o.mu.Unlock()
		o.metrics.CommandFinished(cmd.String(), resultLabel(err))
	}()

	msg := mavlink.CommandLong{
		Params:          params,
		Command:         cmd,
		TargetSystem:    o.targetSystem,
		TargetComponent: o.targetComponent,
	}
	if err = o.send(op, &msg); err != nil {
		return err
	}

	timer := time.NewTimer(o.timeouts.Command)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return cancelled(op, ctx)

		case <-timer.C:
			o.logger.Warn("command ack timed out", slog.String("command", cmd.String()))
			return fault.Errorf(fault.KindTimeout, op, "no ack within %s", o.timeouts.Command)

		case result := <-acks:
			switch result {
			case mavlink.ResultAccepted:
				o.logger.Debug("command accepted", slog.String("command", cmd.String()))
				return nil
			case mavlink.ResultInProgress:
				timer.Reset(o.timeouts.Command)
			default:
				o.logger.Warn("command rejected", slog.String("command", cmd.String()), slog.String("result", result.String()))
				return fault.Wrap(fault.KindProtocolState, op, &CommandRejectedError{Command: cmd, Result: result})
			}
		}
	}
}

// Arm arms the vehicle motors
func (o *Orchestrator) Arm(ctx context.Context) error {
	return o.SendCommand(ctx, mavlink.CmdComponentArmDisarm, [7]float32{1})
}

// Disarm disarms the vehicle motors
func (o *Orchestrator) Disarm(ctx context.Context) error {
	return o.SendCommand(ctx, mavlink.CmdComponentArmDisarm, [7]float32{0})
}

// SetMode switches the flight mode using the custom mode of ArduPilot copters
func (o *Orchestrator) SetMode(ctx context.Context, mode mavlink.CopterMode) error {
	return o.SendCommand(ctx, mavlink.CmdDoSetMode, [7]float32{float32(mavlink.ModeFlagCustomModeEnabled), float32(mode)})
}

// Takeoff climbs to altitude metres above home
func (o *Orchestrator) Takeoff(ctx context.Context, altitude float64) error {
	return o.SendCommand(ctx, mavlink.CmdNavTakeoff, [7]float32{6: float32(altitude)})
}

func (o *Orchestrator) ReturnToLaunch(ctx context.Context) error {
	return o.SendCommand(ctx, mavlink.CmdNavReturnToLaunch, [7]float32{})
}

func (o *Orchestrator) Land(ctx context.Context) error {
	return o.SendCommand(ctx, mavlink.CmdNavLand, [7]float32{})
}

// Reposition moves the vehicle to a location at the given ground speed;
// a negative speed keeps the current one
func (o *Orchestrator) Reposition(ctx context.Context, latitude, longitude, altitude, speed float64) error {
	return o.SendCommand(ctx, mavlink.CmdDoReposition, [7]float32{
		float32(speed), 0, 0, 0,
		float32(latitude), float32(longitude), float32(altitude),
	})
}

// SetMessageInterval asks the autopilot to stream message id every interval.
// A zero interval restores the default rate.
func (o *Orchestrator) SetMessageInterval(ctx context.Context, id uint8, interval time.Duration) error {
	return o.SendCommand(ctx, mavlink.CmdSetMessageInterval, [7]float32{float32(id), float32(interval.Microseconds())})
}

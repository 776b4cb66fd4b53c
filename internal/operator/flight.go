package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/uav-ground-control/internal/engine"
	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
)

// In live mode every flight-control operation commands the vehicle first
// and only moves the engine once the vehicle acknowledged. A transition the
// engine would refuse never reaches the vehicle.

func (f *Facade) command(ctx context.Context, t engine.Transition, send func(context.Context) error) error {
	if !f.live {
		return nil
	}
	if err := f.engine.Check(t); err != nil {
		return err
	}
	return send(ctx)
}

func (f *Facade) Arm(ctx context.Context) error {
	if err := f.command(ctx, engine.TransitionArm, f.uploader.Arm); err != nil {
		return err
	}
	return f.engine.Arm()
}

func (f *Facade) Disarm(ctx context.Context) error {
	if err := f.command(ctx, engine.TransitionDisarm, f.uploader.Disarm); err != nil {
		return err
	}
	return f.engine.Disarm()
}

// StartMission begins flying a deployed mission
func (f *Facade) StartMission(ctx context.Context, id string) error {
	m, err := f.missions.Get(id)
	if err != nil {
		return err
	}

	switch m.Status {
	case mission.StatusDeployed, mission.StatusCompleted, mission.StatusAborted:
	default:
		return fault.Errorf(fault.KindProtocolState, "operator.start", "mission %s is %s, deploy it first", id, m.Status)
	}

	if active := f.engine.ActiveMission(); active != nil && active.ID != id {
		return fault.Errorf(fault.KindProtocolState, "operator.start", "mission %s is active", active.ID)
	}

	if f.live {
		if err = f.engine.Check(engine.TransitionStart); err != nil {
			return err
		}
		if !f.engine.Armed() {
			if err = f.uploader.Arm(ctx); err != nil {
				return err
			}
		}
		if err = f.uploader.SetMode(ctx, mavlink.CopterAuto); err != nil {
			return err
		}
	}

	if err = f.engine.Start(m); err != nil {
		return err
	}

	if _, err = f.missions.SetStatus(ctx, id, mission.StatusExecuting); err != nil {
		f.engine.Stop()
		return err
	}
	return nil
}

func (f *Facade) Pause(ctx context.Context) error {
	err := f.command(ctx, engine.TransitionPause, func(ctx context.Context) error {
		return f.uploader.SetMode(ctx, mavlink.CopterLoiter)
	})
	if err != nil {
		return err
	}
	return f.engine.Pause()
}

func (f *Facade) Resume(ctx context.Context) error {
	err := f.command(ctx, engine.TransitionResume, func(ctx context.Context) error {
		return f.uploader.SetMode(ctx, mavlink.CopterAuto)
	})
	if err != nil {
		return err
	}
	return f.engine.Resume()
}

// Stop abandons the active mission, which goes back to deployed. In live
// mode the vehicle is asked to hold position in LOITER; the engine stops
// even when that command fails.
func (f *Facade) Stop(ctx context.Context) error {
	var errs []error
	if f.live {
		if err := f.uploader.SetMode(ctx, mavlink.CopterLoiter); err != nil {
			errs = append(errs, err)
		}
	}

	id := f.engine.Stop()
	if id == "" {
		return errors.Join(errs...)
	}

	m, err := f.missions.Get(id)
	switch {
	case err != nil:
		f.logger.Warn(fmt.Sprintf("stopped mission is gone: %s", err.Error()), slog.String("missionID", id))
	case m.Status == mission.StatusExecuting:
		if _, err = f.missions.SetStatus(ctx, id, mission.StatusDeployed); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (f *Facade) ReturnToLaunch(ctx context.Context) error {
	if err := f.command(ctx, engine.TransitionReturnToLaunch, f.uploader.ReturnToLaunch); err != nil {
		return err
	}
	return f.engine.ReturnToLaunch()
}

package upload

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
)

// MaxItems is the largest list the count field of the point protocols can carry
const MaxItems = 255

// UploadMission runs the mission item protocol for waypoints. It returns
// once the autopilot acknowledges the list, the request deadline expires
// or ctx is done.
func (o *Orchestrator) UploadMission(ctx context.Context, waypoints []mission.Waypoint) (err error) {
	const op = "upload.mission"

	if len(waypoints) == 0 {
		return fault.New(fault.KindValidation, op, "mission has no waypoints")
	}
	if len(waypoints) > 0xFFFF {
		return fault.Errorf(fault.KindValidation, op, "%d waypoints exceed the protocol limit", len(waypoints))
	}

	p, err := o.begin(mavlink.MissionTypeMission, len(waypoints))
	if err != nil {
		return err
	}
	defer func() { o.end(p, err) }()

	logger := o.logger.With(slog.Int("count", len(waypoints)))
	logger.Info("mission upload started")

	count := mavlink.MissionCount{
		Count:           uint16(len(waypoints)),
		TargetSystem:    o.targetSystem,
		TargetComponent: o.targetComponent,
		MissionType:     mavlink.MissionTypeMission,
	}
	if err = o.send(op, &count); err != nil {
		return err
	}

	timer := time.NewTimer(o.timeouts.Request)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warn("mission upload cancelled")
			return cancelled(op, ctx)

		case <-timer.C:
			logger.Error("mission upload timed out", slog.Duration("timeout", o.timeouts.Request))
			return fault.Errorf(fault.KindTimeout, op, "no request within %s", o.timeouts.Request)

		case seq := <-p.requests:
			item := o.missionItem(int(seq), &waypoints[seq])
			if err = o.send(op, item); err != nil {
				return err
			}
			logger.Debug("mission item sent", slog.Int("seq", int(seq)), slog.String("command", item.Command.String()))

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(o.timeouts.Request)

		case result := <-p.acks:
			if result != mavlink.MissionAccepted {
				logger.Error("mission upload rejected", slog.String("result", result.String()))
				return fault.Wrap(fault.KindProtocolState, op, &MissionRejectedError{
					MissionType: mavlink.MissionTypeMission,
					Result:      result,
				})
			}
			logger.Info("mission upload accepted")
			return nil
		}
	}
}

func (o *Orchestrator) missionItem(seq int, w *mission.Waypoint) *mavlink.MissionItemInt {
	params := w.Params()

	item := mavlink.MissionItemInt{
		Param1:          params[0],
		Param2:          params[1],
		Param3:          params[2],
		Param4:          params[3],
		X:               mavlink.DegE7(w.Latitude),
		Y:               mavlink.DegE7(w.Longitude),
		Z:               float32(w.Altitude),
		Seq:             uint16(seq),
		Command:         w.Command,
		TargetSystem:    o.targetSystem,
		TargetComponent: o.targetComponent,
		Frame:           mavlink.FrameGlobalRelativeAltInt,
		Autocontinue:    1,
		MissionType:     mavlink.MissionTypeMission,
	}
	if seq == 0 {
		item.Current = 1
	}
	if w.Frame != nil {
		item.Frame = *w.Frame
	}
	if w.Autocontinue != nil && !*w.Autocontinue {
		item.Autocontinue = 0
	}
	return &item
}

// UploadFence pushes the vertices of every enabled zone with at least three
// points as FENCE_POINT frames
func (o *Orchestrator) UploadFence(ctx context.Context, zones []mission.GeofenceZone) (err error) {
	const op = "upload.fence"

	var points []mavlink.FencePoint
	for _, z := range zones {
		if !z.Enabled || z.Inert() {
			continue
		}
		for _, v := range z.Points {
			points = append(points, mavlink.FencePoint{
				Lat: float32(v.Latitude),
				Lng: float32(v.Longitude),
			})
		}
	}
	if len(points) == 0 {
		return nil
	}
	if len(points) > MaxItems {
		return fault.Errorf(fault.KindValidation, op, "%d fence points exceed the limit of %d", len(points), MaxItems)
	}

	p, err := o.begin(mavlink.MissionTypeFence, len(points))
	if err != nil {
		return err
	}
	defer func() { o.end(p, err) }()

	for i := range points {
		if i > 0 {
			if err = sleep(ctx, op, o.timeouts.PointGap); err != nil {
				return err
			}
		}

		pt := &points[i]
		pt.TargetSystem = o.targetSystem
		pt.TargetComponent = o.targetComponent
		pt.Idx = uint8(i)
		pt.Count = uint8(len(points))
		if err = o.send(op, pt); err != nil {
			return err
		}
	}

	o.logger.Info("fence uploaded", slog.Int("points", len(points)))
	return nil
}

// UploadRally pushes rally points as RALLY_POINT frames
func (o *Orchestrator) UploadRally(ctx context.Context, rally []mission.RallyPoint) (err error) {
	const op = "upload.rally"

	if len(rally) == 0 {
		return nil
	}
	if len(rally) > MaxItems {
		return fault.Errorf(fault.KindValidation, op, "%d rally points exceed the limit of %d", len(rally), MaxItems)
	}

	p, err := o.begin(mavlink.MissionTypeRally, len(rally))
	if err != nil {
		return err
	}
	defer func() { o.end(p, err) }()

	for i, r := range rally {
		if i > 0 {
			if err = sleep(ctx, op, o.timeouts.PointGap); err != nil {
				return err
			}
		}

		pt := mavlink.RallyPoint{
			Lat:             mavlink.DegE7(r.Latitude),
			Lng:             mavlink.DegE7(r.Longitude),
			Alt:             int16(r.Altitude),
			BreakAlt:        int16(r.BreakAltitude),
			LandDir:         uint16(r.LandDirection * 100),
			TargetSystem:    o.targetSystem,
			TargetComponent: o.targetComponent,
			Idx:             uint8(i),
			Count:           uint8(len(rally)),
		}
		if err = o.send(op, &pt); err != nil {
			return err
		}
	}

	o.logger.Info("rally points uploaded", slog.Int("points", len(rally)))
	return nil
}

// Deploy uploads the waypoints of m, then its geofence when enabled, then
// its rally points and finally its parameters. The first failure stops
// the sequence.
func (o *Orchestrator) Deploy(ctx context.Context, m *mission.Mission) error {
	if err := o.UploadMission(ctx, m.Waypoints); err != nil {
		return err
	}
	if m.GeofenceEnabled && len(m.Zones) > 0 {
		if err := o.UploadFence(ctx, m.Zones); err != nil {
			return err
		}
	}
	if err := o.UploadRally(ctx, m.RallyPoints); err != nil {
		return err
	}
	if len(m.Parameters) > 0 {
		if err := o.UploadParameters(ctx, m.Parameters); err != nil {
			return err
		}
	}

	o.logger.Info("mission deployed", slog.String("mission", m.ID), slog.String("name", m.Name))
	return nil
}

// IsRejected reports whether err carries a non-accepted MISSION_ACK or COMMAND_ACK
func IsRejected(err error) bool {
	var m *MissionRejectedError
	var c *CommandRejectedError
	return errors.As(err, &m) || errors.As(err, &c)
}

package operator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roman-kulish/uav-ground-control/internal/bridge"
	"github.com/roman-kulish/uav-ground-control/internal/engine"
	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
	"github.com/roman-kulish/uav-ground-control/internal/navigation"
	"github.com/roman-kulish/uav-ground-control/internal/simulator"
	"github.com/roman-kulish/uav-ground-control/internal/telemetry"
	"github.com/roman-kulish/uav-ground-control/internal/vehicle"
)

// Uploader pushes missions, parameters and commands to the vehicle
type Uploader interface {
	Deploy(ctx context.Context, m *mission.Mission) error
	UploadParameters(ctx context.Context, params []mission.VehicleParameter) error
	Parameters() map[string]float32
	PendingUploads() int

	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	SetMode(ctx context.Context, mode mavlink.CopterMode) error
	ReturnToLaunch(ctx context.Context) error
}

// ParameterStore keeps vehicle parameters across runs
type ParameterStore interface {
	StoreParameters(ctx context.Context, params []mission.VehicleParameter) error
	Parameters(ctx context.Context) ([]mission.VehicleParameter, error)
}

// DiagnosticsSource reports the state of the link to the vehicle
type DiagnosticsSource interface {
	Diagnostics() bridge.Diagnostics
}

// WithLogger sets the logger for the facade
func WithLogger(logger *slog.Logger) func(*Facade) {
	return func(f *Facade) {
		f.logger = logger.With(slog.String("component", "operator"))
	}
}

// WithLiveMode makes flight-control operations also command the vehicle
func WithLiveMode(live bool) func(*Facade) {
	return func(f *Facade) {
		f.live = live
	}
}

// WithSimulator overrides the mission validator
func WithSimulator(s *simulator.Simulator) func(*Facade) {
	return func(f *Facade) {
		f.simulator = s
	}
}

// WithHistory sets the telemetry history backing replay queries
func WithHistory(h *telemetry.History) func(*Facade) {
	return func(f *Facade) {
		f.history = h
	}
}

// WithRegistry sets the registry of vehicles seen on the wire
func WithRegistry(r *vehicle.Registry) func(*Facade) {
	return func(f *Facade) {
		f.registry = r
	}
}

// WithDiagnostics sets the source of link diagnostics
func WithDiagnostics(d DiagnosticsSource) func(*Facade) {
	return func(f *Facade) {
		f.diagnostics = d
	}
}

// WithParameterStore persists uploaded parameters
func WithParameterStore(s ParameterStore) func(*Facade) {
	return func(f *Facade) {
		f.params = s
	}
}

// Facade is the in-process API offered to the operator surface. It keeps
// the mission store, the execution engine and the vehicle in step.
type Facade struct {
	missions *mission.Store
	engine   *engine.Engine
	uploader Uploader

	simulator   *simulator.Simulator
	history     *telemetry.History
	registry    *vehicle.Registry
	diagnostics DiagnosticsSource
	params      ParameterStore

	live   bool
	logger *slog.Logger
}

// New creates a Facade. The engine should report finished missions to
// MissionFinished.
func New(missions *mission.Store, eng *engine.Engine, uploader Uploader, options ...func(*Facade)) *Facade {
	f := Facade{
		missions:  missions,
		engine:    eng,
		uploader:  uploader,
		simulator: simulator.New(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&f)
	}

	return &f
}

func (f *Facade) SubmitMission(ctx context.Context, m *mission.Mission) (*mission.Mission, error) {
	return f.missions.Create(ctx, m)
}

// UpdateMission replaces the editable content of a mission. Identity,
// status and timestamps are kept by the store.
func (f *Facade) UpdateMission(ctx context.Context, id string, m *mission.Mission) (*mission.Mission, error) {
	if m == nil {
		return nil, fault.New(fault.KindValidation, "operator.update", "mission is nil")
	}
	return f.missions.Update(ctx, id, func(current *mission.Mission) error {
		*current = *m.Clone()
		return nil
	})
}

func (f *Facade) DeleteMission(ctx context.Context, id string) error {
	return f.missions.Delete(ctx, id)
}

func (f *Facade) Mission(id string) (*mission.Mission, error) {
	return f.missions.Get(id)
}

func (f *Facade) Missions() []*mission.Mission {
	return f.missions.List()
}

// SimulateMission dry-runs a stored mission. Problems are reported in the
// result, not as an error.
func (f *Facade) SimulateMission(id string) (*simulator.Result, error) {
	m, err := f.missions.Get(id)
	if err != nil {
		return nil, err
	}
	return f.simulator.Simulate(m), nil
}

// DeployMission validates a mission and uploads it to the vehicle. The
// status becomes deployed only when every upload step succeeded.
func (f *Facade) DeployMission(ctx context.Context, id string) (*mission.Mission, error) {
	m, err := f.missions.Get(id)
	if err != nil {
		return nil, err
	}
	if m.Status == mission.StatusExecuting {
		return nil, fault.Errorf(fault.KindProtocolState, "operator.deploy", "mission %s is executing", id)
	}

	if r := f.simulator.Simulate(m); !r.Valid {
		return nil, fault.Errorf(fault.KindValidation, "operator.deploy", "mission %s is invalid: %s", id, strings.Join(r.Errors, "; "))
	}

	if err = f.uploader.Deploy(ctx, m); err != nil {
		f.logger.Error(fmt.Sprintf("deploying mission: %s", err.Error()), slog.String("missionID", id))
		return nil, err
	}

	return f.missions.SetStatus(ctx, id, mission.StatusDeployed)
}

// CheckPosition evaluates pos against the geofence of a stored mission,
// measuring distance limits from the current home position
func (f *Facade) CheckPosition(id string, pos navigation.Position) ([]mission.Violation, error) {
	m, err := f.missions.Get(id)
	if err != nil {
		return nil, err
	}
	return m.CheckPosition(pos, f.engine.Home()), nil
}

// MissionFinished moves a mission that left the engine on its own to its
// terminal status. It matches engine.FinishFunc.
func (f *Facade) MissionFinished(id string, outcome engine.Outcome, err error) {
	var status mission.Status
	switch outcome {
	case engine.OutcomeCompleted:
		status = mission.StatusCompleted
	case engine.OutcomeAborted:
		status = mission.StatusAborted
	case engine.OutcomeReturned:
		status = mission.StatusDeployed
	default:
		return
	}

	if err != nil {
		f.logger.Warn(fmt.Sprintf("mission finished with error: %s", err.Error()), slog.String("missionID", id))
	}

	if _, sErr := f.missions.SetStatus(context.Background(), id, status); sErr != nil {
		f.logger.Error(fmt.Sprintf("updating finished mission: %s", sErr.Error()),
			slog.String("missionID", id),
			slog.String("outcome", outcome.String()))
	}
}

func (f *Facade) ExecutionStatus() engine.ExecutionStatus {
	return f.engine.Status()
}

// Telemetry returns the current telemetry sample
func (f *Facade) Telemetry() *telemetry.Telemetry {
	return f.engine.Get()
}

// TelemetryHistory returns up to n of the newest retained samples, oldest
// first. A non-positive n returns everything.
func (f *Facade) TelemetryHistory(n int) []telemetry.Telemetry {
	if f.history == nil {
		return nil
	}
	return f.history.Snapshot(n)
}

func (f *Facade) FlightStats() mission.FlightStats {
	return mission.ComputeFlightStats(f.TelemetryHistory(0))
}

func (f *Facade) Vehicles() []vehicle.Vehicle {
	if f.registry == nil {
		return nil
	}
	return f.registry.List()
}

// Diagnostics reports the link state together with the uploads in flight
func (f *Facade) Diagnostics() bridge.Diagnostics {
	var d bridge.Diagnostics
	if f.diagnostics != nil {
		d = f.diagnostics.Diagnostics()
	}
	d.PendingUploads = f.uploader.PendingUploads()
	return d
}

// UploadParameters sends params to the vehicle and persists them once
// the vehicle took them all
func (f *Facade) UploadParameters(ctx context.Context, params []mission.VehicleParameter) error {
	if err := f.uploader.UploadParameters(ctx, params); err != nil {
		return err
	}

	if f.params != nil {
		if err := f.params.StoreParameters(ctx, params); err != nil {
			f.logger.Error(fmt.Sprintf("persisting parameters: %s", err.Error()))
		}
	}
	return nil
}

// Parameters returns the known vehicle parameters ordered by name. Values
// the vehicle confirmed in this run take precedence over persisted ones.
func (f *Facade) Parameters(ctx context.Context) ([]mission.VehicleParameter, error) {
	byName := make(map[string]mission.VehicleParameter)

	if f.params != nil {
		stored, err := f.params.Parameters(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading parameters: %w", err)
		}
		for _, p := range stored {
			byName[p.Name] = p
		}
	}

	for name, value := range f.uploader.Parameters() {
		p := byName[name]
		p.Name = name
		p.Value = value
		byName[name] = p
	}

	names := slices.Sorted(maps.Keys(byName))
	params := make([]mission.VehicleParameter, 0, len(names))
	for _, name := range names {
		params = append(params, byName[name])
	}
	return params, nil
}

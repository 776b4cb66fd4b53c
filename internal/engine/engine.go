package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
	"github.com/roman-kulish/uav-ground-control/internal/navigation"
	"github.com/roman-kulish/uav-ground-control/internal/telemetry"
)

const (
	// DefaultSpeed is the cruise speed in m/s when neither the waypoint nor
	// the mission sets one
	DefaultSpeed = 10.0

	// MaxTickGap is the longest interval between ticks that still moves the
	// vehicle; longer gaps are treated as clock warps
	MaxTickGap = 2 * time.Second

	// ArrivalRadius is the distance in metres at which a target counts as reached
	ArrivalRadius = 1.0

	// BatteryDrainRate is the simulated battery drain in percent per second
	BatteryDrainRate = 0.1

	idleJitter = 0.0001 // degrees, peak to peak
	minSats    = 12
	satsSpread = 3
)

// DefaultStartPosition is where the simulated vehicle sits before any mission
var DefaultStartPosition = navigation.Position{Latitude: 40.7128, Longitude: -74.0060}

// ErrNonFinite is reported when the simulation produces a position that is
// not a real number
var ErrNonFinite = errors.New("non-finite kinematic state")

// Random is the source of the idle telemetry jitter
type Random interface {
	Float64() float64
	IntN(n int) int
}

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "engine"))
	}
}

// WithClock overrides the clock driving ticks. The returned times should
// carry a monotonic reading.
func WithClock(now func() time.Time) func(*Engine) {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRandom overrides the random source
func WithRandom(r Random) func(*Engine) {
	return func(e *Engine) {
		e.random = r
	}
}

// WithDefaultSpeed overrides the fallback cruise speed
func WithDefaultSpeed(speed float64) func(*Engine) {
	return func(e *Engine) {
		if speed > 0 {
			e.defaultSpeed = speed
		}
	}
}

// WithStartPosition places the simulated vehicle before the first mission
func WithStartPosition(p navigation.Position) func(*Engine) {
	return func(e *Engine) {
		e.start = p
		e.position = p
	}
}

// WithFinishFunc registers the callback for completed, aborted and returned
// missions
func WithFinishFunc(fn FinishFunc) func(*Engine) {
	return func(e *Engine) {
		e.onFinish = fn
	}
}

// WithLiveMode turns the engine into a bookkeeping mirror of the wire
func WithLiveMode(live bool) func(*Engine) {
	return func(e *Engine) {
		e.live = live
	}
}

// Engine drives a virtual vehicle along a mission in simulation mode and
// mirrors the reported vehicle state in live mode. All methods are safe for
// concurrent use.
type Engine struct {
	mu sync.Mutex

	state State
	mode  mavlink.CopterMode
	armed bool

	mission  *mission.Mission // immutable snapshot while active
	index    int
	home     navigation.Position
	position navigation.Position
	speed    float64
	heading  float64
	battery  float64
	sats     int
	lastTick time.Time

	live         bool
	defaultSpeed float64
	start        navigation.Position
	now          func() time.Time
	random       Random
	onFinish     FinishFunc
	logger       *slog.Logger
}

// New creates an idle, disarmed Engine at the start position
func New(options ...func(*Engine)) *Engine {
	e := Engine{
		state:        StateIdle,
		mode:         mavlink.CopterStabilize,
		battery:      100,
		defaultSpeed: DefaultSpeed,
		start:        DefaultStartPosition,
		position:     DefaultStartPosition,
		now:          time.Now,
		random:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&e)
	}

	e.lastTick = e.now()
	return &e
}

// Arm moves an idle vehicle to ARMED
func (e *Engine) Arm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !TransitionArm.permits(e.state) {
		return e.rejected(TransitionArm)
	}

	e.state = StateArmed
	e.armed = true
	e.mode = mavlink.CopterStabilize

	e.logger.Info("vehicle armed")
	return nil
}

// Disarm moves an armed vehicle back to IDLE. It is refused in every other
// state, EXECUTING in particular.
func (e *Engine) Disarm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !TransitionDisarm.permits(e.state) {
		return e.rejected(TransitionDisarm)
	}

	e.state = StateIdle
	e.armed = false
	e.mode = mavlink.CopterStabilize

	e.logger.Info("vehicle disarmed")
	return nil
}

// Start begins executing a snapshot of m from the current position. The
// vehicle is armed implicitly and the battery is reset.
func (e *Engine) Start(m *mission.Mission) error {
	if m == nil || len(m.Waypoints) == 0 {
		return fault.New(fault.KindValidation, "engine.start", "mission has no waypoints")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !TransitionStart.permits(e.state) {
		return e.rejected(TransitionStart)
	}

	e.mission = m.Clone()
	e.index = 0
	e.home = e.position
	e.armed = true
	e.battery = 100
	e.speed = 0
	e.state = StateExecuting
	e.mode = mavlink.CopterAuto
	e.lastTick = e.now()

	e.logger.Info("mission started",
		slog.String("missionID", m.ID),
		slog.String("mission", m.Name),
		slog.Int("waypoints", len(m.Waypoints)))
	return nil
}

// Pause holds position in LOITER
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !TransitionPause.permits(e.state) {
		return e.rejected(TransitionPause)
	}

	e.state = StatePaused
	e.mode = mavlink.CopterLoiter
	e.speed = 0

	e.logger.Info("mission paused", slog.Int("waypoint", e.index))
	return nil
}

// Resume continues a paused mission. The tick reference is reset so the
// pause does not count as travel time.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !TransitionResume.permits(e.state) {
		return e.rejected(TransitionResume)
	}

	e.state = StateExecuting
	e.mode = mavlink.CopterAuto
	e.lastTick = e.now()

	e.logger.Info("mission resumed", slog.Int("waypoint", e.index))
	return nil
}

// Stop drops the active mission from any state and disarms. It returns the
// id of the mission that was active, if any.
func (e *Engine) Stop() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var id string
	if e.mission != nil {
		id = e.mission.ID
	}

	e.reset(mavlink.CopterStabilize)

	e.logger.Info("mission stopped", slog.String("missionID", id))
	return id
}

// ReturnToLaunch flies an executing or paused mission back to the point it
// started from, then lands and disarms
func (e *Engine) ReturnToLaunch() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !TransitionReturnToLaunch.permits(e.state) {
		return e.rejected(TransitionReturnToLaunch)
	}

	e.state = StateReturningHome
	e.mode = mavlink.CopterRTL
	e.lastTick = e.now()

	e.logger.Info("returning to launch",
		slog.Float64("latitude", e.home.Latitude),
		slog.Float64("longitude", e.home.Longitude))
	return nil
}

// Tick advances the simulation by the time elapsed since the previous tick.
// Gaps that are not positive or longer than MaxTickGap leave the state
// untouched; the tick reference always advances.
func (e *Engine) Tick() {
	e.mu.Lock()
	finished := e.tick()
	e.mu.Unlock()

	if finished != nil {
		finished()
	}
}

func (e *Engine) tick() func() {
	now := e.now()
	dt := now.Sub(e.lastTick)
	e.lastTick = now

	if e.live || e.mission == nil || !e.state.flying() {
		return nil
	}
	if dt <= 0 || dt > MaxTickGap {
		e.logger.Debug("tick skipped", slog.Duration("dt", dt))
		return nil
	}

	seconds := dt.Seconds()
	e.battery = max(0, e.battery-BatteryDrainRate*seconds)

	remaining := seconds
	for {
		target, ok := e.target()
		if !ok {
			return nil
		}

		d := navigation.Distance(e.position, target)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return e.abort(target)
		}

		if d < ArrivalRadius {
			e.position = target
			if finished := e.arrive(); !e.state.flying() {
				return finished
			}
			continue
		}

		if remaining <= 0 {
			break
		}

		speed := e.legSpeed()
		f := min(speed*remaining/d, 1)
		next := navigation.Interpolate(e.position, target, f)
		if !next.IsFinite() {
			return e.abort(target)
		}

		e.position = next
		e.speed = speed
		remaining -= f * d / speed

		if navigation.GroundDistance(e.position, target) > 0 {
			e.heading = navigation.Bearing(e.position, target)
		}

		if f < 1 {
			break
		}
	}

	return nil
}

// target returns where the vehicle is heading in the current state
func (e *Engine) target() (navigation.Position, bool) {
	switch e.state {
	case StateReturningHome:
		alt := e.position.Altitude
		if e.mission.RTLAltitude > 0 {
			alt = e.mission.RTLAltitude
		}
		return navigation.Position{Latitude: e.home.Latitude, Longitude: e.home.Longitude, Altitude: alt}, true

	case StateLanding:
		return navigation.Position{Latitude: e.position.Latitude, Longitude: e.position.Longitude}, true
	}

	if e.index >= len(e.mission.Waypoints) {
		return navigation.Position{}, false
	}

	wp := &e.mission.Waypoints[e.index]
	switch {
	case wp.Command == mavlink.CmdNavReturnToLaunch:
		return navigation.Position{Latitude: e.home.Latitude, Longitude: e.home.Longitude, Altitude: e.position.Altitude}, true
	case !wp.Command.IsNavigation():
		return e.position, true
	}

	p := wp.Position()
	if wp.Command == mavlink.CmdNavLand || wp.Command == mavlink.CmdNavTakeoff {
		// zero coordinates mean "here"
		if p.Latitude == 0 && p.Longitude == 0 {
			p.Latitude, p.Longitude = e.position.Latitude, e.position.Longitude
		}
	}
	if wp.Command == mavlink.CmdNavLand {
		p.Altitude = 0
	}
	return p, true
}

func (e *Engine) arrive() func() {
	switch e.state {
	case StateReturningHome:
		e.state = StateLanding
		e.mode = mavlink.CopterLand
		e.logger.Info("home reached, landing")
		return nil

	case StateLanding:
		id := e.mission.ID
		e.reset(mavlink.CopterStabilize)
		e.logger.Info("landed", slog.String("missionID", id))
		return e.notify(id, OutcomeReturned, nil)
	}

	e.logger.Info("waypoint reached",
		slog.Int("waypoint", e.index),
		slog.String("command", e.mission.Waypoints[e.index].Command.String()))

	e.index++
	if e.index < len(e.mission.Waypoints) {
		return nil
	}

	e.state = StateCompleted
	e.mode = mavlink.CopterLoiter
	e.speed = 0

	e.logger.Info("mission completed", slog.String("missionID", e.mission.ID))
	return e.notify(e.mission.ID, OutcomeCompleted, nil)
}

// abort abandons the mission and leaves the vehicle hovering in place
func (e *Engine) abort(target navigation.Position) func() {
	id := e.mission.ID
	err := fmt.Errorf("%w: from %+v towards %+v", ErrNonFinite, e.position, target)

	e.reset(mavlink.CopterLoiter)

	e.logger.Error(fmt.Sprintf("mission aborted: %s", err.Error()), slog.String("missionID", id))
	return e.notify(id, OutcomeAborted, err)
}

func (e *Engine) reset(mode mavlink.CopterMode) {
	e.mission = nil
	e.index = 0
	e.state = StateIdle
	e.mode = mode
	e.armed = false
	e.speed = 0
}

func (e *Engine) notify(id string, outcome Outcome, err error) func() {
	if e.onFinish == nil {
		return nil
	}
	fn := e.onFinish
	return func() { fn(id, outcome, err) }
}

func (e *Engine) legSpeed() float64 {
	if e.state == StateReturningHome || e.state == StateLanding {
		return e.mission.LegSpeed(-1, e.defaultSpeed)
	}
	return e.mission.LegSpeed(e.index, e.defaultSpeed)
}

func (e *Engine) rejected(t Transition) error {
	return fault.Errorf(fault.KindProtocolState, "engine."+string(t), "cannot %s in state %s", t, e.state)
}

// Check reports whether t would be accepted in the current state without
// performing it. The state may still change before the transition is made.
func (e *Engine) Check(t Transition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !t.permits(e.state) {
		return e.rejected(t)
	}
	return nil
}

// Mirror copies vehicle state reported by the wire
func (e *Engine) Mirror(t *telemetry.Telemetry) {
	if t == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.position = navigation.Position{Latitude: t.Latitude, Longitude: t.Longitude, Altitude: t.Altitude}
	e.speed = t.Speed
	e.heading = t.Heading
	e.battery = t.Battery
	e.armed = t.Armed
	if t.Satellites > 0 {
		e.sats = t.Satellites
	}
	if mode, ok := mavlink.ParseCopterMode(t.FlightMode); ok {
		e.mode = mode
	}
}

// Status returns a consistent snapshot of the execution
func (e *Engine) Status() ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := ExecutionStatus{
		State:            e.state,
		Mode:             e.mode,
		FlightMode:       e.mode.String(),
		Armed:            e.armed,
		CurrentWaypoint:  e.index,
		Position:         e.position,
		Heading:          e.heading,
		Speed:            e.speed,
		BatteryRemaining: e.battery,
	}

	if e.mission == nil {
		return s
	}

	n := len(e.mission.Waypoints)
	s.MissionID = e.mission.ID
	s.MissionName = e.mission.Name
	s.TotalWaypoints = n
	s.Progress = min(float64(e.index)*100/float64(n), 100)
	if target, ok := e.target(); ok && e.state != StateCompleted {
		s.DistanceToNext = navigation.Distance(e.position, target)
	}

	return s
}

// Get implements telemetry.Provider. A simulated vehicle that is neither
// armed nor flying reports the start position with a small jitter.
func (e *Engine) Get() *telemetry.Telemetry {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	t := telemetry.Telemetry{
		Timestamp:  now.UTC(),
		Monotonic:  now,
		Satellites: minSats + e.random.IntN(satsSpread),
	}

	switch {
	case e.live || e.armed || e.state.flying():
		t.Latitude = e.position.Latitude
		t.Longitude = e.position.Longitude
		t.Altitude = e.position.Altitude
		t.Speed = e.speed
		t.Battery = e.battery
		t.Heading = e.heading
		t.FlightMode = e.mode.String()
		t.Armed = e.armed
		if e.live && e.sats > 0 {
			t.Satellites = e.sats
		}
	default:
		t.Latitude = e.start.Latitude + (e.random.Float64()-0.5)*idleJitter
		t.Longitude = e.start.Longitude + (e.random.Float64()-0.5)*idleJitter
		t.Battery = 100
		t.FlightMode = mavlink.CopterStabilize.String()
	}

	t.Clamp()
	return &t
}

// State returns the execution state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Mode returns the flight mode
func (e *Engine) Mode() mavlink.CopterMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Armed reports whether the vehicle is armed
func (e *Engine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// Position returns the current position
func (e *Engine) Position() navigation.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Home returns the point the active mission started from
func (e *Engine) Home() navigation.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mission == nil {
		return e.start
	}
	return e.home
}

func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

func (e *Engine) Heading() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heading
}

func (e *Engine) Battery() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.battery
}

// ActiveMission returns a copy of the mission being flown, or nil
func (e *Engine) ActiveMission() *mission.Mission {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mission == nil {
		return nil
	}
	return e.mission.Clone()
}

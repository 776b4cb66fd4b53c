package engine

import (
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/navigation"
)

// State is the execution state of the vehicle
type State string

const (
	StateIdle          State = "IDLE"
	StateArmed         State = "ARMED"
	StateTakingOff     State = "TAKING_OFF"
	StateExecuting     State = "EXECUTING"
	StatePaused        State = "PAUSED"
	StateReturningHome State = "RETURNING_HOME"
	StateLanding       State = "LANDING"
	StateCompleted     State = "COMPLETED"
)

// flying reports whether ticks move the vehicle in this state
func (s State) flying() bool {
	return s == StateExecuting || s == StateReturningHome || s == StateLanding
}

// Transition names an operator request that moves the engine between states
type Transition string

const (
	TransitionArm            Transition = "arm"
	TransitionDisarm         Transition = "disarm"
	TransitionStart          Transition = "start"
	TransitionPause          Transition = "pause"
	TransitionResume         Transition = "resume"
	TransitionReturnToLaunch Transition = "return to launch"
)

// permits reports whether t may leave state s
func (t Transition) permits(s State) bool {
	switch t {
	case TransitionArm:
		return s == StateIdle
	case TransitionDisarm:
		return s == StateArmed
	case TransitionStart:
		return s == StateIdle || s == StateArmed || s == StateCompleted
	case TransitionPause:
		return s == StateExecuting
	case TransitionResume:
		return s == StatePaused
	case TransitionReturnToLaunch:
		return s == StateExecuting || s == StatePaused
	default:
		return false
	}
}

// Outcome tells how a mission left the engine
type Outcome uint8

const (
	// OutcomeCompleted is reported when the last waypoint is reached
	OutcomeCompleted Outcome = iota + 1

	// OutcomeAborted is reported when the simulation faults
	OutcomeAborted

	// OutcomeReturned is reported when the vehicle lands after a
	// return-to-launch
	OutcomeReturned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeReturned:
		return "returned"
	default:
		return "unknown"
	}
}

// FinishFunc is invoked outside the engine lock when the active mission
// leaves the engine on its own
type FinishFunc func(missionID string, outcome Outcome, err error)

// ExecutionStatus is a consistent snapshot of the engine
type ExecutionStatus struct {
	State           State              `json:"state"`
	Mode            mavlink.CopterMode `json:"-"`
	FlightMode      string             `json:"flightMode"`
	Armed           bool               `json:"armed"`
	MissionID       string             `json:"missionId,omitempty"`
	MissionName     string             `json:"missionName,omitempty"`
	CurrentWaypoint int                `json:"currentWaypoint"`
	TotalWaypoints  int                `json:"totalWaypoints"`
	DistanceToNext  float64            `json:"distanceToNext"`
	Progress        float64            `json:"progress"` // percent

	navigation.Position
	Heading          float64 `json:"heading"`
	Speed            float64 `json:"speed"`
	BatteryRemaining float64 `json:"batteryRemaining"`
}

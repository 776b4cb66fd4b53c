package mavlink

// Frame coordinate systems (MAV_FRAME)
const (
	FrameGlobal               uint8 = 0
	FrameLocalNED             uint8 = 1
	FrameMission              uint8 = 2
	FrameGlobalRelativeAlt    uint8 = 3
	FrameGlobalInt            uint8 = 5
	FrameGlobalRelativeAltInt uint8 = 6
	FrameGlobalTerrainAlt     uint8 = 10
	FrameGlobalTerrainAltInt  uint8 = 11
)

// MissionType selects the list a mission protocol exchange operates on (MAV_MISSION_TYPE)
type MissionType uint8

const (
	MissionTypeMission MissionType = 0
	MissionTypeFence   MissionType = 1
	MissionTypeRally   MissionType = 2
	MissionTypeAll     MissionType = 255
)

func (t MissionType) String() string {
	switch t {
	case MissionTypeMission:
		return "mission"
	case MissionTypeFence:
		return "fence"
	case MissionTypeRally:
		return "rally"
	case MissionTypeAll:
		return "all"
	default:
		return "unknown"
	}
}

// MissionResult is the outcome reported in MISSION_ACK (MAV_MISSION_RESULT)
type MissionResult uint8

const (
	MissionAccepted           MissionResult = 0
	MissionError              MissionResult = 1
	MissionUnsupportedFrame   MissionResult = 2
	MissionUnsupported        MissionResult = 3
	MissionNoSpace            MissionResult = 4
	MissionInvalid            MissionResult = 5
	MissionInvalidSequence    MissionResult = 13
	MissionDenied             MissionResult = 14
	MissionOperationCancelled MissionResult = 15
)

func (r MissionResult) String() string {
	switch {
	case r == MissionAccepted:
		return "accepted"
	case r == MissionError:
		return "error"
	case r == MissionUnsupportedFrame:
		return "unsupported frame"
	case r == MissionUnsupported:
		return "unsupported"
	case r == MissionNoSpace:
		return "no space"
	case r == MissionInvalid:
		return "invalid"
	case r >= 6 && r <= 12:
		return "invalid param"
	case r == MissionInvalidSequence:
		return "invalid sequence"
	case r == MissionDenied:
		return "denied"
	case r == MissionOperationCancelled:
		return "operation cancelled"
	default:
		return "unknown"
	}
}

// Result is the outcome reported in COMMAND_ACK (MAV_RESULT)
type Result uint8

const (
	ResultAccepted            Result = 0
	ResultTemporarilyRejected Result = 1
	ResultDenied              Result = 2
	ResultUnsupported         Result = 3
	ResultFailed              Result = 4
	ResultInProgress          Result = 5
	ResultCancelled           Result = 6
)

func (r Result) String() string {
	switch r {
	case ResultAccepted:
		return "accepted"
	case ResultTemporarilyRejected:
		return "temporarily rejected"
	case ResultDenied:
		return "denied"
	case ResultUnsupported:
		return "unsupported"
	case ResultFailed:
		return "failed"
	case ResultInProgress:
		return "in progress"
	case ResultCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Vehicle and autopilot kinds used in HEARTBEAT
const (
	TypeGeneric   uint8 = 0
	TypeFixedWing uint8 = 1
	TypeQuadrotor uint8 = 2
	TypeGCS       uint8 = 6

	AutopilotGeneric       uint8 = 0
	AutopilotArduPilotMega uint8 = 3
	AutopilotInvalid       uint8 = 8
)

// System states (MAV_STATE)
const (
	StateUninit      uint8 = 0
	StateBoot        uint8 = 1
	StateCalibrating uint8 = 2
	StateStandby     uint8 = 3
	StateActive      uint8 = 4
	StateCritical    uint8 = 5
	StateEmergency   uint8 = 6
)

// Base mode flags (MAV_MODE_FLAG)
const (
	ModeFlagCustomModeEnabled uint8 = 1
	ModeFlagAuto              uint8 = 4
	ModeFlagGuided            uint8 = 8
	ModeFlagStabilize         uint8 = 16
	ModeFlagSafetyArmed       uint8 = 128
)

// ParamTypeReal32 is the only parameter encoding this system emits
const ParamTypeReal32 uint8 = 9

// CopterMode is an ArduPilot copter custom mode number
type CopterMode uint32

const (
	CopterStabilize CopterMode = 0
	CopterAcro      CopterMode = 1
	CopterAltHold   CopterMode = 2
	CopterAuto      CopterMode = 3
	CopterGuided    CopterMode = 4
	CopterLoiter    CopterMode = 5
	CopterRTL       CopterMode = 6
	CopterCircle    CopterMode = 7
	CopterLand      CopterMode = 9
	CopterBrake     CopterMode = 17
)

var copterModeNames = map[CopterMode]string{
	CopterStabilize: "STABILIZE",
	CopterAcro:      "ACRO",
	CopterAltHold:   "ALT_HOLD",
	CopterAuto:      "AUTO",
	CopterGuided:    "GUIDED",
	CopterLoiter:    "LOITER",
	CopterRTL:       "RTL",
	CopterCircle:    "CIRCLE",
	CopterLand:      "LAND",
	CopterBrake:     "BRAKE",
}

func (m CopterMode) String() string {
	if name, ok := copterModeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseCopterMode resolves a mode name, reporting whether it is known
func ParseCopterMode(name string) (CopterMode, bool) {
	for mode, n := range copterModeNames {
		if n == name {
			return mode, true
		}
	}
	return 0, false
}

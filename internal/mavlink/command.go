package mavlink

import (
	"strconv"
	"strings"
)

// Command is a MAV_CMD identifier
type Command uint16

const (
	CmdNavWaypoint        Command = 16
	CmdNavLoiterUnlimited Command = 17
	CmdNavLoiterTime      Command = 19
	CmdNavReturnToLaunch  Command = 20
	CmdNavLand            Command = 21
	CmdNavTakeoff         Command = 22
	CmdDoSetMode          Command = 176
	CmdDoSetServo         Command = 183
	CmdDoReposition       Command = 192
	CmdComponentArmDisarm Command = 400
	CmdSetMessageInterval Command = 511
)

// navigation commands occupy the MAV_CMD_NAV_* range
const lastNavigationCommand Command = 95

var commandNames = map[Command]string{
	CmdNavWaypoint:        "WAYPOINT",
	CmdNavLoiterUnlimited: "LOITER_UNLIMITED",
	CmdNavLoiterTime:      "LOITER_TIME",
	CmdNavReturnToLaunch:  "RETURN_TO_LAUNCH",
	CmdNavLand:            "LAND",
	CmdNavTakeoff:         "TAKEOFF",
	CmdDoSetMode:          "DO_SET_MODE",
	CmdDoSetServo:         "DO_SET_SERVO",
	CmdDoReposition:       "DO_REPOSITION",
	CmdComponentArmDisarm: "COMPONENT_ARM_DISARM",
	CmdSetMessageInterval: "SET_MESSAGE_INTERVAL",
}

var commandAliases = map[string]Command{
	"RTL":                  CmdNavReturnToLaunch,
	"NAV_WAYPOINT":         CmdNavWaypoint,
	"NAV_LOITER_UNLIM":     CmdNavLoiterUnlimited,
	"NAV_LOITER_UNLIMITED": CmdNavLoiterUnlimited,
	"NAV_LOITER_TIME":      CmdNavLoiterTime,
	"NAV_RETURN_TO_LAUNCH": CmdNavReturnToLaunch,
	"NAV_LAND":             CmdNavLand,
	"NAV_TAKEOFF":          CmdNavTakeoff,
	"ARM_DISARM":           CmdComponentArmDisarm,
}

// ParseCommand maps a command name to its identifier. Names are matched
// case-insensitively, with or without the MAV_CMD_ prefix; a numeric
// string is taken as the identifier itself. Anything unrecognised maps
// to WAYPOINT.
func ParseCommand(name string) Command {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "MAV_CMD_")
	key = strings.ReplaceAll(key, "-", "_")

	if key == "" {
		return CmdNavWaypoint
	}
	if cmd, ok := commandAliases[key]; ok {
		return cmd
	}
	for cmd, n := range commandNames {
		if n == key {
			return cmd
		}
	}
	if id, err := strconv.ParseUint(key, 10, 16); err == nil {
		if _, ok := commandNames[Command(id)]; ok {
			return Command(id)
		}
	}

	return CmdNavWaypoint
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// IsNavigation reports whether the command moves the vehicle to a location
func (c Command) IsNavigation() bool {
	return c <= lastNavigationCommand
}

// MarshalText encodes the command by name
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts a command name with the same tolerance as ParseCommand
func (c *Command) UnmarshalText(text []byte) error {
	*c = ParseCommand(string(text))
	return nil
}

package mavlink

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Message identifiers
const (
	MsgIDHeartbeat         uint8 = 0
	MsgIDSysStatus         uint8 = 1
	MsgIDParamValue        uint8 = 22
	MsgIDParamSet          uint8 = 23
	MsgIDGlobalPositionInt uint8 = 33
	MsgIDMissionRequest    uint8 = 40
	MsgIDMissionCount      uint8 = 44
	MsgIDMissionAck        uint8 = 47
	MsgIDMissionRequestInt uint8 = 51
	MsgIDMissionItemInt    uint8 = 73
	MsgIDCommandLong       uint8 = 76
	MsgIDCommandAck        uint8 = 77
	MsgIDFencePoint        uint8 = 160
	MsgIDRallyPoint        uint8 = 175
)

// ParamIDLen is the fixed width of a parameter name on the wire
const ParamIDLen = 16

// Message is one of the supported payload variants, or Unknown
type Message interface {
	MessageID() uint8
	MarshalPayload() []byte
}

type messageInfo struct {
	name   string
	extra  byte
	minLen int
	maxLen int
	decode func(p []byte) Message
}

var registry = map[uint8]messageInfo{
	MsgIDHeartbeat:         {"HEARTBEAT", 50, 9, 9, decodeHeartbeat},
	MsgIDSysStatus:         {"SYS_STATUS", 124, 31, 31, decodeSysStatus},
	MsgIDParamValue:        {"PARAM_VALUE", 220, 25, 25, decodeParamValue},
	MsgIDParamSet:          {"PARAM_SET", 168, 23, 23, decodeParamSet},
	MsgIDGlobalPositionInt: {"GLOBAL_POSITION_INT", 104, 28, 28, decodeGlobalPositionInt},
	MsgIDMissionRequest:    {"MISSION_REQUEST", 230, 4, 5, decodeMissionRequest},
	MsgIDMissionCount:      {"MISSION_COUNT", 221, 4, 5, decodeMissionCount},
	MsgIDMissionAck:        {"MISSION_ACK", 153, 3, 4, decodeMissionAck},
	MsgIDMissionRequestInt: {"MISSION_REQUEST_INT", 28, 4, 5, decodeMissionRequestInt},
	MsgIDMissionItemInt:    {"MISSION_ITEM_INT", 38, 37, 38, decodeMissionItemInt},
	MsgIDCommandLong:       {"COMMAND_LONG", 152, 33, 33, decodeCommandLong},
	MsgIDCommandAck:        {"COMMAND_ACK", 143, 3, 3, decodeCommandAck},
	MsgIDFencePoint:        {"FENCE_POINT", 78, 12, 12, decodeFencePoint},
	MsgIDRallyPoint:        {"RALLY_POINT", 138, 19, 19, decodeRallyPoint},
}

// CRCExtra returns the checksum seed byte for a message id, and whether the id is known
func CRCExtra(id uint8) (byte, bool) {
	info, ok := registry[id]
	return info.extra, ok
}

// MessageName returns the dialect name of a message id, or "UNKNOWN"
func MessageName(id uint8) string {
	if info, ok := registry[id]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// DecodePayload turns a payload into its typed variant. Payloads shorter
// than the full layout are zero-extended; unknown ids yield Unknown.
func DecodePayload(id uint8, payload []byte) Message {
	info, ok := registry[id]
	if !ok {
		return &Unknown{ID: id, Payload: bytes.Clone(payload)}
	}

	p := payload
	if len(p) < info.maxLen {
		p = make([]byte, info.maxLen)
		copy(p, payload)
	}
	return info.decode(p)
}

var le = binary.LittleEndian

func putFloat32(b []byte, v float32) {
	le.PutUint32(b, math.Float32bits(v))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(le.Uint32(b))
}

func putParamID(b []byte, name string) {
	n := copy(b[:ParamIDLen], name)
	clear(b[n:ParamIDLen])
}

func getParamID(b []byte) string {
	id := b[:ParamIDLen]
	if i := bytes.IndexByte(id, 0); i >= 0 {
		id = id[:i]
	}
	return string(id)
}

// Unknown carries a payload whose message id has no decoder
type Unknown struct {
	ID      uint8
	Payload []byte
}

func (m *Unknown) MessageID() uint8       { return m.ID }
func (m *Unknown) MarshalPayload() []byte { return bytes.Clone(m.Payload) }

// Heartbeat (#0)
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

func (m *Heartbeat) MessageID() uint8 { return MsgIDHeartbeat }

func (m *Heartbeat) MarshalPayload() []byte {
	p := make([]byte, 9)
	le.PutUint32(p[0:], m.CustomMode)
	p[4] = m.Type
	p[5] = m.Autopilot
	p[6] = m.BaseMode
	p[7] = m.SystemStatus
	p[8] = m.MavlinkVersion
	return p
}

// Armed reports whether the safety-armed flag is set
func (m *Heartbeat) Armed() bool {
	return m.BaseMode&ModeFlagSafetyArmed != 0
}

func decodeHeartbeat(p []byte) Message {
	return &Heartbeat{
		CustomMode:     le.Uint32(p[0:]),
		Type:           p[4],
		Autopilot:      p[5],
		BaseMode:       p[6],
		SystemStatus:   p[7],
		MavlinkVersion: p[8],
	}
}

// SysStatus (#1)
type SysStatus struct {
	SensorsPresent   uint32
	SensorsEnabled   uint32
	SensorsHealth    uint32
	Load             uint16 // d%
	VoltageBattery   uint16 // mV
	CurrentBattery   int16  // cA, -1 when unknown
	DropRateComm     uint16
	ErrorsComm       uint16
	ErrorsCount      [4]uint16
	BatteryRemaining int8 // %, -1 when unknown
}

func (m *SysStatus) MessageID() uint8 { return MsgIDSysStatus }

func (m *SysStatus) MarshalPayload() []byte {
	p := make([]byte, 31)
	le.PutUint32(p[0:], m.SensorsPresent)
	le.PutUint32(p[4:], m.SensorsEnabled)
	le.PutUint32(p[8:], m.SensorsHealth)
	le.PutUint16(p[12:], m.Load)
	le.PutUint16(p[14:], m.VoltageBattery)
	le.PutUint16(p[16:], uint16(m.CurrentBattery))
	le.PutUint16(p[18:], m.DropRateComm)
	le.PutUint16(p[20:], m.ErrorsComm)
	for i, v := range m.ErrorsCount {
		le.PutUint16(p[22+2*i:], v)
	}
	p[30] = byte(m.BatteryRemaining)
	return p
}

func decodeSysStatus(p []byte) Message {
	m := &SysStatus{
		SensorsPresent:   le.Uint32(p[0:]),
		SensorsEnabled:   le.Uint32(p[4:]),
		SensorsHealth:    le.Uint32(p[8:]),
		Load:             le.Uint16(p[12:]),
		VoltageBattery:   le.Uint16(p[14:]),
		CurrentBattery:   int16(le.Uint16(p[16:])),
		DropRateComm:     le.Uint16(p[18:]),
		ErrorsComm:       le.Uint16(p[20:]),
		BatteryRemaining: int8(p[30]),
	}
	for i := range m.ErrorsCount {
		m.ErrorsCount[i] = le.Uint16(p[22+2*i:])
	}
	return m
}

// ParamValue (#22)
type ParamValue struct {
	ParamValue float32
	ParamCount uint16
	ParamIndex uint16
	ParamID    string
	ParamType  uint8
}

func (m *ParamValue) MessageID() uint8 { return MsgIDParamValue }

func (m *ParamValue) MarshalPayload() []byte {
	p := make([]byte, 25)
	putFloat32(p[0:], m.ParamValue)
	le.PutUint16(p[4:], m.ParamCount)
	le.PutUint16(p[6:], m.ParamIndex)
	putParamID(p[8:], m.ParamID)
	p[24] = m.ParamType
	return p
}

func decodeParamValue(p []byte) Message {
	return &ParamValue{
		ParamValue: getFloat32(p[0:]),
		ParamCount: le.Uint16(p[4:]),
		ParamIndex: le.Uint16(p[6:]),
		ParamID:    getParamID(p[8:]),
		ParamType:  p[24],
	}
}

// ParamSet (#23)
type ParamSet struct {
	ParamValue      float32
	TargetSystem    uint8
	TargetComponent uint8
	ParamID         string
	ParamType       uint8
}

func (m *ParamSet) MessageID() uint8 { return MsgIDParamSet }

func (m *ParamSet) MarshalPayload() []byte {
	p := make([]byte, 23)
	putFloat32(p[0:], m.ParamValue)
	p[4] = m.TargetSystem
	p[5] = m.TargetComponent
	putParamID(p[6:], m.ParamID)
	p[22] = m.ParamType
	return p
}

func decodeParamSet(p []byte) Message {
	return &ParamSet{
		ParamValue:      getFloat32(p[0:]),
		TargetSystem:    p[4],
		TargetComponent: p[5],
		ParamID:         getParamID(p[6:]),
		ParamType:       p[22],
	}
}

// GlobalPositionInt (#33)
type GlobalPositionInt struct {
	TimeBootMs  uint32
	Lat         int32  // degE7
	Lon         int32  // degE7
	Alt         int32  // mm, MSL
	RelativeAlt int32  // mm above home
	Vx          int16  // cm/s
	Vy          int16  // cm/s
	Vz          int16  // cm/s
	Hdg         uint16 // cdeg, UINT16_MAX when unknown
}

func (m *GlobalPositionInt) MessageID() uint8 { return MsgIDGlobalPositionInt }

func (m *GlobalPositionInt) MarshalPayload() []byte {
	p := make([]byte, 28)
	le.PutUint32(p[0:], m.TimeBootMs)
	le.PutUint32(p[4:], uint32(m.Lat))
	le.PutUint32(p[8:], uint32(m.Lon))
	le.PutUint32(p[12:], uint32(m.Alt))
	le.PutUint32(p[16:], uint32(m.RelativeAlt))
	le.PutUint16(p[20:], uint16(m.Vx))
	le.PutUint16(p[22:], uint16(m.Vy))
	le.PutUint16(p[24:], uint16(m.Vz))
	le.PutUint16(p[26:], m.Hdg)
	return p
}

// Latitude in degrees
func (m *GlobalPositionInt) Latitude() float64 { return float64(m.Lat) / 1e7 }

// Longitude in degrees
func (m *GlobalPositionInt) Longitude() float64 { return float64(m.Lon) / 1e7 }

// RelativeAltitude in metres above home
func (m *GlobalPositionInt) RelativeAltitude() float64 { return float64(m.RelativeAlt) / 1000 }

// GroundSpeed in m/s
func (m *GlobalPositionInt) GroundSpeed() float64 {
	return math.Hypot(float64(m.Vx), float64(m.Vy)) / 100
}

// Heading in degrees; ok is false when the vehicle reports it as unknown
func (m *GlobalPositionInt) Heading() (deg float64, ok bool) {
	if m.Hdg == math.MaxUint16 {
		return 0, false
	}
	return float64(m.Hdg) / 100, true
}

func decodeGlobalPositionInt(p []byte) Message {
	return &GlobalPositionInt{
		TimeBootMs:  le.Uint32(p[0:]),
		Lat:         int32(le.Uint32(p[4:])),
		Lon:         int32(le.Uint32(p[8:])),
		Alt:         int32(le.Uint32(p[12:])),
		RelativeAlt: int32(le.Uint32(p[16:])),
		Vx:          int16(le.Uint16(p[20:])),
		Vy:          int16(le.Uint16(p[22:])),
		Vz:          int16(le.Uint16(p[24:])),
		Hdg:         le.Uint16(p[26:]),
	}
}

// MissionRequest (#40), the legacy float-item request
type MissionRequest struct {
	Seq             uint16
	TargetSystem    uint8
	TargetComponent uint8
	MissionType     MissionType
}

func (m *MissionRequest) MessageID() uint8 { return MsgIDMissionRequest }

func (m *MissionRequest) MarshalPayload() []byte {
	return marshalSeqTarget(m.Seq, m.TargetSystem, m.TargetComponent, m.MissionType)
}

func decodeMissionRequest(p []byte) Message {
	return &MissionRequest{
		Seq:             le.Uint16(p[0:]),
		TargetSystem:    p[2],
		TargetComponent: p[3],
		MissionType:     MissionType(p[4]),
	}
}

// MissionCount (#44)
type MissionCount struct {
	Count           uint16
	TargetSystem    uint8
	TargetComponent uint8
	MissionType     MissionType
}

func (m *MissionCount) MessageID() uint8 { return MsgIDMissionCount }

func (m *MissionCount) MarshalPayload() []byte {
	return marshalSeqTarget(m.Count, m.TargetSystem, m.TargetComponent, m.MissionType)
}

func decodeMissionCount(p []byte) Message {
	return &MissionCount{
		Count:           le.Uint16(p[0:]),
		TargetSystem:    p[2],
		TargetComponent: p[3],
		MissionType:     MissionType(p[4]),
	}
}

// MissionAck (#47)
type MissionAck struct {
	TargetSystem    uint8
	TargetComponent uint8
	Type            MissionResult
	MissionType     MissionType
}

func (m *MissionAck) MessageID() uint8 { return MsgIDMissionAck }

func (m *MissionAck) MarshalPayload() []byte {
	return []byte{m.TargetSystem, m.TargetComponent, byte(m.Type), byte(m.MissionType)}
}

func decodeMissionAck(p []byte) Message {
	return &MissionAck{
		TargetSystem:    p[0],
		TargetComponent: p[1],
		Type:            MissionResult(p[2]),
		MissionType:     MissionType(p[3]),
	}
}

// MissionRequestInt (#51)
type MissionRequestInt struct {
	Seq             uint16
	TargetSystem    uint8
	TargetComponent uint8
	MissionType     MissionType
}

func (m *MissionRequestInt) MessageID() uint8 { return MsgIDMissionRequestInt }

func (m *MissionRequestInt) MarshalPayload() []byte {
	return marshalSeqTarget(m.Seq, m.TargetSystem, m.TargetComponent, m.MissionType)
}

func decodeMissionRequestInt(p []byte) Message {
	return &MissionRequestInt{
		Seq:             le.Uint16(p[0:]),
		TargetSystem:    p[2],
		TargetComponent: p[3],
		MissionType:     MissionType(p[4]),
	}
}

func marshalSeqTarget(v uint16, sys, comp uint8, t MissionType) []byte {
	p := make([]byte, 5)
	le.PutUint16(p[0:], v)
	p[2] = sys
	p[3] = comp
	p[4] = byte(t)
	return p
}

// MissionItemInt (#73)
type MissionItemInt struct {
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	X               int32 // latitude, degE7
	Y               int32 // longitude, degE7
	Z               float32
	Seq             uint16
	Command         Command
	TargetSystem    uint8
	TargetComponent uint8
	Frame           uint8
	Current         uint8
	Autocontinue    uint8
	MissionType     MissionType
}

func (m *MissionItemInt) MessageID() uint8 { return MsgIDMissionItemInt }

func (m *MissionItemInt) MarshalPayload() []byte {
	p := make([]byte, 38)
	putFloat32(p[0:], m.Param1)
	putFloat32(p[4:], m.Param2)
	putFloat32(p[8:], m.Param3)
	putFloat32(p[12:], m.Param4)
	le.PutUint32(p[16:], uint32(m.X))
	le.PutUint32(p[20:], uint32(m.Y))
	putFloat32(p[24:], m.Z)
	le.PutUint16(p[28:], m.Seq)
	le.PutUint16(p[30:], uint16(m.Command))
	p[32] = m.TargetSystem
	p[33] = m.TargetComponent
	p[34] = m.Frame
	p[35] = m.Current
	p[36] = m.Autocontinue
	p[37] = byte(m.MissionType)
	return p
}

func decodeMissionItemInt(p []byte) Message {
	return &MissionItemInt{
		Param1:          getFloat32(p[0:]),
		Param2:          getFloat32(p[4:]),
		Param3:          getFloat32(p[8:]),
		Param4:          getFloat32(p[12:]),
		X:               int32(le.Uint32(p[16:])),
		Y:               int32(le.Uint32(p[20:])),
		Z:               getFloat32(p[24:]),
		Seq:             le.Uint16(p[28:]),
		Command:         Command(le.Uint16(p[30:])),
		TargetSystem:    p[32],
		TargetComponent: p[33],
		Frame:           p[34],
		Current:         p[35],
		Autocontinue:    p[36],
		MissionType:     MissionType(p[37]),
	}
}

// CommandLong (#76)
type CommandLong struct {
	Params          [7]float32
	Command         Command
	TargetSystem    uint8
	TargetComponent uint8
	Confirmation    uint8
}

func (m *CommandLong) MessageID() uint8 { return MsgIDCommandLong }

func (m *CommandLong) MarshalPayload() []byte {
	p := make([]byte, 33)
	for i, v := range m.Params {
		putFloat32(p[4*i:], v)
	}
	le.PutUint16(p[28:], uint16(m.Command))
	p[30] = m.TargetSystem
	p[31] = m.TargetComponent
	p[32] = m.Confirmation
	return p
}

func decodeCommandLong(p []byte) Message {
	m := &CommandLong{
		Command:         Command(le.Uint16(p[28:])),
		TargetSystem:    p[30],
		TargetComponent: p[31],
		Confirmation:    p[32],
	}
	for i := range m.Params {
		m.Params[i] = getFloat32(p[4*i:])
	}
	return m
}

// CommandAck (#77)
type CommandAck struct {
	Command Command
	Result  Result
}

func (m *CommandAck) MessageID() uint8 { return MsgIDCommandAck }

func (m *CommandAck) MarshalPayload() []byte {
	p := make([]byte, 3)
	le.PutUint16(p[0:], uint16(m.Command))
	p[2] = byte(m.Result)
	return p
}

func decodeCommandAck(p []byte) Message {
	return &CommandAck{
		Command: Command(le.Uint16(p[0:])),
		Result:  Result(p[2]),
	}
}

// FencePoint (#160)
type FencePoint struct {
	Lat             float32
	Lng             float32
	TargetSystem    uint8
	TargetComponent uint8
	Idx             uint8
	Count           uint8
}

func (m *FencePoint) MessageID() uint8 { return MsgIDFencePoint }

func (m *FencePoint) MarshalPayload() []byte {
	p := make([]byte, 12)
	putFloat32(p[0:], m.Lat)
	putFloat32(p[4:], m.Lng)
	p[8] = m.TargetSystem
	p[9] = m.TargetComponent
	p[10] = m.Idx
	p[11] = m.Count
	return p
}

func decodeFencePoint(p []byte) Message {
	return &FencePoint{
		Lat:             getFloat32(p[0:]),
		Lng:             getFloat32(p[4:]),
		TargetSystem:    p[8],
		TargetComponent: p[9],
		Idx:             p[10],
		Count:           p[11],
	}
}

// RallyPoint (#175)
type RallyPoint struct {
	Lat             int32  // degE7
	Lng             int32  // degE7
	Alt             int16  // m
	BreakAlt        int16  // m
	LandDir         uint16 // cdeg
	TargetSystem    uint8
	TargetComponent uint8
	Idx             uint8
	Count           uint8
	Flags           uint8
}

func (m *RallyPoint) MessageID() uint8 { return MsgIDRallyPoint }

func (m *RallyPoint) MarshalPayload() []byte {
	p := make([]byte, 19)
	le.PutUint32(p[0:], uint32(m.Lat))
	le.PutUint32(p[4:], uint32(m.Lng))
	le.PutUint16(p[8:], uint16(m.Alt))
	le.PutUint16(p[10:], uint16(m.BreakAlt))
	le.PutUint16(p[12:], m.LandDir)
	p[14] = m.TargetSystem
	p[15] = m.TargetComponent
	p[16] = m.Idx
	p[17] = m.Count
	p[18] = m.Flags
	return p
}

func decodeRallyPoint(p []byte) Message {
	return &RallyPoint{
		Lat:             int32(le.Uint32(p[0:])),
		Lng:             int32(le.Uint32(p[4:])),
		Alt:             int16(le.Uint16(p[8:])),
		BreakAlt:        int16(le.Uint16(p[10:])),
		LandDir:         le.Uint16(p[12:]),
		TargetSystem:    p[14],
		TargetComponent: p[15],
		Idx:             p[16],
		Count:           p[17],
		Flags:           p[18],
	}
}

// DegE7 converts degrees to the int32 1e-7 degree wire representation
func DegE7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}

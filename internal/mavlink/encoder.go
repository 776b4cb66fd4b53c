package mavlink

import (
	"fmt"
	"sync/atomic"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
)

// Encoder frames outgoing messages on behalf of one (system, component)
// pair. The sequence number is shared by every frame it produces and
// wraps at 256. It is safe for concurrent use.
type Encoder struct {
	systemID    uint8
	componentID uint8
	seq         atomic.Uint32
}

// NewEncoder creates an Encoder whose first frame carries sequence 0
func NewEncoder(systemID, componentID uint8) *Encoder {
	return &Encoder{systemID: systemID, componentID: componentID}
}

// SystemID returns the sender system id
func (e *Encoder) SystemID() uint8 { return e.systemID }

// ComponentID returns the sender component id
func (e *Encoder) ComponentID() uint8 { return e.componentID }

func (e *Encoder) nextSeq() uint8 {
	return uint8(e.seq.Add(1) - 1)
}

// Encode frames any supported message. Unknown messages cannot be framed
// because their checksum seed is not known.
func (e *Encoder) Encode(msg Message) ([]byte, error) {
	extra, ok := CRCExtra(msg.MessageID())
	if !ok {
		return nil, fault.New(fault.KindFrameFormat, "mavlink.encode",
			fmt.Sprintf("no checksum seed for message #%d", msg.MessageID()))
	}
	return frame(e.nextSeq(), e.systemID, e.componentID, msg.MessageID(), msg.MarshalPayload(), extra), nil
}

func (e *Encoder) encodeKnown(msg Message) []byte {
	extra := registry[msg.MessageID()].extra
	return frame(e.nextSeq(), e.systemID, e.componentID, msg.MessageID(), msg.MarshalPayload(), extra)
}

func (e *Encoder) EncodeHeartbeat(m *Heartbeat) []byte                 { return e.encodeKnown(m) }
func (e *Encoder) EncodeSysStatus(m *SysStatus) []byte                 { return e.encodeKnown(m) }
func (e *Encoder) EncodeParamValue(m *ParamValue) []byte               { return e.encodeKnown(m) }
func (e *Encoder) EncodeParamSet(m *ParamSet) []byte                   { return e.encodeKnown(m) }
func (e *Encoder) EncodeGlobalPositionInt(m *GlobalPositionInt) []byte { return e.encodeKnown(m) }
func (e *Encoder) EncodeMissionRequest(m *MissionRequest) []byte       { return e.encodeKnown(m) }
func (e *Encoder) EncodeMissionCount(m *MissionCount) []byte           { return e.encodeKnown(m) }
func (e *Encoder) EncodeMissionAck(m *MissionAck) []byte               { return e.encodeKnown(m) }
func (e *Encoder) EncodeMissionRequestInt(m *MissionRequestInt) []byte { return e.encodeKnown(m) }
func (e *Encoder) EncodeMissionItemInt(m *MissionItemInt) []byte       { return e.encodeKnown(m) }
func (e *Encoder) EncodeCommandLong(m *CommandLong) []byte             { return e.encodeKnown(m) }
func (e *Encoder) EncodeCommandAck(m *CommandAck) []byte               { return e.encodeKnown(m) }
func (e *Encoder) EncodeFencePoint(m *FencePoint) []byte               { return e.encodeKnown(m) }
func (e *Encoder) EncodeRallyPoint(m *RallyPoint) []byte               { return e.encodeKnown(m) }

// Marshal frames msg with an explicit sequence number and sender identity.
// It is the stateless counterpart of Encoder.Encode.
func Marshal(seq, systemID, componentID uint8, msg Message) ([]byte, error) {
	extra, ok := CRCExtra(msg.MessageID())
	if !ok {
		return nil, fault.New(fault.KindFrameFormat, "mavlink.marshal",
			fmt.Sprintf("no checksum seed for message #%d", msg.MessageID()))
	}
	return frame(seq, systemID, componentID, msg.MessageID(), msg.MarshalPayload(), extra), nil
}

package mavlink

import (
	"bytes"
	"fmt"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
)

const (
	// StartByte marks the beginning of a MAVLink v1 frame
	StartByte byte = 0xFE

	HeaderLen     = 6 // start, len, seq, sysid, compid, msgid
	ChecksumLen   = 2
	FrameOverhead = HeaderLen + ChecksumLen
	MaxPayloadLen = 255
	MaxFrameLen   = MaxPayloadLen + FrameOverhead
)

var (
	ErrBadMagic   = fault.New(fault.KindFrameFormat, "mavlink", "bad start byte")
	ErrBadLength  = fault.New(fault.KindFrameFormat, "mavlink", "payload length does not match message layout")
	ErrBadCRC     = fault.New(fault.KindFrameFormat, "mavlink", "checksum mismatch")
	ErrShortFrame = fault.New(fault.KindFrameFormat, "mavlink", "frame truncated")
)

// Header is the fixed part of a frame after the start byte
type Header struct {
	Len         uint8
	Seq         uint8
	SystemID    uint8
	ComponentID uint8
	MessageID   uint8
}

// Frame is a complete, checksum-verified frame
type Frame struct {
	Header
	Payload  []byte
	Checksum uint16

	raw []byte
}

// Bytes returns the frame exactly as it appeared on the wire
func (f *Frame) Bytes() []byte {
	return f.raw
}

// Message decodes the payload into its typed variant
func (f *Frame) Message() Message {
	return DecodePayload(f.MessageID, f.Payload)
}

// Known reports whether the message id has a decoder and a verified checksum
func (f *Frame) Known() bool {
	_, ok := registry[f.MessageID]
	return ok
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s(#%d) seq=%d sys=%d comp=%d len=%d",
		MessageName(f.MessageID), f.MessageID, f.Seq, f.SystemID, f.ComponentID, f.Len)
}

// DecodeFrame parses exactly one frame at the start of b. Trailing bytes
// beyond the frame are ignored. Checksums are verified for known message
// ids only; other ids are accepted as they are.
func DecodeFrame(b []byte) (*Frame, error) {
	if len(b) == 0 || b[0] != StartByte {
		return nil, ErrBadMagic
	}
	if len(b) < HeaderLen {
		return nil, ErrShortFrame
	}

	n := int(b[1])
	info, known := registry[b[5]]
	if known && (n < info.minLen || n > info.maxLen) {
		return nil, ErrBadLength
	}

	total := n + FrameOverhead
	if len(b) < total {
		return nil, ErrShortFrame
	}

	h := Header{
		Len:         b[1],
		Seq:         b[2],
		SystemID:    b[3],
		ComponentID: b[4],
		MessageID:   b[5],
	}
	checksum := le.Uint16(b[HeaderLen+n:])

	if known && Checksum(b[1:HeaderLen+n], info.extra) != checksum {
		return nil, ErrBadCRC
	}

	raw := bytes.Clone(b[:total])
	return &Frame{
		Header:   h,
		Payload:  raw[HeaderLen : HeaderLen+n],
		Checksum: checksum,
		raw:      raw,
	}, nil
}

// frame assembles a complete frame; extra is the checksum seed for msgID
func frame(seq, sysID, compID, msgID uint8, payload []byte, extra byte) []byte {
	n := len(payload)
	b := make([]byte, n+FrameOverhead)
	b[0] = StartByte
	b[1] = uint8(n)
	b[2] = seq
	b[3] = sysID
	b[4] = compID
	b[5] = msgID
	copy(b[HeaderLen:], payload)
	le.PutUint16(b[HeaderLen+n:], Checksum(b[1:HeaderLen+n], extra))
	return b
}

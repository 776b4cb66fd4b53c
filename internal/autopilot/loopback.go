package autopilot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
)

// ErrBacklogFull is returned by Send when replies are not being consumed
var ErrBacklogFull = errors.New("autopilot: reply backlog full")

const backlog = 64

// WithLogger sets the logger for the loopback autopilot
func WithLogger(logger *slog.Logger) func(*Loopback) {
	return func(l *Loopback) {
		l.logger = logger.With(slog.String("component", "autopilot"))
	}
}

// WithMissionResult sets the result sent in MISSION_ACK
func WithMissionResult(r mavlink.MissionResult) func(*Loopback) {
	return func(l *Loopback) {
		l.missionResult = r
	}
}

// WithCommandResult sets the result sent in COMMAND_ACK
func WithCommandResult(r mavlink.Result) func(*Loopback) {
	return func(l *Loopback) {
		l.commandResult = r
	}
}

// WithSilence stops the autopilot from answering anything
func WithSilence() func(*Loopback) {
	return func(l *Loopback) {
		l.silent = true
	}
}

// Loopback is an in-process autopilot that speaks the mission item,
// command and parameter protocols. It stands in for the serial link when
// no hardware is attached. Frames written with Send are answered through
// the deliver callback by the goroutine running Run.
type Loopback struct {
	encoder *mavlink.Encoder
	deliver func(*mavlink.Frame)
	replies chan *mavlink.Frame

	mu            sync.Mutex
	received      []mavlink.Message
	expected      int
	missionResult mavlink.MissionResult
	commandResult mavlink.Result
	silent        bool
	parameters    map[string]float32

	logger *slog.Logger
}

// New creates a Loopback that identifies itself as (systemID, componentID)
func New(systemID, componentID uint8, deliver func(*mavlink.Frame), options ...func(*Loopback)) *Loopback {
	l := Loopback{
		encoder:       mavlink.NewEncoder(systemID, componentID),
		deliver:       deliver,
		replies:       make(chan *mavlink.Frame, backlog),
		missionResult: mavlink.MissionAccepted,
		commandResult: mavlink.ResultAccepted,
		parameters:    make(map[string]float32),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Run delivers queued replies until ctx is done
func (l *Loopback) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-l.replies:
			l.deliver(f)
		}
	}
}

// Send accepts a frame addressed to the autopilot. It never blocks.
func (l *Loopback) Send(frame []byte) error {
	f, err := mavlink.DecodeFrame(frame)
	if err != nil {
		return err
	}

	msg := f.Message()

	l.mu.Lock()
	l.received = append(l.received, msg)
	silent := l.silent
	l.mu.Unlock()

	if silent {
		return nil
	}

	for _, reply := range l.react(msg) {
		b, err := l.encoder.Encode(reply)
		if err != nil {
			return err
		}
		rf, err := mavlink.DecodeFrame(b)
		if err != nil {
			return err
		}

		select {
		case l.replies <- rf:
		default:
			return ErrBacklogFull
		}
	}
	return nil
}

func (l *Loopback) react(msg mavlink.Message) []mavlink.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch m := msg.(type) {
	case *mavlink.MissionCount:
		l.expected = int(m.Count)
		l.logger.Debug("mission count received", slog.Int("count", l.expected))
		if m.Count == 0 {
			return []mavlink.Message{l.ack(m.MissionType)}
		}
		return []mavlink.Message{l.requestItem(0, m.MissionType)}

	case *mavlink.MissionItemInt:
		next := int(m.Seq) + 1
		if next < l.expected {
			return []mavlink.Message{l.requestItem(next, m.MissionType)}
		}
		return []mavlink.Message{l.ack(m.MissionType)}

	case *mavlink.CommandLong:
		return []mavlink.Message{&mavlink.CommandAck{Command: m.Command, Result: l.commandResult}}

	case *mavlink.ParamSet:
		l.parameters[m.ParamID] = m.ParamValue
		return []mavlink.Message{&mavlink.ParamValue{
			ParamValue: m.ParamValue,
			ParamCount: uint16(len(l.parameters)),
			ParamIndex: 0xFFFF,
			ParamID:    m.ParamID,
			ParamType:  m.ParamType,
		}}
	}
	return nil
}

func (l *Loopback) requestItem(seq int, t mavlink.MissionType) mavlink.Message {
	return &mavlink.MissionRequestInt{Seq: uint16(seq), MissionType: t}
}

func (l *Loopback) ack(t mavlink.MissionType) mavlink.Message {
	return &mavlink.MissionAck{Type: l.missionResult, MissionType: t}
}

// Received returns every message sent to the autopilot, in order
func (l *Loopback) Received() []mavlink.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.received)
}

// Parameters returns the values set through PARAM_SET
func (l *Loopback) Parameters() map[string]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.parameters)
}

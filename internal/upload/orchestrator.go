package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/metrics"
)

const (
	// DefaultRequestTimeout bounds the wait for the next item request
	DefaultRequestTimeout = 10 * time.Second

	// DefaultPointGap separates pushed fence and rally frames
	DefaultPointGap = 50 * time.Millisecond

	// DefaultParamGap separates frames of the parameter broadcast
	DefaultParamGap = 10 * time.Millisecond

	// DefaultCommandTimeout bounds the wait for a COMMAND_ACK
	DefaultCommandTimeout = 3 * time.Second
)

// Transport delivers a framed message towards the vehicle
type Transport interface {
	Send(frame []byte) error
}

// TransportFunc adapts a function to Transport
type TransportFunc func(frame []byte) error

func (f TransportFunc) Send(frame []byte) error { return f(frame) }

// Timeouts groups the protocol timings
type Timeouts struct {
	Request  time.Duration
	PointGap time.Duration
	ParamGap time.Duration
	Command  time.Duration
}

// WithLogger sets the logger for the orchestrator
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger.With(slog.String("component", "upload"))
	}
}

// WithTransport binds the transport at construction time
func WithTransport(t Transport) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.transport = t
	}
}

// WithTimeouts overrides the protocol timings; zero fields keep their defaults
func WithTimeouts(t Timeouts) func(*Orchestrator) {
	return func(o *Orchestrator) {
		if t.Request > 0 {
			o.timeouts.Request = t.Request
		}
		if t.PointGap > 0 {
			o.timeouts.PointGap = t.PointGap
		}
		if t.ParamGap > 0 {
			o.timeouts.ParamGap = t.ParamGap
		}
		if t.Command > 0 {
			o.timeouts.Command = t.Command
		}
	}
}

// WithVehicleEncoder sets the encoder that frames messages on behalf of the
// vehicle, such as the parameter broadcast. By default a fresh encoder for
// the target system and component is used.
func WithVehicleEncoder(e *mavlink.Encoder) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.vehicle = e
	}
}

// WithMetrics records upload and command outcomes
func WithMetrics(m *metrics.Metrics) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator drives the request/acknowledge protocols the autopilot uses
// for mission items, geofence and rally points, parameters and commands.
// Outbound frames go through the bound Transport; inbound frames must be
// fed to HandleFrame. No lock is held while sending.
type Orchestrator struct {
	encoder         *mavlink.Encoder
	vehicle         *mavlink.Encoder
	targetSystem    uint8
	targetComponent uint8

	mu         sync.Mutex
	transport  Transport
	pending    map[mavlink.MissionType]*pendingUpload
	commands   map[mavlink.Command]chan mavlink.Result
	parameters map[string]float32

	timeouts Timeouts
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// pendingUpload is the state of one in-flight mission protocol exchange
type pendingUpload struct {
	missionType mavlink.MissionType
	count       int
	requests    chan uint16
	acks        chan mavlink.MissionResult
}

// New creates an Orchestrator that frames messages with encoder and
// addresses them to (targetSystem, targetComponent)
func New(encoder *mavlink.Encoder, targetSystem, targetComponent uint8, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		encoder:         encoder,
		targetSystem:    targetSystem,
		targetComponent: targetComponent,
		pending:         make(map[mavlink.MissionType]*pendingUpload),
		commands:        make(map[mavlink.Command]chan mavlink.Result),
		parameters:      make(map[string]float32),
		timeouts: Timeouts{
			Request:  DefaultRequestTimeout,
			PointGap: DefaultPointGap,
			ParamGap: DefaultParamGap,
			Command:  DefaultCommandTimeout,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&o)
	}

	if o.vehicle == nil {
		o.vehicle = mavlink.NewEncoder(targetSystem, targetComponent)
	}

	return &o
}

// Bind replaces the transport used for outbound frames. A nil transport
// makes every operation fail with NotConnected.
func (o *Orchestrator) Bind(t Transport) {
	o.mu.Lock()
	o.transport = t
	o.mu.Unlock()
}

// PendingUploads returns the number of uploads in flight
func (o *Orchestrator) PendingUploads() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Parameters returns the last value seen for every parameter, either
// reported by the vehicle or set by this orchestrator
func (o *Orchestrator) Parameters() map[string]float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return maps.Clone(o.parameters)
}

// HandleFrame consumes an inbound frame from the vehicle side
func (o *Orchestrator) HandleFrame(f *mavlink.Frame) error {
	return o.HandleMessage(f.Message())
}

// HandleMessage routes protocol replies to the exchange waiting for them.
// Messages nobody waits for are dropped; unsolicited mission
// acknowledgements are reported as ProtocolState.
func (o *Orchestrator) HandleMessage(msg mavlink.Message) error {
	switch m := msg.(type) {
	case *mavlink.MissionRequestInt:
		return o.request(m.MissionType, m.Seq)

	case *mavlink.MissionRequest:
		return o.request(m.MissionType, m.Seq)

	case *mavlink.MissionAck:
		o.mu.Lock()
		p := o.pending[m.MissionType]
		o.mu.Unlock()

		if p == nil {
			o.logger.Warn("unsolicited mission ack dropped",
				slog.String("type", m.MissionType.String()),
				slog.String("result", m.Type.String()))
			return fault.Errorf(fault.KindProtocolState, "upload.ack", "no %s upload in flight", m.MissionType)
		}
		select {
		case p.acks <- m.Type:
		default:
		}

	case *mavlink.CommandAck:
		o.mu.Lock()
		ch := o.commands[m.Command]
		o.mu.Unlock()

		if ch == nil {
			o.logger.Debug("unsolicited command ack dropped", slog.String("command", m.Command.String()))
			return nil
		}
		select {
		case ch <- m.Result:
		default:
		}

	case *mavlink.ParamValue:
		o.mu.Lock()
		o.parameters[m.ParamID] = m.ParamValue
		o.mu.Unlock()
	}

	return nil
}

func (o *Orchestrator) request(t mavlink.MissionType, seq uint16) error {
	o.mu.Lock()
	p := o.pending[t]
	o.mu.Unlock()

	if p == nil {
		o.logger.Warn("unsolicited mission request dropped", slog.String("type", t.String()), slog.Int("seq", int(seq)))
		return fault.Errorf(fault.KindProtocolState, "upload.request", "no %s upload in flight", t)
	}
	if int(seq) >= p.count {
		o.logger.Warn("out of range mission request ignored", slog.Int("seq", int(seq)), slog.Int("count", p.count))
		return fault.Errorf(fault.KindProtocolState, "upload.request", "seq %d out of range [0,%d)", seq, p.count)
	}

	select {
	case p.requests <- seq:
	default:
		o.logger.Warn("mission request backlog full, request dropped", slog.Int("seq", int(seq)))
	}
	return nil
}

// begin registers an upload of type t, refusing a second one of the same type
func (o *Orchestrator) begin(t mavlink.MissionType, count int) (*pendingUpload, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.transport == nil {
		return nil, fault.New(fault.KindNotConnected, "upload."+t.String(), "no transport bound")
	}
	if _, ok := o.pending[t]; ok {
		return nil, fault.Errorf(fault.KindProtocolState, "upload."+t.String(), "a %s upload is already in flight", t)
	}

	p := pendingUpload{
		missionType: t,
		count:       count,
		requests:    make(chan uint16, 16),
		acks:        make(chan mavlink.MissionResult, 1),
	}
	o.pending[t] = &p
	o.metrics.PendingUploads(len(o.pending))
	return &p, nil
}

func (o *Orchestrator) end(p *pendingUpload, err error) {
	o.mu.Lock()
	delete(o.pending, p.missionType)
	n := len(o.pending)
	o.mu.Unlock()

	o.metrics.PendingUploads(n)
	o.metrics.UploadFinished(p.missionType.String(), resultLabel(err))
}

// send frames msg and hands it to the bound transport
func (o *Orchestrator) send(op string, msg mavlink.Message) error {
	o.mu.Lock()
	t := o.transport
	o.mu.Unlock()

	if t == nil {
		return fault.New(fault.KindNotConnected, op, "no transport bound")
	}

	frame, err := o.encoder.Encode(msg)
	if err != nil {
		return err
	}
	if err := t.Send(frame); err != nil {
		return fault.Wrap(fault.KindIO, op, err)
	}
	return nil
}

// sleep waits for d unless ctx is cancelled first
func sleep(ctx context.Context, op string, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return cancelled(op, ctx)
	case <-timer.C:
		return nil
	}
}

func cancelled(op string, ctx context.Context) error {
	return fault.Wrap(fault.KindCancelled, op, ctx.Err())
}

func resultLabel(err error) string {
	if err == nil {
		return "accepted"
	}
	return fault.KindOf(err).String()
}

// MissionRejectedError carries the result of a non-accepted MISSION_ACK
type MissionRejectedError struct {
	MissionType mavlink.MissionType
	Result      mavlink.MissionResult
}

func (e *MissionRejectedError) Error() string {
	return fmt.Sprintf("%s upload rejected: %s", e.MissionType, e.Result)
}

// CommandRejectedError carries the result of a non-accepted COMMAND_ACK
type CommandRejectedError struct {
	Command mavlink.Command
	Result  mavlink.Result
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command %s rejected: %s", e.Command, e.Result)
}

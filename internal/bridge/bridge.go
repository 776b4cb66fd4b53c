package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tarm/serial"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/metrics"
)

const (
	DefaultQueueSize       = 1000
	DefaultOfferTimeout    = time.Second
	DefaultReconnectDelay  = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultReadTimeout     = 5 * time.Second

	// readBufferSize fits the largest MAVLink v1 frame
	readBufferSize = 263
)

// ErrAlreadyRunning is returned by Start on a running bridge
var ErrAlreadyRunning = errors.New("bridge is already running")

// Source tells which side of the bridge a frame arrived on
type Source uint8

const (
	SourceSerial Source = iota // autopilot
	SourceUDP                  // ground station
)

func (s Source) String() string {
	if s == SourceSerial {
		return "serial"
	}
	return "udp"
}

// FrameHandler observes every decoded frame crossing the bridge. It runs on
// the receiving goroutine and must not block.
type FrameHandler func(src Source, f *mavlink.Frame)

// Opener opens the serial port described by c
type Opener func(c *serial.Config) (io.ReadWriteCloser, error)

func openSerial(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

// Config describes both endpoints of the bridge
type Config struct {
	SerialEnabled bool
	SerialPort    string
	BaudRate      int
	ReadTimeout   time.Duration

	ListenPort int    // UDP port ground-station frames arrive on; 0 picks one
	PeerHost   string // ground station used until one is learnt
	PeerPort   int

	QueueSize       int
	OfferTimeout    time.Duration
	ReconnectDelay  time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.OfferTimeout <= 0 {
		c.OfferTimeout = DefaultOfferTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// WithLogger sets the logger for the bridge
func WithLogger(logger *slog.Logger) func(*Bridge) {
	return func(b *Bridge) {
		b.logger = logger.With(slog.String("component", "bridge"))
	}
}

// WithOpener replaces the serial port opener
func WithOpener(open Opener) func(*Bridge) {
	return func(b *Bridge) {
		b.open = open
	}
}

// WithFrameHandler taps every decoded frame
func WithFrameHandler(h FrameHandler) func(*Bridge) {
	return func(b *Bridge) {
		b.handler = h
	}
}

// WithBindHandler is called whenever a new ground-station address is learnt
func WithBindHandler(fn func(addr *net.UDPAddr)) func(*Bridge) {
	return func(b *Bridge) {
		b.onBind = fn
	}
}

// WithMetrics records traffic counters
func WithMetrics(m *metrics.Metrics) func(*Bridge) {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// Bridge forwards MAVLink frames between a serial autopilot and a UDP
// ground station. Serial frames go to the learnt ground-station address;
// datagrams are split into frames and queued for the serial writer. Each
// endpoint reconnects on its own after a failure.
type Bridge struct {
	config Config
	open   Opener

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	queue  chan []byte
	target atomic.Pointer[net.UDPAddr]
	peer   *net.UDPAddr

	mu   sync.Mutex
	conn *net.UDPConn
	port io.ReadWriteCloser

	framesIn, framesOut atomic.Uint64
	bytesIn, bytesOut   atomic.Uint64
	dropped             atomic.Uint64

	handler FrameHandler
	onBind  func(addr *net.UDPAddr)
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a stopped Bridge
func New(config Config, options ...func(*Bridge)) *Bridge {
	config.applyDefaults()

	b := Bridge{
		config: config,
		open:   openSerial,
		queue:  make(chan []byte, config.QueueSize),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&b)
	}

	return &b
}

// Start resolves the configured peer and launches the endpoint tasks. The
// returned channel is closed once every task has exited.
func (b *Bridge) Start(ctx context.Context) (<-chan struct{}, error) {
	if !b.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	if b.config.PeerHost != "" && b.config.PeerPort > 0 {
		peer, err := net.ResolveUDPAddr("udp", net.JoinHostPort(b.config.PeerHost, fmt.Sprint(b.config.PeerPort)))
		if err != nil {
			b.running.Store(false)
			return nil, fault.Wrap(fault.KindValidation, "bridge.start", err)
		}
		b.peer = peer
	}

	ctx, b.cancel = context.WithCancel(ctx)

	b.logger.Info("starting bridge",
		slog.Bool("serial", b.config.SerialEnabled),
		slog.String("port", b.config.SerialPort),
		slog.Int("listen", b.config.ListenPort))

	b.wg.Add(1)
	go b.receiveUDP(ctx)

	if b.config.SerialEnabled {
		b.wg.Add(2)
		go b.readSerial(ctx)
		go b.writeSerial(ctx)
	}

	stopped := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(stopped)
	}()

	return stopped, nil
}

// Stop shuts the bridge down and waits up to the shutdown timeout for its
// tasks to exit
func (b *Bridge) Stop() {
	if !b.running.Swap(false) {
		return
	}

	b.cancel()
	b.closeEndpoints()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(b.config.ShutdownTimeout):
		b.logger.Warn("bridge tasks did not exit in time", slog.Duration("timeout", b.config.ShutdownTimeout))
	}

	b.logger.Info("bridge stopped",
		slog.String("inbound", fmt.Sprintf("%s frames, %s", humanize.Comma(int64(b.framesIn.Load())), humanize.IBytes(b.bytesIn.Load()))),
		slog.String("outbound", fmt.Sprintf("%s frames, %s", humanize.Comma(int64(b.framesOut.Load())), humanize.IBytes(b.bytesOut.Load()))),
		slog.Uint64("dropped", b.dropped.Load()))
}

// IsRunning returns true between Start and Stop
func (b *Bridge) IsRunning() bool {
	return b.running.Load()
}

func (b *Bridge) closeEndpoints() {
	b.mu.Lock()
	conn, port := b.conn, b.port
	b.conn, b.port = nil, nil
	b.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if port != nil {
		_ = port.Close()
		b.metrics.SerialConnected(false)
	}
}

// SendToAutopilot queues frame for the serial writer, waiting up to the
// offer timeout for room
func (b *Bridge) SendToAutopilot(frame []byte) error {
	const op = "bridge.send_autopilot"

	if !b.running.Load() {
		return fault.New(fault.KindNotConnected, op, "bridge is not running")
	}
	if !b.config.SerialEnabled {
		return fault.New(fault.KindNotConnected, op, "serial link is disabled")
	}
	if !b.offer(frame) {
		return fault.New(fault.KindTimeout, op, "outbound queue full")
	}
	return nil
}

// SendToGroundStation writes frame to the learnt ground station, or to the
// configured one when none has been learnt yet
func (b *Bridge) SendToGroundStation(frame []byte) error {
	const op = "bridge.send_ground_station"

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return fault.New(fault.KindNotConnected, op, "udp socket is not open")
	}

	addr := b.Target()
	if addr == nil {
		return fault.New(fault.KindNotConnected, op, "no ground station address")
	}

	n, err := conn.WriteToUDP(frame, addr)
	if err != nil {
		return fault.Wrap(fault.KindIO, op, err)
	}

	b.framesIn.Add(1)
	b.bytesIn.Add(uint64(n))
	b.metrics.FrameForwarded(metrics.Inbound, n)
	return nil
}

// offer puts frame on the outbound queue unless it stays full for the
// offer timeout
func (b *Bridge) offer(frame []byte) bool {
	select {
	case b.queue <- frame:
		b.metrics.QueueDepth(len(b.queue))
		return true
	default:
	}

	timer := time.NewTimer(b.config.OfferTimeout)
	defer timer.Stop()

	select {
	case b.queue <- frame:
		b.metrics.QueueDepth(len(b.queue))
		return true
	case <-timer.C:
	}

	b.dropped.Add(1)
	b.metrics.FrameDropped("queue_full")
	b.logger.Warn("outbound queue full, frame dropped", slog.Int("size", len(frame)))
	return false
}

// Target returns the ground-station address frames are sent to
func (b *Bridge) Target() *net.UDPAddr {
	if addr := b.target.Load(); addr != nil {
		return addr
	}
	return b.peer
}

// learn records src as the ground station and reports whether it changed
func (b *Bridge) learn(src *net.UDPAddr) bool {
	current := b.target.Load()
	if current != nil && sameAddr(current, src) {
		return false
	}
	b.target.Store(src)
	return true
}

// sleep waits for d; it returns false when ctx is done first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tarm/serial"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
)

// fakePort is an in-memory serial port. Reads block until data is pushed,
// the port fails or it is closed.
type fakePort struct {
	rx     chan []byte
	tx     chan []byte
	fail   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		rx:     make(chan []byte, 16),
		tx:     make(chan []byte, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.rx:
		return copy(b, data), nil
	case err := <-p.fail:
		return 0, err
	case <-p.closed:
		return 0, io.ErrClosedPipe
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.tx <- bytes.Clone(b)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// heartbeats returns n consecutive HEARTBEAT frames
func heartbeats(n int) [][]byte {
	e := mavlink.NewEncoder(1, 1)
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = e.EncodeHeartbeat(&mavlink.Heartbeat{Type: mavlink.TypeQuadrotor, Autopilot: mavlink.AutopilotArduPilotMega, MavlinkVersion: 3})
	}
	return frames
}

// groundStation opens a local UDP socket standing in for MAVProxy
func groundStation(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func startBridge(t *testing.T, config Config, options ...func(*Bridge)) *Bridge {
	t.Helper()

	b := New(config, options...)
	if _, err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(b.Stop)

	deadline := time.Now().Add(time.Second)
	for b.Diagnostics().ListenerPort == 0 {
		if time.Now().After(deadline) {
			t.Fatal("udp listener did not open")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return b
}

func TestBridge_SerialToGroundStation(t *testing.T) {
	gs := groundStation(t)
	port := newFakePort()

	var tapped atomic.Int32
	b := startBridge(t, Config{
		SerialEnabled: true,
		SerialPort:    "/dev/fake",
		BaudRate:      57600,
		PeerHost:      "127.0.0.1",
		PeerPort:      gs.LocalAddr().(*net.UDPAddr).Port,
	},
		WithOpener(func(c *serial.Config) (io.ReadWriteCloser, error) { return port, nil }),
		WithFrameHandler(func(src Source, f *mavlink.Frame) {
			if src == SourceSerial && f.MessageID == mavlink.MsgIDHeartbeat {
				tapped.Add(1)
			}
		}),
	)

	frame := heartbeats(1)[0]
	port.rx <- append([]byte{0x00, 0x13}, frame[:5]...)
	port.rx <- frame[5:]

	_ = gs.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 512)
	n, _, err := gs.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ground station read: %v", err)
	}
	if !bytes.Equal(buf[:n], frame) {
		t.Errorf("expected the frame verbatim, got % x", buf[:n])
	}
	if tapped.Load() != 1 {
		t.Errorf("expected one tapped heartbeat, got %d", tapped.Load())
	}

	d := b.Diagnostics()
	if !d.SerialConnected || d.FramesInbound != 1 || d.TargetLearnt {
		t.Errorf("unexpected diagnostics %+v", d)
	}
}

func TestBridge_GroundStationToSerial(t *testing.T) {
	gs := groundStation(t)
	port := newFakePort()

	bound := make(chan *net.UDPAddr, 4)
	b := startBridge(t, Config{SerialEnabled: true},
		WithOpener(func(c *serial.Config) (io.ReadWriteCloser, error) { return port, nil }),
		WithBindHandler(func(addr *net.UDPAddr) { bound <- addr }),
	)

	hb := heartbeats(2)
	first, second := hb[0], hb[1]
	datagram := append(bytes.Clone(first), second...)

	listener := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.Diagnostics().ListenerPort}
	if _, err := gs.WriteToUDP(datagram, listener); err != nil {
		t.Fatalf("ground station write: %v", err)
	}

	for i, want := range [][]byte{first, second} {
		select {
		case got := <-port.tx:
			if !bytes.Equal(got, want) {
				t.Errorf("frame %d: expected % x, got % x", i, want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %d was not written to serial", i)
		}
	}

	select {
	case addr := <-bound:
		if addr.Port != gs.LocalAddr().(*net.UDPAddr).Port {
			t.Errorf("bound to %s, expected the ground station", addr)
		}
	case <-time.After(time.Second):
		t.Fatal("bind handler was not called")
	}

	if _, err := gs.WriteToUDP(first, listener); err != nil {
		t.Fatalf("ground station write: %v", err)
	}
	<-port.tx

	select {
	case addr := <-bound:
		t.Errorf("same source must not rebind, got %s", addr)
	default:
	}

	if d := b.Diagnostics(); !d.TargetLearnt || d.TargetPort != gs.LocalAddr().(*net.UDPAddr).Port {
		t.Errorf("unexpected diagnostics %+v", d)
	}
}

func TestBridge_FrameSplitAcrossDatagrams(t *testing.T) {
	gs := groundStation(t)
	other := groundStation(t)
	port := newFakePort()

	b := startBridge(t, Config{SerialEnabled: true},
		WithOpener(func(c *serial.Config) (io.ReadWriteCloser, error) { return port, nil }),
	)
	listener := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.Diagnostics().ListenerPort}

	send := func(conn *net.UDPConn, data []byte) {
		t.Helper()
		if _, err := conn.WriteToUDP(data, listener); err != nil {
			t.Fatalf("ground station write: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	hb := heartbeats(3)

	t.Run("same sender", func(t *testing.T) {
		send(gs, hb[0][:7])
		send(gs, hb[0][7:])

		select {
		case got := <-port.tx:
			if !bytes.Equal(got, hb[0]) {
				t.Errorf("expected % x, got % x", hb[0], got)
			}
		case <-time.After(time.Second):
			t.Fatal("reassembled frame was not written to serial")
		}
	})

	t.Run("sender change drops the partial frame", func(t *testing.T) {
		send(gs, hb[1][:7])
		send(other, hb[2])

		select {
		case got := <-port.tx:
			if !bytes.Equal(got, hb[2]) {
				t.Errorf("expected the second sender's frame, got % x", got)
			}
		case <-time.After(time.Second):
			t.Fatal("frame from the new sender was not written to serial")
		}

		select {
		case got := <-port.tx:
			t.Errorf("unexpected frame % x", got)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestBridge_SerialReconnect(t *testing.T) {
	var opens atomic.Int32
	ports := make(chan *fakePort, 4)

	startBridge(t, Config{SerialEnabled: true, ReconnectDelay: 10 * time.Millisecond},
		WithOpener(func(c *serial.Config) (io.ReadWriteCloser, error) {
			if opens.Add(1) == 1 {
				return nil, errors.New("no such device")
			}
			p := newFakePort()
			ports <- p
			return p, nil
		}),
	)

	var first *fakePort
	select {
	case first = <-ports:
	case <-time.After(time.Second):
		t.Fatal("serial port was never opened")
	}

	first.fail <- errors.New("device unplugged")

	select {
	case <-ports:
	case <-time.After(time.Second):
		t.Fatal("serial port was not reopened after a read error")
	}

	if n := opens.Load(); n != 3 {
		t.Errorf("expected 3 open attempts, got %d", n)
	}
}

func TestBridge_OfferTimeout(t *testing.T) {
	b := New(Config{QueueSize: 1, OfferTimeout: 20 * time.Millisecond})

	if !b.offer([]byte{1}) {
		t.Fatal("first offer should fit")
	}

	start := time.Now()
	if b.offer([]byte{2}) {
		t.Fatal("second offer should not fit")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("offer gave up after %s", elapsed)
	}
	if d := b.Diagnostics(); d.FramesDropped != 1 || d.QueueDepth != 1 {
		t.Errorf("unexpected diagnostics %+v", d)
	}
}

func TestBridge_NotRunning(t *testing.T) {
	b := New(Config{SerialEnabled: true})

	if err := b.SendToAutopilot([]byte{0xFE}); !errors.Is(err, fault.ErrNotConnected) {
		t.Errorf("expected not connected, got %v", err)
	}
	if err := b.SendToGroundStation([]byte{0xFE}); !errors.Is(err, fault.ErrNotConnected) {
		t.Errorf("expected not connected, got %v", err)
	}

	b.Stop()
}

func TestBridge_Lifecycle(t *testing.T) {
	b := New(Config{ShutdownTimeout: time.Second})

	stopped, err := b.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected already running, got %v", err)
	}

	b.Stop()
	b.Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("tasks did not exit")
	}
	if b.IsRunning() {
		t.Error("bridge still reports running")
	}
}

func TestBridge_ConcurrentStart(t *testing.T) {
	b := New(Config{ShutdownTimeout: time.Second})
	t.Cleanup(b.Stop)

	const n = 8
	var (
		wg      sync.WaitGroup
		started atomic.Int32
		refused atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Start(context.Background())
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrAlreadyRunning):
				refused.Add(1)
			}
		}()
	}
	wg.Wait()

	if started.Load() != 1 || refused.Load() != n-1 {
		t.Errorf("expected 1 start and %d refusals, got %d and %d", n-1, started.Load(), refused.Load())
	}
}

func TestBridge_StartFailureCanRetry(t *testing.T) {
	b := New(Config{PeerHost: "127.0.0.1", PeerPort: 70000})

	if _, err := b.Start(context.Background()); !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if b.IsRunning() {
		t.Error("a failed start left the bridge running")
	}
}

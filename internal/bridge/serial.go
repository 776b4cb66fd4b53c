package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/tarm/serial"

	"github.com/roman-kulish/uav-ground-control/internal/fault"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/metrics"
)

// readSerial keeps the serial port open and forwards every decoded frame
// to the ground station. A read error closes the port and schedules a
// reconnect; the UDP side is unaffected.
func (b *Bridge) readSerial(ctx context.Context) {
	defer b.wg.Done()

	logger := b.logger.With(slog.String("port", b.config.SerialPort))
	decoder := mavlink.NewDecoder(mavlink.WithErrorHook(b.decodeError))
	buf := make([]byte, readBufferSize)

	for ctx.Err() == nil {
		port, err := b.connectSerial()
		if err != nil {
			logger.Error("failed to open serial port", slog.String("error", err.Error()),
				slog.Duration("retry", b.config.ReconnectDelay))
			b.metrics.Reconnect("serial")

			if !sleep(ctx, b.config.ReconnectDelay) {
				return
			}
			continue
		}

		logger.Info("serial port open", slog.Int("baud", b.config.BaudRate))

		err = b.pumpSerial(ctx, port, decoder, buf)
		b.dropSerial(port)
		decoder.Reset()

		if ctx.Err() != nil {
			return
		}

		logger.Error("serial link lost", slog.String("error", err.Error()),
			slog.Duration("retry", b.config.ReconnectDelay))
		b.metrics.Reconnect("serial")

		if !sleep(ctx, b.config.ReconnectDelay) {
			return
		}
	}
}

func (b *Bridge) connectSerial() (io.ReadWriteCloser, error) {
	port, err := b.open(&serial.Config{
		Name:        b.config.SerialPort,
		Baud:        b.config.BaudRate,
		ReadTimeout: b.config.ReadTimeout,
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, "bridge.open_serial", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running.Load() {
		_ = port.Close()
		return nil, fault.New(fault.KindCancelled, "bridge.open_serial", "bridge stopped")
	}

	b.port = port
	b.metrics.SerialConnected(true)
	return port, nil
}

func (b *Bridge) dropSerial(port io.ReadWriteCloser) {
	b.mu.Lock()
	if b.port == port {
		b.port = nil
	}
	b.mu.Unlock()

	_ = port.Close()
	b.metrics.SerialConnected(false)
}

// pumpSerial reads until the port fails. A read timeout surfaces as io.EOF
// and is not a failure.
func (b *Bridge) pumpSerial(ctx context.Context, port io.Reader, decoder *mavlink.Decoder, buf []byte) error {
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if n > 0 {
			_, _ = decoder.Write(buf[:n])
			for f := range decoder.Frames() {
				b.forwardInbound(f)
			}
		}

		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return ctx.Err()
}

func (b *Bridge) forwardInbound(f *mavlink.Frame) {
	if b.handler != nil {
		b.handler(SourceSerial, f)
	}

	if err := b.SendToGroundStation(f.Bytes()); err != nil {
		reason := "udp_error"
		if errors.Is(err, fault.ErrNotConnected) {
			reason = "no_ground_station"
		}
		b.dropped.Add(1)
		b.metrics.FrameDropped(reason)
		b.logger.Debug("inbound frame dropped", slog.String("frame", f.String()), slog.String("error", err.Error()))
	}
}

// writeSerial drains the outbound queue to the serial port in order
func (b *Bridge) writeSerial(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-b.queue:
			b.metrics.QueueDepth(len(b.queue))

			b.mu.Lock()
			port := b.port
			b.mu.Unlock()

			if port == nil {
				b.dropped.Add(1)
				b.metrics.FrameDropped("serial_down")
				b.logger.Debug("serial port closed, outbound frame dropped")
				continue
			}

			n, err := port.Write(frame)
			if err != nil {
				b.dropped.Add(1)
				b.metrics.FrameDropped("write_error")
				b.logger.Warn("serial write failed", slog.String("error", err.Error()))
				continue
			}

			b.framesOut.Add(1)
			b.bytesOut.Add(uint64(n))
			b.metrics.FrameForwarded(metrics.Outbound, n)
		}
	}
}

func (b *Bridge) decodeError(err error) {
	kind := "other"
	switch {
	case errors.Is(err, mavlink.ErrBadCRC):
		kind = "bad_crc"
	case errors.Is(err, mavlink.ErrBadLength):
		kind = "bad_length"
	}
	b.metrics.DecodeError(kind)
	b.logger.Debug("malformed frame dropped", slog.String("reason", kind))
}

package bridge

import (
	"context"
	"log/slog"
	"net"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
)

const maxDatagramSize = 65535

// receiveUDP keeps the listener open. The sender of each datagram becomes
// the ground station; its frames are tapped and queued for the autopilot.
func (b *Bridge) receiveUDP(ctx context.Context) {
	defer b.wg.Done()

	decoder := mavlink.NewDecoder(mavlink.WithErrorHook(b.decodeError))
	buf := make([]byte, maxDatagramSize)

	for ctx.Err() == nil {
		conn, err := b.listen()
		if err != nil {
			b.logger.Error("failed to open udp listener", slog.String("error", err.Error()),
				slog.Duration("retry", b.config.ReconnectDelay))
			b.metrics.Reconnect("udp")

			if !sleep(ctx, b.config.ReconnectDelay) {
				return
			}
			continue
		}

		b.logger.Info("udp listener open", slog.String("address", conn.LocalAddr().String()))

		err = b.serveUDP(conn, decoder, buf)

		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		b.logger.Error("udp listener failed", slog.String("error", err.Error()),
			slog.Duration("retry", b.config.ReconnectDelay))
		b.metrics.Reconnect("udp")

		if !sleep(ctx, b.config.ReconnectDelay) {
			return
		}
	}
}

func (b *Bridge) listen() (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: b.config.ListenPort})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running.Load() {
		_ = conn.Close()
		return nil, net.ErrClosed
	}

	b.conn = conn
	return conn, nil
}

// serveUDP keeps partial frames buffered between datagrams of the same
// sender, so a frame split across datagrams is reassembled. Bytes left by
// another sender are dropped.
func (b *Bridge) serveUDP(conn *net.UDPConn, decoder *mavlink.Decoder, buf []byte) error {
	decoder.Reset()

	var last *net.UDPAddr
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}

		if last != nil && !sameAddr(last, src) {
			if rest := decoder.Buffered(); rest > 0 {
				b.logger.Debug("partial frame dropped on sender change",
					slog.Int("bytes", rest), slog.String("previous", last.String()))
			}
			decoder.Reset()
		}
		last = src

		if b.learn(src) {
			b.logger.Info("ground station bound", slog.String("address", src.String()))
			if b.onBind != nil {
				b.onBind(src)
			}
		}

		_, _ = decoder.Write(buf[:n])

		for f := range decoder.Frames() {
			if b.handler != nil {
				b.handler(SourceUDP, f)
			}
			if b.config.SerialEnabled {
				b.offer(f.Bytes())
			}
		}
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

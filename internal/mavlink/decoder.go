package mavlink

import (
	"bytes"
	"errors"
	"iter"
)

// Stats counts what a Decoder has seen since it was created
type Stats struct {
	Frames     uint64 // complete frames emitted
	Discarded  uint64 // bytes skipped while looking for a start byte
	BadLength  uint64
	BadCRC     uint64
	ShortFrame uint64 // incomplete frames left for the next write
}

// Decoder is a streaming frame parser. Bytes are appended with Write and
// complete frames are pulled with Frames; whatever cannot be decoded yet
// stays buffered for the next Write. A Decoder is not safe for concurrent
// use.
type Decoder struct {
	buf   []byte
	stats Stats

	onError func(error)
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithErrorHook registers a callback invoked for every candidate frame the
// decoder drops. The error is one of ErrBadLength or ErrBadCRC.
func WithErrorHook(fn func(error)) DecoderOption {
	return func(d *Decoder) {
		d.onError = fn
	}
}

// NewDecoder creates an empty Decoder
func NewDecoder(options ...DecoderOption) *Decoder {
	d := Decoder{}
	for _, option := range options {
		option(&d)
	}
	return &d
}

// Write appends p to the internal buffer. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Frames returns a lazy sequence of the frames currently decodable from
// the buffer. Stopping the iteration early keeps the remaining bytes.
func (d *Decoder) Frames() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for {
			f := d.next()
			if f == nil {
				return
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Buffered returns the number of bytes waiting for more input
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Residual returns a copy of the bytes waiting for more input
func (d *Decoder) Residual() []byte {
	return bytes.Clone(d.buf)
}

// Reset drops any buffered bytes
func (d *Decoder) Reset() {
	d.buf = nil
}

// Stats returns a snapshot of the decoder counters
func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) next() *Frame {
	for {
		i := bytes.IndexByte(d.buf, StartByte)
		if i < 0 {
			d.stats.Discarded += uint64(len(d.buf))
			d.buf = d.buf[:0]
			return nil
		}
		if i > 0 {
			d.stats.Discarded += uint64(i)
			d.buf = d.buf[i:]
		}

		f, err := DecodeFrame(d.buf)
		switch {
		case err == nil:
			d.buf = d.buf[len(f.raw):]
			if len(d.buf) == 0 {
				d.buf = nil
			}
			d.stats.Frames++
			return f

		case errors.Is(err, ErrShortFrame):
			d.stats.ShortFrame++
			return nil

		default:
			if errors.Is(err, ErrBadCRC) {
				d.stats.BadCRC++
			} else {
				d.stats.BadLength++
			}
			if d.onError != nil {
				d.onError(err)
			}
			d.buf = d.buf[1:] // resume one byte past the rejected start byte
		}
	}
}

// Parse decodes every complete frame in data and returns the bytes that
// belong to an incomplete trailing frame. Prepend the residual to the next
// chunk of input to continue decoding a stream.
func Parse(data []byte) (frames []*Frame, residual []byte) {
	d := Decoder{buf: bytes.Clone(data)}
	for f := range d.Frames() {
		frames = append(frames, f)
	}
	return frames, d.buf
}

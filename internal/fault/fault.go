package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of the component that produced it
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIO
	KindFrameFormat
	KindProtocolState
	KindValidation
	KindNotConnected
	KindTimeout
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindFrameFormat:
		return "frame format"
	case KindProtocolState:
		return "protocol state"
	case KindValidation:
		return "validation"
	case KindNotConnected:
		return "not connected"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinel values, one per kind, for use with errors.Is
var (
	ErrIO            = &Error{Kind: KindIO}
	ErrFrameFormat   = &Error{Kind: KindFrameFormat}
	ErrProtocolState = &Error{Kind: KindProtocolState}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotConnected  = &Error{Kind: KindNotConnected}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrCancelled     = &Error{Kind: KindCancelled}
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates a classified error from a message
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Errorf creates a classified error from a format string; %w is honoured
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare per-kind sentinels, so errors.Is(err, ErrTimeout)
// holds for any timeout regardless of where it was raised.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

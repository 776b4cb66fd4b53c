package autopilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
)

func run(t *testing.T, options ...func(*Loopback)) (*Loopback, <-chan mavlink.Message) {
	t.Helper()

	out := make(chan mavlink.Message, 16)
	l := New(1, 1, func(f *mavlink.Frame) { out <- f.Message() }, options...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = l.Run(ctx) }()

	return l, out
}

func send(t *testing.T, l *Loopback, msg mavlink.Message) {
	t.Helper()

	b, err := mavlink.NewEncoder(255, 190).Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := l.Send(b); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func receive(t *testing.T, out <-chan mavlink.Message) mavlink.Message {
	t.Helper()
	select {
	case m := <-out:
		return m
	case <-time.After(time.Second):
		t.Fatal("no reply")
		return nil
	}
}

func TestLoopback_MissionExchange(t *testing.T) {
	l, out := run(t)

	send(t, l, &mavlink.MissionCount{Count: 2})
	if req := receive(t, out).(*mavlink.MissionRequestInt); req.Seq != 0 {
		t.Fatalf("expected request for 0, got %d", req.Seq)
	}

	send(t, l, &mavlink.MissionItemInt{Seq: 0})
	if req := receive(t, out).(*mavlink.MissionRequestInt); req.Seq != 1 {
		t.Fatalf("expected request for 1, got %d", req.Seq)
	}

	send(t, l, &mavlink.MissionItemInt{Seq: 1})
	if ack := receive(t, out).(*mavlink.MissionAck); ack.Type != mavlink.MissionAccepted {
		t.Fatalf("expected accepted, got %s", ack.Type)
	}

	if n := len(l.Received()); n != 3 {
		t.Errorf("expected 3 recorded messages, got %d", n)
	}
}

func TestLoopback_Replies(t *testing.T) {
	t.Run("command", func(t *testing.T) {
		l, out := run(t, WithCommandResult(mavlink.ResultFailed))

		send(t, l, &mavlink.CommandLong{Command: mavlink.CmdNavTakeoff})
		ack := receive(t, out).(*mavlink.CommandAck)
		if ack.Command != mavlink.CmdNavTakeoff || ack.Result != mavlink.ResultFailed {
			t.Fatalf("unexpected ack %#v", ack)
		}
	})

	t.Run("parameter echo", func(t *testing.T) {
		l, out := run(t)

		send(t, l, &mavlink.ParamSet{ParamID: "RTL_ALT", ParamValue: 15, ParamType: mavlink.ParamTypeReal32})
		pv := receive(t, out).(*mavlink.ParamValue)
		if pv.ParamID != "RTL_ALT" || pv.ParamValue != 15 {
			t.Fatalf("unexpected echo %#v", pv)
		}
		if got := l.Parameters()["RTL_ALT"]; got != 15 {
			t.Errorf("expected stored value 15, got %v", got)
		}
	})

	t.Run("silent", func(t *testing.T) {
		l, out := run(t, WithSilence())

		send(t, l, &mavlink.MissionCount{Count: 1})
		select {
		case m := <-out:
			t.Fatalf("expected no reply, got %T", m)
		case <-time.After(20 * time.Millisecond):
		}
	})
}

func TestLoopback_Backlog(t *testing.T) {
	l := New(1, 1, func(*mavlink.Frame) {})

	b, _ := mavlink.NewEncoder(255, 190).Encode(&mavlink.CommandLong{Command: mavlink.CmdNavLand})

	var err error
	for i := 0; i <= backlog && err == nil; i++ {
		err = l.Send(b)
	}
	if !errors.Is(err, ErrBacklogFull) {
		t.Fatalf("expected backlog full without a running pump, got %v", err)
	}
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FrameForwarded(Inbound, 17)
	m.FrameForwarded(Inbound, 30)
	m.FrameDropped("queue_full")
	m.UploadFinished("mission", "accepted")
	m.SerialConnected(true)
	m.QueueDepth(4)

	if v := testutil.ToFloat64(m.framesForwarded.WithLabelValues(Inbound)); v != 2 {
		t.Errorf("expected 2 inbound frames, got %v", v)
	}
	if v := testutil.ToFloat64(m.bytesForwarded.WithLabelValues(Inbound)); v != 47 {
		t.Errorf("expected 47 inbound bytes, got %v", v)
	}
	if v := testutil.ToFloat64(m.framesDropped.WithLabelValues("queue_full")); v != 1 {
		t.Errorf("expected 1 dropped frame, got %v", v)
	}
	if v := testutil.ToFloat64(m.uploads.WithLabelValues("mission", "accepted")); v != 1 {
		t.Errorf("expected 1 upload, got %v", v)
	}
	if v := testutil.ToFloat64(m.serialConnected); v != 1 {
		t.Errorf("expected serial connected gauge 1, got %v", v)
	}
	if v := testutil.ToFloat64(m.queueDepth); v != 4 {
		t.Errorf("expected queue depth 4, got %v", v)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	m.FrameForwarded(Outbound, 10)
	m.FrameDropped("x")
	m.DecodeError("bad crc")
	m.Reconnect("serial")
	m.PendingUploads(1)
	m.CommandFinished("ARM", "accepted")
	m.EngineTick("IDLE", 100)
	m.VehiclesConnected(2)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Reconnect("serial")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), `groundcontrol_bridge_reconnects_total{endpoint="serial"} 1`) {
		t.Errorf("reconnect counter missing from exposition:\n%s", body)
	}
}

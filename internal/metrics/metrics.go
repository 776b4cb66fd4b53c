package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groundcontrol"

// Directions a frame can travel through the bridge
const (
	Inbound  = "inbound"  // autopilot to ground station
	Outbound = "outbound" // ground station to autopilot
)

// Metrics holds every collector of the process on a private registry. A nil
// *Metrics is valid and records nothing, so components can take it as an
// optional dependency.
type Metrics struct {
	registry *prometheus.Registry

	framesForwarded *prometheus.CounterVec
	bytesForwarded  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	serialConnected prometheus.Gauge

	uploads        *prometheus.CounterVec
	pendingUploads prometheus.Gauge
	commands       *prometheus.CounterVec

	engineTicks     *prometheus.CounterVec
	battery         prometheus.Gauge
	vehiclesVisible prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := Metrics{
		registry: prometheus.NewRegistry(),

		framesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "frames_forwarded_total",
			Help:      "MAVLink frames forwarded by the bridge.",
		}, []string{"direction"}),
		bytesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "bytes_forwarded_total",
			Help:      "Bytes forwarded by the bridge.",
		}, []string{"direction"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "frames_dropped_total",
			Help:      "MAVLink frames dropped by the bridge.",
		}, []string{"reason"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "decode_errors_total",
			Help:      "Candidate frames rejected by the decoder.",
		}, []string{"kind"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "reconnects_total",
			Help:      "Endpoint reconnection attempts.",
		}, []string{"endpoint"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "outbound_queue_depth",
			Help:      "Frames waiting to be written to the serial port.",
		}),
		serialConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "serial_connected",
			Help:      "1 when the serial port is open.",
		}),

		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "finished_total",
			Help:      "Finished uploads by list type and result.",
		}, []string{"type", "result"}),
		pendingUploads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "pending",
			Help:      "Uploads in flight.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "commands_total",
			Help:      "COMMAND_LONG exchanges by command and result.",
		}, []string{"command", "result"}),

		engineTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Execution engine ticks by state.",
		}, []string{"state"}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "battery_percent",
			Help:      "Battery remaining as last reported.",
		}),
		vehiclesVisible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vehicle",
			Name:      "connected",
			Help:      "Vehicles with a recent heartbeat.",
		}),
	}

	m.registry.MustRegister(
		m.framesForwarded,
		m.bytesForwarded,
		m.framesDropped,
		m.decodeErrors,
		m.reconnects,
		m.queueDepth,
		m.serialConnected,
		m.uploads,
		m.pendingUploads,
		m.commands,
		m.engineTicks,
		m.battery,
		m.vehiclesVisible,
	)

	return &m
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameForwarded(direction string, size int) {
	if m == nil {
		return
	}
	m.framesForwarded.WithLabelValues(direction).Inc()
	m.bytesForwarded.WithLabelValues(direction).Add(float64(size))
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) DecodeError(kind string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Reconnect(endpoint string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SerialConnected(connected bool) {
	if m == nil {
		return
	}
	m.serialConnected.Set(boolToFloat(connected))
}

func (m *Metrics) UploadFinished(listType, result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(listType, result).Inc()
}

func (m *Metrics) PendingUploads(n int) {
	if m == nil {
		return
	}
	m.pendingUploads.Set(float64(n))
}

func (m *Metrics) CommandFinished(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) EngineTick(state string, battery float64) {
	if m == nil {
		return
	}
	m.engineTicks.WithLabelValues(state).Inc()
	m.battery.Set(battery)
}

func (m *Metrics) VehiclesConnected(n int) {
	if m == nil {
		return
	}
	m.vehiclesVisible.Set(float64(n))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

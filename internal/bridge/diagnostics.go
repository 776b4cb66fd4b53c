package bridge

import "net"

// Diagnostics is a point-in-time view of the bridge
type Diagnostics struct {
	Running         bool   `json:"running"`
	SerialConnected bool   `json:"serialConnected"`
	TargetLearnt    bool   `json:"targetLearnt"`
	TargetAddress   string `json:"targetAddress,omitempty"`
	TargetPort      int    `json:"targetPort,omitempty"`
	ListenerPort    int    `json:"listenerPort"`
	PendingUploads  int    `json:"pendingUploads"`

	FramesInbound  uint64 `json:"framesInbound"`
	FramesOutbound uint64 `json:"framesOutbound"`
	BytesInbound   uint64 `json:"bytesInbound"`
	BytesOutbound  uint64 `json:"bytesOutbound"`
	FramesDropped  uint64 `json:"framesDropped"`
	QueueDepth     int    `json:"queueDepth"`
}

// Diagnostics reports the bridge state. PendingUploads is left for the
// caller that owns the upload orchestrator.
func (b *Bridge) Diagnostics() Diagnostics {
	d := Diagnostics{
		Running:        b.running.Load(),
		TargetLearnt:   b.target.Load() != nil,
		FramesInbound:  b.framesIn.Load(),
		FramesOutbound: b.framesOut.Load(),
		BytesInbound:   b.bytesIn.Load(),
		BytesOutbound:  b.bytesOut.Load(),
		FramesDropped:  b.dropped.Load(),
		QueueDepth:     len(b.queue),
		ListenerPort:   b.config.ListenPort,
	}

	if addr := b.Target(); addr != nil {
		d.TargetAddress = addr.IP.String()
		d.TargetPort = addr.Port
	}

	b.mu.Lock()
	d.SerialConnected = b.port != nil
	if b.conn != nil {
		if local, ok := b.conn.LocalAddr().(*net.UDPAddr); ok {
			d.ListenerPort = local.Port
		}
	}
	b.mu.Unlock()

	return d
}

// Package metrics exposes every counter carried in ReceiverState and
// ServerState (spec.md section 3) as Prometheus collectors, so an operator
// can scrape /metrics instead of tailing the event bus. Grounded on the
// runZeroInc-sockstats retrieval-pack repo's use of
// github.com/prometheus/client_golang for per-connection TCP statistics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// UDPReceiver holds the collectors for one UDP Stream Receiver instance.
type UDPReceiver struct {
	PacketsReceived       prometheus.Counter
	PacketsAccepted       prometheus.Counter
	PacketsInvalid        prometheus.Counter
	PacketsDuplicate      prometheus.Counter
	PacketsStreamMismatch prometheus.Counter
	FramesCompleted       prometheus.Counter
	FramesDroppedTimeout  prometheus.Counter
	FramesDroppedQueue    prometheus.Counter
	FramesDroppedLate     prometheus.Counter
	FramesDroppedGap      prometheus.Counter
	MissingChunks         prometheus.Counter
	KeyframesCompleted    prometheus.Counter
	BytesReassembled      prometheus.Counter
	SeqGapFrames          prometheus.Counter
	JitterMs              prometheus.Gauge
	PendingFrames         prometheus.Gauge
	LossPct               prometheus.Gauge
	FpsAssembled          prometheus.Gauge
	BitrateKbps           prometheus.Gauge
}

// NewUDPReceiver registers a fresh set of collectors on reg. Pass a
// distinct reg (prometheus.NewRegistry()) per receiver instance if more
// than one could ever run in the same process.
func NewUDPReceiver(reg prometheus.Registerer, namespace string) *UDPReceiver {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: "udp_receiver", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "udp_receiver", Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}

	return &UDPReceiver{
		PacketsReceived:       counter("packets_received_total", "datagrams read off the socket"),
		PacketsAccepted:       counter("packets_accepted_total", "datagrams placed into a pending frame"),
		PacketsInvalid:        counter("packets_invalid_total", "datagrams that failed framing validation"),
		PacketsDuplicate:      counter("packets_duplicate_total", "duplicate chunk indices"),
		PacketsStreamMismatch: counter("packets_stream_mismatch_total", "datagrams for the wrong stream id"),
		FramesCompleted:       counter("frames_completed_total", "fully reassembled frames emitted"),
		FramesDroppedTimeout:  counter("frames_dropped_timeout_total", "frames evicted for exceeding max age"),
		FramesDroppedQueue:    counter("frames_dropped_queue_total", "frames evicted for pending-queue overflow"),
		FramesDroppedLate:     counter("frames_dropped_late_total", "datagrams behind the last delivered sequence"),
		FramesDroppedGap:      counter("frames_dropped_gap_total", "frames evicted by a forward sequence gap"),
		MissingChunks:         counter("missing_chunks_total", "chunks never received across all eviction paths"),
		KeyframesCompleted:    counter("keyframes_completed_total", "completed frames with the keyframe flag set"),
		BytesReassembled:      counter("bytes_reassembled_total", "payload bytes delivered in completed frames"),
		SeqGapFrames:          counter("seq_gap_frames_total", "sequence numbers skipped over by gap eviction"),
		JitterMs:              gauge("jitter_ms", "exponentially smoothed one-way transit jitter"),
		PendingFrames:         gauge("pending_frames", "frames currently awaiting completion"),
		LossPct:               gauge("loss_pct", "missing chunks as a percentage of accepted+missing"),
		FpsAssembled:          gauge("fps_assembled", "completed frames per second"),
		BitrateKbps:           gauge("bitrate_kbps", "reassembled bitrate in kbps"),
	}
}

// InputServer holds the collectors for one LAN Input Server instance.
type InputServer struct {
	AuthenticatedClients  prometheus.Counter
	AuthFailures          prometheus.Counter
	EventsReceived        prometheus.Counter
	EventsInjected        prometheus.Counter
	EventsDroppedRate     prometheus.Counter
	EventsDroppedInactive prometheus.Counter
	InjectErrors          prometheus.Counter
	MouseMoves            prometheus.Counter
	MouseButtons          prometheus.Counter
	MouseWheels           prometheus.Counter
	KeyEvents             prometheus.Counter
	DisconnectHotkeys     prometheus.Counter
}

// NewInputServer registers a fresh set of collectors on reg.
func NewInputServer(reg prometheus.Registerer, namespace string) *InputServer {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: "input_server", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}

	return &InputServer{
		AuthenticatedClients:  counter("authenticated_clients_total", "connections that completed auth"),
		AuthFailures:          counter("auth_failures_total", "connections that failed auth"),
		EventsReceived:        counter("events_received_total", "input events admitted past the rate limiter"),
		EventsInjected:        counter("events_injected_total", "input events successfully injected"),
		EventsDroppedRate:     counter("events_dropped_rate_total", "events discarded by the rate limiter"),
		EventsDroppedInactive: counter("events_dropped_inactive_total", "events discarded while session inactive"),
		InjectErrors:          counter("inject_errors_total", "injection attempts that returned an error"),
		MouseMoves:            counter("mouse_moves_total", "mouse_move events dispatched"),
		MouseButtons:          counter("mouse_buttons_total", "mouse_button events dispatched"),
		MouseWheels:           counter("mouse_wheels_total", "mouse_wheel events dispatched"),
		KeyEvents:             counter("key_events_total", "key events dispatched"),
		DisconnectHotkeys:     counter("disconnect_hotkeys_total", "disconnect_hotkey events dispatched"),
	}
}

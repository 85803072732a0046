// Package udpstream implements the UDP Stream Receiver and its paired
// Feedback Sender: frame reassembly from chunked, best-effort video
// datagrams, plus a JSON back-channel reporting loss/jitter/bitrate to
// the capture host. Grounded on the teacher's pkg/p2p/udp_connection.go
// for the reader-loop/stats shape, with the reassembly algorithm itself
// following _examples/original_source/aplicativo/src-tauri/src/udp_lan.rs
// line for line.
package udpstream

import (
	"time"

	"github.com/meshdesk/corelan/pkg/streamid"
)

// Defaults a conforming implementation must observe.
const (
	DefaultListenHost      = "0.0.0.0"
	DefaultListenPort      = 5004
	DefaultMaxFrameAgeMs   = 40
	DefaultMaxPendingFrame = 96
	DefaultStatsIntervalMs = 1000

	readTimeout          = 20 * time.Millisecond
	feedbackWriteTimeout = 200 * time.Millisecond
)

// Config configures one receiver instance. Zero values fall back to the
// documented defaults; values outside their clamp range are clamped.
type Config struct {
	ListenHost       string
	ListenPort       int
	StreamID         *streamid.StreamID // nil = accept first stream observed
	MaxFrameAgeMs    int
	MaxPendingFrames int
	StatsIntervalMs  int
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c Config) withDefaults() Config {
	if c.ListenHost == "" {
		c.ListenHost = DefaultListenHost
	}
	if c.ListenPort == 0 {
		c.ListenPort = DefaultListenPort
	}
	if c.MaxFrameAgeMs == 0 {
		c.MaxFrameAgeMs = DefaultMaxFrameAgeMs
	}
	c.MaxFrameAgeMs = clampInt(c.MaxFrameAgeMs, 5, 5000)
	if c.MaxPendingFrames == 0 {
		c.MaxPendingFrames = DefaultMaxPendingFrame
	}
	c.MaxPendingFrames = clampInt(c.MaxPendingFrames, 2, 4096)
	if c.StatsIntervalMs == 0 {
		c.StatsIntervalMs = DefaultStatsIntervalMs
	}
	c.StatsIntervalMs = clampInt(c.StatsIntervalMs, 250, 60000)
	return c
}

// FrameEvent is published on eventbus.TopicUDPFrame.
type FrameEvent struct {
	StreamID        string `json:"streamId"`
	Seq             uint32 `json:"seq"`
	TimestampUs     uint64 `json:"timestampUs"`
	Keyframe        bool   `json:"keyframe"`
	PayloadBase64   string `json:"payloadBase64"`
	PayloadBytes    int    `json:"payloadBytes"`
}

// StatsEvent is published on eventbus.TopicUDPStats every StatsIntervalMs.
type StatsEvent struct {
	PacketsReceived       uint64  `json:"packetsReceived"`
	PacketsAccepted       uint64  `json:"packetsAccepted"`
	PacketsInvalid        uint64  `json:"packetsInvalid"`
	PacketsDuplicate      uint64  `json:"packetsDuplicate"`
	PacketsStreamMismatch uint64  `json:"packetsStreamMismatch"`
	FramesCompleted       uint64  `json:"framesCompleted"`
	FramesDroppedTimeout  uint64  `json:"framesDroppedTimeout"`
	FramesDroppedQueue    uint64  `json:"framesDroppedQueue"`
	FramesDroppedLate     uint64  `json:"framesDroppedLate"`
	FramesDroppedGap      uint64  `json:"framesDroppedGap"`
	MissingChunks         uint64  `json:"missingChunks"`
	KeyframesCompleted    uint64  `json:"keyframesCompleted"`
	BytesReassembled      uint64  `json:"bytesReassembled"`
	SeqGapFrames          uint64  `json:"seqGapFrames"`
	JitterMs              float64 `json:"jitterMs"`
	PendingFrames         int     `json:"pendingFrames"`
	LossPct               float64 `json:"lossPct"`
	FpsAssembled          float64 `json:"fpsAssembled"`
	BitrateKbps           float64 `json:"bitrateKbps"`
	RemoteAddress         string  `json:"remoteAddress,omitempty"`
	RemotePort            int     `json:"remotePort,omitempty"`
	StreamID              string  `json:"streamId,omitempty"`
}

// StoppedEvent is published once on eventbus.TopicUDPStopped.
type StoppedEvent struct {
	Reason string `json:"reason"`
}

// ErrorEvent is published on eventbus.TopicUDPError for fatal socket errors.
type ErrorEvent struct {
	Error string `json:"error"`
}

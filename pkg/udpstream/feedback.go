package udpstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoActiveRemote is returned by Send before any datagram has been
// accepted and a feedback destination discovered.
var ErrNoActiveRemote = errors.New("udpstream: no active remote to send feedback to yet")

// ErrFeedbackTypeRequired and ErrFeedbackTokenRequired are returned by Send
// when the caller-supplied message is missing one of its mandatory fields.
var (
	ErrFeedbackTypeRequired  = errors.New("udpstream: feedback message type is required")
	ErrFeedbackTokenRequired = errors.New("udpstream: feedback message token is required")
)

// FeedbackMessage is the caller-supplied JSON feedback report. Token and
// Type are mandatory; every other field is optional and clamped per
// spec.md section 6 before being sent.
type FeedbackMessage struct {
	Type                 string   `json:"type"`
	Token                string   `json:"token"`
	SessionID            string   `json:"sessionId,omitempty"`
	StreamID             string   `json:"streamId,omitempty"`
	LossPct              *float64 `json:"lossPct,omitempty"`
	JitterMs             *float64 `json:"jitterMs,omitempty"`
	FreezeMs             *float64 `json:"freezeMs,omitempty"`
	RequestedBitrateKbps *float64 `json:"requestedBitrateKbps,omitempty"`
	Reason               string   `json:"reason,omitempty"`
}

// wireFeedback is the JSON actually placed on the wire: version and
// sentAtUs are stamped by the sender, never supplied by the caller.
type wireFeedback struct {
	Type                 string   `json:"type"`
	Version              int      `json:"version"`
	Token                string   `json:"token"`
	SessionID            string   `json:"sessionId,omitempty"`
	StreamID             string   `json:"streamId,omitempty"`
	LossPct              *float64 `json:"lossPct,omitempty"`
	JitterMs             *float64 `json:"jitterMs,omitempty"`
	FreezeMs             *float64 `json:"freezeMs,omitempty"`
	RequestedBitrateKbps *float64 `json:"requestedBitrateKbps,omitempty"`
	Reason               string   `json:"reason,omitempty"`
	SentAtUs             uint64   `json:"sentAtUs"`
}

// FeedbackSender owns the ephemeral UDP socket used to send JSON feedback
// reports to the remote that the paired Receiver most recently observed.
// Grounded on spec.md section 4.3 and the teacher's sibling-socket
// pattern in pkg/p2p/udp_connection.go (data path and control path kept
// on separate sockets so write timeouts don't interact).
type FeedbackSender struct {
	conn  *net.UDPConn
	route *route
	log   *zap.SugaredLogger
}

func newFeedbackSender(route *route, log *zap.SugaredLogger) (*FeedbackSender, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("udpstream: failed to bind feedback socket: %w", err)
	}
	return &FeedbackSender{conn: conn, route: route, log: log}, nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampPtr(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	c := clampFloat(*v, lo, hi)
	return &c
}

// Send resolves the current feedback remote and stream id, clamps the
// optional numeric fields, stamps sentAtUs, and writes one JSON datagram.
// It fails synchronously with ErrNoActiveRemote if no datagram has ever
// been accepted by the paired receiver.
func (f *FeedbackSender) Send(msg FeedbackMessage) error {
	msgType := strings.TrimSpace(msg.Type)
	if msgType == "" {
		return ErrFeedbackTypeRequired
	}
	token := strings.TrimSpace(msg.Token)
	if token == "" {
		return ErrFeedbackTokenRequired
	}

	addr, latchedID, hasID := f.route.snapshot()
	if addr == nil {
		return ErrNoActiveRemote
	}

	streamID := msg.StreamID
	if streamID == "" && hasID {
		streamID = latchedID.String()
	}

	out := wireFeedback{
		Type:                 msgType,
		Version:              1,
		Token:                token,
		SessionID:            msg.SessionID,
		StreamID:             streamID,
		LossPct:              clampPtr(msg.LossPct, 0, 100),
		JitterMs:             clampPtr(msg.JitterMs, 0, 10000),
		FreezeMs:             clampPtr(msg.FreezeMs, 0, 60000),
		RequestedBitrateKbps: clampPtr(msg.RequestedBitrateKbps, 100, 500000),
		Reason:               msg.Reason,
		SentAtUs:             nowUs(),
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("udpstream: failed to encode feedback message: %w", err)
	}

	f.conn.SetWriteDeadline(time.Now().Add(feedbackWriteTimeout))
	if _, err := f.conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("udpstream: failed to send feedback datagram: %w", err)
	}
	return nil
}

// Close releases the feedback socket.
func (f *FeedbackSender) Close() error {
	return f.conn.Close()
}

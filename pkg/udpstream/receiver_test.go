package udpstream

import (
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshdesk/corelan/internal/eventbus"
	"github.com/meshdesk/corelan/internal/metrics"
	"github.com/meshdesk/corelan/internal/obs"
	"github.com/meshdesk/corelan/pkg/framing"
	"github.com/meshdesk/corelan/pkg/streamid"
)

func startTestReceiver(t *testing.T, cfg Config) (*Receiver, *eventbus.LocalBus, net.Conn) {
	t.Helper()
	bus := eventbus.NewLocalBus()
	m := metrics.NewUDPReceiver(prometheus.NewRegistry(), "test")
	r := New(cfg, bus, m, obs.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(r.Stop)

	conn, err := net.Dial("udp", r.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial receiver: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return r, bus, conn
}

func collectFrameEvents(bus *eventbus.LocalBus) (<-chan FrameEvent, <-chan StatsEvent) {
	frames := make(chan FrameEvent, 16)
	stats := make(chan StatsEvent, 16)
	bus.Subscribe(func(topic string, payload any) {
		switch topic {
		case eventbus.TopicUDPFrame:
			frames <- payload.(FrameEvent)
		case eventbus.TopicUDPStats:
			stats <- payload.(StatsEvent)
		}
	})
	return frames, stats
}

func sendDatagram(t *testing.T, conn net.Conn, d framing.Datagram) {
	t.Helper()
	if _, err := conn.Write(framing.Encode(d)); err != nil {
		t.Fatalf("write datagram: %v", err)
	}
}

func waitFrame(t *testing.T, frames <-chan FrameEvent) FrameEvent {
	t.Helper()
	select {
	case ev := <-frames:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a completed frame")
		return FrameEvent{}
	}
}

func testStreamID(t *testing.T) streamid.StreamID {
	t.Helper()
	id, err := streamid.Parse("11111111222233334444555566667777")
	if err != nil {
		t.Fatalf("parse stream id: %v", err)
	}
	return id
}

// scenario 1: a clean two-chunk frame reassembles to the exact concatenated
// payload bytes, base64-encoded, and is published on the frame topic.
func TestReceiverCleanTwoChunkFrame(t *testing.T) {
	r, bus, conn := startTestReceiver(t, Config{ListenHost: "127.0.0.1", ListenPort: 0})
	frames, _ := collectFrameEvents(bus)
	_ = r

	sid := testStreamID(t)
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 1, TimestampUs: 1000, ChunkIndex: 0, TotalChunks: 2, Payload: []byte{0xAA, 0xBB}})
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 1, TimestampUs: 1000, ChunkIndex: 1, TotalChunks: 2, Payload: []byte{0xCC}})

	ev := waitFrame(t, frames)
	if ev.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", ev.Seq)
	}
	want := base64.StdEncoding.EncodeToString([]byte{0xAA, 0xBB, 0xCC})
	if ev.PayloadBase64 != want {
		t.Fatalf("PayloadBase64 = %q, want %q", ev.PayloadBase64, want)
	}
	if want != "qrvM" {
		t.Fatalf("sanity check failed: expected encoding of AA BB CC to be qrvM, got %q", want)
	}
}

// scenario 2: a duplicate chunk index is counted and does not corrupt the
// already-stored slot or complete the frame early.
func TestReceiverDuplicateChunkDropped(t *testing.T) {
	r, bus, conn := startTestReceiver(t, Config{ListenHost: "127.0.0.1", ListenPort: 0})
	frames, stats := collectFrameEvents(bus)
	_ = r

	sid := testStreamID(t)
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 5, TimestampUs: 1000, ChunkIndex: 0, TotalChunks: 2, Payload: []byte{0x01}})
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 5, TimestampUs: 1000, ChunkIndex: 0, TotalChunks: 2, Payload: []byte{0x02}})
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 5, TimestampUs: 1000, ChunkIndex: 1, TotalChunks: 2, Payload: []byte{0x03}})

	ev := waitFrame(t, frames)
	want := base64.StdEncoding.EncodeToString([]byte{0x01, 0x03})
	if ev.PayloadBase64 != want {
		t.Fatalf("PayloadBase64 = %q, want %q (duplicate chunk must not overwrite)", ev.PayloadBase64, want)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case s := <-stats:
			if s.PacketsDuplicate >= 1 {
				return
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected packetsDuplicate >= 1 in a stats event")
}

// scenario 3: a frame missing a chunk past MaxFrameAgeMs is evicted as a
// timeout, never completing.
func TestReceiverTimeoutEviction(t *testing.T) {
	r, bus, conn := startTestReceiver(t, Config{ListenHost: "127.0.0.1", ListenPort: 0, MaxFrameAgeMs: 30, StatsIntervalMs: 250})
	frames, stats := collectFrameEvents(bus)
	_ = r

	sid := testStreamID(t)
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 7, TimestampUs: 1000, ChunkIndex: 0, TotalChunks: 2, Payload: []byte{0x09}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-frames:
			t.Fatalf("frame %d should never complete, got %+v", ev.Seq, ev)
		case s := <-stats:
			if s.FramesDroppedTimeout >= 1 {
				return
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected framesDroppedTimeout >= 1")
}

// scenario 4: completing seq 12 while seq 11 is still pending (with seq 10
// already delivered) evicts seq 11 as a gap, never completing it.
func TestReceiverGapEviction(t *testing.T) {
	r, bus, conn := startTestReceiver(t, Config{ListenHost: "127.0.0.1", ListenPort: 0})
	frames, stats := collectFrameEvents(bus)
	_ = r

	sid := testStreamID(t)
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 10, TimestampUs: 1000, ChunkIndex: 0, TotalChunks: 1, Payload: []byte{0x01}})
	first := waitFrame(t, frames)
	if first.Seq != 10 {
		t.Fatalf("Seq = %d, want 10", first.Seq)
	}

	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 11, TimestampUs: 2000, ChunkIndex: 0, TotalChunks: 2, Payload: []byte{0x02}})
	sendDatagram(t, conn, framing.Datagram{StreamID: sid, Seq: 12, TimestampUs: 3000, ChunkIndex: 0, TotalChunks: 1, Payload: []byte{0x03}})

	second := waitFrame(t, frames)
	if second.Seq != 12 {
		t.Fatalf("Seq = %d, want 12", second.Seq)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-frames:
			if ev.Seq == 11 {
				t.Fatalf("seq 11 should have been gap-evicted, not completed")
			}
		case s := <-stats:
			if s.FramesDroppedGap >= 1 && s.SeqGapFrames >= 1 {
				return
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected framesDroppedGap >= 1 and seqGapFrames >= 1")
}

// scenario 7: feedback sent before any datagram has ever been accepted
// fails closed with ErrNoActiveRemote.
func TestFeedbackNoActiveRemote(t *testing.T) {
	bus := eventbus.NewLocalBus()
	m := metrics.NewUDPReceiver(prometheus.NewRegistry(), "test2")
	r := New(Config{ListenHost: "127.0.0.1", ListenPort: 0}, bus, m, obs.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer r.Stop()

	err := r.Feedback.Send(FeedbackMessage{Type: "feedback", Token: "tok"})
	if err != ErrNoActiveRemote {
		t.Fatalf("err = %v, want ErrNoActiveRemote", err)
	}
}

// scenario 7 variant: mandatory-field validation is checked before the
// active-remote check, so an empty type/token is rejected even though no
// datagram has ever been accepted.
func TestFeedbackRejectsEmptyType(t *testing.T) {
	bus := eventbus.NewLocalBus()
	m := metrics.NewUDPReceiver(prometheus.NewRegistry(), "test3")
	r := New(Config{ListenHost: "127.0.0.1", ListenPort: 0}, bus, m, obs.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer r.Stop()

	if err := r.Feedback.Send(FeedbackMessage{Type: "  ", Token: "tok"}); err != ErrFeedbackTypeRequired {
		t.Fatalf("err = %v, want ErrFeedbackTypeRequired", err)
	}
}

func TestFeedbackRejectsEmptyToken(t *testing.T) {
	bus := eventbus.NewLocalBus()
	m := metrics.NewUDPReceiver(prometheus.NewRegistry(), "test4")
	r := New(Config{ListenHost: "127.0.0.1", ListenPort: 0}, bus, m, obs.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer r.Stop()

	if err := r.Feedback.Send(FeedbackMessage{Type: "feedback", Token: ""}); err != ErrFeedbackTokenRequired {
		t.Fatalf("err = %v, want ErrFeedbackTokenRequired", err)
	}
}

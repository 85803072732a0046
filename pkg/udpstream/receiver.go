package udpstream

import (
	"encoding/base64"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshdesk/corelan/internal/eventbus"
	"github.com/meshdesk/corelan/internal/metrics"
	"github.com/meshdesk/corelan/pkg/framing"
	"github.com/meshdesk/corelan/pkg/streamid"
)

// Receiver owns one UDP stream socket and its reassembly state
// exclusively from its reader goroutine, per the ownership rules in
// section 3: nothing outside that goroutine touches pending frames,
// counters, or last-delivered-seq directly.
type Receiver struct {
	cfg     Config
	bus     eventbus.Bus
	metrics *metrics.UDPReceiver
	log     *zap.SugaredLogger

	conn   *net.UDPConn
	route  *route
	stopCh chan struct{}
	doneCh chan struct{}

	// Feedback is wired to the same route so a caller can send feedback
	// datagrams against whatever remote this receiver has discovered.
	Feedback *FeedbackSender
}

// New constructs a Receiver bound to nothing yet; call Start to bind and
// begin reassembly.
func New(cfg Config, bus eventbus.Bus, m *metrics.UDPReceiver, log *zap.SugaredLogger) *Receiver {
	if bus == nil {
		bus = eventbus.NopBus{}
	}
	r := &Receiver{
		cfg:     cfg.withDefaults(),
		bus:     bus,
		metrics: m,
		log:     log,
		route:   newRoute(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	return r
}

// Start binds the data socket and an ephemeral feedback socket, then
// spawns the reader goroutine. It registers itself in the process-wide
// singleton slot, failing if one is already running.
func (r *Receiver) Start() error {
	if err := registerReceiver(r); err != nil {
		return err
	}

	addr := &net.UDPAddr{IP: net.ParseIP(resolveHost(r.cfg.ListenHost)), Port: r.cfg.ListenPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		unregisterReceiver(r)
		return fmt.Errorf("udpstream: failed to bind %s:%d: %w", r.cfg.ListenHost, r.cfg.ListenPort, err)
	}
	r.conn = conn

	fb, err := newFeedbackSender(r.route, r.log)
	if err != nil {
		conn.Close()
		unregisterReceiver(r)
		return err
	}
	r.Feedback = fb

	go r.run()
	return nil
}

func resolveHost(host string) string {
	if host == "0.0.0.0" || host == "" {
		return "0.0.0.0"
	}
	return host
}

// Stop signals the reader goroutine, blocks until it has wound down, and
// closes the data and feedback sockets.
func (r *Receiver) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.conn.Close()
	r.Feedback.Close()
	unregisterReceiver(r)
}

func nowUs() uint64 {
	return uint64(time.Now().UnixMicro())
}

type receiverStats struct {
	packetsReceived       uint64
	packetsAccepted       uint64
	packetsInvalid        uint64
	packetsDuplicate      uint64
	packetsStreamMismatch uint64
	framesCompleted       uint64
	framesDroppedTimeout  uint64
	framesDroppedQueue    uint64
	framesDroppedLate     uint64
	framesDroppedGap      uint64
	missingChunks         uint64
	keyframesCompleted    uint64
	bytesReassembled      uint64
	seqGapFrames          uint64
	jitterMs              float64
	remoteAddress         string
	remotePort            int
}

func (r *Receiver) run() {
	defer close(r.doneCh)

	stats := &receiverStats{}
	pending := newPendingSet()
	buf := make([]byte, 65536)

	var activeStreamID streamid.StreamID
	hasActiveStream := false
	var lastDeliveredSeq uint32
	hasLastDelivered := false
	var lastTransitUs int64
	hasLastTransit := false

	startedAt := time.Now()
	lastStatsEmit := time.Now()

	for {
		select {
		case <-r.stopCh:
			r.emitStats(stats, pending.len(), activeStreamID, hasActiveStream, startedAt)
			r.bus.Emit(eventbus.TopicUDPStopped, StoppedEvent{Reason: "stopped"})
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, remoteAddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// fall through to bookkeeping passes
			} else {
				r.bus.Emit(eventbus.TopicUDPError, ErrorEvent{Error: fmt.Sprintf("udp socket failure: %v", err)})
				return
			}
		} else {
			stats.packetsReceived++
			r.metrics.PacketsReceived.Inc()

			dg, ok := framing.Parse(buf[:n])
			if !ok {
				stats.packetsInvalid++
				r.metrics.PacketsInvalid.Inc()
				continue
			}

			if r.cfg.StreamID != nil && *r.cfg.StreamID != dg.StreamID {
				stats.packetsStreamMismatch++
				r.metrics.PacketsStreamMismatch.Inc()
				continue
			}
			if !hasActiveStream {
				activeStreamID = dg.StreamID
				hasActiveStream = true
			} else if activeStreamID != dg.StreamID {
				stats.packetsStreamMismatch++
				r.metrics.PacketsStreamMismatch.Inc()
				continue
			}

			if stats.remoteAddress == "" {
				stats.remoteAddress = remoteAddr.IP.String()
				stats.remotePort = remoteAddr.Port
			}
			r.route.update(remoteAddr, dg.StreamID)

			arrivalUs := int64(nowUs())
			transitUs := arrivalUs - int64(dg.TimestampUs)
			if hasLastTransit {
				dMs := absInt64(transitUs-lastTransitUs) / 1000.0
				stats.jitterMs += (float64(dMs) - stats.jitterMs) / 16.0
			}
			lastTransitUs = transitUs
			hasLastTransit = true

			if hasLastDelivered && dg.Seq <= lastDeliveredSeq {
				stats.framesDroppedLate++
				r.metrics.FramesDroppedLate.Inc()
				continue
			}

			frame, exists := pending.get(dg.Seq)
			if !exists {
				frame = &pendingFrame{
					seq:          dg.Seq,
					timestampUs:  dg.TimestampUs,
					flags:        dg.Flags,
					totalChunks:  dg.TotalChunks,
					slots:        make([][]byte, dg.TotalChunks),
					firstArrival: time.Now(),
				}
				pending.put(frame)
			}

			if frame.totalChunks != dg.TotalChunks {
				pending.delete(dg.Seq)
				stats.packetsInvalid++
				r.metrics.PacketsInvalid.Inc()
				continue
			}

			if frame.slots[dg.ChunkIndex] != nil {
				stats.packetsDuplicate++
				r.metrics.PacketsDuplicate.Inc()
				continue
			}

			frame.slots[dg.ChunkIndex] = dg.Payload
			frame.received++
			stats.packetsAccepted++
			r.metrics.PacketsAccepted.Inc()

			if frame.complete() {
				pending.delete(dg.Seq)

				if hasLastDelivered && frame.seq <= lastDeliveredSeq {
					stats.framesDroppedLate++
					r.metrics.FramesDroppedLate.Inc()
					continue
				}

				if hasLastDelivered && frame.seq > lastDeliveredSeq+1 {
					gap := uint64(frame.seq - lastDeliveredSeq - 1)
					stats.seqGapFrames += gap
					pending.evictBelow(frame.seq, func(stale *pendingFrame) {
						stats.missingChunks += stale.missingChunks()
						stats.framesDroppedGap++
						r.metrics.FramesDroppedGap.Inc()
						r.metrics.MissingChunks.Add(float64(stale.missingChunks()))
					})
				}

				var missing uint64
				for _, s := range frame.slots {
					if s == nil {
						missing++
					}
				}
				if missing > 0 {
					stats.framesDroppedTimeout++
					stats.missingChunks += missing
					r.metrics.FramesDroppedTimeout.Inc()
					r.metrics.MissingChunks.Add(float64(missing))
					continue
				}

				payload := frame.concat()
				r.bus.Emit(eventbus.TopicUDPFrame, FrameEvent{
					StreamID:      activeStreamID.String(),
					Seq:           frame.seq,
					TimestampUs:   frame.timestampUs,
					Keyframe:      frame.flags&framing.FlagKeyframe != 0,
					PayloadBase64: base64.StdEncoding.EncodeToString(payload),
					PayloadBytes:  len(payload),
				})

				stats.framesCompleted++
				r.metrics.FramesCompleted.Inc()
				if frame.flags&framing.FlagKeyframe != 0 {
					stats.keyframesCompleted++
					r.metrics.KeyframesCompleted.Inc()
				}
				stats.bytesReassembled += uint64(len(payload))
				r.metrics.BytesReassembled.Add(float64(len(payload)))
				lastDeliveredSeq = frame.seq
				hasLastDelivered = true
			}
		}

		cutoff := time.Now().Add(-time.Duration(r.cfg.MaxFrameAgeMs) * time.Millisecond)
		pending.evictOlderThan(cutoff, func(stale *pendingFrame) {
			stats.missingChunks += stale.missingChunks()
			stats.framesDroppedTimeout++
			r.metrics.FramesDroppedTimeout.Inc()
			r.metrics.MissingChunks.Add(float64(stale.missingChunks()))
		})

		for pending.len() > r.cfg.MaxPendingFrames {
			oldest, ok := pending.min()
			if !ok {
				break
			}
			pending.delete(oldest.seq)
			stats.missingChunks += oldest.missingChunks()
			stats.framesDroppedQueue++
			r.metrics.FramesDroppedQueue.Inc()
			r.metrics.MissingChunks.Add(float64(oldest.missingChunks()))
		}

		if time.Since(lastStatsEmit) >= time.Duration(r.cfg.StatsIntervalMs)*time.Millisecond {
			r.emitStats(stats, pending.len(), activeStreamID, hasActiveStream, startedAt)
			lastStatsEmit = time.Now()
		}
	}
}

func absInt64(v int64) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}

func (r *Receiver) emitStats(stats *receiverStats, pendingLen int, activeStreamID streamid.StreamID, hasActiveStream bool, startedAt time.Time) {
	elapsedSec := time.Since(startedAt).Seconds()
	if elapsedSec < 0.001 {
		elapsedSec = 0.001
	}
	accepted := stats.packetsAccepted
	missing := stats.missingChunks
	denom := accepted + missing
	if denom == 0 {
		denom = 1
	}
	lossPct := float64(missing) / float64(denom) * 100

	evt := StatsEvent{
		PacketsReceived:       stats.packetsReceived,
		PacketsAccepted:       stats.packetsAccepted,
		PacketsInvalid:        stats.packetsInvalid,
		PacketsDuplicate:      stats.packetsDuplicate,
		PacketsStreamMismatch: stats.packetsStreamMismatch,
		FramesCompleted:       stats.framesCompleted,
		FramesDroppedTimeout:  stats.framesDroppedTimeout,
		FramesDroppedQueue:    stats.framesDroppedQueue,
		FramesDroppedLate:     stats.framesDroppedLate,
		FramesDroppedGap:      stats.framesDroppedGap,
		MissingChunks:         stats.missingChunks,
		KeyframesCompleted:    stats.keyframesCompleted,
		BytesReassembled:      stats.bytesReassembled,
		SeqGapFrames:          stats.seqGapFrames,
		JitterMs:              stats.jitterMs,
		PendingFrames:         pendingLen,
		LossPct:               lossPct,
		FpsAssembled:          float64(stats.framesCompleted) / elapsedSec,
		BitrateKbps:           float64(stats.bytesReassembled) * 8 / 1000 / elapsedSec,
		RemoteAddress:         stats.remoteAddress,
		RemotePort:            stats.remotePort,
	}
	if hasActiveStream {
		evt.StreamID = activeStreamID.String()
	}

	r.metrics.JitterMs.Set(stats.jitterMs)
	r.metrics.PendingFrames.Set(float64(pendingLen))
	r.metrics.LossPct.Set(lossPct)
	r.metrics.FpsAssembled.Set(evt.FpsAssembled)
	r.metrics.BitrateKbps.Set(evt.BitrateKbps)

	r.bus.Emit(eventbus.TopicUDPStats, evt)
}

var (
	receiverMu  sync.Mutex
	activeRecvr *Receiver
)

func registerReceiver(r *Receiver) error {
	receiverMu.Lock()
	defer receiverMu.Unlock()
	if activeRecvr != nil {
		return fmt.Errorf("udpstream: a receiver is already running in this process")
	}
	activeRecvr = r
	return nil
}

func unregisterReceiver(r *Receiver) {
	receiverMu.Lock()
	defer receiverMu.Unlock()
	if activeRecvr == r {
		activeRecvr = nil
	}
}

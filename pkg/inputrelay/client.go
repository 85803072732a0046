package inputrelay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/meshdesk/corelan/internal/eventbus"
)

const (
	defaultConnectTimeoutMs = 3000
	writerPollInterval      = 20 * time.Millisecond
	writerPingIdle          = 5 * time.Second
	writerChanSize          = 256

	// clientClampMove/clientClampWheel mirror the original Rust client's
	// send-side clamps (spec.md section 9's documented open question:
	// both the client and the server clamp mouse_wheel deltas, and this
	// port keeps both rather than picking one).
	clientClampMoveMin  = -1000
	clientClampMoveMax  = 1000
	clientClampWheelMin = -960
	clientClampWheelMax = 960
)

// ErrorEvent is published on eventbus.TopicInputError for client write
// failures.
type ErrorEvent struct {
	Error string `json:"error"`
}

// ClientStatusEvent is published on eventbus.TopicInputClientStatus.
type ClientStatusEvent struct {
	Status string `json:"status"` // "connected" | "stopped"
}

// AuthFailedError carries the reason an Input Client's auth attempt was
// rejected by the peer server, or "unknown" if the reply carried no
// reason (including a missing/absent type field).
type AuthFailedError struct {
	Reason string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("inputrelay: auth rejected: %s", e.Reason)
}

func clampRange(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Client is the symmetric LAN Input Client: it dials a peer Input Server,
// authenticates, and forwards locally observed events over a bounded
// writer goroutine. Grounded on spec.md section 4.6 and the teacher's
// single-writer-goroutine-plus-channel pattern in
// client/daemon/connection.go.
type Client struct {
	conn   net.Conn
	bus    eventbus.Bus
	log    *zap.SugaredLogger
	stopCh chan struct{}
	doneCh chan struct{}
	lines  chan string
}

// Start dials host:port, authenticates with the given token/session/
// stream, and on success spawns the writer goroutine. connectTimeoutMs
// is clamped to [500, 10000], defaulting to 3000.
func Start(host string, port int, token, sessionID, streamID string, connectTimeoutMs int, bus eventbus.Bus, log *zap.SugaredLogger) (*Client, error) {
	if bus == nil {
		bus = eventbus.NopBus{}
	}
	if connectTimeoutMs == 0 {
		connectTimeoutMs = defaultConnectTimeoutMs
	}
	connectTimeoutMs = clampRange(connectTimeoutMs, 500, 10000)
	timeout := time.Duration(connectTimeoutMs) * time.Millisecond

	c := &Client{bus: bus, log: log, stopCh: make(chan struct{}), doneCh: make(chan struct{}), lines: make(chan string, writerChanSize)}
	if err := registerClient(c); err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		unregisterClient(c)
		return nil, fmt.Errorf("inputrelay: failed to connect to %s:%d: %w", host, port, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	authLine, err := encodeLine(AuthMessage{Type: TypeAuth, Token: token, SessionID: sessionID, StreamID: streamID, Version: 1})
	if err != nil {
		conn.Close()
		unregisterClient(c)
		return nil, err
	}
	if _, err := conn.Write(authLine); err != nil {
		conn.Close()
		unregisterClient(c)
		return nil, fmt.Errorf("inputrelay: failed to send auth: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		unregisterClient(c)
		return nil, fmt.Errorf("inputrelay: failed to read auth reply: %w", err)
	}

	var reply struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal([]byte(line), &reply)
	if reply.Type != TypeAuthOK {
		conn.Close()
		unregisterClient(c)
		reason := reply.Reason
		if reason == "" {
			reason = ReasonUnknown
		}
		return nil, &AuthFailedError{Reason: reason}
	}

	conn.SetDeadline(time.Time{})
	c.conn = conn

	go c.writeLoop()
	bus.Emit(eventbus.TopicInputClientStatus, ClientStatusEvent{Status: "connected"})
	return c, nil
}

// SendEvent clamps mouse_move/mouse_wheel deltas per the client-side
// clamp spec.md section 9 documents, serializes ev, and pushes it onto
// the writer channel. It never blocks the caller on the network.
func (c *Client) SendEvent(ev Event) error {
	switch ev.Type {
	case TypeMouseMove:
		ev.Dx = clampRange(ev.Dx, clientClampMoveMin, clientClampMoveMax)
		ev.Dy = clampRange(ev.Dy, clientClampMoveMin, clientClampMoveMax)
	case TypeMouseWheel:
		ev.DeltaX = clampRange(ev.DeltaX, clientClampWheelMin, clientClampWheelMax)
		ev.DeltaY = clampRange(ev.DeltaY, clientClampWheelMin, clientClampWheelMax)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("inputrelay: failed to encode event: %w", err)
	}

	select {
	case c.lines <- string(data):
		return nil
	case <-c.stopCh:
		return fmt.Errorf("inputrelay: client is stopped")
	}
}

// writeLoop is the single dedicated writer thread: it polls the channel
// with a 20ms wait so it can also emit a ping heartbeat after 5s of
// idle writer activity, per spec.md section 4.6.
func (c *Client) writeLoop() {
	defer close(c.doneCh)
	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return
			}
			if line == "{}" {
				select {
				case <-c.stopCh:
					return
				default:
				}
			}
			if _, err := c.conn.Write(append([]byte(line), '\n')); err != nil {
				c.bus.Emit(eventbus.TopicInputError, ErrorEvent{Error: fmt.Sprintf("inputrelay: write failed: %v", err)})
				return
			}
			lastActivity = time.Now()

		case <-time.After(writerPollInterval):
			select {
			case <-c.stopCh:
				return
			default:
			}
			if time.Since(lastActivity) >= writerPingIdle {
				ping, _ := encodeLine(PingMessage{Type: TypePing, TsUs: uint64(time.Now().UnixMicro())})
				if _, err := c.conn.Write(ping); err != nil {
					c.bus.Emit(eventbus.TopicInputError, ErrorEvent{Error: fmt.Sprintf("inputrelay: ping write failed: %v", err)})
					return
				}
				lastActivity = time.Now()
			}
		}
	}
}

// Stop signals the writer goroutine, pushes a sentinel to unblock a
// channel receive in progress, and joins it.
func (c *Client) Stop() {
	close(c.stopCh)
	select {
	case c.lines <- "{}":
	default:
	}
	<-c.doneCh
	c.conn.Close()
	unregisterClient(c)
	c.bus.Emit(eventbus.TopicInputClientStatus, ClientStatusEvent{Status: "stopped"})
}

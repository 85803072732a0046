package inputrelay

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meshdesk/corelan/internal/eventbus"
	"github.com/meshdesk/corelan/internal/obs"
)

func noopLogger() *zap.SugaredLogger { return obs.NewNop() }

func startTestServer(t *testing.T, cfg Config, injector *countingInjector) (*Server, string) {
	t.Helper()
	s := New(cfg, eventbus.NopBus{}, nil, injector, noopLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, s.listener.Addr().String()
}

func dialAndAuth(t *testing.T, addr, token, sessionID, streamID string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	line, err := encodeLine(AuthMessage{Type: TypeAuth, Token: token, SessionID: sessionID, StreamID: streamID, Version: 1})
	if err != nil {
		t.Fatalf("encode auth: %v", err)
	}
	if _, err := conn.Write(line); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	return conn, bufio.NewReader(conn)
}

func TestServerAuthFailureInvalidToken(t *testing.T) {
	inj := &countingInjector{}
	s, addr := startTestServer(t, Config{AuthToken: "correct-horse", SessionID: "sess-1"}, inj)
	s.SetSessionActive(true)

	conn, reader := dialAndAuth(t, addr, "wrong-token", "sess-1", "")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read auth reply: %v", err)
	}

	var reply AuthErrorMessage
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Type != TypeAuthError || reply.Reason != ReasonInvalidToken {
		t.Fatalf("got %+v, want type=auth_error reason=invalid_token", reply)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Stats().AuthFailures == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("AuthFailures = %d, want 1", s.Stats().AuthFailures)
}

func TestServerAuthFailureSessionInactive(t *testing.T) {
	inj := &countingInjector{}
	s, addr := startTestServer(t, Config{AuthToken: "tok"}, inj)
	// session left inactive

	conn, reader := dialAndAuth(t, addr, "tok", "", "")
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read auth reply: %v", err)
	}
	var reply AuthErrorMessage
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Reason != ReasonSessionInactive {
		t.Fatalf("reason = %q, want %q", reply.Reason, ReasonSessionInactive)
	}
}

func TestServerRateLimiting(t *testing.T) {
	inj := &countingInjector{}
	s, addr := startTestServer(t, Config{AuthToken: "tok", MaxEventsPerSecond: 100}, inj)
	s.SetSessionActive(true)

	conn, reader := dialAndAuth(t, addr, "tok", "", "")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read auth ok: %v", err)
	}

	const total = 150
	for i := 0; i < total; i++ {
		line, err := encodeLine(Event{Type: TypeMouseMove, Seq: uint64(i), Dx: 1, Dy: 1})
		if err != nil {
			t.Fatalf("encode event: %v", err)
		}
		if _, err := conn.Write(line); err != nil {
			t.Fatalf("write event %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	var snap Stats
	for time.Now().Before(deadline) {
		snap = s.Stats()
		if snap.EventsReceived+snap.EventsDroppedRate >= total {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// EventsReceived counts only events admitted past the rate limiter, so
	// every sent event lands in exactly one of the two counters.
	if snap.EventsReceived+snap.EventsDroppedRate != total {
		t.Fatalf("EventsReceived+EventsDroppedRate = %d, want %d", snap.EventsReceived+snap.EventsDroppedRate, total)
	}
	if snap.EventsInjected > 100 {
		t.Fatalf("EventsInjected = %d, want <= 100", snap.EventsInjected)
	}
	if snap.EventsDroppedRate < 50 {
		t.Fatalf("EventsDroppedRate = %d, want >= 50", snap.EventsDroppedRate)
	}
}

func TestServerRoundTripDispatchesEvent(t *testing.T) {
	inj := &countingInjector{}
	s, addr := startTestServer(t, Config{AuthToken: "tok", SessionID: "sess", StreamID: "stream"}, inj)
	s.SetSessionActive(true)

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	if host == "" {
		host = "127.0.0.1"
	}

	c, err := Start(host, port, "tok", "sess", "stream", 1000, eventbus.NopBus{}, noopLogger())
	if err != nil {
		t.Fatalf("Start client: %v", err)
	}
	defer c.Stop()

	if err := c.SendEvent(Event{Type: TypeMouseMove, Dx: 10, Dy: -10}); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if inj.moveCalls == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("moveCalls = %d, want 1", inj.moveCalls)
}

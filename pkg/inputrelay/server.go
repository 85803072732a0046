package inputrelay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/meshdesk/corelan/internal/eventbus"
	"github.com/meshdesk/corelan/internal/metrics"
	"github.com/meshdesk/corelan/pkg/inject"
)

const (
	acceptPollInterval  = 5 * time.Millisecond
	authReadTimeout     = 5 * time.Second
	eventReadTimeout    = 20 * time.Millisecond
	defaultBindHost     = "0.0.0.0"
	defaultBindPort     = 5505
	defaultMaxEventsSec = 700
	defaultStatsMs      = 1000
)

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Config configures one LAN Input Server instance. Zero values fall back
// to the documented defaults; values outside their clamp range are
// clamped, matching spec.md section 4.4's table.
type Config struct {
	BindHost           string
	BindPort           int
	AuthToken          string
	AuthExpiresAtMs    *int64
	SessionID          string
	StreamID           string
	MaxEventsPerSecond int
	StatsIntervalMs    int
}

func (c Config) withDefaults() Config {
	c.BindHost = strings.TrimSpace(c.BindHost)
	if c.BindHost == "" {
		c.BindHost = defaultBindHost
	}
	if c.BindPort == 0 {
		c.BindPort = defaultBindPort
	}
	c.AuthToken = strings.TrimSpace(c.AuthToken)
	if c.MaxEventsPerSecond == 0 {
		c.MaxEventsPerSecond = defaultMaxEventsSec
	}
	c.MaxEventsPerSecond = clampInt(c.MaxEventsPerSecond, 60, 5000)
	if c.StatsIntervalMs == 0 {
		c.StatsIntervalMs = defaultStatsMs
	}
	c.StatsIntervalMs = clampInt(c.StatsIntervalMs, 250, 60000)
	return c
}

// StatusEvent is published on eventbus.TopicInputServerStatus whenever a
// client authenticates, fails auth, or disconnects.
type StatusEvent struct {
	ConnectionID string `json:"connectionId"`
	Status       string `json:"status"` // "connected" | "auth_failed" | "disconnected"
	Reason       string `json:"reason,omitempty"`
	RemoteAddr   string `json:"remoteAddr,omitempty"`
}

// StatsEvent is published on eventbus.TopicInputServerStats every
// StatsIntervalMs.
type StatsEvent struct {
	AuthenticatedClients  uint64 `json:"authenticatedClients"`
	AuthFailures          uint64 `json:"authFailures"`
	EventsReceived        uint64 `json:"eventsReceived"`
	EventsInjected        uint64 `json:"eventsInjected"`
	EventsDroppedRate     uint64 `json:"eventsDroppedRate"`
	EventsDroppedInactive uint64 `json:"eventsDroppedInactive"`
	InjectErrors          uint64 `json:"injectErrors"`
	MouseMoves            uint64 `json:"mouseMoves"`
	MouseButtons          uint64 `json:"mouseButtons"`
	MouseWheels           uint64 `json:"mouseWheels"`
	KeyEvents             uint64 `json:"keyEvents"`
	DisconnectHotkeys     uint64 `json:"disconnectHotkeys"`
	EventsPerSecLimit     int    `json:"eventsPerSecLimit"`
}

// Server is the LAN Input Server: a TCP line-delimited JSON listener that
// authenticates peers and, while SessionActive, dispatches their events
// into an inject.Injector. Grounded on the teacher's
// pkg/p2p/connection.go PeerManager accept-loop/worker-goroutine split,
// adapted to a non-blocking poll loop so Stop latency stays bounded by
// acceptPollInterval per spec.md section 5.
type Server struct {
	cfg      Config
	bus      eventbus.Bus
	metrics  *metrics.InputServer
	injector inject.Injector
	log      *zap.SugaredLogger

	listener *net.TCPListener
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup

	sessionActive atomicBool
	stats         Stats
}

// New constructs a Server bound to nothing yet; call Start to bind and
// begin accepting connections.
func New(cfg Config, bus eventbus.Bus, m *metrics.InputServer, injector inject.Injector, log *zap.SugaredLogger) *Server {
	if bus == nil {
		bus = eventbus.NopBus{}
	}
	return &Server{
		cfg:      cfg.withDefaults(),
		bus:      bus,
		metrics:  m,
		injector: injector,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start binds the listener and spawns the accept loop. It registers
// itself in the process-wide singleton slot, failing if one is already
// running.
func (s *Server) Start() error {
	if s.cfg.AuthToken == "" {
		return fmt.Errorf("inputrelay: auth token is required")
	}
	if s.cfg.AuthExpiresAtMs != nil && *s.cfg.AuthExpiresAtMs <= nowMs() {
		return fmt.Errorf("inputrelay: auth token is already expired")
	}
	if err := registerServer(s); err != nil {
		return err
	}

	addr := &net.TCPAddr{IP: net.ParseIP(resolveHost(s.cfg.BindHost)), Port: s.cfg.BindPort}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		unregisterServer(s)
		return fmt.Errorf("inputrelay: failed to bind %s:%d: %w", s.cfg.BindHost, s.cfg.BindPort, err)
	}
	s.listener = ln

	go s.acceptLoop()
	return nil
}

func resolveHost(host string) string {
	if host == "0.0.0.0" || host == "" {
		return "0.0.0.0"
	}
	return host
}

// SetSessionActive flips the shared flag read at both the auth gate and
// the dispatch step. Per spec.md's documented open question, the server
// never closes already-authenticated connections on deactivation — it
// only blocks their events from reaching the injector.
func (s *Server) SetSessionActive(active bool) {
	s.sessionActive.set(active)
}

// Stats returns a snapshot of the aggregate counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

// Stop signals the accept loop and every worker, then blocks until the
// accept loop and every worker have wound down. Workers observe the stop
// flag at their own poll boundaries.
func (s *Server) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.listener.Close()
	s.wg.Wait()
	unregisterServer(s)
}

func nowMs() int64 { return time.Now().UnixMilli() }

// rateWindow is a fixed one-second counting window: it admits up to limit
// events per window and resets the count the first time it is touched
// after the window has elapsed. Grounded line for line on the original
// implementation's rate_window_start/rate_events/should_reset_rate_window
// in lan_input.rs, rather than golang.org/x/time/rate's token bucket,
// because a bucket with burst == rate still admits up to 2x limit across
// an idle-then-burst boundary; a single connection's events all flow
// through one goroutine, so no lock is needed.
type rateWindow struct {
	start time.Time
	count int
	limit int
}

func newRateWindow(limit int) *rateWindow {
	return &rateWindow{start: time.Now(), limit: limit}
}

func shouldResetRateWindow(start time.Time) bool {
	return time.Since(start) >= time.Second
}

func (w *rateWindow) allow() bool {
	if shouldResetRateWindow(w.start) {
		w.start = time.Now()
		w.count = 0
	}
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}

func (s *Server) acceptLoop() {
	defer close(s.doneCh)

	statsTicker := time.NewTicker(time.Duration(s.cfg.StatsIntervalMs) * time.Millisecond)
	defer statsTicker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-statsTicker.C:
			s.emitStats()
		default:
		}

		s.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Warnw("inputrelay: accept failed", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) emitStats() {
	snap := s.stats.snapshot()
	s.bus.Emit(eventbus.TopicInputServerStats, StatsEvent{
		AuthenticatedClients:  snap.AuthenticatedClients,
		AuthFailures:          snap.AuthFailures,
		EventsReceived:        snap.EventsReceived,
		EventsInjected:        snap.EventsInjected,
		EventsDroppedRate:     snap.EventsDroppedRate,
		EventsDroppedInactive: snap.EventsDroppedInactive,
		InjectErrors:          snap.InjectErrors,
		MouseMoves:            snap.MouseMoves,
		MouseButtons:          snap.MouseButtons,
		MouseWheels:           snap.MouseWheels,
		KeyEvents:             snap.KeyEvents,
		DisconnectHotkeys:     snap.DisconnectHotkeys,
		EventsPerSecLimit:     s.cfg.MaxEventsPerSecond,
	})
}

func (s *Server) serveConn(conn net.Conn) {
	connID := xid.New().String()
	remote := conn.RemoteAddr().String()
	defer conn.Close()

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	reader := bufio.NewReader(conn)

	conn.SetReadDeadline(time.Now().Add(authReadTimeout))
	line, err := reader.ReadString('\n')
	if err != nil {
		s.writeAuthError(conn, ReasonInvalidAuthJSON)
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		s.writeAuthError(conn, ReasonInvalidAuthJSON)
		return
	}
	if env.Type != TypeAuth {
		s.writeAuthError(conn, ReasonExpectedAuth)
		return
	}

	var auth AuthMessage
	if err := json.Unmarshal([]byte(line), &auth); err != nil {
		s.writeAuthError(conn, ReasonInvalidAuthJSON)
		return
	}

	if reason, ok := s.checkAuth(auth); !ok {
		s.stats.incAuthFailure()
		if s.metrics != nil {
			s.metrics.AuthFailures.Inc()
		}
		s.writeAuthError(conn, reason)
		s.bus.Emit(eventbus.TopicInputServerStatus, StatusEvent{ConnectionID: connID, Status: "auth_failed", Reason: reason, RemoteAddr: remote})
		return
	}

	s.stats.incAuthenticated()
	if s.metrics != nil {
		s.metrics.AuthenticatedClients.Inc()
	}
	if err := s.writeLine(conn, AuthOKMessage{Type: TypeAuthOK}); err != nil {
		return
	}
	s.bus.Emit(eventbus.TopicInputServerStatus, StatusEvent{ConnectionID: connID, Status: "connected", RemoteAddr: remote})

	limiter := newRateWindow(s.cfg.MaxEventsPerSecond)

	for {
		select {
		case <-s.stopCh:
			s.bus.Emit(eventbus.TopicInputServerStatus, StatusEvent{ConnectionID: connID, Status: "disconnected", RemoteAddr: remote})
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(eventReadTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.bus.Emit(eventbus.TopicInputServerStatus, StatusEvent{ConnectionID: connID, Status: "disconnected", RemoteAddr: remote})
			return
		}

		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Type == TypeAuth || ev.Type == TypePing {
			continue
		}

		if !limiter.allow() {
			s.stats.incDroppedRate()
			if s.metrics != nil {
				s.metrics.EventsDroppedRate.Inc()
			}
			continue
		}

		dispatch(ev, s.sessionActive.get(), s.injector, &s.stats, s.metrics)
	}
}

func (s *Server) checkAuth(auth AuthMessage) (string, bool) {
	if s.cfg.AuthExpiresAtMs != nil && nowMs() > *s.cfg.AuthExpiresAtMs {
		return ReasonTokenExpired, false
	}
	if auth.Token != s.cfg.AuthToken {
		return ReasonInvalidToken, false
	}
	if s.cfg.SessionID != "" && auth.SessionID != s.cfg.SessionID {
		return ReasonInvalidSession, false
	}
	if s.cfg.StreamID != "" && auth.StreamID != s.cfg.StreamID {
		return ReasonInvalidStream, false
	}
	if !s.sessionActive.get() {
		return ReasonSessionInactive, false
	}
	return "", true
}

func (s *Server) writeAuthError(conn net.Conn, reason string) {
	s.writeLine(conn, AuthErrorMessage{Type: TypeAuthError, Reason: reason})
}

func (s *Server) writeLine(conn net.Conn, v any) error {
	data, err := encodeLine(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write(data)
	return err
}

package inputrelay

import (
	"sync"

	"github.com/meshdesk/corelan/internal/metrics"
	"github.com/meshdesk/corelan/pkg/inject"
)

// Stats is the aggregate counter set spec.md section 3 calls ServerState,
// guarded by a single short-lived mutex per the concurrency model (no
// guard is ever held across I/O).
type Stats struct {
	mu sync.Mutex

	AuthenticatedClients  uint64
	AuthFailures          uint64
	EventsReceived        uint64
	EventsInjected        uint64
	EventsDroppedRate     uint64
	EventsDroppedInactive uint64
	InjectErrors          uint64
	MouseMoves            uint64
	MouseButtons          uint64
	MouseWheels           uint64
	KeyEvents             uint64
	DisconnectHotkeys     uint64
}

func (s *Stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}

func (s *Stats) incAuthenticated() {
	s.mu.Lock()
	s.AuthenticatedClients++
	s.mu.Unlock()
}

func (s *Stats) incAuthFailure() {
	s.mu.Lock()
	s.AuthFailures++
	s.mu.Unlock()
}

func (s *Stats) incDroppedRate() {
	s.mu.Lock()
	s.EventsDroppedRate++
	s.mu.Unlock()
}

// dispatch is invoked once per admitted event (after rate-limiting) from
// each connection worker; the mutex keeps the aggregate counters correct
// under concurrent workers even though injection itself is not
// serialized by this lock.
func dispatch(ev Event, sessionActive bool, injector inject.Injector, stats *Stats, m *metrics.InputServer) {
	stats.mu.Lock()
	stats.EventsReceived++
	stats.mu.Unlock()
	if m != nil {
		m.EventsReceived.Inc()
	}

	if !sessionActive {
		stats.mu.Lock()
		stats.EventsDroppedInactive++
		stats.mu.Unlock()
		if m != nil {
			m.EventsDroppedInactive.Inc()
		}
		return
	}

	var err error
	switch ev.Type {
	case TypeMouseMove:
		stats.mu.Lock()
		stats.MouseMoves++
		stats.mu.Unlock()
		if m != nil {
			m.MouseMoves.Inc()
		}
		err = injector.MouseMove(inject.ClampMouseMove(ev.Dx), inject.ClampMouseMove(ev.Dy))

	case TypeMouseButton:
		stats.mu.Lock()
		stats.MouseButtons++
		stats.mu.Unlock()
		if m != nil {
			m.MouseButtons.Inc()
		}
		if b, ok := inject.ButtonFromCode(ev.Button); ok {
			err = injector.MouseButton(b, ev.Down)
		}

	case TypeMouseWheel:
		stats.mu.Lock()
		stats.MouseWheels++
		stats.mu.Unlock()
		if m != nil {
			m.MouseWheels.Inc()
		}
		dx := inject.ClampWheelDelta(ev.DeltaX)
		dy := inject.ClampWheelDelta(ev.DeltaY)
		err = injector.MouseWheel(dx, dy)

	case TypeKey:
		stats.mu.Lock()
		stats.KeyEvents++
		stats.mu.Unlock()
		if m != nil {
			m.KeyEvents.Inc()
		}
		if vk, ok := inject.LookupKey(ev.Code); ok {
			err = injector.Key(vk, ev.Down)
		}

	case TypeDisconnectHotkey:
		stats.mu.Lock()
		stats.DisconnectHotkeys++
		stats.mu.Unlock()
		if m != nil {
			m.DisconnectHotkeys.Inc()
		}
		return // no injection occurs for this event; no injected/error outcome to record

	case TypeAuth:
		// should not arrive here; the auth phase consumes it.
		return
	}

	if err != nil {
		stats.mu.Lock()
		stats.InjectErrors++
		stats.mu.Unlock()
		if m != nil {
			m.InjectErrors.Inc()
		}
		return
	}

	stats.mu.Lock()
	stats.EventsInjected++
	stats.mu.Unlock()
	if m != nil {
		m.EventsInjected.Inc()
	}
}

package udpstream

import (
	"net"
	"sync"

	"github.com/meshdesk/corelan/pkg/streamid"
)

type routeEntry struct {
	addr     *net.UDPAddr
	streamID streamid.StreamID
}

// route is the feedback-routing slot shared between the reader task and
// the feedback sender. Grounded on UdpLanFeedbackRoute in the original
// implementation's udp_lan.rs: the most recently observed remote is kept
// until overwritten by a newer one, with no idle expiry — a quiet capture
// host does not make SendFeedback start failing again. Per the concurrency
// model, the guard is held only for pointer assignment, never across I/O.
type route struct {
	mu    sync.Mutex
	entry *routeEntry
}

func newRoute() *route {
	return &route{}
}

func (r *route) update(addr *net.UDPAddr, id streamid.StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry = &routeEntry{addr: addr, streamID: id}
}

// snapshot returns the most recently observed feedback remote, or
// hasID=false and a nil addr if none has ever been observed.
func (r *route) snapshot() (addr *net.UDPAddr, id streamid.StreamID, hasID bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil {
		return nil, streamid.StreamID{}, false
	}
	return r.entry.addr, r.entry.streamID, true
}

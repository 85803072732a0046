package udpstream

import (
	"net"
	"testing"

	"github.com/meshdesk/corelan/pkg/streamid"
)

func TestRouteSnapshotEmptyBeforeUpdate(t *testing.T) {
	r := newRoute()
	addr, _, hasID := r.snapshot()
	if addr != nil || hasID {
		t.Fatalf("expected empty route before any update, got addr=%v hasID=%v", addr, hasID)
	}
}

func TestRouteSnapshotPersistsWithoutExpiry(t *testing.T) {
	r := newRoute()
	want := &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 9000}
	id, err := streamid.Parse("11111111222233334444555566667777")
	if err != nil {
		t.Fatalf("parse stream id: %v", err)
	}

	r.update(want, id)
	addr, gotID, hasID := r.snapshot()
	if !hasID || addr.String() != want.String() || gotID != id {
		t.Fatalf("got addr=%v id=%v hasID=%v, want addr=%v id=%v hasID=true", addr, gotID, hasID, want, id)
	}
}

func TestRouteUpdateOverwritesPreviousRemote(t *testing.T) {
	r := newRoute()
	id, err := streamid.Parse("11111111222233334444555566667777")
	if err != nil {
		t.Fatalf("parse stream id: %v", err)
	}
	r.update(&net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 9000}, id)
	r.update(&net.UDPAddr{IP: net.ParseIP("192.0.2.20"), Port: 9001}, id)

	addr, _, hasID := r.snapshot()
	if !hasID || addr.Port != 9001 {
		t.Fatalf("got addr=%v hasID=%v, want the most recent update", addr, hasID)
	}
}

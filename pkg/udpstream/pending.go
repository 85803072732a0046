package udpstream

import (
	"time"

	"github.com/google/btree"
)

// pendingFrame is the per-seq reassembly buffer described in section 3:
// a sparse ordered slot array sized by total_chunks plus a received count
// and first-arrival instant used for timed eviction.
type pendingFrame struct {
	seq          uint32
	timestampUs  uint64
	flags        uint8
	totalChunks  uint16
	slots        [][]byte
	received     uint16
	firstArrival time.Time
}

func (p *pendingFrame) complete() bool {
	return p.received == p.totalChunks
}

func (p *pendingFrame) concat() []byte {
	out := make([]byte, 0, 1500*int(p.totalChunks))
	for _, s := range p.slots {
		out = append(out, s...)
	}
	return out
}

func (p *pendingFrame) missingChunks() uint64 {
	return uint64(p.totalChunks) - uint64(p.received)
}

func pendingLess(a, b *pendingFrame) bool {
	return a.seq < b.seq
}

// pendingSet is the ordered seq -> PendingFrame map required by section 9
// ("not a hash map" — insert, evict-below, and find-min must all be
// sub-linear). Backed by github.com/google/btree, the same ordered-map
// dependency the retrieval pack's Dragon-Born-paqet forwarder pulls in
// for its session table.
type pendingSet struct {
	tree *btree.BTreeG[*pendingFrame]
}

func newPendingSet() *pendingSet {
	return &pendingSet{tree: btree.NewG(32, pendingLess)}
}

func (s *pendingSet) get(seq uint32) (*pendingFrame, bool) {
	return s.tree.Get(&pendingFrame{seq: seq})
}

func (s *pendingSet) put(p *pendingFrame) {
	s.tree.ReplaceOrInsert(p)
}

func (s *pendingSet) delete(seq uint32) (*pendingFrame, bool) {
	return s.tree.Delete(&pendingFrame{seq: seq})
}

func (s *pendingSet) len() int {
	return s.tree.Len()
}

func (s *pendingSet) min() (*pendingFrame, bool) {
	return s.tree.Min()
}

// evictBelow removes every entry with seq < upper, invoking fn for each
// evicted frame before it is dropped. Used for gap eviction ahead of a
// completed frame.
func (s *pendingSet) evictBelow(upper uint32, fn func(*pendingFrame)) {
	var toDelete []uint32
	s.tree.AscendLessThan(&pendingFrame{seq: upper}, func(p *pendingFrame) bool {
		toDelete = append(toDelete, p.seq)
		return true
	})
	for _, seq := range toDelete {
		if p, ok := s.tree.Delete(&pendingFrame{seq: seq}); ok {
			fn(p)
		}
	}
}

// evictOlderThan removes every entry whose firstArrival predates cutoff.
func (s *pendingSet) evictOlderThan(cutoff time.Time, fn func(*pendingFrame)) {
	var toDelete []uint32
	s.tree.Ascend(func(p *pendingFrame) bool {
		if p.firstArrival.Before(cutoff) {
			toDelete = append(toDelete, p.seq)
		}
		return true
	})
	for _, seq := range toDelete {
		if p, ok := s.tree.Delete(&pendingFrame{seq: seq}); ok {
			fn(p)
		}
	}
}

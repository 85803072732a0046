package inputrelay

import (
	"testing"
	"time"
)

func TestRateWindowAllowsUpToLimitThenDrops(t *testing.T) {
	w := newRateWindow(3)
	for i := 0; i < 3; i++ {
		if !w.allow() {
			t.Fatalf("event %d should be allowed within the limit", i)
		}
	}
	if w.allow() {
		t.Fatalf("4th event within the same window should be dropped")
	}
}

func TestRateWindowResetsAfterOneSecond(t *testing.T) {
	w := newRateWindow(1)
	if !w.allow() {
		t.Fatal("first event should be allowed")
	}
	if w.allow() {
		t.Fatal("second event in the same window should be dropped")
	}
	w.start = w.start.Add(-2 * time.Second)
	if !w.allow() {
		t.Fatal("event after the window elapsed should be allowed again")
	}
}

// A burst-equal-to-rate token bucket can admit up to 2x limit across an
// idle-then-burst boundary; the fixed window must never admit more than
// limit events inside any single one-second window it owns.
func TestRateWindowNeverExceedsLimitAcrossBoundary(t *testing.T) {
	w := newRateWindow(5)
	for i := 0; i < 5; i++ {
		w.allow()
	}
	w.start = w.start.Add(-1100 * time.Millisecond)

	admitted := 0
	for i := 0; i < 5; i++ {
		if w.allow() {
			admitted++
		}
	}
	if admitted != 5 {
		t.Fatalf("admitted = %d after reset, want exactly 5", admitted)
	}
	if w.allow() {
		t.Fatal("6th event in the fresh window should be dropped")
	}
}

//go:build windows
// +build windows

package inject

import (
	"testing"
	"unsafe"
)

// TestRawInputMatchesWin32Size pins rawInput to the real Windows INPUT
// struct size on amd64. SendInput rejects any cbSize that doesn't match
// sizeof(INPUT) exactly, so a drift here would silently break every
// injected event.
func TestRawInputMatchesWin32Size(t *testing.T) {
	if got := unsafe.Sizeof(rawInput{}); got != 40 {
		t.Fatalf("unsafe.Sizeof(rawInput{}) = %d, want 40", got)
	}
}

package inject

import "testing"

func TestButtonFromCode(t *testing.T) {
	cases := []struct {
		code int
		want Button
		ok   bool
	}{
		{0, ButtonLeft, true},
		{1, ButtonMiddle, true},
		{2, ButtonRight, true},
		{3, 0, false},
		{-1, 0, false},
	}
	for _, c := range cases {
		got, ok := ButtonFromCode(c.code)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ButtonFromCode(%d) = (%v, %v), want (%v, %v)", c.code, got, ok, c.want, c.ok)
		}
	}
}

func TestClampMouseMove(t *testing.T) {
	cases := map[int]int{-500: -300, -300: -300, 0: 0, 300: 300, 500: 300}
	for in, want := range cases {
		if got := ClampMouseMove(in); got != want {
			t.Errorf("ClampMouseMove(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClampWheelDelta(t *testing.T) {
	cases := map[int]int{-2000: -960, -960: -960, 0: 0, 960: 960, 2000: 960}
	for in, want := range cases {
		if got := ClampWheelDelta(in); got != want {
			t.Errorf("ClampWheelDelta(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestLookupKeyLetterAndDigitTables(t *testing.T) {
	vk, ok := LookupKey("KeyA")
	if !ok || vk != VKey('A') {
		t.Fatalf("LookupKey(KeyA) = (%v, %v), want ('A', true)", vk, ok)
	}
	vk, ok = LookupKey("Digit7")
	if !ok || vk != VKey('7') {
		t.Fatalf("LookupKey(Digit7) = (%v, %v), want ('7', true)", vk, ok)
	}
}

func TestLookupKeyNamedTable(t *testing.T) {
	named := []string{
		"Escape", "Enter", "Backspace", "Tab", "Space",
		"ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight",
		"Home", "End", "PageUp", "PageDown", "Insert", "Delete",
		"ShiftLeft", "ShiftRight", "ControlLeft", "ControlRight",
		"AltLeft", "AltRight",
		"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12",
	}
	for _, code := range named {
		if _, ok := LookupKey(code); !ok {
			t.Errorf("LookupKey(%q) not found in named table", code)
		}
	}
}

func TestLookupKeyUnmappedIsNoop(t *testing.T) {
	if _, ok := LookupKey("NumpadEnter"); ok {
		t.Fatal("expected NumpadEnter to be unmapped")
	}
}

package streamid

import "testing"

func TestParseRoundTrip(t *testing.T) {
	const hex32 = "0123456789abcdef0123456789abcdef"
	id, err := Parse(hex32)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := id.String(); got != hex32 {
		t.Fatalf("String() = %q, want %q", got, hex32)
	}
}

func TestParseStripsDashesAndCase(t *testing.T) {
	withDashes := "0123-4567-89AB-CDEF-0123-4567-89AB-CDEF"
	id, err := Parse(withDashes)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want, _ := Parse("0123456789abcdef0123456789abcdef")
	if !id.Equal(want) {
		t.Fatalf("Parse(%q) = %v, want %v", withDashes, id, want)
	}
}

func TestParseRejectsWrongLength(t *testing.T) {
	cases := []string{"", "abcd", "0123456789abcdef0123456789abcdef00"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("Parse(%q) expected error, got nil", c)
		}
	}
}

func TestParseRejectsNonHex(t *testing.T) {
	if _, err := Parse("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"); err == nil {
		t.Fatal("Parse with non-hex digits expected error, got nil")
	}
}

func TestIsZero(t *testing.T) {
	var id StreamID
	if !id.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	id[0] = 1
	if id.IsZero() {
		t.Fatal("non-zero value should not report IsZero")
	}
}

package framing

import (
	"bytes"
	"testing"

	"github.com/meshdesk/corelan/pkg/streamid"
)

func sampleDatagram() Datagram {
	var sid streamid.StreamID
	sid[15] = 1
	return Datagram{
		Flags:       FlagKeyframe,
		StreamID:    sid,
		Seq:         7,
		TimestampUs: 1_000_000,
		ChunkIndex:  0,
		TotalChunks: 2,
		Payload:     []byte{0xAA, 0xBB},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	d := sampleDatagram()
	got, ok := Parse(Encode(d))
	if !ok {
		t.Fatal("Parse(Encode(d)) returned ok=false")
	}
	if got.Flags != d.Flags || got.Seq != d.Seq || got.TimestampUs != d.TimestampUs ||
		got.ChunkIndex != d.ChunkIndex || got.TotalChunks != d.TotalChunks ||
		got.StreamID != d.StreamID || !bytes.Equal(got.Payload, d.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestParseTwoChunkFrame(t *testing.T) {
	var sid streamid.StreamID
	sid[15] = 1

	d0 := Datagram{Flags: FlagKeyframe, StreamID: sid, Seq: 7, TimestampUs: 1_000_000, ChunkIndex: 0, TotalChunks: 2, Payload: []byte{0xAA, 0xBB}}
	d1 := Datagram{Flags: FlagKeyframe, StreamID: sid, Seq: 7, TimestampUs: 1_000_000, ChunkIndex: 1, TotalChunks: 2, Payload: []byte{0xCC}}

	got0, ok := Parse(Encode(d0))
	if !ok {
		t.Fatal("expected ok for chunk 0")
	}
	got1, ok := Parse(Encode(d1))
	if !ok {
		t.Fatal("expected ok for chunk 1")
	}
	combined := append(append([]byte{}, got0.Payload...), got1.Payload...)
	if !bytes.Equal(combined, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("combined payload = %v, want [0xAA 0xBB 0xCC]", combined)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := Encode(sampleDatagram())
	raw[0] ^= 0xFF
	if _, ok := Parse(raw); ok {
		t.Fatal("expected ok=false for corrupted magic")
	}
}

func TestParseRejectsBadVersion(t *testing.T) {
	raw := Encode(sampleDatagram())
	raw[2] = 9
	if _, ok := Parse(raw); ok {
		t.Fatal("expected ok=false for unsupported version")
	}
}

func TestParseRejectsZeroTotalChunks(t *testing.T) {
	d := sampleDatagram()
	d.TotalChunks = 0
	raw := Encode(d)
	if _, ok := Parse(raw); ok {
		t.Fatal("expected ok=false for total_chunks=0")
	}
}

func TestParseRejectsChunkIndexOutOfRange(t *testing.T) {
	d := sampleDatagram()
	d.ChunkIndex = 5
	d.TotalChunks = 2
	raw := Encode(d)
	if _, ok := Parse(raw); ok {
		t.Fatal("expected ok=false for chunk_index >= total_chunks")
	}
}

func TestParseRejectsTruncatedPayload(t *testing.T) {
	raw := Encode(sampleDatagram())
	if _, ok := Parse(raw[:len(raw)-1]); ok {
		t.Fatal("expected ok=false for length mismatch")
	}
}

func TestParseRejectsShortBuffer(t *testing.T) {
	if _, ok := Parse(make([]byte, 10)); ok {
		t.Fatal("expected ok=false for buffer shorter than header")
	}
}

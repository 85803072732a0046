// Package framing implements the UDP stream datagram codec: a fixed
// 38-byte big-endian header followed by a raw payload. Grounded on the
// teacher's shared/protocol/header.go (Encode/Decode pair, explicit
// offsets, big-endian throughout), adapted from the teacher's 8-byte
// connection-handshake header to the chunked-frame header this spec
// requires.
package framing

import (
	"encoding/binary"

	"github.com/meshdesk/corelan/pkg/streamid"
)

const (
	// Magic identifies a corelan UDP stream datagram.
	Magic uint16 = 0x4F44
	// Version is the only wire version this codec understands.
	Version uint8 = 1
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 38

	// FlagKeyframe is bit 0 of the flags byte. Other bits are reserved
	// and must be preserved round-trip even though this codec does not
	// interpret them.
	FlagKeyframe uint8 = 1 << 0
)

// Datagram is one decoded UDP stream chunk.
type Datagram struct {
	Flags        uint8
	StreamID     streamid.StreamID
	Seq          uint32
	TimestampUs  uint64
	ChunkIndex   uint16
	TotalChunks  uint16
	Payload      []byte
}

// IsKeyframe reports whether the keyframe flag bit is set.
func (d Datagram) IsKeyframe() bool {
	return d.Flags&FlagKeyframe != 0
}

// Parse validates and decodes a datagram. It returns ok=false for any
// byte string that fails the minimum length, magic, version,
// total_chunks>0, chunk_index<total_chunks, or exact-length checks; the
// caller is expected to count that as an invalid packet rather than treat
// it as a transport error. Parse never allocates beyond the payload copy.
func Parse(raw []byte) (Datagram, bool) {
	var d Datagram
	if len(raw) < HeaderSize {
		return d, false
	}

	magic := binary.BigEndian.Uint16(raw[0:2])
	if magic != Magic {
		return d, false
	}
	version := raw[2]
	if version != Version {
		return d, false
	}

	totalChunks := binary.BigEndian.Uint16(raw[34:36])
	chunkIndex := binary.BigEndian.Uint16(raw[32:34])
	if totalChunks == 0 || chunkIndex >= totalChunks {
		return d, false
	}

	payloadLen := binary.BigEndian.Uint16(raw[36:38])
	if len(raw) != HeaderSize+int(payloadLen) {
		return d, false
	}

	d.Flags = raw[3]
	copy(d.StreamID[:], raw[4:20])
	d.Seq = binary.BigEndian.Uint32(raw[20:24])
	d.TimestampUs = binary.BigEndian.Uint64(raw[24:32])
	d.ChunkIndex = chunkIndex
	d.TotalChunks = totalChunks
	d.Payload = append([]byte(nil), raw[HeaderSize:]...)
	return d, true
}

// Encode renders d as a wire datagram. It does not validate d's fields
// beyond what is necessary to size the payload length.
func Encode(d Datagram) []byte {
	buf := make([]byte, HeaderSize+len(d.Payload))
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = Version
	buf[3] = d.Flags
	copy(buf[4:20], d.StreamID[:])
	binary.BigEndian.PutUint32(buf[20:24], d.Seq)
	binary.BigEndian.PutUint64(buf[24:32], d.TimestampUs)
	binary.BigEndian.PutUint16(buf[32:34], d.ChunkIndex)
	binary.BigEndian.PutUint16(buf[34:36], d.TotalChunks)
	binary.BigEndian.PutUint16(buf[36:38], uint16(len(d.Payload)))
	copy(buf[HeaderSize:], d.Payload)
	return buf
}

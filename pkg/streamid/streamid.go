// Package streamid implements the opaque 16-byte stream identifier shared
// by the UDP datagram header and the TCP input-relay auth frame. Grounded
// on the teacher's shared/protocol/header.go codec style (explicit
// encode/decode pair plus a String method), adapted from a message header
// to a bare identifier.
package streamid

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the fixed byte length of a StreamId.
const Size = 16

// StreamID is an opaque 16-byte identifier. The zero value is valid and
// represents "no stream id".
type StreamID [Size]byte

// Parse accepts 32 hex digits, case-insensitive, after stripping dashes.
// Any other length is rejected.
func Parse(s string) (StreamID, error) {
	stripped := strings.ReplaceAll(s, "-", "")
	var id StreamID
	if len(stripped) != Size*2 {
		return id, fmt.Errorf("streamid: expected %d hex digits after dash stripping, got %d", Size*2, len(stripped))
	}
	decoded, err := hex.DecodeString(strings.ToLower(stripped))
	if err != nil {
		return id, fmt.Errorf("streamid: invalid hex: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

// String renders the id as lowercase hex with no dashes.
func (id StreamID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero "unset" value.
func (id StreamID) IsZero() bool {
	return id == StreamID{}
}

// Equal reports byte-exact equality.
func (id StreamID) Equal(other StreamID) bool {
	return id == other
}

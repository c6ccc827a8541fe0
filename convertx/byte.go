// Package convertx holds the fixed-width integer<->byte conversions used to
// pack position-token payloads (see package token) before encryption.
package convertx

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// ErrShortBuffer is returned when a byte slice is too small to hold the
// requested fixed-width integer.
var ErrShortBuffer = errors.New("convertx: buffer too short")

// BytesToInt32 reads a big-endian int32 from the front of b.
func BytesToInt32(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, ErrShortBuffer
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// Int32ToBytes encodes i as a 4-byte big-endian value.
func Int32ToBytes(i int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(i))
	return b
}

// BytesToInt64 reads a big-endian int64 from the front of b.
func BytesToInt64(b []byte) (int64, error) {
	if len(b) < 8 {
		return 0, ErrShortBuffer
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Int64ToBytes encodes i as an 8-byte big-endian value.
func Int64ToBytes(i int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

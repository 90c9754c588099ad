// Package buf holds overflow-safe bounds arithmetic for code that walks
// untrusted byte buffers (snapshots, patches, replication frames).
package buf

import (
	"math"

	"github.com/cockroachdb/errors"
)

// ErrOutOfBounds is wrapped by every range failure reported by CheckRange.
var ErrOutOfBounds = errors.New("buf: range out of bounds")

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe multiplies two non-negative ints, returning ok = false on
// overflow or when either operand is negative.
func MulOverflowSafe(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

// CheckRange validates that count elements of elementSize bytes starting at
// offset fit in a buffer of bufLen bytes, and returns the end offset.
//
//	end, err := buf.CheckRange(newLength, int(off), int(runs), format.ChunkSize)
//	if err != nil {
//	    return errors.Wrapf(ErrCorruptPatch, "delta run: %v", err)
//	}
func CheckRange(bufLen, offset, count, elementSize int) (int, error) {
	if offset < 0 || count < 0 || elementSize < 0 {
		return 0, errors.Wrapf(ErrOutOfBounds, "negative operand: off=%d count=%d size=%d",
			offset, count, elementSize)
	}

	total, ok := MulOverflowSafe(count, elementSize)
	if !ok {
		return 0, errors.Wrapf(ErrOutOfBounds, "overflow: count=%d * size=%d", count, elementSize)
	}

	end, ok := AddOverflowSafe(offset, total)
	if !ok {
		return 0, errors.Wrapf(ErrOutOfBounds, "overflow: off=%d + len=%d", offset, total)
	}

	if end > bufLen {
		return 0, errors.Wrapf(ErrOutOfBounds, "end=%d > len=%d", end, bufLen)
	}
	return end, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end:end], true
}

package format

import "encoding/binary"

// Field helpers over encoding/binary.NativeEndian. Arena and snapshot bytes
// are only meaningful on a machine with the writer's byte order.

// PutU32 writes v at off in native byte order.
func PutU32(b []byte, off int, v uint32) {
	binary.NativeEndian.PutUint32(b[off:off+4], v)
}

// ReadU32 reads a uint32 at off in native byte order.
func ReadU32(b []byte, off int) uint32 {
	return binary.NativeEndian.Uint32(b[off : off+4])
}

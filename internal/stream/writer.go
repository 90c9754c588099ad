// Package stream implements the forward-only binary writer and reader used by
// heap snapshots, patches and replication frames.
//
// Values are encoded in the host's native byte order. Output is only meant to
// be read back by a build with the same endianness.
package stream

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// minGrow is the smallest capacity a Writer allocates when it first grows.
const minGrow = 64

// Writer appends fixed-size values and raw spans to a growable buffer.
//
// The write cursor can be repositioned with MoveTo to patch a field that was
// reserved earlier (a run count, a length prefix). Len is the high-water mark
// of everything written, independent of the cursor.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	buf []byte // buf[:n] is the written prefix
	pos int    // write cursor
	n   int    // high-water mark
}

// NewWriter returns a Writer with at least capacity bytes preallocated.
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

// NewWriterFrom returns a Writer whose written prefix is b, with the cursor
// at 0. Subsequent writes overwrite b in place until they pass its end.
func NewWriterFrom(b []byte) *Writer {
	return &Writer{buf: b, n: len(b)}
}

// Position returns the write cursor.
func (w *Writer) Position() int { return w.pos }

// Len returns the number of bytes written so far (the high-water mark).
func (w *Writer) Len() int { return w.n }

// MoveTo repositions the write cursor. Positions past Len are a programming
// error and panic.
func (w *Writer) MoveTo(pos int) {
	if pos < 0 || pos > w.n {
		panic(errors.AssertionFailedf("stream: MoveTo(%d) outside written range [0,%d]", pos, w.n))
	}
	w.pos = pos
}

// SeekEnd moves the cursor to the end of the written data.
func (w *Writer) SeekEnd() { w.pos = w.n }

// Bytes returns the written prefix without copying. It aliases the Writer's
// buffer and is invalidated by the next write that grows it.
func (w *Writer) Bytes() []byte { return w.buf[:w.n] }

// ToArray returns a copy of exactly the written prefix.
func (w *Writer) ToArray() []byte {
	out := make([]byte, w.n)
	copy(out, w.buf[:w.n])
	return out
}

// reserve makes room for n bytes at the cursor and returns the span.
func (w *Writer) reserve(n int) []byte {
	end := w.pos + n
	if end > cap(w.buf) {
		newCap := max(2*cap(w.buf), end, minGrow)
		grown := make([]byte, w.n, newCap)
		copy(grown, w.buf[:w.n])
		w.buf = grown
	}
	if end > len(w.buf) {
		w.buf = w.buf[:end]
	}
	span := w.buf[w.pos:end]
	w.pos = end
	if end > w.n {
		w.n = end
	}
	return span
}

// Write appends p at the cursor. It never fails; the error is for io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	copy(w.reserve(len(p)), p)
	return len(p), nil
}

// U8 appends v.
func (w *Writer) U8(v uint8) { w.reserve(1)[0] = v }

// U16 appends v in native byte order.
func (w *Writer) U16(v uint16) { binary.NativeEndian.PutUint16(w.reserve(2), v) }

// U32 appends v in native byte order.
func (w *Writer) U32(v uint32) { binary.NativeEndian.PutUint32(w.reserve(4), v) }

// I32 appends v in native byte order.
func (w *Writer) I32(v int32) { binary.NativeEndian.PutUint32(w.reserve(4), uint32(v)) }

// U64 appends v in native byte order.
func (w *Writer) U64(v uint64) { binary.NativeEndian.PutUint64(w.reserve(8), v) }

// I64 appends v in native byte order.
func (w *Writer) I64(v int64) { binary.NativeEndian.PutUint64(w.reserve(8), uint64(v)) }

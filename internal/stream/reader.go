package stream

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/buf"
)

// ErrShortBuffer is reported when a read runs past the end of the input.
// Callers treat it as corruption: the data was truncated or mis-framed.
var ErrShortBuffer = errors.New("stream: read past end of buffer")

// Reader consumes fixed-size values and raw spans from a byte slice.
//
// Errors are sticky: the first overrun is recorded, every later read returns
// a zero value, and Err reports the failure. This keeps decoders linear:
//
//	r := stream.NewReader(b)
//	version := r.U16()
//	count := r.U32()
//	if err := r.Err(); err != nil {
//	    return err
//	}
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first read error, if any.
func (r *Reader) Err() error { return r.err }

// Position returns the read cursor.
func (r *Reader) Position() int { return r.pos }

// Remaining returns the unread byte count.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Len returns the total input length.
func (r *Reader) Len() int { return len(r.buf) }

// Next returns the next n bytes without copying and advances past them.
// The result aliases the input.
func (r *Reader) Next(n int) []byte {
	if r.err != nil {
		return nil
	}
	span, ok := buf.Slice(r.buf, r.pos, n)
	if !ok {
		r.err = errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, r.pos, r.Remaining())
		r.pos = len(r.buf)
		return nil
	}
	r.pos += n
	return span
}

// ReadInto fills p from the input.
func (r *Reader) ReadInto(p []byte) {
	if span := r.Next(len(p)); span != nil {
		copy(p, span)
	}
}

// Read implements io.Reader over the remaining input. Unlike the fixed-size
// reads it returns a short count, and io.EOF once drained.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// U8 reads a byte.
func (r *Reader) U8() uint8 {
	if b := r.Next(1); b != nil {
		return b[0]
	}
	return 0
}

// U16 reads a native-order uint16.
func (r *Reader) U16() uint16 {
	if b := r.Next(2); b != nil {
		return binary.NativeEndian.Uint16(b)
	}
	return 0
}

// U32 reads a native-order uint32.
func (r *Reader) U32() uint32 {
	if b := r.Next(4); b != nil {
		return binary.NativeEndian.Uint32(b)
	}
	return 0
}

// I32 reads a native-order int32.
func (r *Reader) I32() int32 { return int32(r.U32()) }

// U64 reads a native-order uint64.
func (r *Reader) U64() uint64 {
	if b := r.Next(8); b != nil {
		return binary.NativeEndian.Uint64(b)
	}
	return 0
}

// I64 reads a native-order int64.
func (r *Reader) I64() int64 { return int64(r.U64()) }

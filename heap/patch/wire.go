package patch

import (
	"bytes"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/stream"
)

var magic = [4]byte{'H', 'P', 'A', 'T'}

// wireHeaderSize is magic | newLength | runs | tailLength | digest | payloadLen.
const wireHeaderSize = 4 + 4 + 4 + 4 + 8 + 4

// MarshalBinary encodes the patch for transport.
func (p *Patch) MarshalBinary() ([]byte, error) {
	w := stream.NewWriter(wireHeaderSize + len(p.payload))
	_, _ = w.Write(magic[:])
	w.U32(p.newLength)
	w.U32(p.runs)
	w.U32(p.tailLength)
	w.U64(p.digest)
	w.U32(uint32(len(p.payload)))
	_, _ = w.Write(p.payload)
	return w.Bytes(), nil
}

// UnmarshalBinary decodes a patch produced by MarshalBinary. The record
// stream is validated against the header counts: delta runs in ascending
// order, then exactly one tail record covering newLength%ChunkSize bytes at
// the end when the length is not chunk aligned. b is copied.
func (p *Patch) UnmarshalBinary(b []byte) error {
	r := stream.NewReader(b)
	if m := r.Next(len(magic)); m != nil && !bytes.Equal(m, magic[:]) {
		return errors.Wrapf(ErrCorruptPatch, "bad magic %q", m)
	}
	q := Patch{
		newLength:  r.U32(),
		runs:       r.U32(),
		tailLength: r.U32(),
		digest:     r.U64(),
	}
	n := r.U32()
	payload := r.Next(int(n))
	if err := r.Err(); err != nil {
		return errors.Wrapf(ErrCorruptPatch, "header: %v", err)
	}
	if r.Remaining() != 0 {
		return errors.Wrapf(ErrCorruptPatch, "%d trailing bytes", r.Remaining())
	}
	q.payload = bytes.Clone(payload)
	q.tailChanged = q.tailLength > 0

	if q.tailLength != q.newLength%format.ChunkSize {
		return errors.Wrapf(ErrCorruptPatch, "tail of %d bytes for length %d", q.tailLength, q.newLength)
	}

	var runs, tail uint32
	var last uint64
	var bad string
	tailSeen := false
	err := q.Records(func(rec Record) bool {
		switch {
		case tailSeen:
			bad = "record after tail"
		case uint64(rec.Offset) < last:
			bad = "records out of order"
		case rec.Type == format.RecordTail &&
			(len(rec.Data) == 0 || len(rec.Data) != int(q.tailLength) || rec.Offset != q.newLength-q.tailLength):
			bad = "misplaced tail"
		}
		if bad != "" {
			return false
		}
		last = uint64(rec.Offset) + uint64(len(rec.Data))
		if rec.Type == format.RecordDelta {
			runs++
		} else {
			tailSeen = true
			tail = uint32(len(rec.Data))
		}
		return true
	})
	if err != nil {
		return err
	}
	if bad != "" {
		return errors.Wrapf(ErrCorruptPatch, "%s at offset %d", bad, last)
	}
	if runs != q.runs || tail != q.tailLength {
		return errors.Wrapf(ErrCorruptPatch, "header declares %d runs and %d tail bytes, payload has %d and %d",
			q.runs, q.tailLength, runs, tail)
	}

	*p = q
	return nil
}

package patch

import (
	"bytes"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/stream"
)

// Patch is an immutable delta between two snapshots of equal length.
type Patch struct {
	newLength  uint32
	runs       uint32
	tailLength uint32
	digest     uint64
	payload    []byte

	// tailChanged is only known for patches built by GetDiff; decoded
	// patches assume the tail changed.
	tailChanged bool
}

// Record is one decoded entry of a patch payload. Data aliases the payload.
type Record struct {
	Type   uint8 // format.RecordDelta or format.RecordTail
	Offset uint32
	Data   []byte
}

// Chunks returns the number of 32-byte chunks in a delta record.
func (r Record) Chunks() int {
	if r.Type != format.RecordDelta {
		return 0
	}
	return len(r.Data) / format.ChunkSize
}

// Digest returns the xxhash64 of b, the value a Patch carries for its
// destination snapshot.
func Digest(b []byte) uint64 { return xxhash.Sum64(b) }

// GetDiff returns the patch that turns src into dst.
func GetDiff(src, dst []byte) (*Patch, error) {
	if len(src) != len(dst) {
		return nil, errors.Wrapf(ErrLengthMismatch, "source %d, destination %d", len(src), len(dst))
	}
	if uint64(len(dst)) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrTooLarge, "%d bytes", len(dst))
	}

	n := len(dst)
	whole := n - n%format.ChunkSize
	w := stream.NewWriter(64)
	p := &Patch{newLength: uint32(n), digest: Digest(dst)}

	countPos := -1 // cursor of the open run's count field
	var count uint32
	closeRun := func() {
		if countPos < 0 {
			return
		}
		w.MoveTo(countPos)
		w.U32(count)
		w.SeekEnd()
		countPos, count = -1, 0
	}

	for off := 0; off < whole; off += format.ChunkSize {
		end := off + format.ChunkSize
		if chunkEqual(src[off:end], dst[off:end]) {
			closeRun()
			continue
		}
		if countPos < 0 {
			w.U8(format.RecordDelta)
			w.U32(uint32(off))
			countPos = w.Position()
			w.U32(0)
			p.runs++
		}
		_, _ = w.Write(dst[off:end])
		count++
	}
	closeRun()

	if tail := n - whole; tail > 0 {
		w.U8(format.RecordTail)
		w.U32(uint32(whole))
		w.U32(uint32(tail))
		_, _ = w.Write(dst[whole:])
		p.tailLength = uint32(tail)
		p.tailChanged = !bytes.Equal(src[whole:], dst[whole:])
	}

	p.payload = w.ToArray()
	return p, nil
}

// chunkEqual compares two 32-byte chunks, rejecting on the edge bytes first.
func chunkEqual(a, b []byte) bool {
	if a[0] != b[0] || a[format.ChunkSize-1] != b[format.ChunkSize-1] {
		return false
	}
	return bytes.Equal(a, b)
}

// NewLength returns the length of both snapshots.
func (p *Patch) NewLength() int { return int(p.newLength) }

// Runs returns the number of delta runs.
func (p *Patch) Runs() int { return int(p.runs) }

// TailLength returns the length of the tail record, 0 when the snapshot
// length is a multiple of the chunk size.
func (p *Patch) TailLength() int { return int(p.tailLength) }

// Digest returns the xxhash64 of the destination snapshot.
func (p *Patch) Digest() uint64 { return p.digest }

// Payload returns the encoded records. The caller must not modify it.
func (p *Patch) Payload() []byte { return p.payload }

// IsEmpty reports whether applying p would change nothing.
func (p *Patch) IsEmpty() bool { return p.runs == 0 && !p.tailChanged }

// ChangedBytes returns the number of destination bytes the patch carries.
func (p *Patch) ChangedBytes() int {
	total := 0
	_ = p.Records(func(r Record) bool {
		total += len(r.Data)
		return true
	})
	return total
}

// Records calls fn for every record in payload order until fn returns
// false. It returns ErrCorruptPatch if the payload is malformed; records
// before the malformed one have already been delivered.
func (p *Patch) Records(fn func(Record) bool) error {
	r := stream.NewReader(p.payload)
	for r.Remaining() > 0 {
		at := r.Position()
		typ := r.U8()
		off := r.U32()
		n := r.U32()
		if err := r.Err(); err != nil {
			return errors.Wrapf(ErrCorruptPatch, "record header at %d: %v", at, err)
		}

		elem := 1
		switch typ {
		case format.RecordDelta:
			if n == 0 {
				return errors.Wrapf(ErrCorruptPatch, "empty delta run at %d", at)
			}
			elem = format.ChunkSize
		case format.RecordTail:
		default:
			return errors.Wrapf(ErrCorruptPatch, "record type %d at %d", typ, at)
		}
		if _, err := buf.CheckRange(int(p.newLength), int(off), int(n), elem); err != nil {
			return errors.Wrapf(ErrCorruptPatch, "record at %d target: %v", at, err)
		}
		size, err := buf.CheckRange(r.Remaining(), 0, int(n), elem)
		if err != nil {
			return errors.Wrapf(ErrCorruptPatch, "record at %d data: %v", at, err)
		}

		data := r.Next(size)
		if !fn(Record{Type: typ, Offset: off, Data: data}) {
			return nil
		}
	}
	return nil
}

// ApplyTo replays the patch onto a copy of src and returns the result.
func (p *Patch) ApplyTo(src []byte) ([]byte, error) {
	out := bytes.Clone(src)
	if err := p.applyInPlace(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply serializes a, replays the patch over that snapshot and restores a
// from the result. On error a is unchanged.
func (p *Patch) Apply(a *heap.Allocator) error {
	snap := a.Serialize()
	if err := p.applyInPlace(snap); err != nil {
		return err
	}
	return a.Restore(snap)
}

func (p *Patch) applyInPlace(b []byte) error {
	if len(b) != int(p.newLength) {
		return errors.Wrapf(ErrLengthMismatch, "patch for %d bytes, snapshot %d", p.newLength, len(b))
	}
	w := stream.NewWriterFrom(b)
	err := p.Records(func(r Record) bool {
		w.MoveTo(int(r.Offset))
		_, _ = w.Write(r.Data)
		return true
	})
	if err != nil {
		return err
	}
	if got := Digest(b); got != p.digest {
		return errors.Wrapf(ErrDigestMismatch, "got %016x, want %016x", got, p.digest)
	}
	return nil
}

package heap

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/stream"
)

// SerializedLen returns the exact length of Serialize's output.
func (a *Allocator) SerializedLen() int {
	n := format.SnapshotHeaderSize
	for _, ar := range a.arenas() {
		n += 4
		if ar != nil {
			n += ar.Size()
		}
	}
	return n
}

// Serialize returns a snapshot of the allocator.
func (a *Allocator) Serialize() []byte {
	w := stream.NewWriter(a.SerializedLen())
	a.SerializeTo(w)
	return w.ToArray()
}

// SerializeTo appends a snapshot of the allocator to w.
func (a *Allocator) SerializeTo(w *stream.Writer) {
	t := a.arenas()
	w.U16(a.Version())
	w.I64(a.MaxSize())
	w.U32(uint32(len(t)))
	for _, ar := range t {
		if ar == nil {
			w.I32(0)
			continue
		}
		w.I32(int32(ar.Size()))
		_, _ = w.Write(ar.Bytes())
	}
}

// Deserialize builds a new Allocator from a snapshot. The result owns its
// memory; b may be reused afterwards.
func Deserialize(b []byte, opts *Options) (*Allocator, error) {
	a := New(opts)
	if err := a.Restore(b); err != nil {
		return nil, err
	}
	return a, nil
}

type snapshot struct {
	version uint16
	maxSize int64
	arenas  []*arena.Arena // alias the snapshot bytes
}

func parseSnapshot(b []byte) (snapshot, error) {
	var s snapshot
	r := stream.NewReader(b)
	s.version = r.U16()
	s.maxSize = r.I64()
	count := r.U32()
	if err := r.Err(); err != nil {
		return s, errors.Wrapf(ErrCorruptSnapshot, "header: %v", err)
	}
	// Every slot costs at least its length prefix.
	if int64(count)*4 > int64(r.Remaining()) {
		return s, errors.Wrapf(ErrCorruptSnapshot, "%d arenas in %d bytes", count, r.Remaining())
	}

	s.arenas = make([]*arena.Arena, count)
	for i := range s.arenas {
		n := r.I32()
		if n < 0 {
			return s, errors.Wrapf(ErrCorruptSnapshot, "arena %d: length %d", i, n)
		}
		if n == 0 {
			if err := r.Err(); err != nil {
				return s, errors.Wrapf(ErrCorruptSnapshot, "arena %d: %v", i, err)
			}
			continue
		}
		raw := r.Next(int(n))
		if err := r.Err(); err != nil {
			return s, errors.Wrapf(ErrCorruptSnapshot, "arena %d: %v", i, err)
		}
		ar, err := arena.FromBytes(raw)
		if err != nil {
			return s, errors.Wrapf(ErrCorruptSnapshot, "arena %d: %v", i, err)
		}
		s.arenas[i] = ar
	}
	if r.Remaining() != 0 {
		return s, errors.Wrapf(ErrCorruptSnapshot, "%d trailing bytes", r.Remaining())
	}
	return s, nil
}

// Restore replaces the allocator's contents with a snapshot. It is
// all-or-nothing: on error the allocator is unchanged. Arena buffers whose
// size matches the snapshot are overwritten in place; the allocator adopts
// the snapshot's version and MaxSize.
func (a *Allocator) Restore(b []byte) error {
	s, err := parseSnapshot(b)
	if err != nil {
		return err
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	cur := a.arenas()
	next := make([]*arena.Arena, len(s.arenas))
	for i, src := range s.arenas {
		if src == nil {
			continue
		}
		dst := arena.Blank(src.Size())
		if i < len(cur) && cur[i] != nil && cur[i].Size() == src.Size() {
			dst = cur[i]
		}
		if err := dst.CopyFrom(src); err != nil {
			return errors.AssertionFailedf("heap: restore arena %d: %v", i, err)
		}
		next[i] = dst
	}

	a.setTable(next)
	a.maxSize.Store(s.maxSize)
	a.version.Store(uint32(s.version))
	a.epoch.Add(1)
	a.log.Debug("snapshot restored", "arenas", len(next), "version", s.version, "bytes", len(b))
	return nil
}

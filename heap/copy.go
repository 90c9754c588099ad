package heap

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap/arena"
)

// CopyFrom makes a an exact structural copy of other: same arena slots,
// same sizes, same bytes, same MaxSize. Handles valid in other are valid in
// a afterwards.
func (a *Allocator) CopyFrom(other *Allocator) error {
	n := a.CopyFromPrepare(other)
	for i := range n {
		if err := a.CopyFromComplete(other, i); err != nil {
			return err
		}
	}
	return nil
}

// CopyFromPrepare reshapes a's arena table to match other's geometry and
// returns the number of slots. Arenas whose size already matches are kept;
// the rest are replaced by blank buffers. The bytes themselves are copied by
// CopyFromComplete, which may run for different indices in parallel.
func (a *Allocator) CopyFromPrepare(other *Allocator) int {
	src := other.arenas()

	a.lock.Lock()
	defer a.lock.Unlock()

	cur := a.arenas()
	next := make([]*arena.Arena, len(src))
	for i, sa := range src {
		switch {
		case sa == nil:
		case i < len(cur) && cur[i] != nil && cur[i].Size() == sa.Size():
			next[i] = cur[i]
		default:
			next[i] = arena.Blank(sa.Size())
		}
	}
	a.setTable(next)
	a.maxSize.Store(other.MaxSize())
	a.bumpVersion()
	return len(next)
}

// CopyFromComplete copies the bytes of arena i from other. It must follow a
// CopyFromPrepare against the same, unmodified other.
func (a *Allocator) CopyFromComplete(other *Allocator, i int) error {
	src, dst := other.Arena(i), a.Arena(i)
	switch {
	case src == nil && dst == nil:
	case src == nil || dst == nil:
		return errors.Wrapf(ErrGeometry, "arena %d present on one side only", i)
	default:
		if err := dst.CopyFrom(src); err != nil {
			return errors.Wrapf(ErrGeometry, "arena %d: %v", i, err)
		}
	}
	a.bumpVersion()
	return nil
}

package heap

import (
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/format"
)

// MaxAllocSize is the largest payload a single block can hold.
const MaxAllocSize = format.MaxArenaSize - format.ArenaOverhead - format.BlockHeaderSize

// Allocator routes allocations across a table of arenas and hands out
// Handles.
type Allocator struct {
	lock spinLock

	// table is replaced wholesale on every structural change so readers can
	// load it without the lock. Slots of destroyed arenas are nil.
	table atomic.Pointer[[]*arena.Arena]

	// version is the serialized 16-bit structural counter, kept in a
	// uint32 so it can be updated atomically.
	version atomic.Uint32

	// epoch changes whenever arena storage may have been replaced,
	// including Restore, which adopts a snapshot's version verbatim.
	epoch atomic.Uint64

	maxSize   atomic.Int64
	warnedMax atomic.Bool

	opts Options
	log  *slog.Logger
}

// New returns an empty Allocator. A nil opts uses DefaultOptions.
func New(opts *Options) *Allocator {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults()

	a := &Allocator{opts: o, log: o.Logger}
	a.maxSize.Store(o.MaxSize)
	a.setTable(nil)
	return a
}

// Initialize returns an Allocator whose first arena holds initialSize bytes.
// maxSize overrides opts.MaxSize when non-zero.
func Initialize(initialSize, maxSize int64, opts *Options) (*Allocator, error) {
	if initialSize < 0 || initialSize > format.MaxArenaSize {
		return nil, errors.Wrapf(ErrBadSize, "initial size %d", initialSize)
	}
	a := New(opts)
	if maxSize != 0 {
		a.maxSize.Store(maxSize)
	}
	if initialSize > 0 {
		a.lock.Lock()
		_, _, err := a.addArenaLocked(int(initialSize))
		a.lock.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Dispose drops every arena. The Allocator stays usable and starts empty.
func (a *Allocator) Dispose() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if len(a.arenas()) == 0 {
		return
	}
	a.setTable(nil)
	a.bumpVersion()
}

// Version returns the structural version counter.
func (a *Allocator) Version() uint16 { return uint16(a.version.Load()) }

// MaxSize returns the advisory size ceiling.
func (a *Allocator) MaxSize() int64 { return a.maxSize.Load() }

// ArenaCount returns the number of arena slots, empty ones included.
func (a *Allocator) ArenaCount() int { return len(a.arenas()) }

// Arena returns the arena in slot i, or nil for an empty or unknown slot.
func (a *Allocator) Arena(i int) *arena.Arena {
	t := a.arenas()
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// Alloc allocates a block of at least size bytes. A zero size returns the
// invalid Handle without allocating.
func (a *Allocator) Alloc(size int) (Handle, error) {
	if size == 0 {
		return InvalidHandle, nil
	}
	if size < 0 || size > MaxAllocSize {
		return InvalidHandle, errors.Wrapf(ErrBadSize, "%d bytes", size)
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	return a.allocLocked(size)
}

// Free releases the block behind h. Freeing the invalid Handle is a no-op.
// An arena left without live blocks is destroyed and its slot cleared for
// reuse.
func (a *Allocator) Free(h Handle) error {
	if !h.IsValid() {
		return nil
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	ar := a.Arena(int(h.Arena))
	if ar == nil {
		return errors.Wrapf(ErrBadHandle, "%s", h)
	}
	if !ar.Free(h.Offset) {
		return errors.Wrapf(ErrNotLive, "%s", h)
	}
	a.dropIfEmptyLocked(int(h.Arena))
	return nil
}

// Realloc resizes the block behind h to hold at least size bytes. Shrinking
// returns h unchanged. Growth happens in place when the next block is free;
// otherwise the payload moves to a new block, h is freed, and the returned
// Handle must replace it.
func (a *Allocator) Realloc(h Handle, size int) (Handle, error) {
	if !h.IsValid() {
		return a.Alloc(size)
	}
	if size < 0 || size > MaxAllocSize {
		return InvalidHandle, errors.Wrapf(ErrBadSize, "%d bytes", size)
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	ar := a.Arena(int(h.Arena))
	if ar == nil {
		return InvalidHandle, errors.Wrapf(ErrBadHandle, "%s", h)
	}
	capacity := ar.Cap(h.Offset)
	if capacity < 0 {
		return InvalidHandle, errors.Wrapf(ErrNotLive, "%s", h)
	}
	if size <= capacity || ar.Grow(h.Offset, size) {
		return h, nil
	}

	moved, err := a.allocLocked(size)
	if err != nil {
		return InvalidHandle, err
	}
	src, _ := ar.Payload(h.Offset)
	dst, _ := a.Arena(int(moved.Arena)).Payload(moved.Offset)
	copy(dst, src)

	if !ar.Free(h.Offset) {
		return InvalidHandle, errors.AssertionFailedf("heap: live block %s vanished during realloc", h)
	}
	a.dropIfEmptyLocked(int(h.Arena))
	return moved, nil
}

// Reserve makes sure some arena can serve an allocation of size bytes,
// creating one ahead of an allocation burst if needed.
func (a *Allocator) Reserve(size int) error {
	if size <= 0 {
		return nil
	}
	if size > MaxAllocSize {
		return errors.Wrapf(ErrBadSize, "%d bytes", size)
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	for _, ar := range a.arenas() {
		if ar != nil && ar.HasFreeBlock(size) {
			return nil
		}
	}
	_, _, err := a.addArenaLocked(format.ArenaSizeFor(size))
	return err
}

func (a *Allocator) allocLocked(size int) (Handle, error) {
	for i, ar := range a.arenas() {
		if ar == nil {
			continue
		}
		if off, ok := ar.Malloc(size); ok {
			return Handle{Arena: uint32(i), Offset: off}, nil
		}
	}

	idx, ar, err := a.addArenaLocked(format.ArenaSizeFor(size))
	if err != nil {
		return InvalidHandle, err
	}
	off, ok := ar.Malloc(size)
	if !ok {
		return InvalidHandle, errors.AssertionFailedf(
			"heap: fresh arena %d of %d bytes cannot serve %d bytes", idx, ar.Size(), size)
	}
	return Handle{Arena: uint32(idx), Offset: off}, nil
}

// addArenaLocked creates an arena of at least need bytes in the first empty
// slot, or appends one.
func (a *Allocator) addArenaLocked(need int) (int, *arena.Arena, error) {
	size := max(need, a.opts.MinArenaSize)
	if limit := a.maxSize.Load(); limit > 0 {
		if total := a.capacity() + int64(size); total > limit {
			if a.opts.StrictMaxSize {
				return 0, nil, errors.Wrapf(ErrMaxSize, "need %d bytes, limit %d", total, limit)
			}
			if a.warnedMax.CompareAndSwap(false, true) {
				a.log.Warn("heap grew past advisory max size", "capacity", total, "max_size", limit)
			}
		}
	}

	ar := arena.New(size)
	cur := a.arenas()
	next := make([]*arena.Arena, len(cur), len(cur)+1)
	copy(next, cur)

	idx := -1
	for i, slot := range next {
		if slot == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(next)
		next = append(next, nil)
	}
	next[idx] = ar

	a.setTable(next)
	a.bumpVersion()
	a.log.Debug("arena created", "index", idx, "size", ar.Size(), "version", a.Version())
	return idx, ar, nil
}

// dropIfEmptyLocked destroys the arena in slot i when it has no live blocks.
func (a *Allocator) dropIfEmptyLocked(i int) {
	cur := a.arenas()
	if cur[i] == nil || !cur[i].IsEmpty() {
		return
	}
	next := make([]*arena.Arena, len(cur))
	copy(next, cur)
	next[i] = nil

	a.setTable(next)
	a.bumpVersion()
	a.log.Debug("arena destroyed", "index", i, "size", cur[i].Size(), "version", a.Version())
}

func (a *Allocator) capacity() int64 {
	var total int64
	for _, ar := range a.arenas() {
		if ar != nil {
			total += int64(ar.Size())
		}
	}
	return total
}

func (a *Allocator) arenas() []*arena.Arena {
	if t := a.table.Load(); t != nil {
		return *t
	}
	return nil
}

func (a *Allocator) setTable(t []*arena.Arena) { a.table.Store(&t) }

func (a *Allocator) bumpVersion() {
	a.version.Add(1)
	a.epoch.Add(1)
}

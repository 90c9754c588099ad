package arena

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
)

const (
	hdr = format.BlockHeaderSize

	// noBlock terminates the link chain at both sentinels. Offset 0 is the
	// arena header, so it can never be a block.
	noBlock = 0
)

// Arena is one contiguous region managed by an embedded free list.
type Arena struct {
	buf []byte
}

// Block describes a block header as reported by Walk.
type Block struct {
	Offset uint32 // header offset within the arena
	Size   uint32 // total size including the header
	Free   bool
	Prev   uint32
	Next   uint32
}

// Payload returns the payload offset of the block.
func (b Block) Payload() uint32 { return b.Offset + hdr }

// Cap returns the payload capacity of the block.
func (b Block) Cap() int { return int(b.Size) - hdr }

// New creates an arena of at least max(minBytes, format.MinArenaSize) bytes,
// initialised as a single free block.
func New(minBytes int) *Arena {
	size := min(max(format.Align16(minBytes), format.MinArenaSize), format.MaxArenaSize)
	a := &Arena{buf: make([]byte, size)}
	a.init()
	return a
}

// Blank returns an arena of exactly size bytes with an all-zero buffer. It
// is only meaningful as the target of CopyFrom.
func Blank(size int) *Arena {
	return &Arena{buf: make([]byte, size)}
}

// FromBytes adopts a serialized arena. The Arena aliases b. Only length
// bookkeeping is validated: the header size must equal len(b) and the rover
// must point inside the block area.
func FromBytes(b []byte) (*Arena, error) {
	if len(b) < format.MinArenaSize || !format.IsAligned(len(b)) {
		return nil, errors.Wrapf(ErrCorrupt, "length %d", len(b))
	}
	a := &Arena{buf: b}
	if got := a.u32(format.ArenaSizeOffset); int(got) != len(b) {
		return nil, errors.Wrapf(ErrCorrupt, "header size %d, buffer %d", got, len(b))
	}
	rover := a.rover()
	if rover < format.FirstBlockOffset || rover >= a.tail() || !format.IsAligned(int(rover)) {
		return nil, errors.Wrapf(ErrCorrupt, "rover 0x%X", rover)
	}
	return a, nil
}

func (a *Arena) init() {
	size := uint32(len(a.buf))
	head := uint32(format.HeadSentinelOffset)
	first := uint32(format.FirstBlockOffset)
	tail := size - hdr

	a.putU32(format.ArenaSizeOffset, size)
	a.setRover(first)
	a.putU32(format.ArenaLiveBlocksOffset, 0)
	a.putU32(format.ArenaLivePayloadOffset, 0)

	a.writeHeader(head, hdr, format.BlockUsed, noBlock, first)
	a.writeHeader(first, tail-first, format.BlockFree, head, tail)
	a.writeHeader(tail, hdr, format.BlockUsed, first, noBlock)
}

// Bytes returns the arena buffer. It aliases the arena.
func (a *Arena) Bytes() []byte { return a.buf }

// Size returns the arena size in bytes.
func (a *Arena) Size() int { return len(a.buf) }

// IsEmpty reports whether the arena holds no live blocks.
func (a *Arena) IsEmpty() bool { return a.u32(format.ArenaLiveBlocksOffset) == 0 }

// LiveBlocks returns the number of allocated blocks.
func (a *Arena) LiveBlocks() int { return int(a.u32(format.ArenaLiveBlocksOffset)) }

// LivePayload returns the payload bytes held by allocated blocks.
func (a *Arena) LivePayload() int { return int(a.u32(format.ArenaLivePayloadOffset)) }

// Rover returns the header offset where the next search starts.
func (a *Arena) Rover() uint32 { return a.rover() }

// Malloc allocates a block with at least size payload bytes and returns its
// payload offset. It returns false when no free block fits; the caller then
// tries another arena.
func (a *Arena) Malloc(size int) (uint32, bool) {
	if size <= 0 || size > len(a.buf) {
		return 0, false
	}
	need := uint32(format.BlockSizeFor(size))

	start := a.rover()
	tail := a.tail()
	off := start
	for range a.maxSteps() {
		if a.state(off) == format.BlockFree && a.size(off) >= need {
			a.claim(off, need)
			next := a.next(off)
			if next == tail {
				next = format.FirstBlockOffset
			}
			a.setRover(next)
			return off + hdr, true
		}
		off = a.next(off)
		if off == tail {
			off = format.FirstBlockOffset
		}
		if off == start {
			break
		}
	}
	return 0, false
}

// HasFreeBlock reports whether a Malloc(size) would succeed, without
// mutating the arena.
func (a *Arena) HasFreeBlock(size int) bool {
	if size <= 0 || size > len(a.buf) {
		return false
	}
	need := uint32(format.BlockSizeFor(size))
	found := false
	a.walk(func(off uint32) bool {
		if a.state(off) == format.BlockFree && a.size(off) >= need {
			found = true
			return false
		}
		return true
	})
	return found
}

// Free releases the block whose payload starts at payloadOff and merges it
// with free neighbours. Free returns false, changing nothing, when
// payloadOff is not a live block (including a block that is already free).
func (a *Arena) Free(payloadOff uint32) bool {
	off, ok := a.liveHeader(payloadOff)
	if !ok {
		return false
	}
	a.release(off, true)
	return true
}

// Grow extends the block at payloadOff so it holds at least size payload
// bytes without moving it. Shrinking or keeping the size succeeds trivially.
// It returns false when the following block is not free or too small; the
// block is left untouched in that case.
func (a *Arena) Grow(payloadOff uint32, size int) bool {
	off, ok := a.liveHeader(payloadOff)
	if !ok {
		return false
	}
	if size <= 0 {
		return true
	}
	if size > len(a.buf) {
		return false
	}
	cur := a.size(off)
	need := uint32(format.BlockSizeFor(size))
	if need <= cur {
		return true
	}
	next := a.next(off)
	if a.state(next) != format.BlockFree || cur+a.size(next) < need {
		return false
	}

	// Release without touching the predecessor so the header stays put,
	// then claim the merged block back at the same offset.
	a.release(off, false)
	a.claim(off, need)
	return true
}

// Cap returns the payload capacity of the live block at payloadOff, or -1.
func (a *Arena) Cap(payloadOff uint32) int {
	off, ok := a.liveHeader(payloadOff)
	if !ok {
		return -1
	}
	return int(a.size(off)) - hdr
}

// Payload returns the payload of the live block at payloadOff. The slice
// aliases the arena and its capacity ends at the block boundary.
func (a *Arena) Payload(payloadOff uint32) ([]byte, bool) {
	off, ok := a.liveHeader(payloadOff)
	if !ok {
		return nil, false
	}
	end := off + a.size(off)
	return a.buf[payloadOff:end:end], true
}

// View is Payload without the neighbour link checks. It reads only the
// block's own size and state, so it may run while another goroutine
// allocates or frees other blocks of the arena.
func (a *Arena) View(payloadOff uint32) ([]byte, bool) {
	if payloadOff < format.FirstBlockOffset+hdr || !format.IsAligned(int(payloadOff)) {
		return nil, false
	}
	off := payloadOff - hdr
	if off >= a.tail() || a.state(off) != format.BlockUsed {
		return nil, false
	}
	end := off + a.size(off)
	if end <= payloadOff || end > a.tail() {
		return nil, false
	}
	return a.buf[payloadOff:end:end], true
}

// OffsetOf maps a slice that starts at a live payload back to its payload
// offset.
func (a *Arena) OffsetOf(p []byte) (uint32, bool) {
	if len(a.buf) == 0 || cap(p) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	if ptr < base || ptr >= base+uintptr(len(a.buf)) {
		return 0, false
	}
	off := uint32(ptr - base)
	if _, ok := a.liveHeader(off); !ok {
		return 0, false
	}
	return off, true
}

// CopyFrom overwrites the arena with the bytes of src. Both arenas must have
// the same size.
func (a *Arena) CopyFrom(src *Arena) error {
	if len(a.buf) != len(src.buf) {
		return errors.Wrapf(ErrSizeMismatch, "%d != %d", len(a.buf), len(src.buf))
	}
	copy(a.buf, src.buf)
	return nil
}

// Walk calls fn for every block between the sentinels, in address order,
// until fn returns false.
func (a *Arena) Walk(fn func(Block) bool) {
	a.walk(func(off uint32) bool {
		return fn(a.block(off))
	})
}

// Sentinels returns the head and tail sentinel headers.
func (a *Arena) Sentinels() (head, tail Block) {
	return a.block(format.HeadSentinelOffset), a.block(a.tail())
}

// BlockAt decodes the header at off without validating it.
func (a *Arena) BlockAt(off uint32) Block { return a.block(off) }

// Stats summarises block usage.
type Stats struct {
	Size        int
	LiveBlocks  int
	LivePayload int
	FreeBlocks  int
	FreeBytes   int // free block bytes, headers included
	LargestFree int // largest payload a single Malloc could serve
}

// Stats walks the arena and returns its usage summary.
func (a *Arena) Stats() Stats {
	s := Stats{
		Size:        len(a.buf),
		LiveBlocks:  a.LiveBlocks(),
		LivePayload: a.LivePayload(),
	}
	a.walk(func(off uint32) bool {
		if a.state(off) == format.BlockFree {
			sz := int(a.size(off))
			s.FreeBlocks++
			s.FreeBytes += sz
			s.LargestFree = max(s.LargestFree, sz-hdr)
		}
		return true
	})
	return s
}

// claim marks the free block at off used, splitting off the remainder when
// it is larger than one header.
func (a *Arena) claim(off, need uint32) {
	size := a.size(off)
	if rem := size - need; rem > hdr {
		next := a.next(off)
		split := off + need
		a.writeHeader(split, rem, format.BlockFree, off, next)
		a.setPrev(next, split)
		a.setNext(off, split)
		a.setSize(off, need)
		size = need
	}
	a.setState(off, format.BlockUsed)
	a.putU32(format.ArenaLiveBlocksOffset, a.u32(format.ArenaLiveBlocksOffset)+1)
	a.putU32(format.ArenaLivePayloadOffset, a.u32(format.ArenaLivePayloadOffset)+size-hdr)
}

// release marks the used block at off free and coalesces it. Grow passes
// coalescePrev=false so the header stays at off; it reclaims the block
// immediately, so the no-adjacent-free invariant holds again on return.
func (a *Arena) release(off uint32, coalescePrev bool) {
	size := a.size(off)
	a.setState(off, format.BlockFree)
	a.putU32(format.ArenaLiveBlocksOffset, a.u32(format.ArenaLiveBlocksOffset)-1)
	a.putU32(format.ArenaLivePayloadOffset, a.u32(format.ArenaLivePayloadOffset)-(size-hdr))

	// The sentinels are permanently used, so neither merge can run off the
	// end of the block list.
	if next := a.next(off); a.state(next) == format.BlockFree {
		a.merge(off, next)
	}
	if coalescePrev {
		if prev := a.prev(off); a.state(prev) == format.BlockFree {
			a.merge(prev, off)
		}
	}
}

// merge absorbs block b into its predecessor a.
func (a *Arena) merge(into, b uint32) {
	next := a.next(b)
	a.setSize(into, a.size(into)+a.size(b))
	a.setNext(into, next)
	a.setPrev(next, into)
	if a.rover() == b {
		a.setRover(into)
	}
	clear(a.buf[b : b+hdr])
}

// liveHeader validates that payloadOff addresses a live block and returns
// its header offset.
func (a *Arena) liveHeader(payloadOff uint32) (uint32, bool) {
	if payloadOff < format.FirstBlockOffset+hdr || !format.IsAligned(int(payloadOff)) {
		return 0, false
	}
	off := payloadOff - hdr
	tail := a.tail()
	if off >= tail || a.state(off) != format.BlockUsed {
		return 0, false
	}
	size := a.size(off)
	next := a.next(off)
	prev := a.prev(off)
	if size < 2*hdr || next != off+size || next > tail || prev < format.HeadSentinelOffset || prev >= off {
		return 0, false
	}
	return off, a.prev(next) == off && a.next(prev) == off
}

func (a *Arena) walk(fn func(off uint32) bool) {
	tail := a.tail()
	off := uint32(format.FirstBlockOffset)
	for range a.maxSteps() {
		if off == tail || off == noBlock {
			return
		}
		if !fn(off) {
			return
		}
		off = a.next(off)
	}
}

// maxSteps bounds list walks so a corrupt link cannot loop forever.
func (a *Arena) maxSteps() int { return len(a.buf)/hdr + 1 }

func (a *Arena) block(off uint32) Block {
	return Block{
		Offset: off,
		Size:   a.size(off),
		Free:   a.state(off) == format.BlockFree,
		Prev:   a.prev(off),
		Next:   a.next(off),
	}
}

func (a *Arena) writeHeader(off, size, state, prev, next uint32) {
	a.setSize(off, size)
	a.setState(off, state)
	a.setPrev(off, prev)
	a.setNext(off, next)
}

func (a *Arena) tail() uint32 { return uint32(len(a.buf)) - hdr }
func (a *Arena) rover() uint32 { return a.u32(format.ArenaRoverOffset) }
func (a *Arena) setRover(off uint32) { a.putU32(format.ArenaRoverOffset, off) }
func (a *Arena) size(off uint32) uint32 { return a.u32(int(off) + format.BlockSizeOffset) }
func (a *Arena) state(off uint32) uint32 { return a.u32(int(off) + format.BlockStateOffset) }
func (a *Arena) prev(off uint32) uint32 { return a.u32(int(off) + format.BlockPrevOffset) }
func (a *Arena) next(off uint32) uint32 { return a.u32(int(off) + format.BlockNextOffset) }
func (a *Arena) setSize(off, v uint32) { a.putU32(int(off)+format.BlockSizeOffset, v) }
func (a *Arena) setState(off, v uint32) { a.putU32(int(off)+format.BlockStateOffset, v) }
func (a *Arena) setPrev(off, v uint32) { a.putU32(int(off)+format.BlockPrevOffset, v) }
func (a *Arena) setNext(off, v uint32) { a.putU32(int(off)+format.BlockNextOffset, v) }
func (a *Arena) u32(off int) uint32 { return format.ReadU32(a.buf, off) }
func (a *Arena) putU32(off int, v uint32) { format.PutU32(a.buf, off, v) }

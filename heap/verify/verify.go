// Package verify checks the structural invariants of arenas, allocators and
// snapshot bytes. It is used by tests after heap mutations and by heapctl
// before trusting a snapshot file.
package verify

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/stream"
)

const hdr = format.BlockHeaderSize

// ValidationError describes the first invariant violation found.
type ValidationError struct {
	Type    string
	Message string
	Offset  int // offset within the arena, or the snapshot for Snapshot; -1 if N/A
	Arena   int // arena slot, -1 if N/A
	Details map[string]any
}

func (e *ValidationError) Error() string {
	where := ""
	if e.Arena >= 0 {
		where = fmt.Sprintf(" in arena %d", e.Arena)
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("%s%s at offset 0x%X: %s", e.Type, where, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s%s: %s", e.Type, where, e.Message)
}

func fail(typ string, off int, msg string, args ...any) *ValidationError {
	return &ValidationError{Type: typ, Message: fmt.Sprintf(msg, args...), Offset: off, Arena: -1}
}

// Arena validates a live arena.
func Arena(a *arena.Arena) error { return ArenaBytes(a.Bytes()) }

// ArenaBytes validates a raw arena buffer: header, sentinels, block
// coverage, link symmetry, coalescing, rover placement and live counters.
func ArenaBytes(b []byte) error {
	if len(b) < format.MinArenaSize || !format.IsAligned(len(b)) {
		return fail("ArenaHeader", -1, "bad arena length %d", len(b))
	}
	if size := format.ReadU32(b, format.ArenaSizeOffset); int(size) != len(b) {
		return &ValidationError{
			Type:    "ArenaHeader",
			Message: "size field does not match buffer length",
			Offset:  format.ArenaSizeOffset,
			Arena:   -1,
			Details: map[string]any{"field": size, "actual": len(b)},
		}
	}

	u32 := func(off uint32, field int) uint32 { return format.ReadU32(b, int(off)+field) }
	head := uint32(format.HeadSentinelOffset)
	first := uint32(format.FirstBlockOffset)
	tail := uint32(len(b)) - hdr

	if u32(head, format.BlockStateOffset) != format.BlockUsed || u32(head, format.BlockSizeOffset) != hdr ||
		u32(head, format.BlockPrevOffset) != 0 || u32(head, format.BlockNextOffset) != first {
		return fail("Sentinel", int(head), "malformed head sentinel")
	}
	if u32(tail, format.BlockStateOffset) != format.BlockUsed || u32(tail, format.BlockSizeOffset) != hdr ||
		u32(tail, format.BlockNextOffset) != 0 {
		return fail("Sentinel", int(tail), "malformed tail sentinel")
	}

	rover := format.ReadU32(b, format.ArenaRoverOffset)
	roverSeen := false
	prev, off := head, first
	prevFree := false
	var live, payload uint32

	for steps := 0; off != tail; steps++ {
		if steps > len(b)/hdr {
			return fail("BlockList", int(off), "block list does not terminate")
		}
		size := u32(off, format.BlockSizeOffset)
		state := u32(off, format.BlockStateOffset)
		next := u32(off, format.BlockNextOffset)

		if size < 2*hdr || !format.IsAligned(int(size)) || size > tail-off {
			return fail("BlockSize", int(off), "block size %d does not fit before the tail at 0x%X", size, tail)
		}
		if back := u32(off, format.BlockPrevOffset); back != prev {
			return &ValidationError{
				Type:    "BlockLink",
				Message: "prev link does not point at the preceding block",
				Offset:  int(off),
				Arena:   -1,
				Details: map[string]any{"prev": back, "expected": prev},
			}
		}
		if next != off+size {
			return fail("BlockLink", int(off), "next link 0x%X, block ends at 0x%X", next, off+size)
		}

		switch state {
		case format.BlockFree:
			if prevFree {
				return fail("Coalescing", int(off), "adjacent free blocks")
			}
		case format.BlockUsed:
			live++
			payload += size - hdr
		default:
			return fail("BlockState", int(off), "unknown state 0x%08X", state)
		}

		if off == rover {
			roverSeen = true
		}
		prevFree = state == format.BlockFree
		prev, off = off, next
	}

	if back := u32(tail, format.BlockPrevOffset); back != prev {
		return fail("Sentinel", int(tail), "tail prev link 0x%X, last block 0x%X", back, prev)
	}
	if !roverSeen {
		return fail("Rover", format.ArenaRoverOffset, "rover 0x%X is not a block boundary", rover)
	}
	if got := format.ReadU32(b, format.ArenaLiveBlocksOffset); got != live {
		return fail("Counters", format.ArenaLiveBlocksOffset, "live blocks %d, walked %d", got, live)
	}
	if got := format.ReadU32(b, format.ArenaLivePayloadOffset); got != payload {
		return fail("Counters", format.ArenaLivePayloadOffset, "live payload %d, walked %d", got, payload)
	}
	return nil
}

// Allocator validates every arena of a. It must not race with mutation.
func Allocator(a *heap.Allocator) error {
	for i := range a.ArenaCount() {
		ar := a.Arena(i)
		if ar == nil {
			continue
		}
		if err := ArenaBytes(ar.Bytes()); err != nil {
			return inArena(err, i, 0)
		}
	}
	return nil
}

// Snapshot validates snapshot framing and every arena it contains. Offsets
// in the returned error are relative to the snapshot.
func Snapshot(b []byte) error {
	r := stream.NewReader(b)
	r.U16()
	r.I64()
	count := r.U32()
	if err := r.Err(); err != nil {
		return fail("SnapshotHeader", -1, "%v", err)
	}

	for i := range int(count) {
		at := r.Position()
		n := r.I32()
		if err := r.Err(); err != nil {
			return inArena(fail("SnapshotFraming", at, "missing length: %v", err), i, 0)
		}
		if n < 0 {
			return inArena(fail("SnapshotFraming", at, "negative length %d", n), i, 0)
		}
		if n == 0 {
			continue
		}
		base := r.Position()
		raw := r.Next(int(n))
		if err := r.Err(); err != nil {
			return inArena(fail("SnapshotFraming", at, "%v", err), i, 0)
		}
		if err := ArenaBytes(raw); err != nil {
			return inArena(err, i, base)
		}
	}
	if r.Remaining() != 0 {
		return fail("SnapshotFraming", r.Position(), "%d trailing bytes", r.Remaining())
	}
	return nil
}

func inArena(err error, i, base int) error {
	if verr, ok := err.(*ValidationError); ok {
		verr.Arena = i
		if verr.Offset >= 0 {
			verr.Offset += base
		}
	}
	return err
}

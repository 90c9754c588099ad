// Package arena implements a block allocator over one contiguous byte buffer.
//
// # Layout
//
// Every piece of bookkeeping lives inside the buffer itself, so an arena can
// be copied, serialized or reloaded as an opaque blob:
//
//	[arena header 16B] [head sentinel 16B] [block] [block] ... [tail sentinel 16B]
//
// Each block starts with a 16-byte header (size, state, prev, next). The
// prev/next links are arena-relative offsets, never pointers. Blocks form a
// doubly-linked, gap-free partition of the space between the sentinels, and
// no two neighbouring blocks are ever both free.
//
// # Allocation
//
// Malloc is next-fit: the search starts at the rover (stored in the arena
// header), wraps around once, and takes the first free block large enough.
// A block is split when the remainder exceeds one header; smaller slivers
// stay attached to the allocation.
//
// Free coalesces with the next block unconditionally and with the previous
// block. Grow extends a block in place into a free successor: it releases
// the block without merging backwards, so the header does not move, and
// claims the merged space again.
//
// # Offsets
//
// Public offsets are payload offsets (header offset + 16). A payload offset
// is never 0, which the heap package uses to keep the zero Handle invalid.
//
// # Thread Safety
//
// An Arena is not safe for concurrent mutation. The heap package serialises
// Malloc/Free/Grow under its allocator lock; reads of payload bytes need no
// lock.
package arena

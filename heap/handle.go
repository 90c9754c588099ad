package heap

import "fmt"

// Handle is a relocation-stable reference to a block: the arena's index in
// the allocator table and the payload offset inside that arena.
//
// The zero Handle is invalid. Handles survive growth of other blocks, new
// arenas and snapshot round trips, but not Free of their own block or a
// Realloc that had to move it.
type Handle struct {
	Arena  uint32
	Offset uint32
}

// InvalidHandle is the zero Handle, used for zero-length allocations.
var InvalidHandle Handle

// IsValid reports whether h can refer to a block.
func (h Handle) IsValid() bool { return h.Offset != 0 }

// Uint64 packs h into a single word (arena in the high half).
func (h Handle) Uint64() uint64 { return uint64(h.Arena)<<32 | uint64(h.Offset) }

// HandleFromUint64 is the inverse of Handle.Uint64.
func HandleFromUint64(v uint64) Handle {
	return Handle{Arena: uint32(v >> 32), Offset: uint32(v)}
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "heap.Handle(invalid)"
	}
	return fmt.Sprintf("heap.Handle(%d:0x%X)", h.Arena, h.Offset)
}

// Package format holds the byte layout shared by arenas, snapshots and
// patches. Every multi-byte field is stored in the host's native byte order:
// snapshots are meant for same-build round trips, not as a portable format.
package format

const (
	// Alignment is the payload alignment inside an arena. Block headers are
	// exactly one alignment unit, so payloads stay aligned after splits.
	Alignment = 16

	// AlignmentMask is Alignment - 1.
	AlignmentMask = Alignment - 1

	// BlockHeaderSize is the size of the header embedded before every block.
	//
	//	Offset  Size  Description
	//	0x00    4     Total block size, header included.
	//	0x04    4     State: BlockFree or BlockUsed.
	//	0x08    4     Arena-relative offset of the previous block header.
	//	0x0C    4     Arena-relative offset of the next block header.
	BlockHeaderSize = 16

	BlockSizeOffset  = 0x00
	BlockStateOffset = 0x04
	BlockPrevOffset  = 0x08
	BlockNextOffset  = 0x0C

	// BlockFree marks a block available for allocation.
	BlockFree uint32 = 0

	// BlockUsed marks a live block. A magic value rather than 1 lets Free
	// reject pointers that do not land on a block header.
	BlockUsed uint32 = 0x4B4C4255 // "UBLK"

	// ArenaHeaderSize is the size of the arena header at offset 0.
	//
	//	Offset  Size  Description
	//	0x00    4     Arena size in bytes.
	//	0x04    4     Rover: header offset where the next search starts.
	//	0x08    4     Number of live blocks.
	//	0x0C    4     Live payload bytes.
	ArenaHeaderSize = 16

	ArenaSizeOffset        = 0x00
	ArenaRoverOffset       = 0x04
	ArenaLiveBlocksOffset  = 0x08
	ArenaLivePayloadOffset = 0x0C

	// HeadSentinelOffset is the header offset of the head sentinel block.
	HeadSentinelOffset = ArenaHeaderSize

	// FirstBlockOffset is the header offset of the first real block.
	FirstBlockOffset = HeadSentinelOffset + BlockHeaderSize

	// ArenaOverhead is the space an arena spends on its own bookkeeping:
	// the arena header plus the head and tail sentinels.
	ArenaOverhead = ArenaHeaderSize + 2*BlockHeaderSize

	// MinArenaSize is the smallest arena that still holds one real block
	// with a single alignment unit of payload.
	MinArenaSize = ArenaOverhead + BlockHeaderSize + Alignment

	// MaxArenaSize bounds an arena so its length fits the snapshot's i32
	// length field.
	MaxArenaSize = 0x7FFFFFF0
)

const (
	// SnapshotHeaderSize is u16 version | i64 maxSize | u32 arenaCount.
	SnapshotHeaderSize = 2 + 8 + 4

	// ChunkSize is the comparison unit of the diff engine.
	ChunkSize = 32

	// RecordDelta tags a run of differing chunks in a patch payload.
	RecordDelta uint8 = 0

	// RecordTail tags the trailing, non chunk-aligned bytes of a patch.
	RecordTail uint8 = 1

	// RecordHeaderSize is u8 type | u32 offset | u32 count.
	RecordHeaderSize = 1 + 4 + 4
)

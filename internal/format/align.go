package format

// Align16 returns n aligned up to the next Alignment boundary.
//
// Example:
//
//	Align16(1)  = 16
//	Align16(16) = 16
//	Align16(17) = 32
func Align16(n int) int {
	return (n + AlignmentMask) &^ AlignmentMask
}

// IsAligned reports whether n sits on an Alignment boundary.
func IsAligned(n int) bool {
	return n&AlignmentMask == 0
}

// BlockSizeFor returns the total block size needed for a payload of n bytes.
func BlockSizeFor(n int) int {
	return BlockHeaderSize + Align16(n)
}

// ArenaSizeFor returns the smallest arena that can serve a payload of n
// bytes in a single block.
func ArenaSizeFor(n int) int {
	return ArenaOverhead + BlockSizeFor(n)
}

package heap

import "github.com/cockroachdb/errors"

var (
	// ErrBadSize indicates a negative or oversized allocation request.
	ErrBadSize = errors.New("heap: bad allocation size")

	// ErrBadHandle indicates a Handle whose arena slot does not exist.
	ErrBadHandle = errors.New("heap: bad handle")

	// ErrNotLive indicates a Handle that does not address a live block,
	// typically a double free or a handle kept across a moving Realloc.
	ErrNotLive = errors.New("heap: handle does not address a live block")

	// ErrOutOfRange indicates a Mem* access outside the block payload.
	ErrOutOfRange = errors.New("heap: access outside block payload")

	// ErrMaxSize indicates growth past MaxSize with StrictMaxSize set.
	ErrMaxSize = errors.New("heap: allocator would exceed max size")

	// ErrGeometry indicates arena layouts that differ where a structural
	// copy requires them to match.
	ErrGeometry = errors.New("heap: arena geometry mismatch")

	// ErrCorruptSnapshot indicates snapshot bytes that fail length bookkeeping.
	ErrCorruptSnapshot = errors.New("heap: corrupt snapshot")
)

package patch

import "github.com/cockroachdb/errors"

var (
	// ErrLengthMismatch indicates snapshots, or a snapshot and a patch, of
	// different lengths. The heaps do not share arena geometry.
	ErrLengthMismatch = errors.New("patch: snapshot length mismatch")

	// ErrTooLarge indicates a snapshot whose offsets do not fit in 32 bits.
	ErrTooLarge = errors.New("patch: snapshot too large")

	// ErrCorruptPatch indicates a malformed record stream or wire header.
	ErrCorruptPatch = errors.New("patch: corrupt patch")

	// ErrDigestMismatch indicates the replayed snapshot differs from the
	// one the patch was computed against.
	ErrDigestMismatch = errors.New("patch: digest mismatch after apply")
)

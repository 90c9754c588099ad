package replica

import "github.com/cockroachdb/errors"

var (
	// ErrStreamMismatch indicates a frame from a different publisher.
	ErrStreamMismatch = errors.New("replica: frame from another stream")

	// ErrSequenceGap indicates a missing frame, or a patch before any
	// keyframe.
	ErrSequenceGap = errors.New("replica: sequence gap")

	// ErrBadFrame indicates an unknown kind or an oversized payload.
	ErrBadFrame = errors.New("replica: bad frame")
)

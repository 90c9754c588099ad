package arena

import "github.com/cockroachdb/errors"

var (
	// ErrCorrupt indicates an arena buffer whose header does not match its length.
	ErrCorrupt = errors.New("arena: corrupt arena header")

	// ErrSizeMismatch indicates a byte copy between arenas of different sizes.
	ErrSizeMismatch = errors.New("arena: size mismatch")
)

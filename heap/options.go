package heap

import (
	"log/slog"
	"os"

	"github.com/joshuapare/heapkit/internal/logger"
)

// DefaultMinArenaSize is the default floor for new arenas.
const DefaultMinArenaSize = 64 << 10

// logAlloc turns on arena lifecycle logging to stderr when no Logger is
// configured. Controlled by HEAPKIT_LOG_ALLOC.
var logAlloc = os.Getenv("HEAPKIT_LOG_ALLOC") != ""

// Options configures an Allocator.
type Options struct {
	// MinArenaSize is the smallest arena the allocator creates. Requests
	// larger than this get an arena sized to fit them.
	// Default: DefaultMinArenaSize.
	MinArenaSize int

	// MaxSize is the advisory ceiling on total arena bytes. It is carried
	// through snapshots and copies. Exceeding it logs a warning once
	// unless StrictMaxSize is set. Zero means unlimited.
	MaxSize int64

	// StrictMaxSize makes growth past MaxSize fail with ErrMaxSize.
	StrictMaxSize bool

	// Logger receives arena lifecycle events at debug level and the
	// MaxSize warning. Default: logger.L.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when nil is passed.
func DefaultOptions() Options {
	return Options{MinArenaSize: DefaultMinArenaSize}
}

func (o Options) withDefaults() Options {
	if o.MinArenaSize <= 0 {
		o.MinArenaSize = DefaultMinArenaSize
	}
	if o.Logger == nil {
		if logAlloc {
			o.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			o.Logger = logger.L
		}
	}
	return o
}

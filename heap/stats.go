package heap

import "github.com/joshuapare/heapkit/heap/arena"

// Stats summarises the allocator.
type Stats struct {
	Version     uint16
	MaxSize     int64
	Slots       int // arena table length, empty slots included
	Arenas      int // live arenas
	Capacity    int // total arena bytes
	LiveBlocks  int
	LivePayload int
	FreeBytes   int
	LargestFree int
	PerArena    []arena.Stats // indexed by slot; zero for empty slots
}

// Stats walks every arena. It must not race with mutation.
func (a *Allocator) Stats() Stats {
	t := a.arenas()
	s := Stats{
		Version:  a.Version(),
		MaxSize:  a.MaxSize(),
		Slots:    len(t),
		PerArena: make([]arena.Stats, len(t)),
	}
	for i, ar := range t {
		if ar == nil {
			continue
		}
		as := ar.Stats()
		s.PerArena[i] = as
		s.Arenas++
		s.Capacity += as.Size
		s.LiveBlocks += as.LiveBlocks
		s.LivePayload += as.LivePayload
		s.FreeBytes += as.FreeBytes
		s.LargestFree = max(s.LargestFree, as.LargestFree)
	}
	return s
}

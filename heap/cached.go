package heap

// CachedPtr remembers a typed view of a block together with the allocator
// version it was resolved under. Get returns the cached pointer while the
// version is unchanged and re-resolves through the Handle otherwise.
type CachedPtr[T any] struct {
	h       Handle
	version uint16
	epoch   uint64
	ptr     *T
}

// Cache resolves h and returns a CachedPtr for it. The pointer is nil when
// h does not address a block large enough for T.
func Cache[T any](a *Allocator, h Handle) CachedPtr[T] {
	c := CachedPtr[T]{h: h}
	c.refresh(a)
	return c
}

// Handle returns the cached Handle.
func (c *CachedPtr[T]) Handle() Handle { return c.h }

// Valid reports whether the cached pointer can be used without resolving.
func (c *CachedPtr[T]) Valid(a *Allocator) bool {
	return c.ptr != nil && c.version == a.Version() && c.epoch == a.epoch.Load()
}

// Get returns the pointer, re-resolving it if the allocator's structure
// changed since it was cached.
func (c *CachedPtr[T]) Get(a *Allocator) *T {
	if !c.Valid(a) {
		c.refresh(a)
	}
	return c.ptr
}

// Reset points the cache at another Handle.
func (c *CachedPtr[T]) Reset(a *Allocator, h Handle) {
	c.h = h
	c.refresh(a)
}

func (c *CachedPtr[T]) refresh(a *Allocator) {
	// Read the epoch first: a concurrent bump after it leaves the cache
	// stale rather than wrongly valid.
	c.epoch = a.epoch.Load()
	c.version = a.Version()
	c.ptr = Deref[T](a, c.h)
}

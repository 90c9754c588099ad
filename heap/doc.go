// Package heap provides a self-managed, snapshot-friendly heap for
// simulation state.
//
// # Overview
//
// An Allocator owns an ordered table of arenas (see heap/arena). Callers
// never hold raw addresses across operations; they hold a Handle, an
// (arena index, payload offset) pair that stays valid when other blocks are
// allocated, when arenas are added, and across Serialize/Deserialize round
// trips.
//
//	a, err := heap.Initialize(1<<20, 64<<20, nil)
//	if err != nil {
//	    return err
//	}
//	defer a.Dispose()
//
//	h, err := a.Alloc(64)
//	if err != nil {
//	    return err
//	}
//	copy(a.Resolve(h), "position")
//
// # Versioning
//
// Version is a 16-bit counter bumped on every structural change that can
// invalidate a raw view: arena creation, arena destruction and CopyFrom*.
// Plain Alloc/Free inside existing arenas leave it untouched. CachedPtr
// pairs a typed pointer with the version it was resolved under and
// re-resolves on mismatch.
//
// # Snapshots
//
// Serialize writes
//
//	u16 version | i64 maxSize | u32 arenaCount | (i32 length | length bytes)*
//
// in native byte order; an empty arena slot is a zero length. Restore and
// Deserialize read it back. heap/patch diffs two snapshots.
//
// # Thread Safety
//
// Alloc, Free, Realloc and Reserve take one allocator-wide spin lock.
// Resolve and the Mem* helpers are lock-free: the arena table is published
// through an atomic pointer. Serialize, Restore and CopyFrom* must not run
// concurrently with mutation; callers quiesce between ticks.
package heap

// Package patch computes and replays sparse deltas between two heap
// snapshots of identical length.
//
// GetDiff compares the snapshots in 32-byte chunks. Consecutive differing
// chunks form a delta run, recorded as
//
//	u8 0 | u32 offset | u32 runCount | runCount*32 bytes
//
// and the bytes after the last whole chunk, if any, are copied verbatim in
// a tail record
//
//	u8 1 | u32 offset | u32 tailLength | tailLength bytes
//
// whether they changed or not. Chunks that are equal in both snapshots
// never appear in a delta run.
//
// A Patch also carries the xxhash64 digest of the destination snapshot, so
// Apply can detect a patch replayed onto the wrong source.
//
//	p, err := patch.GetDiff(before, after)
//	if err != nil {
//	    return err
//	}
//	wire, _ := p.MarshalBinary()
//	// ... on the replica ...
//	var q patch.Patch
//	if err := q.UnmarshalBinary(wire); err != nil {
//	    return err
//	}
//	return q.Apply(replica)
package patch

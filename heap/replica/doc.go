// Package replica keeps a follower allocator in lockstep with a leader by
// shipping one frame per simulation tick.
//
// A frame is
//
//	u8 kind | 16-byte stream id | u64 seq | u32 length | payload
//
// in native byte order. Kind 1 carries a full snapshot (a keyframe), kind 2
// a patch in its wire encoding. The Publisher sends a keyframe first and
// whenever the snapshot length changes, patches otherwise. The Subscriber
// rejects frames from another stream and sequence gaps; after either, the
// follower needs a fresh keyframe.
//
// Both sides open an OpenTelemetry span per frame through the global
// tracer provider. Installing an exporter is up to the program.
package replica

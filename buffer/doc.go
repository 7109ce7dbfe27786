// Package buffer provides the reference-counted packet buffer used for all
// transport I/O in this module.
//
// A Buffer owns a contiguous byte region with a reserved header area at the
// front. Protocol layers consume or reclaim header space in place, so a
// payload can be encapsulated and decapsulated without copying. Buffers may
// be chained to represent a payload that spans several segments, and may be
// retained by multiple owners; storage is returned to the allocator when the
// last owner releases it.
//
// Allocation is accounted: an Allocator enforces a configurable limit on the
// number of outstanding buffers so that constrained deployments can bound
// memory use, and exposes counters for diagnostics.
package buffer

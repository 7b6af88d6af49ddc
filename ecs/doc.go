// Package ecs is a small, reference-counted, component-indexed data store
// with atomic snapshot/commit semantics.
//
// An Instance owns a slot allocator and a registry of erased component
// tables. A Component[T] is a typed column over those slots, in either a
// sparse (block-paged, for data most entities don't have) or non-sparse
// (contiguous slice with a default-fill callback, for data every entity has)
// representation. A Snapshot[T] is a copy-on-write overlay over a sparse
// Component, committed atomically so readers never observe a partial write.
package ecs
